// Package store keeps the two persisted documents: the active project and the
// workspace list. Both live in named slots of a Backend.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/andrejsstepanovs/architect/models"
	"github.com/rs/zerolog"
)

const (
	SlotProject   = "project"
	SlotWorkspace = "workspace"
)

// Backend is a key-value slot storage.
type Backend interface {
	// Load returns the slot content; found is false when the slot was never written.
	Load(ctx context.Context, slot string) (data []byte, found bool, err error)
	Save(ctx context.Context, slot string, data []byte) error
	Close() error
}

// Recorder receives the outcome of every slot write.
type Recorder interface {
	RecordStoreWrite(slot, status string)
}

// Store encodes project documents into slots. Unreadable slot content is
// treated as absent and never reported as an error.
type Store struct {
	backend  Backend
	logger   zerolog.Logger
	recorder Recorder
}

func New(backend Backend, logger zerolog.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  logger.With().Str("component", "store").Logger(),
	}
}

// WithRecorder attaches a write recorder (metrics).
func (s *Store) WithRecorder(r Recorder) *Store {
	s.recorder = r
	return s
}

// ReadProject returns the active project, or nil when the slot is empty or
// holds something that is not a valid project.
func (s *Store) ReadProject(ctx context.Context) (*models.Project, error) {
	data, found, err := s.backend.Load(ctx, SlotProject)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	if !found {
		return nil, nil
	}

	var project models.Project
	if err := json.Unmarshal(data, &project); err != nil {
		s.logger.Warn().Err(err).Msg("stored project is unreadable, falling back to template")
		return nil, nil
	}
	if err := project.Validate(); err != nil {
		s.logger.Warn().Err(err).Msg("stored project is invalid, falling back to template")
		return nil, nil
	}

	normalize(&project)
	return &project, nil
}

// WriteProject persists the active project. Invalid documents are refused so
// the slot always holds a valid project.
func (s *Store) WriteProject(ctx context.Context, project models.Project) error {
	if err := project.Validate(); err != nil {
		return fmt.Errorf("refusing to store project: %w", err)
	}
	return s.write(ctx, SlotProject, project)
}

// ReadWorkspace returns the saved snapshots. An unreadable slot yields an
// empty workspace; invalid or duplicate entries are skipped.
func (s *Store) ReadWorkspace(ctx context.Context) ([]models.Project, error) {
	data, found, err := s.backend.Load(ctx, SlotWorkspace)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace: %w", err)
	}
	if !found {
		return []models.Project{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn().Err(err).Msg("stored workspace is unreadable, starting empty")
		return []models.Project{}, nil
	}

	projects := make([]models.Project, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for i, entry := range raw {
		var p models.Project
		if err := json.Unmarshal(entry, &p); err != nil {
			s.logger.Warn().Err(err).Int("entry", i).Msg("skipping unreadable workspace entry")
			continue
		}
		if err := p.Validate(); err != nil {
			s.logger.Warn().Err(err).Int("entry", i).Msg("skipping invalid workspace entry")
			continue
		}
		if seen[p.ID] {
			s.logger.Warn().Str("id", p.ID).Msg("skipping duplicate workspace entry")
			continue
		}
		seen[p.ID] = true
		normalize(&p)
		projects = append(projects, p)
	}

	return projects, nil
}

// WriteWorkspace persists the snapshot list.
func (s *Store) WriteWorkspace(ctx context.Context, projects []models.Project) error {
	for _, p := range projects {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("refusing to store workspace entry %q: %w", p.ID, err)
		}
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return s.write(ctx, SlotWorkspace, projects)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) write(ctx context.Context, slot string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		s.record(slot, "error")
		return fmt.Errorf("failed to encode %s: %w", slot, err)
	}
	if err := s.backend.Save(ctx, slot, data); err != nil {
		s.record(slot, "error")
		return fmt.Errorf("failed to write %s: %w", slot, err)
	}
	s.record(slot, "ok")
	return nil
}

func (s *Store) record(slot, status string) {
	if s.recorder != nil {
		s.recorder.RecordStoreWrite(slot, status)
	}
}

// normalize replaces nil sequences so that documents round-trip as [] rather
// than null.
func normalize(p *models.Project) {
	if p.Modules == nil {
		p.Modules = []models.Module{}
	}
	if p.Files == nil {
		p.Files = []models.GeneratedFile{}
	}
}

// Package controller owns the active project and the workspace. It is the
// only place that mutates them and it writes every accepted change through
// to the store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/andrejsstepanovs/architect/client"
	"github.com/andrejsstepanovs/architect/export"
	"github.com/andrejsstepanovs/architect/metrics"
	"github.com/andrejsstepanovs/architect/models"
	"github.com/andrejsstepanovs/architect/store"
	"github.com/rs/zerolog"
)

var (
	ErrEmptyRequest       = client.ErrEmptyRequest
	ErrGenerationInFlight = errors.New("a generation is already in progress")
	ErrNoFiles            = export.ErrNoFiles
	ErrNotConfirmed       = errors.New("action not confirmed")
	ErrProjectNotFound    = errors.New("project not found in workspace")
	// ErrStaleGeneration means the active project was replaced while the
	// generation call was outstanding; its result is discarded.
	ErrStaleGeneration = errors.New("active project changed during generation")
)

// Phase is the generation state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

const (
	maxProgressLines = 5
	progressInterval = 1500 * time.Millisecond
)

var progressStart = []string{
	"Initializing modular architect...",
	"Analyzing project dependencies...",
	"Generating module code...",
}

// progressStages rotate into the log while a call is outstanding.
var progressStages = []string{
	"Syncing backend models...",
	"Updating frontend routes...",
	"Injecting Tailwind components...",
	"Refactoring shared services...",
	"Finalizing module integration...",
}

// Generator produces a revision of a project from a feature request.
type Generator interface {
	Generate(ctx context.Context, project models.Project, request string) (*models.Revision, error)
}

// Confirm asks the user to approve a destructive action. A nil Confirm
// declines.
type Confirm func(question string) bool

// Always approves every question.
func Always(string) bool { return true }

// Focus is the presentation target selected after a generation.
type Focus struct {
	FilePath string `json:"filePath,omitempty"`
	ModuleID string `json:"moduleId,omitempty"`
}

// Status is a snapshot of the generation state.
type Status struct {
	Phase     Phase    `json:"phase"`
	Progress  []string `json:"progress"`
	LastError string   `json:"lastError,omitempty"`
	Focus     Focus    `json:"focus"`
}

// Generating reports whether a call is outstanding.
func (s Status) Generating() bool {
	return s.Phase == PhaseGenerating
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTimeout bounds every generation call.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithProgressInterval sets how often a stage line is appended to the
// progress log during a generation.
func WithProgressInterval(d time.Duration) Option {
	return func(c *Controller) { c.progressEvery = d }
}

// Controller is safe for concurrent use. At most one generation runs at a
// time; a second AddModule while one is outstanding is rejected.
type Controller struct {
	mu sync.Mutex

	store     *store.Store
	generator Generator
	logger    zerolog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	timeout   time.Duration

	project   models.Project
	workspace []models.Project
	// epoch changes whenever the active project is replaced wholesale,
	// including by a snapshot with the same id.
	epoch     uint64

	phase         Phase
	lastErr       error
	progress      []string
	progressStop  chan struct{}
	progressEvery time.Duration
	focus         Focus
}

// New loads the persisted state. A missing or unreadable active project is
// replaced by a fresh template, which is written back immediately.
func New(ctx context.Context, st *store.Store, gen Generator, opts ...Option) (*Controller, error) {
	c := &Controller{
		store:     st,
		generator: gen,
		logger:    zerolog.Nop(),
		now:       time.Now,
		timeout:   3 * time.Minute,
		phase:     PhaseIdle,

		progressEvery: progressInterval,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New()
	}
	c.logger = c.logger.With().Str("component", "controller").Logger()

	project, err := st.ReadProject(ctx)
	if err != nil {
		return nil, err
	}
	workspace, err := st.ReadWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	if project == nil {
		fresh := models.NewProject(c.now())
		if err := st.WriteProject(ctx, fresh); err != nil {
			return nil, err
		}
		project = &fresh
		c.logger.Info().Str("id", fresh.ID).Msg("started with a fresh project")
	}

	c.project = *project
	c.workspace = workspace
	c.metrics.SetWorkspaceSize(len(workspace))
	return c, nil
}

// Project returns a copy of the active project.
func (c *Controller) Project() models.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project.Clone()
}

// Workspace returns copies of the saved snapshots, newest first.
func (c *Controller) Workspace() []models.Project {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneAll(c.workspace)
}

// Status returns the generation state and the presentation focus.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Status{
		Phase:    c.phase,
		Progress: append([]string{}, c.progress...),
		Focus:    c.focus,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	if s.Focus.ModuleID == "" && len(c.project.Modules) > 0 {
		s.Focus.ModuleID = c.project.Modules[0].ID
	}
	return s
}

// AddModule sends request to the generator and replaces name, modules, files
// and readme of the active project with the result. On any failure the
// active project is left untouched. The generating phase is always cleared
// before returning.
func (c *Controller) AddModule(ctx context.Context, request string) (_ models.Project, err error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return models.Project{}, ErrEmptyRequest
	}

	snapshot, epoch, err := c.begin()
	if err != nil {
		return models.Project{}, err
	}

	start := c.now()
	defer func() {
		c.finish(err, c.now().Sub(start))
	}()

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Info().Str("id", snapshot.ID).Int("request_len", len(request)).Msg("generating module")
	rev, err := c.generator.Generate(genCtx, snapshot, request)
	if err != nil {
		if errors.Is(genCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, client.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %v", client.ErrGenerationFailed, err)
		}
		return models.Project{}, err
	}
	if rev == nil {
		return models.Project{}, fmt.Errorf("%w: empty result", client.ErrInvalidResponse)
	}
	if verr := rev.Validate(); verr != nil {
		return models.Project{}, fmt.Errorf("%w: %v", client.ErrInvalidResponse, verr)
	}

	return c.apply(ctx, epoch, *rev)
}

func (c *Controller) begin() (models.Project, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase == PhaseGenerating {
		return models.Project{}, 0, ErrGenerationInFlight
	}
	c.phase = PhaseGenerating
	c.lastErr = nil
	c.progress = append([]string{}, progressStart...)
	c.progressStop = make(chan struct{})
	go c.rotateProgress(c.progressStop)
	c.metrics.SetGenerating(true)
	return c.project.Clone(), c.epoch, nil
}

// rotateProgress appends a stage line on every tick until stop is closed.
func (c *Controller) rotateProgress(stop chan struct{}) {
	ticker := time.NewTicker(c.progressEvery)
	defer ticker.Stop()

	for i := 0; ; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.progressStop == stop {
				c.addProgress(progressStages[i%len(progressStages)])
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) finish(err error, took time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	outcome := PhaseSucceeded
	if err != nil {
		outcome = PhaseFailed
		c.logger.Error().Err(err).Dur("took", took).Msg("module generation failed")
	}
	c.phase = outcome
	c.lastErr = err
	close(c.progressStop)
	c.progressStop = nil
	c.progress = nil
	c.metrics.SetGenerating(false)
	c.metrics.RecordGeneration(string(outcome), took.Seconds())
}

func (c *Controller) apply(ctx context.Context, epoch uint64, rev models.Revision) (models.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.epoch != epoch {
		return models.Project{}, ErrStaleGeneration
	}

	next := c.project.Clone()
	next.Apply(rev)
	if err := next.Validate(); err != nil {
		return models.Project{}, fmt.Errorf("%w: %v", client.ErrInvalidResponse, err)
	}
	if err := c.store.WriteProject(ctx, next); err != nil {
		return models.Project{}, err
	}

	c.project = next
	c.focus = Focus{}
	if len(next.Files) > 0 {
		c.focus.FilePath = next.Files[0].Path
	}
	if len(next.Modules) > 0 {
		c.focus.ModuleID = next.Modules[len(next.Modules)-1].ID
	}

	c.logger.Info().
		Str("id", next.ID).
		Int("modules", len(next.Modules)).
		Int("files", len(next.Files)).
		Msg("module generated")
	return next.Clone(), nil
}

func (c *Controller) addProgress(line string) {
	c.progress = append(c.progress, line)
	if len(c.progress) > maxProgressLines {
		c.progress = c.progress[len(c.progress)-maxProgressLines:]
	}
}

// Rename sets the display name of the active project.
func (c *Controller) Rename(ctx context.Context, name string) (models.Project, error) {
	return c.Edit(ctx, &name, nil)
}

// SetStyle sets the visual style of the active project.
func (c *Controller) SetStyle(ctx context.Context, style string) (models.Project, error) {
	return c.Edit(ctx, nil, &style)
}

// Edit sets name and style (nil leaves a field alone) in a single write.
// Nothing is changed when either value is rejected.
func (c *Controller) Edit(ctx context.Context, name, style *string) (models.Project, error) {
	if style != nil && !models.ValidStyle(*style) {
		return models.Project{}, fmt.Errorf("%w: unknown style %q", models.ErrInvalidProject, *style)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.project.Clone()
	if name != nil {
		next.Name = *name
	}
	if style != nil {
		next.Style = *style
	}
	if err := c.store.WriteProject(ctx, next); err != nil {
		return models.Project{}, err
	}
	c.project = next
	return next.Clone(), nil
}

// Save stamps UpdatedAt and upserts a deep copy of the active project into
// the workspace. New entries go first.
func (c *Controller) Save(ctx context.Context) (models.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.project.Clone()
	next.UpdatedAt = c.now()

	workspace := cloneAll(c.workspace)
	replaced := false
	for i := range workspace {
		if workspace[i].ID == next.ID {
			workspace[i] = next.Clone()
			replaced = true
			break
		}
	}
	if !replaced {
		workspace = append([]models.Project{next.Clone()}, workspace...)
	}

	if err := c.store.WriteWorkspace(ctx, workspace); err != nil {
		return models.Project{}, err
	}
	if err := c.store.WriteProject(ctx, next); err != nil {
		return models.Project{}, err
	}

	c.project = next
	c.workspace = workspace
	c.metrics.SetWorkspaceSize(len(workspace))
	c.logger.Info().Str("id", next.ID).Bool("replaced", replaced).Msg("project saved to workspace")
	return next.Clone(), nil
}

// Load makes the workspace entry with id the active project.
func (c *Controller) Load(ctx context.Context, id string) (models.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return models.Project{}, ErrProjectNotFound
	}

	next := c.workspace[i].Clone()
	if err := c.store.WriteProject(ctx, next); err != nil {
		return models.Project{}, err
	}

	c.project = next
	c.epoch++
	c.focus = Focus{}
	c.logger.Info().Str("id", id).Msg("project loaded from workspace")
	return next.Clone(), nil
}

// Delete removes a workspace entry. The active project is not affected even
// when it has the same id.
func (c *Controller) Delete(ctx context.Context, id string, confirm Confirm) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return ErrProjectNotFound
	}
	if confirm == nil || !confirm(fmt.Sprintf("Delete %q from the workspace?", c.workspace[i].Name)) {
		return ErrNotConfirmed
	}

	workspace := make([]models.Project, 0, len(c.workspace)-1)
	workspace = append(workspace, c.workspace[:i]...)
	workspace = append(workspace, c.workspace[i+1:]...)
	if err := c.store.WriteWorkspace(ctx, workspace); err != nil {
		return err
	}

	c.workspace = workspace
	c.metrics.SetWorkspaceSize(len(workspace))
	c.logger.Info().Str("id", id).Msg("project deleted from workspace")
	return nil
}

// NewProject replaces the active project with a fresh template.
func (c *Controller) NewProject(ctx context.Context, confirm Confirm) (models.Project, error) {
	return c.replaceWithTemplate(ctx, confirm, "Start a new project? Unsaved changes not in the workspace will be lost.")
}

// Reset replaces the active project with a fresh template.
func (c *Controller) Reset(ctx context.Context, confirm Confirm) (models.Project, error) {
	return c.replaceWithTemplate(ctx, confirm, "Reset the entire project?")
}

func (c *Controller) replaceWithTemplate(ctx context.Context, confirm Confirm, question string) (models.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if confirm == nil || !confirm(question) {
		return models.Project{}, ErrNotConfirmed
	}

	next := models.NewProject(c.now())
	if err := c.store.WriteProject(ctx, next); err != nil {
		return models.Project{}, err
	}

	c.project = next
	c.epoch++
	c.focus = Focus{}
	c.logger.Info().Str("id", next.ID).Msg("active project replaced with template")
	return next.Clone(), nil
}

// Export writes the zip archive of the active project to w and returns the
// download name. Projects without files produce nothing.
func (c *Controller) Export(ctx context.Context, w io.Writer) (string, error) {
	project := c.Project()
	if !project.HasFiles() {
		return "", ErrNoFiles
	}
	if err := export.Write(ctx, w, project, c.now()); err != nil {
		return "", err
	}
	return export.ArchiveName(project.Name), nil
}

// Close releases the store.
func (c *Controller) Close() error {
	return c.store.Close()
}

func (c *Controller) indexOf(id string) int {
	for i, p := range c.workspace {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(in []models.Project) []models.Project {
	out := make([]models.Project, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

package controller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andrejsstepanovs/architect/client"
	"github.com/andrejsstepanovs/architect/export"
	"github.com/andrejsstepanovs/architect/metrics"
	"github.com/andrejsstepanovs/architect/models"
	"github.com/andrejsstepanovs/architect/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memBackend struct {
	mu      sync.Mutex
	slots   map[string][]byte
	failing bool
}

func newMemBackend() *memBackend {
	return &memBackend{slots: map[string][]byte{}}
}

func (m *memBackend) Load(_ context.Context, slot string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.slots[slot]
	return data, ok, nil
}

func (m *memBackend) Save(_ context.Context, slot string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return errors.New("disk full")
	}
	m.slots[slot] = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) Close() error { return nil }

func (m *memBackend) get(slot string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[slot]
}

func (m *memBackend) setFailing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = v
}

// stubGenerator returns rev (or err). When release is set, every call blocks
// until it is closed or the context ends.
type stubGenerator struct {
	rev     *models.Revision
	err     error
	release chan struct{}
	calls   atomic.Int32
	seen    []string
	mu      sync.Mutex
}

func (s *stubGenerator) Generate(ctx context.Context, project models.Project, request string) (*models.Revision, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.seen = append(s.seen, project.ID+"|"+request)
	s.mu.Unlock()

	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.rev == nil {
		return nil, nil
	}
	rev := *s.rev
	return &rev, nil
}

func demoRevision() *models.Revision {
	return &models.Revision{
		Name: "Demo",
		Modules: []models.Module{{
			ID: "m1", Name: "Customers", Type: models.ModuleCRUD, Description: "Customer records",
			Fields: []models.Field{
				{Name: "name", Label: "Name", Type: models.FieldString, Required: true},
				{Name: "phone", Label: "Phone", Type: models.FieldString, Required: false},
			},
		}},
		Files: []models.GeneratedFile{
			{Name: "customer.go", Path: "backend/customer.go", Language: "go", Content: "package backend"},
		},
		Readme: "# Demo",
	}
}

var fixedNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newController(t *testing.T, backend *memBackend, gen Generator, opts ...Option) *Controller {
	t.Helper()
	st := store.New(backend, zerolog.Nop())
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c, err := New(context.Background(), st, gen, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_FreshStartWritesTemplate(t *testing.T) {
	backend := newMemBackend()
	c := newController(t, backend, &stubGenerator{rev: demoRevision()})

	p := c.Project()
	assert.Equal(t, models.DefaultName, p.Name)
	assert.Empty(t, p.Modules)
	assert.Empty(t, p.Files)
	assert.NotEmpty(t, backend.get(store.SlotProject))
	assert.Empty(t, c.Workspace())
	assert.Equal(t, PhaseIdle, c.Status().Phase)
}

func TestNew_CorruptStorageRecovers(t *testing.T) {
	backend := newMemBackend()
	backend.slots[store.SlotProject] = []byte(`{"id": 42, "modules": "nope"`)
	backend.slots[store.SlotWorkspace] = []byte(`not json`)

	c := newController(t, backend, &stubGenerator{rev: demoRevision()})

	assert.Equal(t, models.DefaultName, c.Project().Name)
	assert.Empty(t, c.Workspace())
}

func TestNew_RestoresPersistedState(t *testing.T) {
	backend := newMemBackend()
	first := newController(t, backend, &stubGenerator{rev: demoRevision()})
	_, err := first.AddModule(context.Background(), "Add customers")
	require.NoError(t, err)
	_, err = first.Save(context.Background())
	require.NoError(t, err)

	second := newController(t, backend, &stubGenerator{rev: demoRevision()})
	assert.Equal(t, first.Project(), second.Project())
	assert.Equal(t, first.Workspace(), second.Workspace())
}

func TestAddModule_ConcreteScenario(t *testing.T) {
	backend := newMemBackend()
	gen := &stubGenerator{rev: demoRevision()}
	c := newController(t, backend, gen)
	before := c.Project()

	p, err := c.AddModule(context.Background(), "Add a Customers CRUD with name and phone")
	require.NoError(t, err)

	assert.Equal(t, before.ID, p.ID)
	assert.Equal(t, before.UpdatedAt, p.UpdatedAt)
	assert.Equal(t, before.Style, p.Style)
	assert.Equal(t, "Demo", p.Name)
	assert.Len(t, p.Modules, 1)
	assert.Len(t, p.Files, 1)
	assert.Equal(t, "# Demo", p.Readme)
	assert.Equal(t, p, c.Project())

	s := c.Status()
	assert.False(t, s.Generating())
	assert.Equal(t, PhaseSucceeded, s.Phase)
	assert.Empty(t, s.LastError)
	assert.Equal(t, Focus{FilePath: "backend/customer.go", ModuleID: "m1"}, s.Focus)

	restored, err := store.New(backend, zerolog.Nop()).ReadProject(context.Background())
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, p.ID, restored.ID)
	assert.Len(t, restored.Modules, 1)
}

func TestAddModule_EmptyRequestIsNoop(t *testing.T) {
	backend := newMemBackend()
	gen := &stubGenerator{rev: demoRevision()}
	c := newController(t, backend, gen)
	before := c.Project()
	stored := backend.get(store.SlotProject)

	for _, req := range []string{"", "   ", "\n\t"} {
		_, err := c.AddModule(context.Background(), req)
		assert.ErrorIs(t, err, ErrEmptyRequest)
	}

	assert.Equal(t, before, c.Project())
	assert.Equal(t, stored, backend.get(store.SlotProject))
	assert.Zero(t, gen.calls.Load())
	assert.Equal(t, PhaseIdle, c.Status().Phase)
}

func TestAddModule_FailureLeavesProjectUntouched(t *testing.T) {
	tests := []struct {
		name    string
		gen     *stubGenerator
		wantErr error
	}{
		{
			name:    "transport failure",
			gen:     &stubGenerator{err: client.ErrGenerationFailed},
			wantErr: client.ErrGenerationFailed,
		},
		{
			name:    "unparseable response",
			gen:     &stubGenerator{err: client.ErrInvalidResponse},
			wantErr: client.ErrInvalidResponse,
		},
		{
			name:    "nil revision",
			gen:     &stubGenerator{},
			wantErr: client.ErrInvalidResponse,
		},
		{
			name: "revision with bad module",
			gen: &stubGenerator{rev: &models.Revision{
				Name:    "Bad",
				Modules: []models.Module{{ID: "x", Name: "X", Type: "widget"}},
			}},
			wantErr: client.ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newMemBackend()
			c := newController(t, backend, tt.gen)
			before := c.Project()
			stored := backend.get(store.SlotProject)

			_, err := c.AddModule(context.Background(), "Add customers")
			assert.ErrorIs(t, err, tt.wantErr)

			assert.Equal(t, before, c.Project())
			assert.Equal(t, stored, backend.get(store.SlotProject))

			s := c.Status()
			assert.Equal(t, PhaseFailed, s.Phase)
			assert.NotEmpty(t, s.LastError)
			assert.Empty(t, s.Progress)
		})
	}
}

func TestAddModule_Timeout(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision(), release: make(chan struct{})}
	c := newController(t, newMemBackend(), gen, WithTimeout(20*time.Millisecond))
	before := c.Project()

	_, err := c.AddModule(context.Background(), "Add customers")
	assert.ErrorIs(t, err, client.ErrGenerationFailed)
	assert.Equal(t, before, c.Project())
	assert.False(t, c.Status().Generating())
}

func TestAddModule_SingleFlight(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision(), release: make(chan struct{})}
	c := newController(t, newMemBackend(), gen)

	done := make(chan error, 1)
	go func() {
		_, err := c.AddModule(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Status().Generating() }, time.Second, time.Millisecond)
	assert.NotEmpty(t, c.Status().Progress)

	_, err := c.AddModule(context.Background(), "second")
	assert.ErrorIs(t, err, ErrGenerationInFlight)

	close(gen.release)
	require.NoError(t, <-done)

	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, "Demo", c.Project().Name)
	assert.Equal(t, PhaseSucceeded, c.Status().Phase)
}

func TestAddModule_RetryAfterFailure(t *testing.T) {
	gen := &stubGenerator{err: client.ErrGenerationFailed}
	c := newController(t, newMemBackend(), gen)

	_, err := c.AddModule(context.Background(), "Add customers")
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, c.Status().Phase)

	gen.err = nil
	gen.rev = demoRevision()
	_, err = c.AddModule(context.Background(), "Add customers")
	require.NoError(t, err)
	assert.Equal(t, PhaseSucceeded, c.Status().Phase)
	assert.Empty(t, c.Status().LastError)
}

func TestAddModule_StaleResultDiscarded(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision(), release: make(chan struct{})}
	c := newController(t, newMemBackend(), gen)

	done := make(chan error, 1)
	go func() {
		_, err := c.AddModule(context.Background(), "Add customers")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Status().Generating() }, time.Second, time.Millisecond)

	fresh, err := c.Reset(context.Background(), Always)
	require.NoError(t, err)

	close(gen.release)
	assert.ErrorIs(t, <-done, ErrStaleGeneration)
	assert.Equal(t, fresh, c.Project())
	assert.Empty(t, c.Project().Modules)
}

func TestAddModule_LoadSameProjectDiscardsResult(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision(), release: make(chan struct{})}
	c := newController(t, newMemBackend(), gen)
	ctx := context.Background()

	_, err := c.Rename(ctx, "Saved")
	require.NoError(t, err)
	saved, err := c.Save(ctx)
	require.NoError(t, err)
	_, err = c.Rename(ctx, "Edited")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.AddModule(ctx, "Add customers")
		done <- err
	}()
	require.Eventually(t, func() bool { return c.Status().Generating() }, time.Second, time.Millisecond)

	loaded, err := c.Load(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, saved.ID, loaded.ID)

	close(gen.release)
	assert.ErrorIs(t, <-done, ErrStaleGeneration)
	assert.Equal(t, loaded, c.Project())
	assert.Equal(t, "Saved", c.Project().Name)
	assert.Empty(t, c.Project().Modules)
}

func TestAddModule_ProgressRotates(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision(), release: make(chan struct{})}
	c := newController(t, newMemBackend(), gen, WithProgressInterval(time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := c.AddModule(context.Background(), "Add customers")
		done <- err
	}()

	require.Eventually(t, func() bool {
		progress := c.Status().Progress
		return len(progress) == maxProgressLines && progress[0] != progressStart[0]
	}, time.Second, time.Millisecond)

	progress := c.Status().Progress
	assert.LessOrEqual(t, len(progress), maxProgressLines)
	assert.Subset(t, progressStages, progress[len(progress)-1:])

	close(gen.release)
	require.NoError(t, <-done)
	assert.Empty(t, c.Status().Progress)
}

func TestAddModule_StoreFailureKeepsProject(t *testing.T) {
	backend := newMemBackend()
	c := newController(t, backend, &stubGenerator{rev: demoRevision()})
	before := c.Project()

	backend.setFailing(true)
	_, err := c.AddModule(context.Background(), "Add customers")
	require.Error(t, err)
	assert.Equal(t, before, c.Project())
	assert.Equal(t, PhaseFailed, c.Status().Phase)
}

func TestAddModule_PassesSnapshotAndRequest(t *testing.T) {
	gen := &stubGenerator{rev: demoRevision()}
	c := newController(t, newMemBackend(), gen)

	_, err := c.AddModule(context.Background(), "  Add customers  ")
	require.NoError(t, err)
	require.Len(t, gen.seen, 1)
	assert.Equal(t, c.Project().ID+"|Add customers", gen.seen[0])
}

func TestSave_Upsert(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, saved.UpdatedAt)
	require.Len(t, c.Workspace(), 1)

	_, err = c.AddModule(ctx, "Add customers")
	require.NoError(t, err)
	_, err = c.Save(ctx)
	require.NoError(t, err)

	ws := c.Workspace()
	require.Len(t, ws, 1)
	assert.Equal(t, "Demo", ws[0].Name)
	assert.Len(t, ws[0].Modules, 1)
}

func TestSave_NewEntriesGoFirst(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	first, err := c.Save(ctx)
	require.NoError(t, err)
	_, err = c.NewProject(ctx, Always)
	require.NoError(t, err)
	second, err := c.Save(ctx)
	require.NoError(t, err)

	ws := c.Workspace()
	require.Len(t, ws, 2)
	assert.Equal(t, second.ID, ws[0].ID)
	assert.Equal(t, first.ID, ws[1].ID)
}

func TestSave_SnapshotIsolation(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	_, err := c.Save(ctx)
	require.NoError(t, err)
	_, err = c.Rename(ctx, "Changed later")
	require.NoError(t, err)

	assert.Equal(t, "Changed later", c.Project().Name)
	assert.Equal(t, models.DefaultName, c.Workspace()[0].Name)

	// Mutating a returned copy must not leak either.
	ws := c.Workspace()
	ws[0].Name = "mutated"
	assert.Equal(t, models.DefaultName, c.Workspace()[0].Name)
}

func TestSave_GenerationKeepsUpdatedAt(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	saved, err := c.Save(ctx)
	require.NoError(t, err)
	p, err := c.AddModule(ctx, "Add customers")
	require.NoError(t, err)
	assert.Equal(t, saved.UpdatedAt, p.UpdatedAt)
}

func TestLoad(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	_, err := c.AddModule(ctx, "Add customers")
	require.NoError(t, err)
	saved, err := c.Save(ctx)
	require.NoError(t, err)
	_, err = c.Reset(ctx, Always)
	require.NoError(t, err)

	loaded, err := c.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
	assert.Equal(t, saved, c.Project())
	assert.Equal(t, Focus{ModuleID: "m1"}, c.Status().Focus)

	_, err = c.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
	assert.Equal(t, saved, c.Project())
}

func TestDelete(t *testing.T) {
	backend := newMemBackend()
	c := newController(t, backend, &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	saved, err := c.Save(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, c.Delete(ctx, saved.ID, nil), ErrNotConfirmed)
	assert.ErrorIs(t, c.Delete(ctx, saved.ID, func(string) bool { return false }), ErrNotConfirmed)
	assert.Len(t, c.Workspace(), 1)

	var asked string
	require.NoError(t, c.Delete(ctx, saved.ID, func(q string) bool {
		asked = q
		return true
	}))
	assert.Contains(t, asked, models.DefaultName)
	assert.Empty(t, c.Workspace())
	assert.Equal(t, saved.ID, c.Project().ID)
	assert.JSONEq(t, `[]`, string(backend.get(store.SlotWorkspace)))

	assert.ErrorIs(t, c.Delete(ctx, saved.ID, Always), ErrProjectNotFound)
}

func TestResetAndNewProject(t *testing.T) {
	ctx := context.Background()

	for name, action := range map[string]func(*Controller, Confirm) (models.Project, error){
		"reset": func(c *Controller, confirm Confirm) (models.Project, error) { return c.Reset(ctx, confirm) },
		"new":   func(c *Controller, confirm Confirm) (models.Project, error) { return c.NewProject(ctx, confirm) },
	} {
		t.Run(name, func(t *testing.T) {
			c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
			generated, err := c.AddModule(ctx, "Add customers")
			require.NoError(t, err)

			_, err = action(c, nil)
			assert.ErrorIs(t, err, ErrNotConfirmed)
			assert.Equal(t, generated, c.Project())

			fresh, err := action(c, Always)
			require.NoError(t, err)
			assert.NotEqual(t, generated.ID, fresh.ID)
			assert.Equal(t, models.DefaultName, fresh.Name)
			assert.Empty(t, fresh.Modules)
			assert.Empty(t, fresh.Files)
			assert.Equal(t, Focus{}, c.Status().Focus)
		})
	}
}

func TestRenameAndSetStyle(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	p, err := c.Rename(ctx, "Inventory")
	require.NoError(t, err)
	assert.Equal(t, "Inventory", p.Name)

	p, err = c.SetStyle(ctx, models.Styles[1])
	require.NoError(t, err)
	assert.Equal(t, models.Styles[1], p.Style)

	_, err = c.SetStyle(ctx, "comic sans")
	assert.ErrorIs(t, err, models.ErrInvalidProject)
	assert.Equal(t, models.Styles[1], c.Project().Style)
}

func TestEdit_RejectsWithoutPartialWrite(t *testing.T) {
	backend := newMemBackend()
	c := newController(t, backend, &stubGenerator{rev: demoRevision()})
	ctx := context.Background()
	before := c.Project()
	stored := backend.get(store.SlotProject)

	name, style := "Renamed", "Bogus"
	_, err := c.Edit(ctx, &name, &style)
	assert.ErrorIs(t, err, models.ErrInvalidProject)
	assert.Equal(t, before, c.Project())
	assert.Equal(t, stored, backend.get(store.SlotProject))

	style = models.Styles[3]
	p, err := c.Edit(ctx, &name, &style)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
	assert.Equal(t, models.Styles[3], p.Style)
	assert.Equal(t, p, c.Project())

	p, err = c.Edit(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)
}

func TestExport(t *testing.T) {
	c := newController(t, newMemBackend(), &stubGenerator{rev: demoRevision()})
	ctx := context.Background()

	var buf bytes.Buffer
	_, err := c.Export(ctx, &buf)
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Zero(t, buf.Len())

	_, err = c.AddModule(ctx, "Add customers")
	require.NoError(t, err)

	name, err := c.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, "demo-source.zip", name)
	assert.Equal(t, export.ArchiveName("Demo"), name)
	assert.NotZero(t, buf.Len())
}

func TestMetricsAreRecorded(t *testing.T) {
	m := metrics.New()
	backend := newMemBackend()
	gen := &stubGenerator{rev: demoRevision()}
	c := newController(t, backend, gen, WithMetrics(m))
	ctx := context.Background()

	_, err := c.AddModule(ctx, "Add customers")
	require.NoError(t, err)
	gen.rev, gen.err = nil, client.ErrGenerationFailed
	_, err = c.AddModule(ctx, "Add orders")
	require.Error(t, err)
	_, err = c.Save(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(string(PhaseSucceeded))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues(string(PhaseFailed))))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.GenerationsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WorkspaceSize))
}

package entries

import (
	"context"
	"errors"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// hostStub satisfies the cover host interfaces without ever firing events.
type hostStub struct {
	mu       sync.Mutex
	commands int
}

func (h *hostStub) Get(string) (cover.EntityState, bool) { return cover.EntityState{}, false }

func (h *hostStub) TrackStateChange([]string, func(cover.StateChange)) cover.Unsubscribe {
	return func() {}
}

func (h *hostStub) TrackInterval(time.Duration, func(time.Time)) cover.Unsubscribe {
	return func() {}
}

func (h *hostStub) SetPosition(context.Context, string, float64, bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands++
	return nil
}

// memoryRepository is an in-memory OptionsRepository.
type memoryRepository struct {
	mu     sync.Mutex
	stored map[string]map[string]any
	err    error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{stored: make(map[string]map[string]any)}
}

func (r *memoryRepository) Get(_ context.Context, id string) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return maps.Clone(r.stored[id]), nil
}

func (r *memoryRepository) Patch(_ context.Context, id string, patch map[string]any) (map[string]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.stored[id] = applyPatch(r.stored[id], patch)
	return maps.Clone(r.stored[id]), nil
}

func (r *memoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stored, id)
	return nil
}

func newTestManager(t *testing.T, repo OptionsRepository) (*Manager, *cover.Registry) {
	t.Helper()
	host := &hostStub{}
	registry := cover.NewRegistry()
	m := NewManager(registry, repo, cover.Deps{
		Store:    host,
		Events:   host,
		Sink:     host,
		Location: time.UTC,
	}, nil)
	t.Cleanup(m.Close)
	return m, registry
}

func entry(id string, covers ...any) Entry {
	return Entry{ID: id, Data: map[string]any{cover.OptCovers: covers}}
}

func TestManager_ApplyAddsUpdatesAndRemoves(t *testing.T) {
	m, registry := newTestManager(t, newMemoryRepository())
	ctx := context.Background()

	if err := m.Apply(ctx, []Entry{entry("south", "cover.a"), entry("north", "cover.b")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got := len(registry.All()); got != 2 {
		t.Fatalf("registry holds %d coordinators, want 2", got)
	}

	if err := m.Apply(ctx, []Entry{entry("south", "cover.a", "cover.c")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, ok := registry.Coordinator("north"); ok {
		t.Error("removed entry still registered")
	}
	c, ok := registry.Find("cover.c")
	if !ok || c.EntryID() != "south" {
		t.Errorf("Find(cover.c) = %v, %v", c, ok)
	}
	if got := m.Entries(); len(got) != 1 || got[0].ID != "south" {
		t.Errorf("Entries() = %+v", got)
	}
}

func TestManager_ApplyUnchangedKeepsOverride(t *testing.T) {
	m, registry := newTestManager(t, nil)
	ctx := context.Background()

	if err := m.Apply(ctx, []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	c, _ := registry.Coordinator("south")
	c.SetManualOverride("cover.a", nil)

	if err := m.Apply(ctx, []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if s, _ := c.Snapshot("cover.a"); !s.ManualActive {
		t.Error("reload of unchanged entry cleared the override")
	}
}

func TestManager_ApplyUsesStoredOptions(t *testing.T) {
	repo := newMemoryRepository()
	repo.stored["south"] = map[string]any{cover.OptWindLimit: 25}
	m, _ := newTestManager(t, repo)

	if err := m.Apply(context.Background(), []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	opts, err := m.Options("south")
	if err != nil {
		t.Fatalf("Options() error = %v", err)
	}
	if got := opts.Float(cover.OptWindLimit, 0); got != 25 {
		t.Errorf("wind_limit = %v, want stored 25", got)
	}
}

func TestManager_ApplyJoinsErrors(t *testing.T) {
	repo := newMemoryRepository()
	repo.err = errors.New("disk gone")
	m, registry := newTestManager(t, repo)

	err := m.Apply(context.Background(), []Entry{entry("south", "cover.a")})
	if !errors.Is(err, repo.err) {
		t.Fatalf("Apply() error = %v, want repository error", err)
	}
	if _, ok := registry.Coordinator("south"); ok {
		t.Error("entry registered despite load failure")
	}
}

func TestManager_PatchOptions(t *testing.T) {
	repo := newMemoryRepository()
	m, _ := newTestManager(t, repo)
	ctx := context.Background()

	if err := m.Apply(ctx, []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	opts, err := m.PatchOptions(ctx, "south", map[string]any{cover.OptWindLimit: 30})
	if err != nil {
		t.Fatalf("PatchOptions() error = %v", err)
	}
	if got := opts.Float(cover.OptWindLimit, 0); got != 30 {
		t.Errorf("wind_limit = %v, want 30", got)
	}
	if got := repo.stored["south"][cover.OptWindLimit]; got != 30 {
		t.Errorf("stored wind_limit = %v, want 30", got)
	}

	opts, err = m.PatchOptions(ctx, "south", map[string]any{cover.OptWindLimit: nil})
	if err != nil {
		t.Fatalf("PatchOptions() error = %v", err)
	}
	if got := opts.Float(cover.OptWindLimit, 0); got != 50 {
		t.Errorf("wind_limit after reset = %v, want default 50", got)
	}
}

func TestManager_PatchOptionsErrors(t *testing.T) {
	m, _ := newTestManager(t, newMemoryRepository())
	ctx := context.Background()
	if err := m.Apply(ctx, []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if _, err := m.PatchOptions(ctx, "missing", nil); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("PatchOptions(missing) error = %v, want ErrEntryNotFound", err)
	}
	if _, err := m.PatchOptions(ctx, "south", map[string]any{cover.OptCovers: []any{}}); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("PatchOptions(empty covers) error = %v, want ErrInvalidOptions", err)
	}
	if _, err := m.Options("missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Options(missing) error = %v, want ErrEntryNotFound", err)
	}

	noStore, _ := newTestManager(t, nil)
	if err := noStore.Apply(ctx, []Entry{entry("south", "cover.a")}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if _, err := noStore.PatchOptions(ctx, "south", map[string]any{}); !errors.Is(err, cover.ErrMissingDependency) {
		t.Errorf("PatchOptions() without store error = %v", err)
	}
}

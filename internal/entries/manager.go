package entries

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// Logger is the logging interface used by the entries package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager keeps the cover registry in line with the configured entries.
//
// Each entry becomes one cover.Coordinator whose options are
// DefaultOptions ⊕ entry data ⊕ stored overrides.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Manager struct {
	registry *cover.Registry
	repo     OptionsRepository
	deps     cover.Deps
	logger   Logger

	mu      sync.Mutex
	entries map[string]Entry
}

// NewManager creates a Manager that registers coordinators in registry.
//
// Parameters:
//   - registry: Registry the API and metrics read from
//   - repo: Stored option overrides (nil means none)
//   - deps: Host dependencies handed to every coordinator
//   - logger: Optional logger
func NewManager(registry *cover.Registry, repo OptionsRepository, deps cover.Deps, logger Logger) *Manager {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Manager{
		registry: registry,
		repo:     repo,
		deps:     deps,
		logger:   logger,
		entries:  make(map[string]Entry),
	}
}

// Apply reconciles the registry with entries.
//
// New entries get a coordinator, existing ones whose data changed are
// updated in place (which clears their overrides and re-evaluates), and
// entries no longer listed are torn down. Failures of individual entries are joined into the result; the
// remaining entries are still applied.
func (m *Manager) Apply(ctx context.Context, list []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	wanted := make(map[string]bool, len(list))

	for _, e := range list {
		wanted[e.ID] = true
		if err := m.applyLocked(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
		}
	}

	for id := range m.entries {
		if wanted[id] {
			continue
		}
		if c, ok := m.registry.Remove(id); ok {
			c.Teardown()
		}
		delete(m.entries, id)
		m.logger.Info("entry removed", "entry", id)
	}

	return errors.Join(errs...)
}

// applyLocked creates or updates the coordinator of one entry.
func (m *Manager) applyLocked(ctx context.Context, e Entry) error {
	if prev, ok := m.entries[e.ID]; ok && reflect.DeepEqual(prev.Data, e.Data) {
		m.entries[e.ID] = e
		return nil
	}

	stored, err := m.stored(ctx, e.ID)
	if err != nil {
		return err
	}
	m.entries[e.ID] = e

	if c, ok := m.registry.Coordinator(e.ID); ok {
		m.logger.Info("entry updated", "entry", e.ID)
		return c.UpdateOptions(ctx, e.Data, stored)
	}

	c := cover.NewCoordinator(e.ID, e.Data, stored, m.deps)
	m.registry.Add(c)
	m.logger.Info("entry added", "entry", e.ID, "covers", len(c.Options().Covers()))
	return c.Setup(ctx)
}

func (m *Manager) stored(ctx context.Context, entryID string) (map[string]any, error) {
	if m.repo == nil {
		return nil, nil
	}
	stored, err := m.repo.Get(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("loading stored options: %w", err)
	}
	return stored, nil
}

// Entries returns the applied entries sorted by ID.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Options returns the effective options of an entry.
func (m *Manager) Options(entryID string) (cover.Options, error) {
	c, ok := m.registry.Coordinator(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	return c.Options(), nil
}

// PatchOptions stores option overrides for an entry and applies them.
//
// Parameters:
//   - ctx: Context for the store and the re-evaluation
//   - entryID: Entry to change
//   - patch: Option keys to set; nil values restore the file value
//
// Returns:
//   - cover.Options: The effective options after the change
//   - error: ErrEntryNotFound, a store error, or joined engine errors
func (m *Manager) PatchOptions(ctx context.Context, entryID string, patch map[string]any) (cover.Options, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	if m.repo == nil {
		return nil, fmt.Errorf("%w: no options store configured", cover.ErrMissingDependency)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	stored, err := m.repo.Patch(ctx, entryID, patch)
	if err != nil {
		return nil, err
	}

	c, ok := m.registry.Coordinator(entryID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, entryID)
	}
	err = c.UpdateOptions(ctx, e.Data, stored)
	return c.Options(), err
}

// validatePatch rejects patches that would leave an entry without covers.
func validatePatch(patch map[string]any) error {
	v, ok := patch[cover.OptCovers]
	if !ok || v == nil {
		return nil
	}
	if len(cover.Options{cover.OptCovers: v}.Covers()) == 0 {
		return fmt.Errorf("%w: %s must list at least one cover", ErrInvalidOptions, cover.OptCovers)
	}
	return nil
}

// Close tears down every coordinator the manager created.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.entries {
		if c, ok := m.registry.Remove(id); ok {
			c.Teardown()
		}
	}
	m.entries = make(map[string]Entry)
}

package cover

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Coordinator owns the engines of one configured entry.
//
// The merged configuration is DefaultOptions overlaid with the entry data
// and then with the stored runtime options. Every engine of the entry
// shares that configuration.
//
// Thread Safety: all methods are safe for concurrent use.
type Coordinator struct {
	entryID string
	deps    Deps

	mu      sync.RWMutex
	opts    Options
	engines map[string]*Engine
	ctx     context.Context
}

// NewCoordinator creates the coordinator for one entry.
//
// Parameters:
//   - entryID: Entry identifier
//   - data: Entry definition (covers, sensors, schedule)
//   - stored: Runtime option overrides, may be nil
//   - deps: Host interfaces passed to every engine
func NewCoordinator(entryID string, data, stored map[string]any, deps Deps) *Coordinator {
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Coordinator{
		entryID: entryID,
		deps:    deps,
		opts:    Merge(DefaultOptions(), data, stored),
		engines: make(map[string]*Engine),
		ctx:     context.Background(),
	}
}

// EntryID returns the entry identifier.
func (c *Coordinator) EntryID() string { return c.entryID }

// Options returns a copy of the merged configuration.
func (c *Coordinator) Options() Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.opts.Clone()
}

// Setup creates and starts one engine per configured cover.
func (c *Coordinator) Setup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ctx = ctx
	for _, id := range c.opts.Covers() {
		if _, ok := c.engines[id]; ok {
			continue
		}
		if err := c.startEngineLocked(ctx, id); err != nil {
			return err
		}
	}
	c.deps.Logger.Info("cover entry loaded", "entry_id", c.entryID, "covers", len(c.engines))
	return nil
}

func (c *Coordinator) startEngineLocked(ctx context.Context, id string) error {
	engine, err := NewEngine(c.entryID, id, c.opts, c.deps)
	if err != nil {
		return fmt.Errorf("entry %s: %w", c.entryID, err)
	}
	if err := engine.Setup(ctx); err != nil {
		return fmt.Errorf("entry %s cover %s: %w", c.entryID, id, err)
	}
	c.engines[id] = engine
	return nil
}

// Teardown stops every engine.
func (c *Coordinator) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, engine := range c.engines {
		engine.Teardown()
		delete(c.engines, id)
	}
}

// UpdateOptions re-merges the configuration and pushes it to every engine.
// Covers added to the entry get a new engine and removed covers are torn
// down. Errors from individual engines are joined.
func (c *Coordinator) UpdateOptions(ctx context.Context, data, stored map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.opts = Merge(DefaultOptions(), data, stored)
	wanted := make(map[string]bool)
	var errs []error

	for _, id := range c.opts.Covers() {
		wanted[id] = true
		engine, ok := c.engines[id]
		if !ok {
			if err := c.startEngineLocked(c.ctx, id); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		if err := engine.UpdateConfig(ctx, c.opts); err != nil {
			errs = append(errs, fmt.Errorf("cover %s: %w", id, err))
		}
	}
	for id, engine := range c.engines {
		if !wanted[id] {
			engine.Teardown()
			delete(c.engines, id)
		}
	}
	return errors.Join(errs...)
}

// Engine returns the engine for a cover.
func (c *Coordinator) Engine(cover string) (*Engine, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	engine, ok := c.engines[cover]
	return engine, ok
}

// Covers returns the managed cover ids, sorted.
func (c *Coordinator) Covers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.engines))
	for id := range c.engines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetManualOverride starts a manual override on a cover. It reports
// whether the cover is managed by this entry.
func (c *Coordinator) SetManualOverride(cover string, minutes *int) bool {
	engine, ok := c.Engine(cover)
	if !ok {
		return false
	}
	engine.SetManualOverride(minutes)
	return true
}

// ActivateShading moves a cover to its shading position under a scoped
// override.
func (c *Coordinator) ActivateShading(ctx context.Context, cover string, minutes *int) (bool, error) {
	engine, ok := c.Engine(cover)
	if !ok {
		return false, nil
	}
	return true, engine.ActivateShading(ctx, minutes)
}

// ClearManualOverride ends a cover's manual override.
func (c *Coordinator) ClearManualOverride(cover string) bool {
	engine, ok := c.Engine(cover)
	if !ok {
		return false
	}
	engine.ClearManualOverride()
	return true
}

// RecalibrateCover runs the blocking calibration sequence on a cover. found
// is false when the coordinator does not manage the cover.
func (c *Coordinator) RecalibrateCover(ctx context.Context, cover string, fullOpenTarget float64) (CalibrationResult, bool, error) {
	engine, ok := c.Engine(cover)
	if !ok {
		return CalibrationResult{}, false, nil
	}
	result, err := engine.Recalibrate(ctx, fullOpenTarget)
	return result, true, err
}

// Snapshot returns one cover's state.
func (c *Coordinator) Snapshot(cover string) (Snapshot, bool) {
	engine, ok := c.Engine(cover)
	if !ok {
		return Snapshot{}, false
	}
	return engine.Snapshot(), true
}

// Snapshots returns the state of every managed cover, sorted by cover id.
func (c *Coordinator) Snapshots() []Snapshot {
	ids := c.Covers()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, ok := c.Snapshot(id); ok {
			out = append(out, snap)
		}
	}
	return out
}

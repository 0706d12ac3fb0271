package cover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeStore struct {
	mu     sync.Mutex
	states map[string]EntityState
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]EntityState)}
}

func (s *fakeStore) Get(id string) (EntityState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	return st, ok
}

func (s *fakeStore) set(id, state string, attrs map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = EntityState{EntityID: id, State: state, Attributes: attrs}
}

func (s *fakeStore) setPosition(cover string, pos float64) {
	s.set(cover, StateOpen, map[string]any{"current_position": pos})
}

func (s *fakeStore) setSun(elevation, azimuth float64) {
	s.set("sun.sun", "above_horizon", map[string]any{"elevation": elevation, "azimuth": azimuth})
}

type stateTracker struct {
	entities []string
	fn       func(StateChange)
	stopped  bool
}

type fakeEvents struct {
	mu        sync.Mutex
	trackers  []*stateTracker
	intervals int
	stopped   int
}

func (f *fakeEvents) TrackStateChange(entities []string, fn func(StateChange)) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &stateTracker{entities: entities, fn: fn}
	f.trackers = append(f.trackers, t)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !t.stopped {
			t.stopped = true
			f.stopped++
		}
	}
}

func (f *fakeEvents) TrackInterval(time.Duration, func(time.Time)) Unsubscribe {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intervals++
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped++
	}
}

// fire delivers a change to every tracker watching the entity, including
// stopped ones, the way a late host callback would.
func (f *fakeEvents) fire(entityID string) {
	f.mu.Lock()
	var fns []func(StateChange)
	for _, t := range f.trackers {
		for _, id := range t.entities {
			if id == entityID {
				fns = append(fns, t.fn)
			}
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(StateChange{EntityID: entityID})
	}
}

func (f *fakeEvents) latest() *stateTracker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.trackers) == 0 {
		return nil
	}
	return f.trackers[len(f.trackers)-1]
}

type command struct {
	cover    string
	position float64
	blocking bool
}

type fakeSink struct {
	mu       sync.Mutex
	commands []command
	err      error
	// moveTo, when set, makes commanded covers report the new position.
	moveTo *fakeStore
}

func (s *fakeSink) SetPosition(_ context.Context, cover string, pos float64, blocking bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.commands = append(s.commands, command{cover: cover, position: pos, blocking: blocking})
	if s.moveTo != nil {
		s.moveTo.setPosition(cover, pos)
	}
	return nil
}

func (s *fakeSink) all() []command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]command(nil), s.commands...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (p *recordingPublisher) Publish(s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *recordingPublisher) last() (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return Snapshot{}, false
	}
	return p.snapshots[len(p.snapshots)-1], true
}

type recordingObserver struct {
	mu          sync.Mutex
	evaluations int
	commands    []Reason
}

func (o *recordingObserver) ObserveEvaluation(string, TriggerKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.evaluations++
}

func (o *recordingObserver) ObserveCommand(_ string, reason Reason, _ float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.commands = append(o.commands, reason)
}

func (o *recordingObserver) evaluationCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.evaluations
}

func (o *recordingObserver) commandReasons() []Reason {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Reason(nil), o.commands...)
}

// =============================================================================
// Harness
// =============================================================================

const testCover = "cover.living_room"

var errSinkDown = errors.New("sink down")

type harness struct {
	store  *fakeStore
	events *fakeEvents
	sink   *fakeSink
	clock  *fakeClock
	pub    *recordingPublisher
	engine *Engine
}

// at returns a UTC instant on Monday 2 March 2026.
func at(hour, minute, second int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, second, 0, time.UTC)
}

// baseOptions switches off the sun and brightness rules so each test only
// enables what it exercises.
func baseOptions(overrides map[string]any) Options {
	return Merge(DefaultOptions(), map[string]any{
		OptCovers:                 []any{testCover},
		"auto_sun_enabled":        false,
		"auto_brightness_enabled": false,
	}, overrides)
}

func newHarness(t *testing.T, now time.Time, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:  newFakeStore(),
		events: &fakeEvents{},
		sink:   &fakeSink{},
		clock:  &fakeClock{now: now},
		pub:    &recordingPublisher{},
	}
	h.store.setPosition(testCover, 0)

	engine, err := NewEngine("entry-1", testCover, opts, Deps{
		Store:              h.store,
		Events:             h.events,
		Sink:               h.sink,
		Publisher:          h.pub,
		Clock:              h.clock,
		Location:           time.UTC,
		CalibrationPoll:    time.Millisecond,
		CalibrationTimeout: 200 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	h.engine = engine
	return h
}

func (h *harness) evaluate(t *testing.T) {
	t.Helper()
	if err := h.engine.Evaluate(context.Background(), Trigger{Kind: TriggerTime}); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
}

func (h *harness) evaluateCoverChange(t *testing.T) {
	t.Helper()
	trigger := Trigger{Kind: TriggerState, EntityID: testCover}
	if err := h.engine.Evaluate(context.Background(), trigger); err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
}

func intPtr(v int) *int { return &v }

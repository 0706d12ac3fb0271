package cover

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func newTestCoordinator(t *testing.T, data map[string]any) (*Coordinator, *fakeStore, *fakeSink) {
	t.Helper()
	store := newFakeStore()
	sink := &fakeSink{moveTo: store}
	c := NewCoordinator("entry-1", data, nil, Deps{
		Store:              store,
		Events:             &fakeEvents{},
		Sink:               sink,
		Clock:              &fakeClock{now: at(20, 0, 0)},
		Location:           time.UTC,
		CalibrationPoll:    time.Millisecond,
		CalibrationTimeout: 50 * time.Millisecond,
	})
	if err := c.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(c.Teardown)
	return c, store, sink
}

func TestCoordinator_SetupCreatesEngines(t *testing.T) {
	c, _, _ := newTestCoordinator(t, map[string]any{
		OptCovers: []any{"cover.b", "cover.a"},
	})

	if got, want := c.Covers(), []string{"cover.a", "cover.b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Covers() = %v, want %v", got, want)
	}
	if got := len(c.Snapshots()); got != 2 {
		t.Errorf("Snapshots() = %d, want 2", got)
	}
}

func TestCoordinator_UnknownCover(t *testing.T) {
	c, _, _ := newTestCoordinator(t, map[string]any{OptCovers: []any{"cover.a"}})

	if c.SetManualOverride("cover.missing", nil) {
		t.Error("SetManualOverride() = true for unknown cover")
	}
	if c.ClearManualOverride("cover.missing") {
		t.Error("ClearManualOverride() = true for unknown cover")
	}
	if found, err := c.ActivateShading(context.Background(), "cover.missing", nil); found || err != nil {
		t.Errorf("ActivateShading() = %v, %v", found, err)
	}
	if _, found, err := c.RecalibrateCover(context.Background(), "cover.missing", 100); found || err != nil {
		t.Errorf("RecalibrateCover() = %v, %v", found, err)
	}
	if _, ok := c.Snapshot("cover.missing"); ok {
		t.Error("Snapshot() found unknown cover")
	}
}

func TestCoordinator_RoutesOperations(t *testing.T) {
	c, store, sink := newTestCoordinator(t, map[string]any{OptCovers: []any{"cover.a", "cover.b"}})
	store.setPosition("cover.a", 20)

	if !c.SetManualOverride("cover.a", intPtr(5)) {
		t.Fatal("SetManualOverride() = false")
	}
	a, _ := c.Snapshot("cover.a")
	b, _ := c.Snapshot("cover.b")
	if !a.ManualActive || b.ManualActive {
		t.Errorf("override leaked: a=%v b=%v", a.ManualActive, b.ManualActive)
	}

	if !c.ClearManualOverride("cover.a") {
		t.Fatal("ClearManualOverride() = false")
	}
	if a, _ = c.Snapshot("cover.a"); a.ManualActive {
		t.Error("override not cleared")
	}

	found, err := c.ActivateShading(context.Background(), "cover.b", nil)
	if !found || err != nil {
		t.Fatalf("ActivateShading() = %v, %v", found, err)
	}
	result, found, err := c.RecalibrateCover(context.Background(), "cover.a", 100)
	if !found || err != nil {
		t.Fatalf("RecalibrateCover() = %v, %v", found, err)
	}
	if result.Target != 100 || !result.ReachedTarget {
		t.Errorf("RecalibrateCover() result = %+v", result)
	}

	var covers []string
	for _, cmd := range sink.all() {
		covers = append(covers, cmd.cover)
	}
	if want := []string{"cover.b", "cover.a", "cover.a"}; !reflect.DeepEqual(covers, want) {
		t.Errorf("commanded covers = %v, want %v", covers, want)
	}
}

func TestCoordinator_UpdateOptions(t *testing.T) {
	c, store, sink := newTestCoordinator(t, map[string]any{OptCovers: []any{"cover.a", "cover.b"}})
	c.SetManualOverride("cover.a", nil)
	store.set(residentSensor, StateOn, nil)

	data := map[string]any{OptCovers: []any{"cover.a", "cover.c"}}
	stored := map[string]any{OptResidentSensor: residentSensor}
	if err := c.UpdateOptions(context.Background(), data, stored); err != nil {
		t.Fatalf("UpdateOptions() error = %v", err)
	}

	if got, want := c.Covers(), []string{"cover.a", "cover.c"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Covers() = %v, want %v", got, want)
	}
	if got := c.Options().String(OptResidentSensor); got != residentSensor {
		t.Errorf("merged resident sensor = %q", got)
	}
	a, _ := c.Snapshot("cover.a")
	if a.ManualActive {
		t.Error("override survived options update")
	}
	if a.Reason != ReasonResidentAsleep {
		t.Errorf("cover.a reason = %q, want %q", a.Reason, ReasonResidentAsleep)
	}
	if got := len(sink.all()); got != 1 {
		t.Errorf("commands = %d, want 1 (only the re-evaluated existing cover)", got)
	}
}

func TestCoordinator_UpdateOptionsReportsEngineErrors(t *testing.T) {
	c, store, sink := newTestCoordinator(t, map[string]any{OptCovers: []any{"cover.a"}})
	store.set(residentSensor, StateOn, nil)
	sink.mu.Lock()
	sink.err = errSinkDown
	sink.mu.Unlock()

	err := c.UpdateOptions(context.Background(),
		map[string]any{OptCovers: []any{"cover.a"}},
		map[string]any{OptResidentSensor: residentSensor})
	if !errors.Is(err, errSinkDown) {
		t.Fatalf("UpdateOptions() error = %v, want errSinkDown", err)
	}
}

func TestRegistry_Find(t *testing.T) {
	first, _, _ := newTestCoordinator(t, map[string]any{OptCovers: []any{"cover.a"}})
	second := NewCoordinator("entry-2", map[string]any{OptCovers: []any{"cover.z"}}, nil, Deps{
		Store: newFakeStore(), Events: &fakeEvents{}, Sink: &fakeSink{},
		Clock: &fakeClock{now: at(20, 0, 0)}, Location: time.UTC,
	})
	if err := second.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	defer second.Teardown()

	r := NewRegistry()
	r.Add(first)
	r.Add(second)

	c, ok := r.Find("cover.z")
	if !ok || c.EntryID() != "entry-2" {
		t.Errorf("Find(cover.z) = %v, %v", c, ok)
	}
	if _, ok := r.Find("cover.nope"); ok {
		t.Error("Find() matched unknown cover")
	}
	if got := len(r.Snapshots()); got != 2 {
		t.Errorf("Snapshots() = %d, want 2", got)
	}
	if removed, ok := r.Remove("entry-1"); !ok || removed != first {
		t.Error("Remove() did not return the coordinator")
	}
	if _, ok := r.Coordinator("entry-1"); ok {
		t.Error("entry-1 still registered")
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	var mu sync.Mutex
	var got []string

	unsub := b.Subscribe(func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s.Cover)
	})
	b.Publish(Snapshot{Cover: "cover.a"})
	unsub()
	unsub()
	b.Publish(Snapshot{Cover: "cover.b"})

	if !reflect.DeepEqual(got, []string{"cover.a"}) {
		t.Errorf("received = %v, want [cover.a]", got)
	}
}

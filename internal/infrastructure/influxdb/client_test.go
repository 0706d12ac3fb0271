package influxdb

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
)

type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestWriteCoverDecision(t *testing.T) {
	w := &fakeWriter{}
	c := &Client{writer: w, connected: true}
	target := 30.0
	at := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

	c.WriteCoverDecision(CoverDecision{
		EntryID: "south",
		Cover:   "cover.living_room",
		Reason:  "shading",
		Target:  &target,
		Time:    at,
	})

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != MeasurementCoverDecision || !p.Time().Equal(at) {
		t.Errorf("point = %s @ %v", p.Name(), p.Time())
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["cover"] != "cover.living_room" || tags["reason"] != "shading" || tags["entry_id"] != "south" {
		t.Errorf("tags = %v", tags)
	}

	fields := map[string]any{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["target"] != 30.0 {
		t.Errorf("target field = %v", fields["target"])
	}
	if _, ok := fields["position"]; ok {
		t.Error("unknown position should be omitted")
	}
}

func TestDecisionPoint_EmptyReason(t *testing.T) {
	p := decisionPoint(CoverDecision{Cover: "cover.a"})
	for _, tag := range p.TagList() {
		if tag.Key == "reason" && tag.Value != "none" {
			t.Errorf("reason tag = %q, want none", tag.Value)
		}
	}
	if p.Time().IsZero() {
		t.Error("point time not defaulted")
	}
}

func TestClose_StopsWrites(t *testing.T) {
	w := &fakeWriter{}
	c := &Client{writer: w, connected: true}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes = %d, want 1", w.flushes)
	}

	c.WriteCoverDecision(CoverDecision{Cover: "cover.a"})
	c.Flush()
	if len(w.points) != 0 || w.flushes != 1 {
		t.Error("client wrote after Close()")
	}
	if err := c.HealthCheck(t.Context()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := &Client{}
	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	ch := make(chan error, 1)
	ch <- errors.New("bucket not found")
	close(ch)
	c.handleWriteErrors(ch)

	select {
	case err := <-got:
		if err.Error() != "bucket not found" {
			t.Errorf("callback error = %v", err)
		}
	default:
		t.Error("callback not invoked")
	}
}

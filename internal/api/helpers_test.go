package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/audit"
	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/entries"
	"github.com/nerrad567/gray-logic-shutters/internal/history"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/metrics"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// fakeHost implements the cover host interfaces in memory. Events never fire.
type fakeHost struct {
	mu       sync.Mutex
	states   map[string]cover.EntityState
	commands []float64
	err      error
}

func newFakeHost() *fakeHost {
	return &fakeHost{states: make(map[string]cover.EntityState)}
}

func (h *fakeHost) Get(id string) (cover.EntityState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.states[id]
	return s, ok
}

func (h *fakeHost) TrackStateChange([]string, func(cover.StateChange)) cover.Unsubscribe {
	return func() {}
}

func (h *fakeHost) TrackInterval(time.Duration, func(time.Time)) cover.Unsubscribe {
	return func() {}
}

func (h *fakeHost) SetPosition(_ context.Context, _ string, pos float64, _ bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.commands = append(h.commands, pos)
	return nil
}

func (h *fakeHost) failCommands(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func (h *fakeHost) commandCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.commands)
}

// fakeHistory is an in-memory history.Repository.
type fakeHistory struct {
	decisions []history.Decision
	lastLimit int
}

func (f *fakeHistory) Record(context.Context, history.Decision) error { return nil }

func (f *fakeHistory) List(_ context.Context, coverID string, limit int) ([]history.Decision, error) {
	f.lastLimit = limit
	var out []history.Decision
	for _, d := range f.decisions {
		if d.Cover == coverID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeHistory) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

// fakeAudit is an in-memory audit.Repository.
type fakeAudit struct {
	mu         sync.Mutex
	logs       []audit.Log
	lastFilter audit.Filter
}

func (f *fakeAudit) Create(_ context.Context, l *audit.Log) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter
	return &audit.ListResult{Logs: f.logs, Total: len(f.logs), Limit: filter.Limit, Offset: filter.Offset}, nil
}

// fakeEntries is an EntryManager backed by the registry's coordinators.
type fakeEntries struct {
	registry *cover.Registry
	patches  []map[string]any
}

func (f *fakeEntries) Entries() []entries.Entry {
	return []entries.Entry{{ID: "south", Name: "South facade"}}
}

func (f *fakeEntries) PatchOptions(ctx context.Context, entryID string, patch map[string]any) (cover.Options, error) {
	c, ok := f.registry.Coordinator(entryID)
	if !ok {
		return nil, entries.ErrEntryNotFound
	}
	f.patches = append(f.patches, patch)
	data := map[string]any{cover.OptCovers: c.Covers()}
	if err := c.UpdateOptions(ctx, data, patch); err != nil {
		return nil, err
	}
	return c.Options(), nil
}

type testEnv struct {
	srv      *Server
	handler  http.Handler
	host     *fakeHost
	registry *cover.Registry
	history  *fakeHistory
	audit    *fakeAudit
	entries  *fakeEntries
}

type envOption func(*Deps)

func withSecret(d *Deps) { d.Security.JWT.Secret = testSecret }

func withoutOptionals(d *Deps) {
	d.History = nil
	d.Entries = nil
	d.Audit = nil
}

func withMetrics(d *Deps) {
	d.Metrics = config.MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "test"}
	d.Collectors = metrics.New(d.Metrics)
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	host := newFakeHost()
	registry := cover.NewRegistry()
	c := cover.NewCoordinator("south", map[string]any{
		cover.OptCovers: []any{"cover.a", "cover.b"},
	}, nil, cover.Deps{
		Store:              host,
		Events:             host,
		Sink:               host,
		Location:           time.UTC,
		CalibrationPoll:    time.Millisecond,
		CalibrationTimeout: 20 * time.Millisecond,
	})
	if err := c.Setup(context.Background()); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	t.Cleanup(c.Teardown)
	registry.Add(c)

	hist := &fakeHistory{}
	trail := &fakeAudit{}
	ents := &fakeEntries{registry: registry}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:       log,
		Registry:     registry,
		Entries:      ents,
		History:      hist,
		Audit:        trail,
		HistoryLimit: 25,
		Version:      "test",
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{
		srv:      srv,
		handler:  srv.Handler(),
		host:     host,
		registry: registry,
		history:  hist,
		audit:    trail,
		entries:  ents,
	}
}

// do sends a request through the router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

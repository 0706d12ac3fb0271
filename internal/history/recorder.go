package history

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

const (
	// recordBuffer is the number of decisions queued for the writer.
	recordBuffer = 256

	// recordTimeout bounds a single insert.
	recordTimeout = 5 * time.Second
)

// Logger is the logging interface used by the history package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// decisionKey is what must change for a snapshot to be recorded.
type decisionKey struct {
	reason       cover.Reason
	hasTarget    bool
	target       float64
	manualActive bool
}

func keyOf(s cover.Snapshot) decisionKey {
	k := decisionKey{reason: s.Reason, manualActive: s.ManualActive}
	if s.Target != nil {
		k.hasTarget = true
		k.target = *s.Target
	}
	return k
}

// Recorder turns the snapshot stream into decision history.
//
// Observe is registered as a cover.Broadcaster listener. Snapshots whose
// reason, target or override flag did not change since the last one of the
// same cover are skipped. The rest are queued and written by a background
// goroutine so the publishing engine never waits on the database.
//
// Thread Safety: Observe may be called concurrently from every engine.
type Recorder struct {
	repo   Repository
	logger Logger
	queue  chan Decision
	done   chan struct{}

	mu      sync.Mutex
	last    map[string]decisionKey
	started bool
	closed  bool
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		queue:  make(chan Decision, recordBuffer),
		done:   make(chan struct{}),
		last:   make(map[string]decisionKey),
	}
}

// Start launches the writer goroutine. Cancelling ctx abandons queued
// decisions; Stop writes them first.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecorderStopped
	}
	if !r.started {
		r.started = true
		go r.run(ctx)
	}
	return nil
}

// Stop closes the queue and waits until the writer has drained it.
// Calling Stop more than once is harmless.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if started {
		<-r.done
	}
}

// Observe queues a snapshot for recording when its decision changed.
func (r *Recorder) Observe(s cover.Snapshot) {
	key := keyOf(s)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	if prev, ok := r.last[s.Cover]; ok && prev == key {
		return
	}
	r.last[s.Cover] = key

	select {
	case r.queue <- FromSnapshot(s):
	default:
		r.logger.Warn("decision history queue full, dropping decision",
			"cover", s.Cover, "reason", s.Reason)
	}
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-r.queue:
			if !ok {
				return
			}
			r.write(ctx, d)
		}
	}
}

func (r *Recorder) write(ctx context.Context, d Decision) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := r.repo.Record(writeCtx, d); err != nil {
		r.logger.Error("recording cover decision", "cover", d.Cover, "error", err)
		return
	}
	r.logger.Debug("cover decision recorded", "cover", d.Cover, "reason", d.Reason)
}

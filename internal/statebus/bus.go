package statebus

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/mqtt"
)

// Bus defaults.
const (
	// DefaultAckTimeout bounds how long a blocking command waits for its ack.
	DefaultAckTimeout = 10 * time.Second

	// DefaultSource is stamped on every command.
	DefaultSource = "graylogic-shutters"

	// eventBuffer is the capacity of the state-change dispatch queue.
	eventBuffer = 256

	// snapshotBuffer is the capacity of the snapshot publish queue.
	snapshotBuffer = 128
)

// Broker is the subset of *mqtt.Client the bus needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the bus.
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

// Options configures a Bus.
type Options struct {
	// Broker carries the MQTT traffic. Required.
	Broker Broker

	// QoS used for subscriptions, commands and snapshots.
	QoS byte

	// AckTimeout bounds blocking commands. Defaults to DefaultAckTimeout.
	AckTimeout time.Duration

	// Source is stamped on commands. Defaults to DefaultSource.
	Source string

	// Logger for dropped events and malformed payloads. Optional.
	Logger Logger

	// Now overrides the clock used for timestamps. Optional.
	Now func() time.Time
}

// tracker is one TrackStateChange registration.
type tracker struct {
	entities map[string]struct{}
	fn       func(cover.StateChange)
}

// Bus connects cover engines to the MQTT state bus.
//
// It implements cover.StateStore, cover.EventSource and cover.CommandSink,
// and its PublishSnapshot method is a cover.Listener.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - State-change callbacks run on a single dispatch goroutine, never inside
//     the TrackStateChange call or the MQTT handler.
type Bus struct {
	broker     Broker
	qos        byte
	ackTimeout time.Duration
	source     string
	logger     Logger
	now        func() time.Time
	topics     mqtt.Topics

	statesMu sync.RWMutex
	states   map[string]cover.EntityState

	trackersMu sync.RWMutex
	trackers   map[uint64]*tracker
	nextID     uint64

	pendingMu sync.Mutex
	pending   map[string]chan AckMessage

	events    chan cover.StateChange
	snapshots chan cover.Snapshot

	startMu sync.Mutex
	started bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Bus. Call Start to subscribe and begin dispatching.
func New(opts Options) (*Bus, error) {
	if opts.Broker == nil {
		return nil, fmt.Errorf("%w: broker", cover.ErrMissingDependency)
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = DefaultAckTimeout
	}
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Bus{
		broker:     opts.Broker,
		qos:        opts.QoS,
		ackTimeout: opts.AckTimeout,
		source:     opts.Source,
		logger:     opts.Logger,
		now:        opts.Now,
		states:     make(map[string]cover.EntityState),
		trackers:   make(map[uint64]*tracker),
		pending:    make(map[string]chan AckMessage),
		events:     make(chan cover.StateChange, eventBuffer),
		snapshots:  make(chan cover.Snapshot, snapshotBuffer),
	}, nil
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start subscribes to entity states and cover acks and starts the dispatch
// and snapshot goroutines. Retained entity states arrive straight after the
// subscription, so engines set up afterwards see a warm cache.
func (b *Bus) Start(ctx context.Context) error {
	b.startMu.Lock()
	defer b.startMu.Unlock()
	if b.started {
		return nil
	}

	if err := b.broker.Subscribe(b.topics.AllEntityStates(), b.qos, b.HandleState); err != nil {
		return fmt.Errorf("subscribing to entity states: %w", err)
	}
	if err := b.broker.Subscribe(b.topics.AllCoverAcks(), b.qos, b.HandleAck); err != nil {
		_ = b.broker.Unsubscribe(b.topics.AllEntityStates()) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("subscribing to cover acks: %w", err)
	}

	b.done = make(chan struct{})
	b.started = true
	b.wg.Add(2)
	go b.dispatch(ctx)
	go b.publishSnapshots(ctx)
	return nil
}

// Stop unsubscribes and waits for the background goroutines to exit.
func (b *Bus) Stop() {
	b.startMu.Lock()
	if !b.started {
		b.startMu.Unlock()
		return
	}
	b.started = false
	close(b.done)
	b.startMu.Unlock()

	b.wg.Wait()
	for _, topic := range []string{b.topics.AllEntityStates(), b.topics.AllCoverAcks()} {
		if err := b.broker.Unsubscribe(topic); err != nil {
			b.logger.Debug("unsubscribe failed", "topic", topic, "error", err)
		}
	}
}

// dispatch delivers queued state changes to matching trackers.
func (b *Bus) dispatch(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case change := <-b.events:
			for _, fn := range b.matching(change.EntityID) {
				fn(change)
			}
		}
	}
}

// matching returns the callbacks tracking entityID.
func (b *Bus) matching(entityID string) []func(cover.StateChange) {
	b.trackersMu.RLock()
	defer b.trackersMu.RUnlock()

	ids := slices.Sorted(maps.Keys(b.trackers))
	var fns []func(cover.StateChange)
	for _, id := range ids {
		t := b.trackers[id]
		if _, ok := t.entities[entityID]; ok {
			fns = append(fns, t.fn)
		}
	}
	return fns
}

// =============================================================================
// cover.StateStore / cover.EventSource
// =============================================================================

// Get returns the cached state of an entity.
func (b *Bus) Get(entityID string) (cover.EntityState, bool) {
	b.statesMu.RLock()
	defer b.statesMu.RUnlock()
	s, ok := b.states[entityID]
	return s, ok
}

// TrackStateChange registers fn for changes of any of entities.
func (b *Bus) TrackStateChange(entities []string, fn func(cover.StateChange)) cover.Unsubscribe {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}

	b.trackersMu.Lock()
	b.nextID++
	id := b.nextID
	b.trackers[id] = &tracker{entities: set, fn: fn}
	b.trackersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.trackersMu.Lock()
			delete(b.trackers, id)
			b.trackersMu.Unlock()
		})
	}
}

// TrackInterval calls fn every interval on its own goroutine.
func (b *Bus) TrackInterval(interval time.Duration, fn func(time.Time)) cover.Unsubscribe {
	ticker := time.NewTicker(interval)
	stop := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				fn(t)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// HandleState is the MQTT handler for graylogic/entity/+.
//
// An empty payload (a cleared retained message) removes the entity.
// Changes of state or attributes are queued for the trackers.
func (b *Bus) HandleState(topic string, payload []byte) error {
	entityID, ok := b.topics.EntityFromTopic(topic)
	if !ok {
		return nil
	}

	if len(payload) == 0 {
		b.statesMu.Lock()
		delete(b.states, entityID)
		b.statesMu.Unlock()
		return nil
	}

	next, err := parseState(entityID, payload, b.now())
	if err != nil {
		return fmt.Errorf("entity %s: %w", entityID, err)
	}

	b.statesMu.Lock()
	prev, had := b.states[entityID]
	b.states[entityID] = next
	b.statesMu.Unlock()

	if had && prev.State == next.State && reflect.DeepEqual(prev.Attributes, next.Attributes) {
		return nil
	}

	change := cover.StateChange{EntityID: entityID, New: next}
	if had {
		change.Old = &prev
	}
	select {
	case b.events <- change:
	default:
		b.logger.Warn("state change dropped, dispatch queue full", "entity", entityID)
	}
	return nil
}

// =============================================================================
// cover.CommandSink
// =============================================================================

// SetPosition publishes a set_position command for a cover.
//
// With blocking set it waits for the bridge's acknowledgement, the context,
// or the ack timeout, whichever comes first.
func (b *Bus) SetPosition(ctx context.Context, coverID string, position float64, blocking bool) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, position)
	}

	cmd := CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  b.now().UTC(),
		DeviceID:   coverID,
		Command:    CommandSetPosition,
		Parameters: map[string]any{"position": position},
		Source:     b.source,
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	var ackCh chan AckMessage
	if blocking {
		ackCh = make(chan AckMessage, 1)
		b.pendingMu.Lock()
		b.pending[cmd.ID] = ackCh
		b.pendingMu.Unlock()
		defer func() {
			b.pendingMu.Lock()
			delete(b.pending, cmd.ID)
			b.pendingMu.Unlock()
		}()
	}

	if err := b.broker.Publish(b.topics.CoverCommand(coverID), payload, b.qos, false); err != nil {
		return fmt.Errorf("publishing command for %s: %w", coverID, err)
	}
	if !blocking {
		return nil
	}

	timer := time.NewTimer(b.ackTimeout)
	defer timer.Stop()

	select {
	case ack := <-ackCh:
		return ack.err()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w: %s after %v", ErrAckTimeout, coverID, b.ackTimeout)
	}
}

// HandleAck is the MQTT handler for graylogic/ack/cover/+.
func (b *Bus) HandleAck(_ string, payload []byte) error {
	var ack AckMessage
	if err := json.Unmarshal(payload, &ack); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	b.pendingMu.Lock()
	ch, ok := b.pending[ack.CommandID]
	b.pendingMu.Unlock()
	if !ok {
		return nil
	}

	select {
	case ch <- ack:
	default:
	}
	return nil
}

// =============================================================================
// Snapshots
// =============================================================================

// PublishSnapshot queues a snapshot for the retained cover state topic.
//
// It never blocks; engines call it with their lock held.
func (b *Bus) PublishSnapshot(s cover.Snapshot) {
	select {
	case b.snapshots <- s:
	default:
		b.logger.Warn("snapshot dropped, publish queue full", "cover", s.Cover)
	}
}

// publishSnapshots drains the snapshot queue to the broker.
func (b *Bus) publishSnapshots(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case s := <-b.snapshots:
			payload, err := json.Marshal(s)
			if err != nil {
				b.logger.Error("encoding snapshot", "cover", s.Cover, "error", err)
				continue
			}
			if err := b.broker.Publish(b.topics.CoverState(s.Cover), payload, b.qos, true); err != nil {
				b.logger.Warn("publishing snapshot", "cover", s.Cover, "error", err)
			}
		}
	}
}

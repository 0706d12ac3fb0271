package cover

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Default engine timing.
const (
	// EvaluationInterval is the periodic evaluation tick.
	EvaluationInterval = time.Minute

	// DefaultCalibrationPoll is how often recalibration checks the position.
	DefaultCalibrationPoll = time.Second

	// DefaultCalibrationTimeout bounds each leg of a recalibration.
	DefaultCalibrationTimeout = 60 * time.Second
)

// TriggerKind describes what caused an evaluation.
type TriggerKind string

// Trigger kinds.
const (
	TriggerTime   TriggerKind = "time"
	TriggerState  TriggerKind = "state"
	TriggerConfig TriggerKind = "config"
)

// Trigger is passed to Evaluate.
type Trigger struct {
	Kind     TriggerKind
	EntityID string
}

// Deps bundles the host interfaces an engine talks to.
type Deps struct {
	Store     StateStore
	Events    EventSource
	Sink      CommandSink
	Publisher Publisher
	Clock     Clock
	Location  *time.Location
	Logger    Logger

	// Rules overrides DefaultRuleOrder.
	Rules []Rule

	// CalibrationPoll and CalibrationTimeout override the recalibration timing.
	CalibrationPoll    time.Duration
	CalibrationTimeout time.Duration

	// Observer, when set, is told about every evaluation.
	Observer EvaluationObserver
}

// EvaluationObserver is notified of every evaluation and of every
// position command the engine sends.
type EvaluationObserver interface {
	ObserveEvaluation(cover string, trigger TriggerKind)
	ObserveCommand(cover string, reason Reason, position float64)
}

// CalibrationResult describes a completed recalibration.
type CalibrationResult struct {
	From          float64 `json:"from"`
	Target        float64 `json:"target"`
	ReachedTarget bool    `json:"reached_target"`
	Returned      bool    `json:"returned"`
}

// Engine decides the position of one cover.
//
// Thread Safety: all methods are safe for concurrent use. Evaluations and
// control operations are serialised by an internal mutex.
type Engine struct {
	entryID string
	cover   string

	store     StateStore
	events    EventSource
	sink      CommandSink
	publisher Publisher
	clock     Clock
	loc       *time.Location
	logger    Logger
	observer  EvaluationObserver
	rules     []Rule
	table     map[Rule]ruleFunc

	calibrationPoll    time.Duration
	calibrationTimeout time.Duration

	mu          sync.Mutex
	opts        Options
	override    override
	target      *float64
	reason      Reason
	nextOpen    *time.Time
	nextClose   *time.Time
	calibrating bool
	running     bool
	closed      bool
	stopTick    Unsubscribe
	stopState   Unsubscribe
	ctx         context.Context
	cancel      context.CancelFunc

	// Override and reason to restore once a recalibration ends. Override
	// changes requested while calibrating are applied here.
	savedOverride override
	savedReason   Reason
}

// NewEngine creates the engine for one cover.
//
// Parameters:
//   - entryID: Identifier of the configured entry that owns the cover
//   - cover: Cover entity id
//   - opts: Merged configuration (see Merge and DefaultOptions)
//   - deps: Host interfaces; Store, Events and Sink are required
//
// Returns:
//   - *Engine: Engine ready for Setup
//   - error: ErrInvalidCover or ErrMissingDependency
func NewEngine(entryID, cover string, opts Options, deps Deps) (*Engine, error) {
	if cover == "" {
		return nil, ErrInvalidCover
	}
	if deps.Store == nil || deps.Events == nil || deps.Sink == nil {
		return nil, fmt.Errorf("%w: store, events and sink are required", ErrMissingDependency)
	}

	e := &Engine{
		entryID:            entryID,
		cover:              cover,
		store:              deps.Store,
		events:             deps.Events,
		sink:               deps.Sink,
		publisher:          deps.Publisher,
		clock:              deps.Clock,
		loc:                deps.Location,
		logger:             deps.Logger,
		observer:           deps.Observer,
		rules:              deps.Rules,
		calibrationPoll:    deps.CalibrationPoll,
		calibrationTimeout: deps.CalibrationTimeout,
		opts:               opts.Clone(),
		ctx:                context.Background(),
	}
	if e.clock == nil {
		e.clock = systemClock{}
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	if e.logger == nil {
		e.logger = noopLogger{}
	}
	if len(e.rules) == 0 {
		e.rules = DefaultRuleOrder
	}
	if e.calibrationPoll <= 0 {
		e.calibrationPoll = DefaultCalibrationPoll
	}
	if e.calibrationTimeout <= 0 {
		e.calibrationTimeout = DefaultCalibrationTimeout
	}
	e.table = e.ruleTable()
	return e, nil
}

// Cover returns the cover entity id.
func (e *Engine) Cover() string { return e.cover }

// EntryID returns the owning entry id.
func (e *Engine) EntryID() string { return e.entryID }

// Setup subscribes to the periodic tick and to every entity the
// configuration references, computes the next scheduled events and
// publishes an initial snapshot.
func (e *Engine) Setup(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.closed = false
	e.running = true

	e.stopTick = e.events.TrackInterval(EvaluationInterval, e.handleInterval)
	e.subscribeLocked()

	now := e.clock.Now()
	e.refreshNextEvents(now)
	e.publishLocked(now)

	e.logger.Debug("cover engine started", "cover", e.cover, "entry_id", e.entryID)
	return nil
}

// Teardown cancels every subscription. Callbacks arriving afterwards are
// ignored.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopTick != nil {
		e.stopTick()
		e.stopTick = nil
	}
	if e.stopState != nil {
		e.stopState()
		e.stopState = nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.running = false
	e.closed = true
	e.logger.Debug("cover engine stopped", "cover", e.cover)
}

// subscribeLocked (re)creates the state-change subscription for the
// entities the current configuration references.
func (e *Engine) subscribeLocked() {
	if e.stopState != nil {
		e.stopState()
	}
	e.stopState = e.events.TrackStateChange(e.trackedEntities(), e.handleStateChange)
}

// trackedEntities lists every entity whose change should re-evaluate the cover.
func (e *Engine) trackedEntities() []string {
	ids := []string{
		e.opts.String(OptBrightnessSensor),
		e.opts.String(OptWorkdaySensor),
		e.opts.String(OptWindSensor),
		e.opts.String(OptTemperatureSensorIndoor),
		e.opts.String(OptTemperatureSensorOutdoor),
		e.opts.String(OptColdProtectionForecastSens),
		e.opts.String(OptResidentSensor),
		e.cover,
		e.sunEntity(),
	}
	ids = append(ids, e.opts.WindowSensors(e.cover)...)
	ids = append(ids, toggleEntities(e.opts)...)
	return uniqueStrings(ids)
}

func (e *Engine) handleInterval(time.Time) {
	if err := e.Evaluate(e.baseContext(), Trigger{Kind: TriggerTime}); err != nil {
		e.logger.Error("cover evaluation failed", "cover", e.cover, "trigger", TriggerTime, "error", err)
	}
}

func (e *Engine) handleStateChange(change StateChange) {
	trigger := Trigger{Kind: TriggerState, EntityID: change.EntityID}
	if err := e.Evaluate(e.baseContext(), trigger); err != nil {
		e.logger.Error("cover evaluation failed", "cover", e.cover, "trigger", TriggerState,
			"entity_id", change.EntityID, "error", err)
	}
}

func (e *Engine) baseContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctx
}

// Evaluate runs one decision cycle.
//
// The cycle expires a lapsed override, detects manual movement of the cover,
// honours a scope-all override, walks the rule cascade and finally refreshes
// the schedule and publishes a snapshot. At most one command is issued.
// Command errors are returned; the engine state is only updated on success.
func (e *Engine) Evaluate(ctx context.Context, trigger Trigger) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	if e.observer != nil {
		e.observer.ObserveEvaluation(e.cover, trigger.Kind)
	}
	return e.evaluateLocked(ctx, trigger)
}

func (e *Engine) evaluateLocked(ctx context.Context, trigger Trigger) error {
	now := e.clock.Now()
	e.expireOverride(now)

	if trigger.Kind == TriggerState && trigger.EntityID == e.cover {
		e.detectManualMovement(now)
	}

	if e.override.inEffect(now) && e.override.scopeAll {
		e.refreshNextEvents(now)
		e.publishLocked(now)
		return nil
	}

	r := e.read(now)
	for _, rule := range e.rules {
		fn, ok := e.table[rule]
		if !ok {
			continue
		}
		fired, err := fn(ctx, r)
		if err != nil {
			return fmt.Errorf("rule %s: %w", rule, err)
		}
		if fired {
			return nil
		}
	}

	e.refreshNextEvents(now)
	e.publishLocked(now)
	return nil
}

// setPosition commands pos unless the cover already holds it for the same
// reason. force skips that check.
func (e *Engine) setPosition(ctx context.Context, r *readings, pos float64, reason Reason, force bool) error {
	tolerance := e.opts.Float(OptPositionTolerance, 3)
	if !force && reason == e.reason {
		if e.target != nil && math.Abs(*e.target-pos) <= tolerance {
			return nil
		}
		if r.position != nil && math.Abs(*r.position-pos) <= tolerance {
			return nil
		}
	}

	if err := e.sink.SetPosition(ctx, e.cover, pos, false); err != nil {
		return fmt.Errorf("set position of %s: %w", e.cover, err)
	}
	e.logger.Info("cover commanded", "cover", e.cover, "position", pos, "reason", string(reason))
	if e.observer != nil {
		e.observer.ObserveCommand(e.cover, reason, pos)
	}

	e.target = &pos
	e.reason = reason
	e.refreshNextEvents(r.now)
	e.publishLocked(r.now)
	return nil
}

// =============================================================================
// Manual override
// =============================================================================

func (e *Engine) expireOverride(now time.Time) {
	if e.override.expire(now) {
		if e.reason.IsOverride() {
			e.reason = ReasonNone
		}
		e.logger.Info("manual override expired", "cover", e.cover)
	}
}

// detectManualMovement starts an override when the cover settled away from
// the last commanded target. Travelling covers are ignored.
func (e *Engine) detectManualMovement(now time.Time) {
	if e.target == nil || e.override.inEffect(now) || !blockFlagsFrom(e.opts).any() {
		return
	}
	st, ok := e.store.Get(e.cover)
	if !ok || st.State == StateOpening || st.State == StateClosing {
		return
	}
	current, ok := st.Attr("current_position")
	if !ok {
		return
	}
	if math.Abs(current-*e.target) <= e.opts.Float(OptPositionTolerance, 3) {
		return
	}

	e.override.start(overrideUntil(e.opts, nil, now, e.loc), true)
	e.reason = ReasonManualOverride
	e.logger.Info("manual movement detected", "cover", e.cover,
		"position", current, "target", *e.target)
	e.previewNextEvents(now)
	e.publishLocked(now)
}

// SetManualOverride suspends automation for the cover. A nil or
// non-positive minutes uses the configured reset mode. During a
// recalibration the override takes effect once the sequence ends.
func (e *Engine) SetManualOverride(minutes *int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	until := overrideUntil(e.opts, minutes, now, e.loc)
	if e.calibrating {
		e.savedOverride.start(until, true)
		e.savedReason = ReasonManualOverride
		return
	}
	e.override.start(until, true)
	e.reason = ReasonManualOverride
	e.previewNextEvents(now)
	e.publishLocked(now)
}

// ClearManualOverride ends any override immediately. During a
// recalibration the calibration override stays in place and nothing is
// restored when it ends.
func (e *Engine) ClearManualOverride() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.calibrating {
		e.clearSavedOverride()
		return
	}
	now := e.clock.Now()
	e.override.clear()
	if e.reason.IsOverride() {
		e.reason = ReasonNone
	}
	e.previewNextEvents(now)
	e.publishLocked(now)
}

func (e *Engine) clearSavedOverride() {
	e.savedOverride.clear()
	if e.savedReason.IsOverride() {
		e.savedReason = ReasonNone
	}
}

// ActivateShading starts a scoped override governed by the block flags and
// commands the shading position. The previous override is kept when the
// command fails.
func (e *Engine) ActivateShading(ctx context.Context, minutes *int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	if e.calibrating {
		return ErrCalibrationInProgress
	}
	now := e.clock.Now()
	previous := e.override
	e.override.start(overrideUntil(e.opts, minutes, now, e.loc), false)
	r := &readings{now: now, position: e.currentPosition()}
	if err := e.setPosition(ctx, r, e.opts.Float(OptShadingPosition, 30), ReasonManualShading, true); err != nil {
		e.override = previous
		return err
	}
	return nil
}

// UpdateConfig replaces the configuration wholesale, clears any override,
// re-subscribes to the referenced entities and re-evaluates. During a
// recalibration only the override to be restored is cleared.
func (e *Engine) UpdateConfig(ctx context.Context, opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.opts = opts.Clone()
	if e.running {
		e.subscribeLocked()
	}
	if e.calibrating {
		// The calibration override keeps automation off until the
		// sequence ends; the next tick evaluates the new configuration.
		e.clearSavedOverride()
		return nil
	}
	e.override.clear()
	if e.reason.IsOverride() {
		e.reason = ReasonNone
	}
	if e.closed {
		return nil
	}
	return e.evaluateLocked(ctx, Trigger{Kind: TriggerConfig})
}

// Snapshot returns the current state with the next scheduled events
// brought up to date. An event that is due but not yet evaluated is kept.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.previewNextEvents(now)
	return e.snapshotLocked(now)
}

// =============================================================================
// Schedule
// =============================================================================

// refreshNextEvents recomputes the next open and close instants, rolling a
// due instant forward. Only evaluations and commands call it; every other
// path uses previewNextEvents so a due event still reaches the cascade.
func (e *Engine) refreshNextEvents(now time.Time) {
	e.nextOpen, e.nextClose = e.computeNextEvents(now)
}

// previewNextEvents recomputes the next instants but keeps a pending one
// (due or retrying) that is earlier than the recomputed value.
func (e *Engine) previewNextEvents(now time.Time) {
	open, closing := e.computeNextEvents(now)
	e.nextOpen = keepPending(e.nextOpen, open)
	e.nextClose = keepPending(e.nextClose, closing)
}

func keepPending(pending, next *time.Time) *time.Time {
	if pending != nil && next != nil && pending.Before(*next) {
		return pending
	}
	return next
}

// computeNextEvents derives the next open and close instants from the sun's
// next rising/setting and today's or tomorrow's schedule.
func (e *Engine) computeNextEvents(now time.Time) (*time.Time, *time.Time) {
	t := resolveToggles(e.opts, e.store)
	var opens, closes []time.Time

	if t[FeatureSun] {
		if sun, ok := e.store.Get(e.sunEntity()); ok {
			if rising, ok := sun.AttrTime("next_rising"); ok {
				opens = append(opens, rising)
			}
			if setting, ok := sun.AttrTime("next_setting"); ok {
				closes = append(closes, setting)
			}
		}
	}

	workday := e.isWorkday()
	if up, ok := e.opts.TimeOfDay(timeKey(workday, true)); ok && t[FeatureUp] {
		opens = append(opens, nextOccurrence(up, now, e.loc))
	}
	if down, ok := e.opts.TimeOfDay(timeKey(workday, false)); ok && t[FeatureDown] {
		closes = append(closes, nextOccurrence(down, now, e.loc))
	}

	return earliest(opens), earliest(closes)
}

// =============================================================================
// Publishing
// =============================================================================

func (e *Engine) publishLocked(now time.Time) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(e.snapshotLocked(now))
}

func (e *Engine) snapshotLocked(now time.Time) Snapshot {
	shadingEnabled := resolveToggles(e.opts, e.store)[FeatureShading]
	return Snapshot{
		EntryID:           e.entryID,
		Cover:             e.cover,
		Target:            copyFloat(e.target),
		Reason:            e.reason.Display(),
		ManualUntil:       copyTime(e.override.until),
		ManualActive:      e.override.inEffect(now),
		NextOpen:          copyTime(e.nextOpen),
		NextClose:         copyTime(e.nextClose),
		Position:          e.currentPosition(),
		ShadingEnabled:    shadingEnabled,
		ShadingActive:     shadingEnabled && e.reason.IsShading(),
		VentilationActive: e.reason == ReasonVentilation,
		Calibrating:       e.calibrating,
		UpdatedAt:         now,
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

package cover

import (
	"context"
	"strings"
	"time"
)

// Well-known entity states.
const (
	StateOn      = "on"
	StateOff     = "off"
	StateOpen    = "open"
	StateOpening = "opening"
	StateClosing = "closing"
)

// EntityState is the last known state of one host entity.
type EntityState struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged time.Time      `json:"last_changed"`
}

// Domain returns the entity id prefix before the first dot ("cover", "sensor").
func (s EntityState) Domain() string {
	domain, _, _ := strings.Cut(s.EntityID, ".")
	return domain
}

// Float parses the state value as a number.
func (s EntityState) Float() (float64, bool) {
	return toFloat(s.State)
}

// Attr returns a numeric attribute.
func (s EntityState) Attr(name string) (float64, bool) {
	return toFloat(s.Attributes[name])
}

// AttrTime returns a timestamp attribute encoded as RFC 3339 text.
func (s EntityState) AttrTime(name string) (time.Time, bool) {
	switch v := s.Attributes[name].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// IsOn reports whether a binary entity is active. Contacts reporting "open"
// count as active.
func (s EntityState) IsOn() bool {
	switch strings.ToLower(s.State) {
	case StateOn, StateOpen, "true":
		return true
	}
	return false
}

// StateChange is delivered to state-change trackers.
type StateChange struct {
	EntityID string
	Old      *EntityState
	New      EntityState
}

// Unsubscribe cancels a tracker. Calling it more than once is harmless.
type Unsubscribe func()

// StateStore is the read side of the host platform.
type StateStore interface {
	// Get returns the current state of an entity.
	Get(entityID string) (EntityState, bool)
}

// EventSource delivers state changes and periodic ticks.
//
// Callbacks must not be invoked synchronously from within the Track call.
type EventSource interface {
	// TrackStateChange calls fn whenever one of entities changes.
	TrackStateChange(entities []string, fn func(StateChange)) Unsubscribe

	// TrackInterval calls fn every interval.
	TrackInterval(interval time.Duration, fn func(time.Time)) Unsubscribe
}

// CommandSink moves covers.
type CommandSink interface {
	// SetPosition commands a cover to a position in [0,100]. When blocking is
	// true the call returns once the host acknowledged the command.
	SetPosition(ctx context.Context, cover string, position float64, blocking bool) error
}

// Publisher receives a snapshot whenever an engine's visible state changes.
//
// Publish is called with the engine lock held; implementations must not call
// back into the engine.
type Publisher interface {
	Publish(Snapshot)
}

// Snapshot is the externally visible state of one engine.
type Snapshot struct {
	EntryID           string     `json:"entry_id"`
	Cover             string     `json:"cover"`
	Target            *float64   `json:"target"`
	Reason            Reason     `json:"reason"`
	ManualUntil       *time.Time `json:"manual_until"`
	ManualActive      bool       `json:"manual_active"`
	NextOpen          *time.Time `json:"next_open"`
	NextClose         *time.Time `json:"next_close"`
	Position          *float64   `json:"position"`
	ShadingEnabled    bool       `json:"shading_enabled"`
	ShadingActive     bool       `json:"shading_active"`
	VentilationActive bool       `json:"ventilation_active"`
	Calibrating       bool       `json:"calibrating"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Logger is the logging interface used by the cover package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

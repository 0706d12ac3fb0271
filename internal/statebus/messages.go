package statebus

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// CommandSetPosition is the only command this service sends.
const CommandSetPosition = "set_position"

// StateMessage is the retained document on graylogic/entity/{entity_id}.
type StateMessage struct {
	// State is the primary value ("on", "21000", "open", "above_horizon").
	State string `json:"state"`

	// Attributes carries secondary values such as current_position,
	// elevation, azimuth or a weather forecast list.
	Attributes map[string]any `json:"attributes,omitempty"`

	// LastChanged is when the value last changed. Zero means unknown.
	LastChanged time.Time `json:"last_changed,omitempty"`
}

// CommandMessage is sent to graylogic/command/cover/{entity_id}.
type CommandMessage struct {
	// ID correlates the command with its acknowledgement.
	ID string `json:"id"`

	// Timestamp is when the command was issued (UTC).
	Timestamp time.Time `json:"timestamp"`

	// DeviceID is the cover entity id.
	DeviceID string `json:"device_id"`

	// Command is always "set_position".
	Command string `json:"command"`

	// Parameters holds {"position": N} with N in [0,100].
	Parameters map[string]any `json:"parameters"`

	// Source identifies this service.
	Source string `json:"source"`
}

// AckStatus represents the acknowledgement status of a command.
type AckStatus string

const (
	// AckAccepted indicates the bridge sent the command to the device.
	AckAccepted AckStatus = "accepted"

	// AckQueued indicates the bridge accepted the command but has not sent it yet.
	AckQueued AckStatus = "queued"

	// AckFailed indicates the command could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not respond in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is received on graylogic/ack/cover/{entity_id}.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	DeviceID  string    `json:"device_id"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ok reports whether the bridge took the command.
func (a AckMessage) ok() bool {
	return a.Status == AckAccepted || a.Status == AckQueued
}

// err converts a negative acknowledgement to an error wrapping ErrCommandFailed.
func (a AckMessage) err() error {
	if a.ok() {
		return nil
	}
	if a.Error != nil {
		return fmt.Errorf("%w: %s: %s (%s)", ErrCommandFailed, a.Status, a.Error.Message, a.Error.Code)
	}
	return fmt.Errorf("%w: %s", ErrCommandFailed, a.Status)
}

// rawState mirrors StateMessage with a loosely typed state value.
type rawState struct {
	State       any            `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged time.Time      `json:"last_changed"`
}

// parseState decodes a state document into an EntityState.
//
// Numeric and boolean states are rendered as text. A bare JSON scalar
// ("on", 21000, true) is accepted as the whole document.
func parseState(entityID string, payload []byte, now time.Time) (cover.EntityState, error) {
	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return cover.EntityState{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	var raw rawState
	switch doc.(type) {
	case map[string]any:
		if err := json.Unmarshal(payload, &raw); err != nil {
			return cover.EntityState{}, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
	case []any, nil:
		return cover.EntityState{}, fmt.Errorf("%w: expected object or scalar", ErrInvalidPayload)
	default:
		raw.State = doc
	}

	changed := raw.LastChanged
	if changed.IsZero() {
		changed = now
	}
	return cover.EntityState{
		EntityID:    entityID,
		State:       stateText(raw.State),
		Attributes:  raw.Attributes,
		LastChanged: changed,
	}, nil
}

// stateText renders a decoded JSON state value.
func stateText(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(s)
	}
}

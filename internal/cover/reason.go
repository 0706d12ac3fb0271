package cover

// Reason labels the decision that produced an engine's current target.
type Reason string

// Decision reasons.
const (
	ReasonNone            Reason = ""
	ReasonResidentAsleep  Reason = "resident_asleep"
	ReasonVentilation     Reason = "ventilation"
	ReasonColdProtection  Reason = "cold_protection"
	ReasonShading         Reason = "shading"
	ReasonShadingEndClose Reason = "shading_end_close"
	ReasonShadingEndOpen  Reason = "shading_end_open"
	ReasonSunClose        Reason = "sun_close"
	ReasonScheduledOpen   Reason = "scheduled_open"
	ReasonScheduledClose  Reason = "scheduled_close"
	ReasonWindProtection  Reason = "wind_protection"
	ReasonManualOverride  Reason = "manual_override"
	ReasonManualShading   Reason = "manual_shading"

	// ReasonIdle is what snapshots report when no decision has been made yet.
	ReasonIdle Reason = "idle"
)

// Display returns the reason as shown to observers.
func (r Reason) Display() Reason {
	if r == ReasonNone {
		return ReasonIdle
	}
	return r
}

// IsOverride reports whether the reason was set by a user action.
func (r Reason) IsOverride() bool {
	return r == ReasonManualOverride || r == ReasonManualShading
}

// IsShading reports whether the cover is currently in a shading position.
func (r Reason) IsShading() bool {
	return r == ReasonShading || r == ReasonManualShading
}

// action classifies a rule's command so a scoped override can block it.
type action int

const (
	// actionProtect is never blocked (wind protection).
	actionProtect action = iota
	actionOpen
	actionClose
	actionVentilate
	actionShade
)

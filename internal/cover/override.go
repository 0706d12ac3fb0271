package cover

import "time"

// override is the manual-override state of one engine.
//
// A scope-all override suspends the whole cascade. A scoped override (from
// ActivateShading) only blocks the actions selected by the block flags.
type override struct {
	active   bool
	until    *time.Time
	scopeAll bool
}

// inEffect reports whether the override currently applies. An active
// override without an expiry lasts until cleared.
func (o override) inEffect(now time.Time) bool {
	if !o.active {
		return false
	}
	return o.until == nil || now.Before(*o.until)
}

// expire clears an override whose expiry has passed and reports whether it did.
func (o *override) expire(now time.Time) bool {
	if o.active && o.until != nil && !now.Before(*o.until) {
		*o = override{}
		return true
	}
	return false
}

func (o *override) start(until *time.Time, scopeAll bool) {
	*o = override{active: true, until: until, scopeAll: scopeAll}
}

func (o *override) clear() {
	*o = override{}
}

// blockFlags selects which automatic actions a manual override suppresses.
type blockFlags struct {
	open      bool
	close     bool
	ventilate bool
	shading   bool
}

func blockFlagsFrom(opts Options) blockFlags {
	return blockFlags{
		open:      opts.Bool(OptManualOverrideBlockOpen, true),
		close:     opts.Bool(OptManualOverrideBlockClose, true),
		ventilate: opts.Bool(OptManualOverrideBlockVentilate, true),
		shading:   opts.Bool(OptManualOverrideBlockShading, true),
	}
}

func (b blockFlags) any() bool {
	return b.open || b.close || b.ventilate || b.shading
}

func (b blockFlags) blocks(a action) bool {
	switch a {
	case actionOpen:
		return b.open
	case actionClose:
		return b.close
	case actionVentilate:
		return b.ventilate
	case actionShade:
		return b.shading
	}
	return false
}

// overrideUntil computes the expiry of a new override. Explicit minutes
// always produce a timeout; nil or non-positive minutes defer to the
// configured reset mode. A nil result means the override never expires on
// its own.
func overrideUntil(opts Options, minutes *int, now time.Time, loc *time.Location) *time.Time {
	if minutes != nil && *minutes > 0 {
		t := now.Add(time.Duration(*minutes) * time.Minute)
		return &t
	}

	switch opts.String(OptManualOverrideResetMode) {
	case ResetModeNone:
		return nil
	case ResetModeTime:
		reset, ok := opts.TimeOfDay(OptManualOverrideResetTime)
		if !ok {
			reset = TimeOfDay{}
		}
		t := nextOccurrence(reset, now, loc)
		return &t
	default:
		m := opts.Int(OptManualOverrideMinutes, 90)
		if m <= 0 {
			return nil
		}
		t := now.Add(time.Duration(m) * time.Minute)
		return &t
	}
}

package cover

import (
	"context"
	"time"
)

// Rule identifies one step of the decision cascade.
type Rule string

// Cascade rules.
const (
	RuleWindProtection Rule = "wind_protection"
	RuleResidentAsleep Rule = "resident_asleep"
	RuleVentilation    Rule = "ventilation"
	RuleColdProtection Rule = "cold_protection"
	RuleShading        Rule = "shading"
	RuleSunClose       Rule = "sun_close"
	RuleScheduledOpen  Rule = "scheduled_open"
	RuleScheduledClose Rule = "scheduled_close"
)

// DefaultRuleOrder is the priority order of the cascade, highest first.
// The first rule that fires ends the evaluation.
var DefaultRuleOrder = []Rule{
	RuleWindProtection,
	RuleResidentAsleep,
	RuleVentilation,
	RuleColdProtection,
	RuleShading,
	RuleSunClose,
	RuleScheduledOpen,
	RuleScheduledClose,
}

// retryDelay postpones a scheduled move whose sun or brightness conditions
// are not met yet.
const retryDelay = time.Minute

// ruleFunc reports whether the rule fired. A fired rule ends the cascade
// whether or not a command was actually sent.
type ruleFunc func(ctx context.Context, r *readings) (bool, error)

func (e *Engine) ruleTable() map[Rule]ruleFunc {
	return map[Rule]ruleFunc{
		RuleWindProtection: e.ruleWind,
		RuleResidentAsleep: e.ruleResident,
		RuleVentilation:    e.ruleVentilation,
		RuleColdProtection: e.ruleCold,
		RuleShading:        e.ruleShading,
		RuleSunClose:       e.ruleSunClose,
		RuleScheduledOpen:  e.ruleScheduledOpen,
		RuleScheduledClose: e.ruleScheduledClose,
	}
}

// blocked reports whether a scoped override suppresses an action.
func (e *Engine) blocked(a action, now time.Time) bool {
	if !e.override.inEffect(now) {
		return false
	}
	return blockFlagsFrom(e.opts).blocks(a)
}

// fire commands a position unless the action is blocked. ok is false when
// the action was blocked and the cascade should continue.
func (e *Engine) fire(ctx context.Context, r *readings, a action, pos float64, reason Reason) (bool, error) {
	if e.blocked(a, r.now) {
		return false, nil
	}
	return true, e.setPosition(ctx, r, pos, reason, false)
}

func (e *Engine) ruleWind(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureWind] || r.wind == nil {
		return false, nil
	}
	if *r.wind < e.opts.Float(OptWindLimit, 50) {
		return false, nil
	}
	return e.fire(ctx, r, actionProtect, e.opts.Float(OptOpenPosition, 100), ReasonWindProtection)
}

func (e *Engine) ruleResident(ctx context.Context, r *readings) (bool, error) {
	if !r.residentAsleep {
		return false, nil
	}
	return e.fire(ctx, r, actionClose, e.opts.Float(OptClosePosition, 0), ReasonResidentAsleep)
}

func (e *Engine) ruleVentilation(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureVentilate] || !r.windowOpen {
		return false, nil
	}
	return e.fire(ctx, r, actionVentilate, e.opts.Float(OptVentilatePosition, 50), ReasonVentilation)
}

func (e *Engine) ruleCold(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureColdProtection] || !e.coldProtectionNeeded(r) {
		return false, nil
	}
	return e.fire(ctx, r, actionClose, e.opts.Float(OptClosePosition, 0), ReasonColdProtection)
}

func (e *Engine) ruleShading(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureShading] || e.blocked(actionShade, r.now) {
		return false, nil
	}

	active := e.reason.IsShading()
	allowed := e.shadingAllowed(r, active)

	if active && !allowed {
		if r.toggles[FeatureDown] && e.sunAllowsClose(r) && e.brightnessAllowsClose(r) {
			if fired, err := e.fire(ctx, r, actionClose, e.opts.Float(OptClosePosition, 0), ReasonShadingEndClose); fired || err != nil {
				return fired, err
			}
		}
		if r.toggles[FeatureUp] && e.sunAllowsOpen(r) && e.brightnessAllowsOpen(r) {
			if fired, err := e.fire(ctx, r, actionOpen, e.opts.Float(OptOpenPosition, 100), ReasonShadingEndOpen); fired || err != nil {
				return fired, err
			}
		}
	}
	if !allowed {
		return false, nil
	}
	return true, e.setPosition(ctx, r, e.opts.Float(OptShadingPosition, 30), ReasonShading, false)
}

func (e *Engine) ruleSunClose(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureSun] || !e.sunAllowsClose(r) || !e.brightnessAllowsClose(r) {
		return false, nil
	}
	return e.fire(ctx, r, actionClose, e.opts.Float(OptClosePosition, 0), ReasonSunClose)
}

// ruleScheduledOpen opens when the open time is reached, the clock is inside
// today's open window, or the sun has risen far enough. When sun or
// brightness hold the cover back the check is retried a minute later.
func (e *Engine) ruleScheduledOpen(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureUp] {
		return false, nil
	}

	triggered := isDue(e.nextOpen, r.now) || e.inOpenWindow(r)
	if !triggered && r.toggles[FeatureSun] && r.elevation != nil && e.beforeClose(r) {
		triggered = *r.elevation >= e.opts.Float(OptSunElevationOpen, -2)
	}
	if !triggered {
		return false, nil
	}

	if e.sunAllowsOpen(r) && e.brightnessAllowsOpen(r) {
		return e.fire(ctx, r, actionOpen, e.opts.Float(OptOpenPosition, 100), ReasonScheduledOpen)
	}

	retry := r.now.Add(retryDelay)
	e.nextOpen = &retry
	e.publishLocked(r.now)
	return true, nil
}

func (e *Engine) ruleScheduledClose(ctx context.Context, r *readings) (bool, error) {
	if !r.toggles[FeatureDown] || !isDue(e.nextClose, r.now) {
		return false, nil
	}

	if e.sunAllowsClose(r) && e.brightnessAllowsClose(r) {
		return e.fire(ctx, r, actionClose, e.opts.Float(OptClosePosition, 0), ReasonScheduledClose)
	}

	retry := r.now.Add(retryDelay)
	e.nextClose = &retry
	e.publishLocked(r.now)
	return true, nil
}

// inOpenWindow reports whether the clock lies between today's open and
// close times.
func (e *Engine) inOpenWindow(r *readings) bool {
	up, okUp := e.opts.TimeOfDay(timeKey(r.workday, true))
	down, okDown := e.opts.TimeOfDay(timeKey(r.workday, false))
	if !okUp || !okDown {
		return false
	}
	return withinWindow(r.now, e.loc, up, down)
}

// beforeClose reports whether today's close time is still ahead. A risen sun
// only triggers an open before then.
func (e *Engine) beforeClose(r *readings) bool {
	down, ok := e.opts.TimeOfDay(timeKey(r.workday, false))
	if !ok {
		return true
	}
	local := r.now.In(e.loc)
	t := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return t < down.seconds()
}

func timeKey(workday, up bool) string {
	switch {
	case workday && up:
		return OptTimeUpWorkday
	case workday:
		return OptTimeDownWorkday
	case up:
		return OptTimeUpNonWorkday
	default:
		return OptTimeDownNonWorkday
	}
}

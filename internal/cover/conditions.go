package cover

import "time"

// readings is everything one evaluation needs from the state store, read
// once so every rule sees the same values. Nil pointers mean the sensor is
// not configured or reports nothing usable.
type readings struct {
	now      time.Time
	toggles  toggles
	workday  bool
	position *float64

	brightness *float64
	elevation  *float64
	azimuth    *float64
	wind       *float64
	indoor     *float64
	outdoor    *float64
	forecast   *float64

	windowOpen     bool
	residentAsleep bool
}

func (e *Engine) read(now time.Time) *readings {
	r := &readings{
		now:        now,
		toggles:    resolveToggles(e.opts, e.store),
		workday:    e.isWorkday(),
		position:   e.currentPosition(),
		brightness: e.floatState(e.opts.String(OptBrightnessSensor)),
		wind:       e.floatState(e.opts.String(OptWindSensor)),
		indoor:     e.floatState(e.opts.String(OptTemperatureSensorIndoor)),
		outdoor:    e.floatState(e.opts.String(OptTemperatureSensorOutdoor)),
		forecast:   e.forecastTemperature(),
	}
	if sun, ok := e.store.Get(e.sunEntity()); ok {
		r.elevation = optional(sun.Attr("elevation"))
		r.azimuth = optional(sun.Attr("azimuth"))
	}
	for _, id := range e.opts.WindowSensors(e.cover) {
		if st, ok := e.store.Get(id); ok && st.IsOn() {
			r.windowOpen = true
			break
		}
	}
	if id := e.opts.String(OptResidentSensor); id != "" {
		if st, ok := e.store.Get(id); ok && st.State == StateOn {
			r.residentAsleep = true
		}
	}
	return r
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}

func (e *Engine) floatState(entityID string) *float64 {
	if entityID == "" {
		return nil
	}
	st, ok := e.store.Get(entityID)
	if !ok {
		return nil
	}
	return optional(st.Float())
}

func (e *Engine) sunEntity() string {
	if id := e.opts.String(OptSunEntity); id != "" {
		return id
	}
	return "sun.sun"
}

// currentPosition reads the cover's reported position.
func (e *Engine) currentPosition() *float64 {
	st, ok := e.store.Get(e.cover)
	if !ok {
		return nil
	}
	return optional(st.Attr("current_position"))
}

// isWorkday defaults to true when no workday sensor is configured.
func (e *Engine) isWorkday() bool {
	id := e.opts.String(OptWorkdaySensor)
	if id == "" {
		return true
	}
	st, ok := e.store.Get(id)
	return ok && st.State == StateOn
}

// forecastTemperature reads the cold-protection forecast sensor. Weather
// entities provide the low of the first forecast entry, then its
// temperature, then the current temperature attribute.
func (e *Engine) forecastTemperature() *float64 {
	id := e.opts.String(OptColdProtectionForecastSens)
	if id == "" {
		return nil
	}
	st, ok := e.store.Get(id)
	if !ok {
		return nil
	}
	if st.Domain() != "weather" {
		return optional(st.Float())
	}
	if list, ok := st.Attributes["forecast"].([]any); ok && len(list) > 0 {
		if first, ok := list[0].(map[string]any); ok {
			for _, key := range []string{"templow", "temperature"} {
				if v, ok := toFloat(first[key]); ok {
					return &v
				}
			}
		}
	}
	return optional(st.Attr("temperature"))
}

// =============================================================================
// Conditions
// =============================================================================

func (e *Engine) sunAllowsOpen(r *readings) bool {
	if !r.toggles[FeatureSun] {
		return true
	}
	return r.elevation != nil && *r.elevation >= e.opts.Float(OptSunElevationOpen, -2)
}

func (e *Engine) sunAllowsClose(r *readings) bool {
	if !r.toggles[FeatureSun] {
		return true
	}
	return r.elevation != nil && *r.elevation <= e.opts.Float(OptSunElevationClose, -4)
}

// A missing brightness reading never holds a cover back.
func (e *Engine) brightnessAllowsOpen(r *readings) bool {
	if !r.toggles[FeatureBrightness] || r.brightness == nil {
		return true
	}
	return *r.brightness >= e.opts.Float(OptBrightnessOpenAbove, 500)
}

func (e *Engine) brightnessAllowsClose(r *readings) bool {
	if !r.toggles[FeatureBrightness] || r.brightness == nil {
		return true
	}
	return *r.brightness <= e.opts.Float(OptBrightnessCloseBelow, 100)
}

// coldProtectionNeeded is never true while the sun is above the horizon.
func (e *Engine) coldProtectionNeeded(r *readings) bool {
	if r.elevation != nil && *r.elevation > 0 {
		return false
	}
	threshold, ok := toFloat(e.opts[OptColdProtectionTemperature])
	if !ok {
		return false
	}
	if r.outdoor != nil && *r.outdoor <= threshold {
		return true
	}
	return r.forecast != nil && *r.forecast <= threshold
}

// temperatureAllowsShading is informational: shading is admitted by
// brightness alone, so this only widens an already true condition.
func (e *Engine) temperatureAllowsShading(r *readings) bool {
	threshold := e.opts.Float(OptTemperatureThreshold, 26)
	if r.indoor != nil && *r.indoor >= threshold {
		return true
	}
	if r.outdoor != nil && *r.outdoor >= threshold {
		return true
	}
	limit := e.opts.Float(OptTemperatureForecastLimit, 27)
	return r.forecast != nil && *r.forecast >= limit
}

// shadingAllowed applies the sun window and brightness hysteresis. While
// shading is active it persists until brightness falls to the end
// threshold; otherwise brightness must reach the start threshold.
func (e *Engine) shadingAllowed(r *readings, active bool) bool {
	if r.azimuth == nil || r.elevation == nil || r.brightness == nil {
		return false
	}
	az, el, lux := *r.azimuth, *r.elevation, *r.brightness

	if az < e.opts.Float(OptShadingAzimuthStart, 90) || az > e.opts.Float(OptShadingAzimuthEnd, 270) {
		return false
	}
	if el < e.opts.Float(OptShadingElevationMin, 10) || el > e.opts.Float(OptShadingElevationMax, 70) {
		return false
	}

	start := e.opts.Float(OptShadingBrightnessStart, 20000)
	end := e.opts.Float(OptShadingBrightnessEnd, 15000)
	if active {
		if lux <= end {
			return false
		}
	} else if lux < start {
		return false
	}
	return e.temperatureAllowsShading(r) || lux >= start || active
}

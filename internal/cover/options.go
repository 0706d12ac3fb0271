package cover

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Option keys. The names match the persisted entry options so existing
// configuration files and the options repository stay interchangeable.
const (
	OptName   = "name"
	OptCovers = "covers"

	OptOpenPosition      = "open_position"
	OptClosePosition     = "close_position"
	OptVentilatePosition = "ventilate_position"
	OptShadingPosition   = "shading_position"
	OptPositionTolerance = "position_tolerance"

	OptTimeUpWorkday      = "time_up_workday"
	OptTimeUpNonWorkday   = "time_up_non_workday"
	OptTimeDownWorkday    = "time_down_workday"
	OptTimeDownNonWorkday = "time_down_non_workday"

	OptSunEntity           = "sun_entity"
	OptSunElevationOpen    = "sun_elevation_open"
	OptSunElevationClose   = "sun_elevation_close"
	OptShadingAzimuthStart = "shading_azimuth_start"
	OptShadingAzimuthEnd   = "shading_azimuth_end"
	OptShadingElevationMin = "shading_elevation_min"
	OptShadingElevationMax = "shading_elevation_max"

	OptBrightnessSensor       = "brightness_sensor"
	OptBrightnessOpenAbove    = "brightness_open_above"
	OptBrightnessCloseBelow   = "brightness_close_below"
	OptShadingBrightnessStart = "shading_brightness_start"
	OptShadingBrightnessEnd   = "shading_brightness_end"

	OptTemperatureSensorIndoor    = "temperature_sensor_indoor"
	OptTemperatureSensorOutdoor   = "temperature_sensor_outdoor"
	OptTemperatureThreshold       = "temperature_threshold"
	OptTemperatureForecastLimit   = "temperature_forecast_threshold"
	OptColdProtectionTemperature  = "cold_protection_temperature"
	OptColdProtectionForecastSens = "cold_protection_forecast_sensor"

	OptWindSensor = "wind_sensor"
	OptWindLimit  = "wind_limit"

	OptWorkdaySensor  = "workday_sensor"
	OptResidentSensor = "resident_sensor"
	OptWindowSensors  = "window_sensors"

	OptManualOverrideMinutes        = "manual_override_minutes"
	OptManualOverrideBlockOpen      = "manual_override_block_open"
	OptManualOverrideBlockClose     = "manual_override_block_close"
	OptManualOverrideBlockVentilate = "manual_override_block_ventilate"
	OptManualOverrideBlockShading   = "manual_override_block_shading"
	OptManualOverrideResetMode      = "manual_override_reset_mode"
	OptManualOverrideResetTime      = "manual_override_reset_time"
)

// Manual override reset modes.
const (
	ResetModeNone    = "none"
	ResetModeTime    = "time"
	ResetModeTimeout = "timeout"
)

// Options is the merged configuration of one entry.
//
// Values arrive from YAML, JSON and the options repository, so every getter
// coerces what it finds and falls back to its default when coercion fails.
type Options map[string]any

// DefaultOptions returns the built-in defaults every entry is merged over.
func DefaultOptions() Options {
	opts := Options{
		OptOpenPosition:      100,
		OptClosePosition:     0,
		OptVentilatePosition: 50,
		OptShadingPosition:   30,
		OptPositionTolerance: 3,

		OptTimeUpWorkday:      "06:00:00",
		OptTimeUpNonWorkday:   "07:30:00",
		OptTimeDownWorkday:    "18:00:00",
		OptTimeDownNonWorkday: "18:30:00",

		OptSunEntity:           "sun.sun",
		OptSunElevationOpen:    -2.0,
		OptSunElevationClose:   -4.0,
		OptShadingAzimuthStart: 90,
		OptShadingAzimuthEnd:   270,
		OptShadingElevationMin: 10,
		OptShadingElevationMax: 70,

		OptBrightnessOpenAbove:    500,
		OptBrightnessCloseBelow:   100,
		OptShadingBrightnessStart: 20000,
		OptShadingBrightnessEnd:   15000,

		OptTemperatureThreshold:      26,
		OptTemperatureForecastLimit:  27,
		OptColdProtectionTemperature: 5,

		OptWindLimit: 50,

		OptManualOverrideMinutes:        90,
		OptManualOverrideBlockOpen:      true,
		OptManualOverrideBlockClose:     true,
		OptManualOverrideBlockVentilate: true,
		OptManualOverrideBlockShading:   true,
		OptManualOverrideResetMode:      ResetModeTimeout,
		OptManualOverrideResetTime:      "00:00:00",
	}
	for _, f := range features {
		opts[f.flag] = f.enabledByDefault
	}
	return opts
}

// Merge layers maps left to right; later layers win. Nil values in a layer
// are skipped so a partial patch never erases a default.
func Merge(layers ...map[string]any) Options {
	out := make(Options)
	for _, layer := range layers {
		for k, v := range layer {
			if v == nil {
				continue
			}
			out[k] = v
		}
	}
	return out
}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Float returns the option as a float64, or def when absent or not numeric.
func (o Options) Float(key string, def float64) float64 {
	if v, ok := toFloat(o[key]); ok {
		return v
	}
	return def
}

// Int returns the option rounded to an int, or def.
func (o Options) Int(key string, def int) int {
	if v, ok := toFloat(o[key]); ok {
		return int(math.Round(v))
	}
	return def
}

// Bool returns the option as a bool, or def. Strings "on"/"true"/"yes"/"1"
// and their negations are understood.
func (o Options) Bool(key string, def bool) bool {
	switch v := o[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "on", "yes", "1":
			return true
		case "false", "off", "no", "0":
			return false
		}
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
	}
	return def
}

// String returns the option as a trimmed string; empty when absent.
func (o Options) String(key string) string {
	s, ok := o[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// TimeOfDay parses the option as a clock time. ok is false when the option
// is absent or unparseable.
func (o Options) TimeOfDay(key string) (TimeOfDay, bool) {
	s := o.String(key)
	if s == "" {
		return TimeOfDay{}, false
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return TimeOfDay{}, false
	}
	return t, true
}

// Covers returns the configured cover entity ids in order, without blanks
// or duplicates.
func (o Options) Covers() []string {
	return uniqueStrings(toStrings(o[OptCovers]))
}

// WindowSensors returns the window contacts configured for one cover.
func (o Options) WindowSensors(cover string) []string {
	m, ok := o[OptWindowSensors].(map[string]any)
	if !ok {
		if typed, isTyped := o[OptWindowSensors].(map[string][]string); isTyped {
			return uniqueStrings(typed[cover])
		}
		return nil
	}
	return uniqueStrings(toStrings(m[cover]))
}

func toStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// toFloat coerces numbers and numeric strings.
func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

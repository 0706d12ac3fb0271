package cover

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	checks := map[string]float64{
		OptOpenPosition:           100,
		OptClosePosition:          0,
		OptVentilatePosition:      50,
		OptShadingPosition:        30,
		OptPositionTolerance:      3,
		OptShadingBrightnessStart: 20000,
		OptShadingBrightnessEnd:   15000,
		OptManualOverrideMinutes:  90,
		OptWindLimit:              50,
	}
	for key, want := range checks {
		if got := opts.Float(key, -1); got != want {
			t.Errorf("%s = %v, want %v", key, got, want)
		}
	}
	if !opts.Bool("auto_up_enabled", false) || opts.Bool("auto_cold_protection_enabled", true) {
		t.Error("unexpected automation flag defaults")
	}
	if opts.String(OptManualOverrideResetMode) != ResetModeTimeout {
		t.Errorf("reset mode = %q, want %q", opts.String(OptManualOverrideResetMode), ResetModeTimeout)
	}
}

func TestOptions_Coercion(t *testing.T) {
	opts := Options{
		"int":     42,
		"float":   2.5,
		"string":  " 17.5 ",
		"number":  json.Number("12"),
		"garbage": "abc",
		"on":      "on",
		"off":     "OFF",
		"one":     1,
		"nan":     "NaN",
	}

	if got := opts.Float("int", 0); got != 42 {
		t.Errorf("Float(int) = %v", got)
	}
	if got := opts.Float("string", 0); got != 17.5 {
		t.Errorf("Float(string) = %v", got)
	}
	if got := opts.Float("number", 0); got != 12 {
		t.Errorf("Float(number) = %v", got)
	}
	if got := opts.Float("garbage", 7); got != 7 {
		t.Errorf("Float(garbage) = %v, want default", got)
	}
	if got := opts.Float("nan", 7); got != 7 {
		t.Errorf("Float(nan) = %v, want default", got)
	}
	if got := opts.Int("float", 0); got != 3 {
		t.Errorf("Int(float) = %v, want 3", got)
	}
	if !opts.Bool("on", false) || opts.Bool("off", true) || !opts.Bool("one", false) {
		t.Error("Bool coercion failed")
	}
	if !opts.Bool("missing", true) {
		t.Error("Bool(missing) ignored default")
	}
}

func TestMerge(t *testing.T) {
	merged := Merge(
		map[string]any{"a": 1, "b": 2},
		map[string]any{"b": 3, "c": nil},
		nil,
		map[string]any{"d": "x"},
	)
	want := Options{"a": 1, "b": 3, "d": "x"}
	if !reflect.DeepEqual(merged, want) {
		t.Errorf("Merge() = %v, want %v", merged, want)
	}
}

func TestOptions_Covers(t *testing.T) {
	opts := Options{OptCovers: []any{"cover.a", "", "cover.b", "cover.a", 5}}
	want := []string{"cover.a", "cover.b"}
	if got := opts.Covers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Covers() = %v, want %v", got, want)
	}
}

func TestOptions_WindowSensors(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{"yaml map", Options{OptWindowSensors: map[string]any{"cover.a": []any{"w1", "w2"}}}, []string{"w1", "w2"}},
		{"typed map", Options{OptWindowSensors: map[string][]string{"cover.a": {"w1"}}}, []string{"w1"}},
		{"single string", Options{OptWindowSensors: map[string]any{"cover.a": "w1"}}, []string{"w1"}},
		{"other cover", Options{OptWindowSensors: map[string]any{"cover.b": []any{"w1"}}}, []string{}},
		{"absent", Options{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.WindowSensors("cover.a"); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("WindowSensors() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestOverrideUntil(t *testing.T) {
	now := at(20, 0, 0)

	tests := []struct {
		name    string
		opts    map[string]any
		minutes *int
		want    *time.Time
	}{
		{"explicit minutes", map[string]any{OptManualOverrideResetMode: ResetModeNone}, intPtr(10), ptrTime(at(20, 10, 0))},
		{"timeout mode", nil, nil, ptrTime(at(21, 30, 0))},
		{"zero minutes uses mode", map[string]any{OptManualOverrideMinutes: 15}, intPtr(0), ptrTime(at(20, 15, 0))},
		{"time mode", map[string]any{OptManualOverrideResetMode: ResetModeTime, OptManualOverrideResetTime: "22:00"}, nil, ptrTime(at(22, 0, 0))},
		{"time mode rolls to tomorrow", map[string]any{OptManualOverrideResetMode: ResetModeTime}, nil, ptrTime(at(0, 0, 0).AddDate(0, 0, 1))},
		{"none mode", map[string]any{OptManualOverrideResetMode: ResetModeNone}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := overrideUntil(Merge(DefaultOptions(), tt.opts), tt.minutes, now, time.UTC)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("overrideUntil() = %v, want nil", *got)
			case tt.want != nil && (got == nil || !got.Equal(*tt.want)):
				t.Errorf("overrideUntil() = %v, want %v", got, *tt.want)
			}
		})
	}
}

func TestOverride_NoExpiryLastsUntilCleared(t *testing.T) {
	var o override
	o.start(nil, true)

	if o.expire(at(23, 59, 59)) || !o.inEffect(at(23, 59, 59)) {
		t.Fatal("override without expiry ended on its own")
	}
	o.clear()
	if o.inEffect(at(0, 0, 0)) {
		t.Error("override still in effect after clear")
	}
}

func TestBlockFlags(t *testing.T) {
	flags := blockFlagsFrom(Options{
		OptManualOverrideBlockOpen:      false,
		OptManualOverrideBlockClose:     true,
		OptManualOverrideBlockVentilate: false,
		OptManualOverrideBlockShading:   false,
	})
	if flags.blocks(actionOpen) || !flags.blocks(actionClose) || flags.blocks(actionProtect) {
		t.Errorf("blocks() mismatch for %+v", flags)
	}
	if !flags.any() {
		t.Error("any() = false with close blocked")
	}
}

func ptrTime(t time.Time) *time.Time { return &t }

package cover

// Feature is an automation function that can be switched on or off per entry.
type Feature string

// Automation features.
const (
	FeatureUp             Feature = "up"
	FeatureDown           Feature = "down"
	FeatureBrightness     Feature = "brightness"
	FeatureSun            Feature = "sun"
	FeatureVentilate      Feature = "ventilate"
	FeatureShading        Feature = "shading"
	FeatureColdProtection Feature = "cold_protection"
	FeatureWind           Feature = "wind"
)

type featureSpec struct {
	feature          Feature
	flag             string
	entity           string
	enabledByDefault bool
}

var features = []featureSpec{
	{FeatureUp, "auto_up_enabled", "auto_up_entity", true},
	{FeatureDown, "auto_down_enabled", "auto_down_entity", true},
	{FeatureBrightness, "auto_brightness_enabled", "auto_brightness_entity", true},
	{FeatureSun, "auto_sun_enabled", "auto_sun_entity", true},
	{FeatureVentilate, "auto_ventilate_enabled", "auto_ventilate_entity", true},
	{FeatureShading, "auto_shading_enabled", "auto_shading_entity", true},
	{FeatureColdProtection, "auto_cold_protection_enabled", "auto_cold_protection_entity", false},
	{FeatureWind, "auto_wind_enabled", "auto_wind_entity", false},
}

// FlagKey returns the option key holding the feature's static flag.
func FlagKey(f Feature) string {
	for _, ft := range features {
		if ft.feature == f {
			return ft.flag
		}
	}
	return ""
}

// toggles is the resolved on/off state of every feature for one evaluation.
type toggles map[Feature]bool

// resolveToggles reads each feature from its toggle entity when that entity
// exists, otherwise from the static flag.
func resolveToggles(opts Options, store StateStore) toggles {
	out := make(toggles, len(features))
	for _, ft := range features {
		enabled := opts.Bool(ft.flag, ft.enabledByDefault)
		if id := opts.String(ft.entity); id != "" {
			if st, ok := store.Get(id); ok {
				enabled = st.State == StateOn
			}
		}
		out[ft.feature] = enabled
	}
	return out
}

// toggleEntities returns the configured toggle entity ids.
func toggleEntities(opts Options) []string {
	var out []string
	for _, ft := range features {
		if id := opts.String(ft.entity); id != "" {
			out = append(out, id)
		}
	}
	return out
}

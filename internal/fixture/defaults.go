package fixture

// Timing holds the RealFade/RealAcceleration used to configure a motion
// profile when a description leaves them out.
type Timing struct {
	Fade              float64
	Acceleration      float64
	FadeRatio         float64
	AccelerationRatio float64
}

var genericTiming = Timing{Fade: 2.0, Acceleration: 0.5, FadeRatio: 2.0, AccelerationRatio: 0.25}

var defaultTimings = map[Feature]Timing{
	FeaturePan:      {Fade: 2.2, Acceleration: 0.6, FadeRatio: 1.67, AccelerationRatio: 0.27},
	FeatureTilt:     {Fade: 1.8, Acceleration: 0.5, FadeRatio: 1.6, AccelerationRatio: 0.28},
	FeatureIris:     {Fade: 0.7, Acceleration: 0.15, FadeRatio: 2.66, AccelerationRatio: 0.214},
	FeatureBladeA:   {Fade: 0.6521, Acceleration: 0.1854, FadeRatio: 1.517, AccelerationRatio: 0.284},
	FeatureBladeB:   {Fade: 0.6521, Acceleration: 0.1854, FadeRatio: 1.517, AccelerationRatio: 0.284},
	FeatureBladeRot: {Fade: 1.0854, Acceleration: 0.1917, FadeRatio: 3.662, AccelerationRatio: 0.177},
	FeatureZoom:     {Fade: 1.2, Acceleration: 0.3, FadeRatio: 2.0, AccelerationRatio: 0.25},
	FeatureFocus:    {Fade: 1.2, Acceleration: 0.3, FadeRatio: 2.0, AccelerationRatio: 0.25},
	FeatureDimmer:   {Fade: 0.4, Acceleration: 0.1, FadeRatio: 2.0, AccelerationRatio: 0.25},
}

// DefaultTiming returns the fallback timing of a feature.
func DefaultTiming(f Feature) Timing {
	if t, ok := defaultTimings[f]; ok {
		return t
	}
	return genericTiming
}

// ResolveTiming fills in a missing fade or acceleration (zero means missing).
// With only one of them present the other is derived through the feature's
// ratio: fade = accel*2 + accel*ratio, accel = fade*ratio.
func ResolveTiming(f Feature, fade, acceleration float64) (float64, float64) {
	d := DefaultTiming(f)
	hasFade := fade > 0
	hasAccel := acceleration > 0

	switch {
	case !hasFade && !hasAccel:
		return d.Fade, d.Acceleration
	case !hasAccel:
		return fade, fade * d.AccelerationRatio
	case !hasFade:
		return acceleration*2 + acceleration*d.FadeRatio, acceleration
	default:
		return fade, acceleration
	}
}

// Package pulse generates the periodic waveforms used by pulse effects such as
// frost ramps, iris pulses and shutter strobes.
package pulse

import "math"

// Effect selects the waveform shape.
type Effect int

const (
	// Pulse opens then closes symmetrically over the active part of the period.
	Pulse Effect = iota
	// PulseOpen ramps from closed to open.
	PulseOpen
	// PulseClose ramps from open to closed.
	PulseClose
)

// String returns the effect name.
func (e Effect) String() string {
	switch e {
	case Pulse:
		return "PULSE"
	case PulseOpen:
		return "PULSE_OPEN"
	case PulseClose:
		return "PULSE_CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Generator produces a waveform in [0, 1] from elapsed time. The zero value
// has no period and always returns 0.
type Generator struct {
	effect            Effect
	period            float64
	dutyCyclePercent  float64
	timeOffsetPercent float64
	activeDuration    float64
	currentTime       float64
	loopedBack        bool
}

// New returns a configured generator.
func New(effect Effect, period, dutyCycle, timeOffset float64) *Generator {
	g := &Generator{}
	g.Configure(effect, period, dutyCycle, timeOffset)
	return g
}

// Configure sets the effect parameters. dutyCycle and timeOffset are fractions
// of the period and are clamped to [0, 1].
func (g *Generator) Configure(effect Effect, period, dutyCycle, timeOffset float64) {
	g.effect = effect
	g.period = sanitizePeriod(period)
	g.dutyCyclePercent = clamp01(dutyCycle)
	g.timeOffsetPercent = clamp01(timeOffset)
	g.activeDuration = g.period * g.dutyCyclePercent
	g.currentTime = g.wrap(g.period * g.timeOffsetPercent)
	g.loopedBack = false
}

// ChangePeriod changes the period of a running effect, shifting the current
// time by the offset share of the change.
func (g *Generator) ChangePeriod(period float64) {
	period = sanitizePeriod(period)
	g.currentTime += (period - g.period) * g.timeOffsetPercent
	g.period = period
	g.activeDuration = period * g.dutyCyclePercent
	g.currentTime = g.wrap(g.currentTime)
}

// Advance moves the effect clock forward and returns the waveform value.
func (g *Generator) Advance(deltaSeconds float64) float64 {
	g.loopedBack = false
	if g.period <= 0 {
		return 0
	}
	if deltaSeconds > 0 && !math.IsInf(deltaSeconds, 0) {
		next := g.currentTime + deltaSeconds
		if next >= g.period {
			g.loopedBack = true
		}
		g.currentTime = g.wrap(next)
	}
	return g.Value(g.currentTime)
}

// Value returns the waveform value at time t without touching the clock.
func (g *Generator) Value(t float64) float64 {
	if g.period <= 0 || g.activeDuration <= 0 {
		return 0
	}
	t = g.wrap(t)
	if t > g.activeDuration {
		return 0
	}

	var v float64
	switch g.effect {
	case Pulse:
		x := 2*math.Pi*t/g.activeDuration - math.Pi/2
		v = math.Asin(math.Sin(x))/math.Pi + 0.5
	case PulseOpen:
		v = ramp(t / g.activeDuration)
	case PulseClose:
		v = 1 - ramp(t/g.activeDuration)
	}
	return clamp01(v)
}

// LoopedBack reports whether the last Advance wrapped past the end of the
// period.
func (g *Generator) LoopedBack() bool { return g.loopedBack }

// CurrentTime returns the effect clock, always in [0, period).
func (g *Generator) CurrentTime() float64 { return g.currentTime }

// Period returns the period in seconds.
func (g *Generator) Period() float64 { return g.period }

// Effect returns the configured waveform.
func (g *Generator) Effect() Effect { return g.effect }

// ramp maps a phase in [0, 1] through atan(tan(x)) over (-π/2, π/2).
func ramp(phase float64) float64 {
	if phase >= 1 {
		return 1
	}
	x := math.Pi*phase - math.Pi/2
	return math.Atan(math.Tan(x))/math.Pi + 0.5
}

func (g *Generator) wrap(t float64) float64 {
	if g.period <= 0 {
		return 0
	}
	t = math.Mod(t, g.period)
	if t < 0 {
		t += g.period
	}
	if t >= g.period {
		t = 0
	}
	return t
}

func sanitizePeriod(period float64) float64 {
	if !(period > 0) || math.IsInf(period, 0) {
		return 0
	}
	return period
}

func clamp01(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

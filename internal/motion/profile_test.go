package motion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tick = 1.0 / 60.0

// newPanProfile returns a profile configured like a 100 unit axis with a
// 0.5s acceleration and a 2s full-range fade, resting at 0.
func newPanProfile(t *testing.T) *Profile {
	t.Helper()
	p := NewProfile(0)
	p.Configure(0.5, 2, 100)
	p.SetTarget(0)
	require.True(t, p.IsInterpolationDone())
	return p
}

func run(p *Profile, ticks int) {
	for i := 0; i < ticks; i++ {
		p.Advance(tick)
	}
}

func TestConfigure(t *testing.T) {
	p := NewProfile(0)
	p.Configure(0.5, 2, 100)

	assert.InDelta(t, 2.0, p.NormalizedAcceleration(), 1e-12)
	assert.InDelta(t, 100.0/1.5, p.MaxPhysicalSpeed(), 1e-12)
}

func TestConfigureIsDeterministic(t *testing.T) {
	a := NewProfile(0)
	b := NewProfile(0)
	a.Configure(0.37, 1.9, 540)
	b.Configure(0.37, 1.9, 540)
	b.Configure(0.37, 1.9, 540)

	assert.Equal(t, a.NormalizedAcceleration(), b.NormalizedAcceleration())
	assert.Equal(t, a.MaxPhysicalSpeed(), b.MaxPhysicalSpeed())
}

func TestConfigureCorrectsFadeNotAboveAcceleration(t *testing.T) {
	p := NewProfile(0)
	p.Configure(0.5, 0.5, 10)

	assert.InDelta(t, 10/fadeCorrection, p.MaxPhysicalSpeed(), 1e-9)
	assert.False(t, math.IsInf(p.MaxPhysicalSpeed(), 0))
}

func TestFirstTargetSnaps(t *testing.T) {
	p := NewProfile(10)
	p.Configure(0.5, 2, 100)
	p.SetTarget(42)

	assert.Equal(t, 42.0, p.Value())
	assert.Equal(t, 42.0, p.Target())
	assert.False(t, p.IsMoving())
	assert.Equal(t, Stop, p.Direction())
}

func TestFullRangeMove(t *testing.T) {
	const step = 0.02
	p := newPanProfile(t)
	p.SetTarget(100)

	_, capped := p.SpeedCap()
	assert.False(t, capped, "a full-range move needs no speed cap")

	advance := func(n int) {
		for i := 0; i < n; i++ {
			p.Advance(step)
		}
	}

	advance(25)
	assert.InDelta(t, 100.0/6, p.Value(), 1e-6, "end of acceleration")
	assert.InDelta(t, 1.0, p.Speed(), 1e-9)

	advance(25)
	assert.InDelta(t, 50.0, p.Value(), 1e-6, "half way")
	assert.True(t, p.IsAtMaxSpeed())
	assert.Equal(t, Forward, p.Direction())

	advance(50)
	assert.Equal(t, 100.0, p.Value())
	assert.False(t, p.IsMoving())
	assert.True(t, p.IsInterpolationDone())
	assert.Equal(t, Stop, p.Direction())
}

func TestReverseWithoutOvershoot(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	for i := 0; i < 200 && p.Value() < 80; i++ {
		p.Advance(tick)
	}
	require.GreaterOrEqual(t, p.Value(), 80.0)
	require.InDelta(t, 1.0, p.Speed(), 1e-9)
	start := p.Value()

	p.SetTarget(50)
	c, capped := p.SpeedCap()
	require.True(t, capped)
	assert.InDelta(t, 0.55, c, 0.05)

	minValue, maxValue := p.Value(), p.Value()
	for i := 0; i < 400; i++ {
		p.Advance(tick)
		minValue = math.Min(minValue, p.Value())
		maxValue = math.Max(maxValue, p.Value())
		assert.LessOrEqual(t, math.Abs(p.Speed()), 1.0)
	}

	assert.GreaterOrEqual(t, minValue, 50.0-1e-6, "must not pass the new target")
	assert.InDelta(t, start+100.0/6, maxValue, 0.5, "brakes at the nominal rate before reversing")
	assert.Less(t, maxValue, 100.0)
	assert.Equal(t, 50.0, p.Value())
	assert.True(t, p.IsInterpolationDone())
}

func TestMonotoneApproachNeverOvershoots(t *testing.T) {
	tests := []struct {
		name   string
		target float64
	}{
		{"tiny", 0.5},
		{"short", 7},
		{"medium", 33},
		{"long", 100},
		{"backward", -60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPanProfile(t)
			p.SetTarget(tt.target)
			dir := math.Copysign(1, tt.target)
			prev := p.Value()
			for i := 0; i < 600; i++ {
				p.Advance(tick)
				assert.GreaterOrEqual(t, dir*(p.Value()-prev), -1e-9, "monotone")
				assert.LessOrEqual(t, dir*p.Value(), dir*tt.target+1e-9, "no overshoot")
				prev = p.Value()
			}
			assert.Equal(t, tt.target, p.Value())
			assert.True(t, p.IsInterpolationDone())
		})
	}
}

func TestConvergenceTime(t *testing.T) {
	for _, target := range []float64{3, 20, 45, 100} {
		p := newPanProfile(t)
		p.SetTarget(target)

		minMove := math.Max(minShortMoveTime, DefaultFadeTime*shortMoveFadeRatio)
		bound := math.Max(2/p.NormalizedAcceleration()+target/p.MaxPhysicalSpeed(), minMove) + 2*tick

		elapsed := 0.0
		for !p.IsInterpolationDone() && elapsed < 10 {
			p.Advance(tick)
			elapsed += tick
		}
		assert.True(t, p.IsInterpolationDone(), "target %v", target)
		assert.LessOrEqual(t, elapsed, bound, "target %v", target)
	}
}

func TestShortMoveTakesMinimumTime(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(5)

	c, capped := p.SpeedCap()
	require.True(t, capped)
	assert.Greater(t, c, 0.0)
	assert.Less(t, c, 1.0)

	elapsed := 0.0
	for !p.IsInterpolationDone() && elapsed < 10 {
		p.Advance(tick)
		elapsed += tick
		assert.LessOrEqual(t, math.Abs(p.Speed()), c+1e-9)
	}
	assert.InDelta(t, 1.1, elapsed, 3*tick)
}

func TestTinyMovesTakeMinimumTime(t *testing.T) {
	// A 540 degree pan: one 8 bit step is about 2.1 degrees.
	minTime := math.Max(minShortMoveTime, 2.2*shortMoveFadeRatio)
	for _, distance := range []float64{0.01, 0.5, 1, 2, 2.1, 4} {
		p := NewProfile(0)
		p.Configure(0.6, 2.2, 540)
		p.SetTarget(0)
		p.SetTarget(distance)

		c, capped := p.SpeedCap()
		require.True(t, capped, "distance %v", distance)
		assert.Greater(t, c, 0.0, "distance %v", distance)

		elapsed := 0.0
		for !p.IsInterpolationDone() && elapsed < 10 {
			p.Advance(tick)
			elapsed += tick
			assert.LessOrEqual(t, math.Abs(p.Speed()), c+1e-9)
		}
		assert.Equal(t, distance, p.Value())
		assert.InDelta(t, minTime, elapsed, 2*tick, "distance %v", distance)
	}
}

func TestPlainMoveHasNoOverride(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)

	for i := 0; i < 600 && !p.IsInterpolationDone(); i++ {
		p.Advance(tick)
		_, ok := p.AccelerationOverride()
		require.False(t, ok, "tick %d", i)
	}
	assert.True(t, p.IsInterpolationDone())
}

func TestLargeDeltaIsClamped(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)

	p.Advance(5)
	// 0.4 of the acceleration phase at most.
	assert.InDelta(t, 0.4, p.Speed(), 1e-9)
	assert.Less(t, p.Value(), 10.0)
}

func TestAdvanceIgnoresInvalidDelta(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	p.Advance(tick)
	v := p.Value()

	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		p.Advance(dt)
		assert.Equal(t, v, p.Value())
	}
}

func TestMotionQueries(t *testing.T) {
	p := newPanProfile(t)
	assert.False(t, p.IsMoving())

	p.SetTarget(100)
	p.Advance(tick)
	assert.True(t, p.IsMoving())
	assert.True(t, p.IsAccelerating())
	assert.False(t, p.IsDecelerating())
	assert.False(t, p.IsAtMaxSpeed())

	run(p, 60)
	assert.True(t, p.IsAtMaxSpeed())
	assert.False(t, p.IsAccelerating())

	run(p, 40)
	assert.True(t, p.IsDecelerating())
	assert.False(t, p.IsAtMaxSpeed())
}

func TestFastDecelerationOverride(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	run(p, 60) // full speed at 50

	// 12 units left at full speed needs more than the nominal rate.
	p.SetTarget(62)
	p.Advance(tick)

	rate, ok := p.AccelerationOverride()
	require.True(t, ok)
	assert.Greater(t, rate, p.NormalizedAcceleration())
	assert.LessOrEqual(t, rate, p.NormalizedAcceleration()*MaxFastDecelerationRatio)
	assert.True(t, p.IsDecelerating())

	run(p, 300)
	assert.Equal(t, 62.0, p.Value())
	_, ok = p.AccelerationOverride()
	assert.False(t, ok)
}

func TestEndInterpolation(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	run(p, 20)

	frozen := p.Value()
	p.EndInterpolation(false)
	assert.Equal(t, frozen, p.Value())
	assert.Equal(t, frozen, p.Target())
	assert.False(t, p.IsMoving())

	p.SetTarget(100)
	run(p, 20)
	p.EndInterpolation(true)
	assert.Equal(t, 100.0, p.Value())
	assert.True(t, p.IsInterpolationDone())
}

func TestIsTargetValid(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(10)

	assert.False(t, p.IsTargetValid(10.0005, 0.001))
	assert.True(t, p.IsTargetValid(10.002, 0.001))
	assert.True(t, p.IsTargetValid(10, 0))
}

func TestOffsetKeepsMotion(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	run(p, 40)
	speed := p.Speed()
	value := p.Value()

	p.Offset(-360)
	assert.Equal(t, speed, p.Speed())
	assert.InDelta(t, value-360, p.Value(), 1e-9)
	assert.InDelta(t, -260.0, p.Target(), 1e-9)
}

func TestSetValueIsImmediate(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(100)
	run(p, 10)

	p.SetValue(25)
	assert.Equal(t, 25.0, p.Value())
	assert.True(t, p.IsInterpolationDone())
}

func TestNonFiniteTargetsIgnored(t *testing.T) {
	p := newPanProfile(t)
	p.SetTarget(math.NaN())
	p.SetTarget(math.Inf(-1))
	assert.Equal(t, 0.0, p.Target())
}

func TestFollowTargetKeepsFullSpeed(t *testing.T) {
	p := newPanProfile(t)
	target := 90.0
	for i := 0; i < 240; i++ {
		target += p.MaxPhysicalSpeed() * tick
		p.FollowTarget(target)
		p.Advance(tick)
	}
	_, capped := p.SpeedCap()
	assert.False(t, capped)
	assert.InDelta(t, 1.0, p.Speed(), 1e-6)
}

func TestDirectionString(t *testing.T) {
	assert.Equal(t, "FORWARD", Forward.String())
	assert.Equal(t, "BACKWARD", Backward.String())
	assert.Equal(t, "STOP", Stop.String())
}

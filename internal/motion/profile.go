// Package motion provides bounded-acceleration motion profiles for moving
// fixture parts (pan, tilt, wheels, iris, shutters) driven by DMX targets.
package motion

import (
	"log"
	"math"
)

const (
	// MaxFastDecelerationRatio caps the deceleration override relative to the
	// nominal acceleration.
	MaxFastDecelerationRatio = 1.5

	// DefaultAccelerationTime is used until Configure is called.
	DefaultAccelerationTime = 0.5
	// DefaultFadeTime is used until Configure is called.
	DefaultFadeTime = 2.0

	// maxAccelerationStep bounds acceleration*deltaSeconds for a single tick.
	maxAccelerationStep = 0.4

	// Short moves never take less than max(minShortMoveTime, fade*shortMoveFadeRatio).
	minShortMoveTime   = 0.7
	shortMoveFadeRatio = 0.55

	// fadeCorrection is added to the acceleration time when a channel
	// declares RealFade <= RealAcceleration.
	fadeCorrection = 0.1

	minAccelerationTime = 0.001

	// maxSegments bounds the number of kinematic segments replayed in one tick
	// (reverse, accelerate, decelerate, stop).
	maxSegments = 6

	positionEpsilon = 1e-9

	// overrideTolerance is the relative margin a braking rate must exceed
	// the nominal acceleration by to count as a fast deceleration.
	overrideTolerance = 1e-6
)

// Direction is the sign of the current motion.
type Direction int

const (
	// Backward moves toward lower values.
	Backward Direction = -1
	// Stop means the profile is at rest.
	Stop Direction = 0
	// Forward moves toward higher values.
	Forward Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	default:
		return "STOP"
	}
}

// Profile is a trapezoidal (bounded acceleration) motion profile toward a
// target value that may change while the profile is moving.
//
// A Profile is not safe for concurrent use. Callers that set targets from a
// different goroutine than the one calling Advance must serialize access.
type Profile struct {
	currentValue        float64
	targetValue         float64
	previousTargetValue float64

	// normalized, signed: [-1, 1]
	currentSpeed float64
	// normalized per second, signed
	currentAcceleration float64

	accelerationOverride    float64
	hasAccelerationOverride bool

	direction Direction

	maxPhysicalSpeed       float64 // units per second
	normalizedAcceleration float64 // 1/s
	fadeTime               float64

	speedCap    float64
	hasSpeedCap bool

	firstValueReceived bool
}

// NewProfile creates a profile at rest at defaultValue. The first call to
// SetTarget snaps to its value.
func NewProfile(defaultValue float64) *Profile {
	p := &Profile{}
	p.Configure(DefaultAccelerationTime, DefaultFadeTime, 1)
	p.snap(defaultValue)
	return p
}

// Configure derives the kinematic limits from the GDTF RealAcceleration
// (accelerationTime), RealFade (fadeTime) and the physical range size.
func (p *Profile) Configure(accelerationTime, fadeTime, rangeSize float64) {
	if !(accelerationTime >= minAccelerationTime) {
		log.Printf("⚠️  motion: invalid acceleration time %v, using %vs", accelerationTime, minAccelerationTime)
		accelerationTime = minAccelerationTime
	}
	if !(fadeTime > accelerationTime) {
		corrected := accelerationTime + fadeCorrection
		log.Printf("⚠️  motion: fade time %vs must exceed acceleration time %vs, using %vs", fadeTime, accelerationTime, corrected)
		fadeTime = corrected
	}
	rangeSize = math.Abs(rangeSize)
	if rangeSize == 0 || math.IsNaN(rangeSize) || math.IsInf(rangeSize, 0) {
		rangeSize = 1
	}

	p.normalizedAcceleration = 1 / accelerationTime
	p.maxPhysicalSpeed = rangeSize / (fadeTime - accelerationTime)
	p.fadeTime = fadeTime
}

// SetTarget sets a new target value. Before any value has been received the
// profile jumps straight to it.
func (p *Profile) SetTarget(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	if !p.firstValueReceived {
		p.firstValueReceived = true
		p.snap(value)
		return
	}
	p.targetValue = value
	p.updateSpeedCap()
}

// FollowTarget moves the target without recomputing the short-move speed
// cap. Continuous effects (pan/tilt rotation) that nudge the target every
// tick use it so the profile can keep up at full speed.
func (p *Profile) FollowTarget(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	if !p.firstValueReceived {
		p.firstValueReceived = true
		p.snap(value)
		return
	}
	p.targetValue = value
	p.hasSpeedCap = false
}

// SetValue jumps to value without interpolation.
func (p *Profile) SetValue(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}
	p.firstValueReceived = true
	p.snap(value)
}

// Offset shifts the current, target and previous target values together,
// leaving the kinematic state untouched.
func (p *Profile) Offset(delta float64) {
	p.currentValue += delta
	p.targetValue += delta
	p.previousTargetValue += delta
}

// EndInterpolation stops the profile. With snapToTarget the value jumps to the
// target, otherwise the profile freezes where it is and retargets itself.
func (p *Profile) EndInterpolation(snapToTarget bool) {
	if snapToTarget {
		p.currentValue = p.targetValue
	} else {
		p.targetValue = p.currentValue
	}
	p.previousTargetValue = p.targetValue
	p.currentSpeed = 0
	p.currentAcceleration = 0
	p.direction = Stop
	p.hasSpeedCap = false
	p.clearOverride()
}

// IsTargetValid reports whether candidate differs from the current target by
// at least epsilon.
func (p *Profile) IsTargetValid(candidate, epsilon float64) bool {
	return math.Abs(p.targetValue-candidate) >= epsilon
}

// IsMoving reports whether the profile has speed or acceleration.
func (p *Profile) IsMoving() bool {
	return p.currentSpeed != 0 || p.currentAcceleration != 0
}

// IsAccelerating reports whether the speed magnitude is increasing.
func (p *Profile) IsAccelerating() bool {
	if p.currentAcceleration == 0 {
		return false
	}
	return p.currentSpeed == 0 || sign(p.currentSpeed) == sign(p.currentAcceleration)
}

// IsDecelerating reports whether the speed magnitude is decreasing.
func (p *Profile) IsDecelerating() bool {
	return p.currentSpeed != 0 && p.currentAcceleration != 0 &&
		sign(p.currentSpeed) != sign(p.currentAcceleration)
}

// IsAtMaxSpeed reports whether the profile cruises at its speed limit (full
// speed, or the speed cap when one is active).
func (p *Profile) IsAtMaxSpeed() bool {
	return p.currentAcceleration == 0 && p.currentSpeed != 0 &&
		math.Abs(p.currentSpeed) >= p.speedLimit()-positionEpsilon
}

// IsInterpolationDone reports whether the profile rests on its target.
func (p *Profile) IsInterpolationDone() bool {
	return !p.IsMoving() && p.currentValue == p.targetValue
}

// Value returns the current position in physical units.
func (p *Profile) Value() float64 { return p.currentValue }

// Target returns the current target.
func (p *Profile) Target() float64 { return p.targetValue }

// Speed returns the normalized signed speed.
func (p *Profile) Speed() float64 { return p.currentSpeed }

// Acceleration returns the normalized signed acceleration.
func (p *Profile) Acceleration() float64 { return p.currentAcceleration }

// Direction returns the direction of the current motion.
func (p *Profile) Direction() Direction { return p.direction }

// MaxPhysicalSpeed returns the full speed in units per second.
func (p *Profile) MaxPhysicalSpeed() float64 { return p.maxPhysicalSpeed }

// NormalizedAcceleration returns the nominal acceleration in 1/s.
func (p *Profile) NormalizedAcceleration() float64 { return p.normalizedAcceleration }

// SpeedCap returns the active short-move speed cap, if any.
func (p *Profile) SpeedCap() (float64, bool) { return p.speedCap, p.hasSpeedCap }

// AccelerationOverride returns the active fast-deceleration rate, if any.
func (p *Profile) AccelerationOverride() (float64, bool) {
	return p.accelerationOverride, p.hasAccelerationOverride
}

// TimeToTraverse returns how long a move of distance takes from rest to rest
// at full speed.
func (p *Profile) TimeToTraverse(distance float64) float64 {
	distance = math.Abs(distance)
	a := p.normalizedAcceleration
	v := p.maxPhysicalSpeed
	// Accelerating to full speed and back down covers v/a.
	if distance >= v/a {
		return distance/v + 1/a
	}
	return 2 * math.Sqrt(distance/(a*v))
}

func (p *Profile) snap(value float64) {
	p.currentValue = value
	p.targetValue = value
	p.previousTargetValue = value
	p.currentSpeed = 0
	p.currentAcceleration = 0
	p.direction = Stop
	p.hasSpeedCap = false
	p.clearOverride()
}

func (p *Profile) clearOverride() {
	p.accelerationOverride = 0
	p.hasAccelerationOverride = false
}

// updateSpeedCap limits the cruise speed so short moves take a minimum time.
func (p *Profile) updateSpeedCap() {
	p.hasSpeedCap = false
	distance := math.Abs(p.targetValue - p.currentValue)
	if distance == 0 {
		return
	}
	minTime := math.Max(minShortMoveTime, p.fadeTime*shortMoveFadeRatio)
	if p.TimeToTraverse(distance) >= minTime {
		return
	}

	// From rest with cap c: distance = v*c*T - v*c²/a. The smaller root,
	// written as 2d/(v(T+sqrt(disc))) so tiny distances keep their precision.
	a := p.normalizedAcceleration
	v := p.maxPhysicalSpeed
	disc := minTime*minTime - 4*distance/(a*v)
	if disc < 0 {
		disc = 0
	}
	c := 2 * distance / (v * (minTime + math.Sqrt(disc)))
	if !(c > 0) {
		return
	}
	p.speedCap = math.Min(c, 1)
	p.hasSpeedCap = true
}

func (p *Profile) speedLimit() float64 {
	if p.hasSpeedCap {
		return p.speedCap
	}
	return 1
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

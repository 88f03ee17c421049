package motion

import "math"

// frame expresses the kinematic state relative to the target: positive
// speeds move toward it and gap is the remaining distance (never negative).
type frame struct {
	sigma float64 // world sign of "toward the target"
	speed float64 // normalized, toward the target
	gap   float64 // physical units
}

// Advance moves the profile forward by deltaSeconds.
func (p *Profile) Advance(deltaSeconds float64) {
	if !(deltaSeconds > 0) || math.IsInf(deltaSeconds, 0) {
		return
	}
	if p.IsInterpolationDone() {
		p.previousTargetValue = p.targetValue
		return
	}

	limit := p.normalizedAcceleration
	if p.hasAccelerationOverride && p.accelerationOverride > limit {
		limit = p.accelerationOverride
	}
	if limit*deltaSeconds > maxAccelerationStep {
		deltaSeconds = maxAccelerationStep / limit
	}

	// A new target gets nominal timing until the kinematics say otherwise.
	if p.targetValue != p.previousTargetValue {
		p.clearOverride()
	}

	remaining := deltaSeconds
	for i := 0; i < maxSegments && remaining > 0; i++ {
		remaining = p.segment(remaining)
		if p.currentSpeed == 0 && p.currentValue == p.targetValue {
			break
		}
	}

	p.checkCompletion(deltaSeconds)
	p.previousTargetValue = p.targetValue
}

// segment integrates one constant-acceleration piece of the tick and returns
// the time left over when the piece ends early (speed reaching zero or the
// deceleration point being crossed).
func (p *Profile) segment(dt float64) float64 {
	f := p.frame()
	a := p.normalizedAcceleration

	switch {
	case f.speed < 0:
		return p.reverse(f, a, dt)
	case f.speed > 0 && p.stopDistance(f.speed, a) >= f.gap-p.tolerance():
		return p.decelerate(f, a, dt)
	default:
		return p.approach(f, a, dt)
	}
}

func (p *Profile) frame() frame {
	diff := p.targetValue - p.currentValue
	sigma := sign(diff)
	if sigma == 0 {
		// On the target while still moving: treat the motion as heading in,
		// so it brakes as hard as allowed.
		sigma = sign(p.currentSpeed)
		if sigma == 0 {
			sigma = 1
		}
	}
	return frame{sigma: sigma, speed: sigma * p.currentSpeed, gap: math.Abs(diff)}
}

// stopDistance is the physical distance needed to stop from a normalized
// speed at the given normalized deceleration.
func (p *Profile) stopDistance(speed, accel float64) float64 {
	return 0.5 * speed * speed * p.maxPhysicalSpeed / accel
}

// reverse brakes at the nominal rate while moving away from the target.
func (p *Profile) reverse(f frame, a, dt float64) float64 {
	toZero := -f.speed / a
	if toZero >= dt {
		p.integrate(f, a, dt)
		return 0
	}
	p.integrate(f, a, toZero)
	p.currentSpeed = 0
	return dt - toZero
}

// decelerate brakes so that the profile stops exactly on the target. The
// rate is raised above nominal when needed, up to MaxFastDecelerationRatio.
func (p *Profile) decelerate(f frame, a, dt float64) float64 {
	rate := math.Inf(1)
	if f.gap > 0 {
		rate = f.speed * f.speed * p.maxPhysicalSpeed / (2 * f.gap)
	}
	exact := true
	if maxRate := a * MaxFastDecelerationRatio; rate > maxRate {
		rate = maxRate
		exact = false
	}
	if rate > a*(1+overrideTolerance) {
		p.accelerationOverride = rate
		p.hasAccelerationOverride = true
	} else {
		p.clearOverride()
	}

	toZero := f.speed / rate
	if toZero > dt {
		p.integrate(f, -rate, dt)
		return 0
	}

	p.integrate(f, -rate, toZero)
	p.currentSpeed = 0
	if exact {
		p.currentValue = p.targetValue
	}
	p.currentAcceleration = 0
	p.clearOverride()
	return dt - toZero
}

// approach accelerates (or slows) toward the cruise limit and cruises. If the
// tentative move would leave too little room to stop, the tick is rolled back
// to the instant the deceleration should have started and replayed from there.
func (p *Profile) approach(f frame, a, dt float64) float64 {
	limit := p.speedLimit()

	speed, dist := p.cruiseTowards(f.speed, limit, a, dt)
	if dist+p.stopDistance(speed, a) <= f.gap+p.tolerance() {
		p.applyCruise(f, limit, a, dt)
		return 0
	}

	tau := p.decelerationStart(f, limit, a)
	if tau >= dt {
		p.applyCruise(f, limit, a, dt)
		return 0
	}
	if tau <= 0 {
		return p.decelerate(f, a, dt)
	}
	p.applyCruise(f, limit, a, tau)
	return dt - tau
}

// decelerationStart solves for the time after which braking at the nominal
// rate lands exactly on the target.
func (p *Profile) decelerationStart(f frame, limit, a float64) float64 {
	v := p.maxPhysicalSpeed
	u := f.speed
	g := f.gap

	if u < limit {
		// Accelerating: u*t + a*t²/2 + (u+a*t)²/(2a) = g/v.
		t := (-u + math.Sqrt(u*u/2+a*g/v)) / a
		if t <= (limit-u)/a {
			return t
		}
	}

	tc := math.Abs(limit-u) / a
	_, pc := p.cruiseTowards(u, limit, a, tc)
	return tc + (g-pc-p.stopDistance(limit, a))/(limit*v)
}

// cruiseTowards returns the normalized speed and the physical distance after
// moving for dt while ramping the speed toward limit at rate a.
func (p *Profile) cruiseTowards(u, limit, a, dt float64) (float64, float64) {
	v := p.maxPhysicalSpeed
	if u == limit {
		return u, u * v * dt
	}
	rate := a
	if u > limit {
		rate = -a
	}
	tc := (limit - u) / rate
	if dt < tc {
		speed := u + rate*dt
		if (rate > 0 && speed > limit) || (rate < 0 && speed < limit) {
			speed = limit
		}
		return speed, (u*dt + 0.5*rate*dt*dt) * v
	}
	ramp := (u*tc + 0.5*rate*tc*tc) * v
	return limit, ramp + limit*v*(dt-tc)
}

// applyCruise commits cruiseTowards to the profile state.
func (p *Profile) applyCruise(f frame, limit, a, dt float64) {
	speed, dist := p.cruiseTowards(f.speed, limit, a, dt)
	p.currentValue += f.sigma * dist
	p.currentSpeed = f.sigma * speed

	switch {
	case speed == limit:
		p.currentAcceleration = 0
	case f.speed < limit:
		p.currentAcceleration = f.sigma * a
	default:
		p.currentAcceleration = -f.sigma * a
	}
	p.direction = Direction(sign(p.currentSpeed))
}

// integrate applies a constant frame-relative acceleration for dt.
func (p *Profile) integrate(f frame, accel, dt float64) {
	speed := f.speed + accel*dt
	dist := (f.speed*dt + 0.5*accel*dt*dt) * p.maxPhysicalSpeed
	p.currentValue += f.sigma * dist
	p.currentSpeed = clamp(f.sigma*speed, -1, 1)
	p.currentAcceleration = f.sigma * accel
	p.direction = Direction(sign(p.currentSpeed))
}

// checkCompletion snaps to the target once the remaining gap fits inside the
// distance of a single tick at a speed that could be stopped within it.
func (p *Profile) checkCompletion(dt float64) {
	rate := p.normalizedAcceleration
	if p.hasAccelerationOverride {
		rate = p.accelerationOverride
	}
	speed := math.Abs(p.currentSpeed)
	gap := math.Abs(p.targetValue - p.currentValue)
	if speed <= rate*dt && gap <= speed*p.maxPhysicalSpeed*dt+p.tolerance() {
		p.currentValue = p.targetValue
		p.currentSpeed = 0
		p.currentAcceleration = 0
		p.direction = Stop
		p.hasSpeedCap = false
		p.clearOverride()
		return
	}
	if p.currentSpeed == 0 {
		p.direction = Stop
	}
}

func (p *Profile) tolerance() float64 {
	return positionEpsilon * math.Max(1, math.Abs(p.targetValue))
}

package fixture

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/bbernstein/lacylights-motion/internal/channeltree"
	"github.com/bbernstein/lacylights-motion/internal/description"
	"github.com/bbernstein/lacylights-motion/internal/motion"
	"github.com/bbernstein/lacylights-motion/internal/pulse"
)

// DefaultSkipThreshold is the smallest target change that retargets an
// interpolated parameter.
const DefaultSkipThreshold = 0.003

const universeSize = 512

// ErrInvalidPatch is returned when a fixture does not fit its universe.
var ErrInvalidPatch = errors.New("invalid fixture patch")

// Options are the per-patch settings of a fixture.
type Options struct {
	InvertPan     bool
	InvertTilt    bool
	Interpolation bool
	SkipThreshold float64
	// Random drives random pulses and strobes. Nil uses a time seeded source.
	Random *rand.Rand
}

// DefaultOptions returns interpolation on with the default skip threshold.
func DefaultOptions() Options {
	return Options{
		Interpolation: true,
		SkipThreshold: DefaultSkipThreshold,
	}
}

type param struct {
	key          Key
	profile      *motion.Profile
	min          float64
	max          float64
	interpolated bool
	inverted     bool
}

func (p *param) transform(v float64) float64 {
	if p.inverted {
		return p.max - v + p.min
	}
	return v
}

func (p *param) invertSign() float64 {
	if p.inverted {
		return -1
	}
	return 1
}

// scale maps a waveform value in [0, 1] onto the parameter range.
func (p *param) scale(v float64) float64 {
	return p.min + v*(p.max-p.min)
}

type pulseEffect struct {
	key       Key
	attribute string
	behavior  Behavior
	gen       *pulse.Generator
	minFreq   float64
	maxFreq   float64
}

type randomStrobe struct {
	key       Key
	attribute string
	minFreq   float64
	maxFreq   float64
	remaining float64
}

type rotation struct {
	axis      Feature
	attribute string
	gen       *pulse.Generator
	dir       float64
	base      float64
}

func (r *rotation) active() bool { return r.dir != 0 }

type channel struct {
	desc    *description.DMXChannel
	tree    *channeltree.ChannelTree
	primary *Key

	lastRaw   int64
	hasRaw    bool
	attribute string

	pulse  *pulseEffect
	strobe *randomStrobe
}

// Fixture is a patched fixture instance: the DMX channels of one mode bound
// to motion profiles and pulse effects.
//
// A Fixture is not safe for concurrent use.
type Fixture struct {
	id       string
	name     string
	universe int
	address  int
	opts     Options
	rng      *rand.Rand

	channels  []*channel
	params    map[Key]*param
	order     []Key
	rotations map[Feature]*rotation
}

// New patches mode at the 1-based DMX address of universe.
func New(id, name string, mode *description.Mode, universe, address int, opts Options) (*Fixture, error) {
	if mode == nil {
		return nil, fmt.Errorf("%w: fixture %s has no mode", ErrInvalidPatch, id)
	}
	footprint := mode.Footprint()
	if address < 1 || address+footprint-1 > universeSize {
		return nil, fmt.Errorf("%w: fixture %s at address %d with footprint %d exceeds the universe",
			ErrInvalidPatch, id, address, footprint)
	}
	if opts.SkipThreshold < 0 {
		opts.SkipThreshold = 0
	}

	f := &Fixture{
		id:        id,
		name:      name,
		universe:  universe,
		address:   address,
		opts:      opts,
		rng:       opts.Random,
		params:    make(map[Key]*param),
		rotations: make(map[Feature]*rotation),
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for i := range mode.Channels {
		desc := &mode.Channels[i]
		f.channels = append(f.channels, &channel{
			desc: desc,
			tree: channeltree.NewChannelTree(desc),
		})
	}
	f.buildParams()
	return f, nil
}

// buildParams creates one motion profile per driven key, configured from
// the physical range and timing of the functions that drive it.
func (f *Fixture) buildParams() {
	type bounds struct {
		min, max     float64
		ranged       bool
		interpolated bool
		fade, accel  float64
		timed        bool
	}
	collected := make(map[Key]*bounds)

	for _, ch := range f.channels {
		for i := range ch.desc.Functions {
			fn := &ch.desc.Functions[i]
			route := Classify(fn.Attribute)
			if !route.Supported() {
				continue
			}
			key := route.Key
			if route.Behavior == BehaviorRotation {
				key = Key{Feature: route.Key.Feature}
			}
			if ch.primary == nil {
				k := key
				ch.primary = &k
			}

			b, ok := collected[key]
			if !ok {
				b = &bounds{}
				collected[key] = b
				f.order = append(f.order, key)
			}
			if route.Behavior == BehaviorInterpolated || route.Behavior == BehaviorImmediate {
				lo := math.Min(fn.PhysicalFrom, fn.PhysicalTo)
				hi := math.Max(fn.PhysicalFrom, fn.PhysicalTo)
				if !b.ranged {
					b.min, b.max, b.ranged = lo, hi, true
				} else {
					b.min = math.Min(b.min, lo)
					b.max = math.Max(b.max, hi)
				}
			}
			if route.Behavior == BehaviorInterpolated {
				b.interpolated = true
				if !b.timed {
					b.fade, b.accel, b.timed = fn.RealFade, fn.RealAcceleration, true
				}
			}
		}
	}

	for _, key := range f.order {
		b := collected[key]
		p := &param{key: key, min: 0, max: 1, interpolated: b.interpolated}
		if b.ranged {
			p.min, p.max = b.min, b.max
		}
		p.inverted = (key.Feature == FeaturePan && f.opts.InvertPan) ||
			(key.Feature == FeatureTilt && f.opts.InvertTilt)

		p.profile = motion.NewProfile(p.transform(f.defaultValue(key, p.min)))
		fade, accel := ResolveTiming(key.Feature, b.fade, b.accel)
		p.profile.Configure(accel, fade, p.max-p.min)
		f.params[key] = p

		if key.Feature == FeaturePan || key.Feature == FeatureTilt {
			f.rotations[key.Feature] = &rotation{
				axis: key.Feature,
				gen:  &pulse.Generator{},
				base: f.defaultValue(key, p.min),
			}
		}
	}
}

// defaultValue maps the default DMX value of the first channel that drives
// key directly. fallback is used when no channel default applies.
func (f *Fixture) defaultValue(key Key, fallback float64) float64 {
	for _, ch := range f.channels {
		fn, set, ok := ch.tree.Lookup(ch.desc.DefaultValue())
		if !ok {
			continue
		}
		route := Classify(fn.Attribute)
		if route.Key != key {
			continue
		}
		if route.Behavior == BehaviorInterpolated || route.Behavior == BehaviorImmediate {
			return mapSet(ch.desc.DefaultValue(), set, ch.tree.Bytes())
		}
	}
	return fallback
}

// ApplyDMX decodes every channel of the fixture from a universe buffer and
// routes changed values.
func (f *Fixture) ApplyDMX(universe []byte) {
	base := f.address - 1
	for _, ch := range f.channels {
		raw, ok := decode(universe, base, ch.desc.Offset)
		if !ok {
			continue
		}
		if ch.hasRaw && ch.lastRaw == raw {
			continue
		}
		ch.lastRaw, ch.hasRaw = raw, true
		f.dispatch(ch, raw, true)
	}
}

// decode reads a big-endian value from the 1-based offsets.
func decode(universe []byte, base int, offsets []int) (int64, bool) {
	if len(offsets) == 0 {
		return 0, false
	}
	var raw int64
	for _, offset := range offsets {
		idx := base + offset - 1
		if idx < 0 || idx >= len(universe) {
			return 0, false
		}
		raw = raw<<8 | int64(universe[idx])
	}
	return raw, true
}

func (f *Fixture) dispatch(ch *channel, raw int64, allowDefault bool) {
	fn, set, ok := ch.tree.Lookup(raw)
	if !ok {
		return
	}
	route := Classify(fn.Attribute)
	f.leaveAttribute(ch, fn.Attribute)
	ch.attribute = fn.Attribute
	value := mapSet(raw, set, ch.tree.Bytes())

	switch route.Behavior {
	case BehaviorInterpolated:
		f.applyInterpolated(route.Key, value)
	case BehaviorImmediate:
		if p := f.params[route.Key]; p != nil {
			p.profile.SetValue(p.transform(value))
		}
	case BehaviorPulse, BehaviorRandomPulse:
		f.applyPulse(ch, route, fn, set, value)
	case BehaviorRandomStrobe:
		f.applyRandomStrobe(ch, route, set)
	case BehaviorRotation:
		f.applyRotation(route, set, value)
	default:
		f.applyUnsupported(ch, raw, allowDefault)
	}
}

// leaveAttribute stops the effects a channel runs when it moves to another
// attribute.
func (f *Fixture) leaveAttribute(ch *channel, attribute string) {
	if ch.attribute == attribute {
		return
	}
	if ch.pulse != nil && ch.pulse.attribute != attribute {
		ch.pulse = nil
	}
	if ch.strobe != nil && ch.strobe.attribute != attribute {
		ch.strobe = nil
	}
	for _, rot := range f.rotations {
		if rot.active() && rot.attribute == ch.attribute {
			f.stopRotation(rot)
		}
	}
}

func (f *Fixture) applyInterpolated(key Key, value float64) {
	p := f.params[key]
	if p == nil {
		return
	}
	if rot := f.rotations[key.Feature]; rot != nil && key.Index == 0 {
		rot.base = value
		if rot.active() {
			return
		}
	}

	target := p.transform(value)
	if !f.opts.Interpolation {
		p.profile.SetValue(target)
		return
	}
	if p.profile.IsTargetValid(target, f.opts.SkipThreshold) {
		p.profile.SetTarget(target)
	}
}

func (f *Fixture) applyPulse(ch *channel, route Route, fn *description.ChannelFunction, set *description.ChannelSet, value float64) {
	if f.params[route.Key] == nil {
		return
	}
	random := route.Behavior == BehaviorRandomPulse
	lo := math.Min(set.PhysicalFrom, set.PhysicalTo)
	hi := math.Max(set.PhysicalFrom, set.PhysicalTo)

	if ch.pulse == nil || ch.pulse.attribute != fn.Attribute {
		dutyCycle, timeOffset := f.pulseTiming(fn)
		ch.pulse = &pulseEffect{
			key:       route.Key,
			attribute: fn.Attribute,
			behavior:  route.Behavior,
			gen:       &pulse.Generator{},
			minFreq:   lo,
			maxFreq:   hi,
		}
		frequency := value
		if random {
			frequency = f.randomFrequency(lo, hi)
		}
		ch.pulse.gen.Configure(route.Effect, periodOf(frequency), dutyCycle, timeOffset)
		return
	}

	ch.pulse.minFreq, ch.pulse.maxFreq = lo, hi
	if !random {
		ch.pulse.gen.ChangePeriod(periodOf(value))
	}
}

// pulseTiming reads the duty cycle and time offset sub-physical units of a
// pulse function as fractions of the period.
func (f *Fixture) pulseTiming(fn *description.ChannelFunction) (float64, float64) {
	dutyCycle, timeOffset := 1.0, 0.0
	for _, unit := range fn.SubPhysicalUnits {
		if unit.Type != description.SubPhysicalDutyCycle && unit.Type != description.SubPhysicalTimeOffset {
			continue
		}
		if unit.PhysicalUnit != description.PhysicalUnitPercent {
			log.Printf("⚠️  fixture %s: %s of %s uses unit %q, expected %s",
				f.id, unit.Type, fn.Attribute, unit.PhysicalUnit, description.PhysicalUnitPercent)
			continue
		}
		fraction := (unit.PhysicalFrom + unit.PhysicalTo) / 200
		if unit.Type == description.SubPhysicalDutyCycle {
			dutyCycle = fraction
		} else {
			timeOffset = fraction
		}
	}
	return dutyCycle, timeOffset
}

func (f *Fixture) applyRandomStrobe(ch *channel, route Route, set *description.ChannelSet) {
	p := f.params[route.Key]
	if p == nil {
		return
	}
	lo := math.Min(set.PhysicalFrom, set.PhysicalTo)
	hi := math.Max(set.PhysicalFrom, set.PhysicalTo)
	if ch.strobe != nil && ch.strobe.attribute == ch.attribute {
		ch.strobe.minFreq, ch.strobe.maxFreq = lo, hi
		return
	}
	ch.strobe = &randomStrobe{key: route.Key, attribute: ch.attribute, minFreq: lo, maxFreq: hi}
	f.redrawStrobe(ch.strobe, p)
}

func (f *Fixture) redrawStrobe(s *randomStrobe, p *param) {
	frequency := f.randomFrequency(s.minFreq, s.maxFreq)
	p.profile.SetValue(frequency)
	s.remaining = periodOf(frequency)
}

func (f *Fixture) applyRotation(route Route, set *description.ChannelSet, value float64) {
	axis := route.Key.Feature
	rot := f.rotations[axis]
	p := f.params[Key{Feature: axis}]
	if rot == nil || p == nil {
		return
	}

	enabled := (set.PhysicalFrom != 0 || set.PhysicalTo != 0) && value != 0
	if !enabled {
		f.stopRotation(rot)
		return
	}

	dir := 1.0
	if value < 0 {
		dir = -1
	}
	period := 360 / math.Abs(value)
	rot.attribute = route.Attribute

	switch {
	case !rot.active():
		rot.gen.Configure(pulse.PulseOpen, period, 1, 0)
	case rot.dir != dir:
		// Mirror the phase so the target stays on the same angle, one
		// revolution away.
		phase := 1 - rot.gen.CurrentTime()/rot.gen.Period()
		if phase >= 1 {
			phase = 0
		} else {
			p.profile.Offset(360 * dir * p.invertSign())
		}
		rot.gen.Configure(pulse.PulseOpen, period, 1, phase)
	default:
		phase := rot.gen.CurrentTime() / rot.gen.Period()
		rot.gen.Configure(pulse.PulseOpen, period, 1, phase)
	}
	rot.dir = dir
}

// stopRotation returns the axis to its base position the short way round.
func (f *Fixture) stopRotation(rot *rotation) {
	if !rot.active() {
		return
	}
	if p := f.params[Key{Feature: rot.axis}]; p != nil {
		if rot.gen.Value(rot.gen.CurrentTime()) > 0.5 {
			p.profile.Offset(-360 * rot.dir * p.invertSign())
		}
		p.profile.SetTarget(p.transform(rot.base))
	}
	rot.dir = 0
	rot.attribute = ""
}

func (f *Fixture) applyUnsupported(ch *channel, raw int64, allowDefault bool) {
	def := ch.desc.DefaultValue()
	if raw == def || !allowDefault {
		if ch.primary != nil {
			if p := f.params[*ch.primary]; p != nil {
				p.profile.SetValue(0)
			}
		}
		return
	}
	f.dispatch(ch, def, false)
}

// Advance runs pulse effects and rotations, then every motion profile.
func (f *Fixture) Advance(deltaSeconds float64) {
	if !(deltaSeconds > 0) || math.IsInf(deltaSeconds, 0) {
		return
	}

	for _, ch := range f.channels {
		if ch.pulse != nil {
			f.advancePulse(ch.pulse, deltaSeconds)
		}
		if ch.strobe != nil {
			if p := f.params[ch.strobe.key]; p != nil {
				ch.strobe.remaining -= deltaSeconds
				if ch.strobe.remaining <= 0 {
					f.redrawStrobe(ch.strobe, p)
				}
			}
		}
	}

	for _, axis := range []Feature{FeaturePan, FeatureTilt} {
		rot := f.rotations[axis]
		if rot == nil || !rot.active() {
			continue
		}
		p := f.params[Key{Feature: axis}]
		v := rot.gen.Advance(deltaSeconds)
		if rot.gen.LoopedBack() {
			p.profile.Offset(-360 * rot.dir * p.invertSign())
		}
		p.profile.FollowTarget(p.transform(rot.base + v*rot.dir*360))
	}

	for _, key := range f.order {
		f.params[key].profile.Advance(deltaSeconds)
	}
}

func (f *Fixture) advancePulse(e *pulseEffect, dt float64) {
	p := f.params[e.key]
	if p == nil {
		return
	}
	v := e.gen.Advance(dt)
	if e.behavior == BehaviorRandomPulse && e.gen.LoopedBack() {
		e.gen.ChangePeriod(periodOf(f.randomFrequency(e.minFreq, e.maxFreq)))
	}
	out := p.scale(v)
	if p.interpolated && f.opts.Interpolation {
		p.profile.SetTarget(out)
		return
	}
	p.profile.SetValue(out)
}

func (f *Fixture) randomFrequency(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + f.rng.Float64()*(hi-lo)
}

func periodOf(frequency float64) float64 {
	if !(frequency > 0) {
		return 0
	}
	return 1 / frequency
}

// mapSet maps a raw value into the physical range of its channel set.
func mapSet(raw int64, set *description.ChannelSet, bytes int) float64 {
	return MapRangeClamped(float64(raw),
		float64(set.DMXFrom.Resolve(bytes)), float64(set.DMXTo),
		set.PhysicalFrom, set.PhysicalTo)
}

// MapRangeClamped maps v from [inFrom, inTo] onto [outFrom, outTo], clamping
// to the output range. An empty input range maps to outFrom.
func MapRangeClamped(v, inFrom, inTo, outFrom, outTo float64) float64 {
	if inTo == inFrom {
		return outFrom
	}
	t := (v - inFrom) / (inTo - inFrom)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return outFrom + t*(outTo-outFrom)
}

// ID returns the fixture ID.
func (f *Fixture) ID() string { return f.id }

// Name returns the fixture name.
func (f *Fixture) Name() string { return f.name }

// Universe returns the universe the fixture is patched in.
func (f *Fixture) Universe() int { return f.universe }

// Address returns the 1-based start address.
func (f *Fixture) Address() int { return f.address }

// Keys returns the driven parameters in a stable order.
func (f *Fixture) Keys() []Key {
	keys := make([]Key, len(f.order))
	copy(keys, f.order)
	return keys
}

// Profile returns the motion profile of a parameter.
func (f *Fixture) Profile(key Key) (*motion.Profile, bool) {
	p, ok := f.params[key]
	if !ok {
		return nil, false
	}
	return p.profile, true
}

// Value returns the current value of a parameter.
func (f *Fixture) Value(key Key) (float64, bool) {
	p, ok := f.params[key]
	if !ok {
		return 0, false
	}
	return p.profile.Value(), true
}

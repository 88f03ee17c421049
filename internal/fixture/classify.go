// Package fixture routes resolved DMX behaviors of a patched fixture into
// motion profiles, pulse effects and immediate values.
package fixture

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/bbernstein/lacylights-motion/internal/pulse"
)

// Feature is the physical part of a fixture an attribute drives.
type Feature int

const (
	FeatureNone Feature = iota
	FeaturePan
	FeatureTilt
	FeatureDimmer
	FeatureZoom
	FeatureFocus
	FeatureIris
	FeatureFrost
	FeatureShutter
	FeatureStrobe
	FeatureGobo
	FeatureColor
	FeatureCTO
	FeatureBladeA
	FeatureBladeB
	FeatureBladeRot
)

var featureNames = map[Feature]string{
	FeatureNone:     "none",
	FeaturePan:      "pan",
	FeatureTilt:     "tilt",
	FeatureDimmer:   "dimmer",
	FeatureZoom:     "zoom",
	FeatureFocus:    "focus",
	FeatureIris:     "iris",
	FeatureFrost:    "frost",
	FeatureShutter:  "shutter",
	FeatureStrobe:   "strobe",
	FeatureGobo:     "gobo",
	FeatureColor:    "color",
	FeatureCTO:      "cto",
	FeatureBladeA:   "blade_a",
	FeatureBladeB:   "blade_b",
	FeatureBladeRot: "blade_rot",
}

func (f Feature) String() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "unknown"
}

// Behavior is how a resolved DMX value reaches its feature.
type Behavior int

const (
	// BehaviorUnsupported re-applies the channel default.
	BehaviorUnsupported Behavior = iota
	// BehaviorInterpolated sets a motion profile target.
	BehaviorInterpolated
	// BehaviorImmediate sets the value without interpolation.
	BehaviorImmediate
	// BehaviorPulse runs a periodic pulse whose frequency is the physical value.
	BehaviorPulse
	// BehaviorRandomPulse runs a pulse whose frequency is redrawn every cycle
	// within the channel set's physical range.
	BehaviorRandomPulse
	// BehaviorRandomStrobe sets a strobe frequency redrawn every cycle.
	BehaviorRandomStrobe
	// BehaviorRotation spins pan or tilt continuously; the physical value is
	// the speed in degrees per second.
	BehaviorRotation
)

func (b Behavior) String() string {
	switch b {
	case BehaviorInterpolated:
		return "INTERPOLATED"
	case BehaviorImmediate:
		return "IMMEDIATE"
	case BehaviorPulse:
		return "PULSE"
	case BehaviorRandomPulse:
		return "RANDOM_PULSE"
	case BehaviorRandomStrobe:
		return "RANDOM_STROBE"
	case BehaviorRotation:
		return "ROTATION"
	default:
		return "UNSUPPORTED"
	}
}

// Key identifies a fixture parameter, e.g. pan or frost1.
type Key struct {
	Feature Feature
	Index   int
}

func (k Key) String() string {
	if k.Index > 0 {
		return k.Feature.String() + strconv.Itoa(k.Index)
	}
	return k.Feature.String()
}

// Route is the classification of a GDTF attribute.
type Route struct {
	Attribute string
	Key       Key
	Behavior  Behavior
	Effect    pulse.Effect
}

type routeTemplate struct {
	feature  Feature
	behavior Behavior
	effect   pulse.Effect
}

// Attribute patterns use GDTF's "(n)" notation for the wheel/part number.
var routeTable = map[string]routeTemplate{
	"Pan":        {FeaturePan, BehaviorInterpolated, 0},
	"Tilt":       {FeatureTilt, BehaviorInterpolated, 0},
	"PanRotate":  {FeaturePan, BehaviorRotation, 0},
	"TiltRotate": {FeatureTilt, BehaviorRotation, 0},

	"Dimmer":   {FeatureDimmer, BehaviorInterpolated, 0},
	"Zoom":     {FeatureZoom, BehaviorInterpolated, 0},
	"Focus(n)": {FeatureFocus, BehaviorInterpolated, 0},
	"CTO":      {FeatureCTO, BehaviorInterpolated, 0},

	"Iris":           {FeatureIris, BehaviorInterpolated, 0},
	"IrisPulse":      {FeatureIris, BehaviorPulse, pulse.Pulse},
	"IrisPulseOpen":  {FeatureIris, BehaviorPulse, pulse.PulseOpen},
	"IrisPulseClose": {FeatureIris, BehaviorPulse, pulse.PulseClose},

	"Frost(n)":           {FeatureFrost, BehaviorImmediate, 0},
	"Frost(n)Ramp":       {FeatureFrost, BehaviorPulse, pulse.Pulse},
	"Frost(n)PulseOpen":  {FeatureFrost, BehaviorPulse, pulse.PulseOpen},
	"Frost(n)PulseClose": {FeatureFrost, BehaviorPulse, pulse.PulseClose},

	"Shutter(n)":        {FeatureShutter, BehaviorImmediate, 0},
	"StrobeModeShutter": {FeatureShutter, BehaviorImmediate, 0},

	"Shutter(n)Strobe":       {FeatureStrobe, BehaviorImmediate, 0},
	"Shutter(n)StrobeEffect": {FeatureStrobe, BehaviorImmediate, 0},
	"StrobeFrequency":        {FeatureStrobe, BehaviorImmediate, 0},
	"StrobeModeStrobe":       {FeatureStrobe, BehaviorImmediate, 0},
	"StrobeModeEffect":       {FeatureStrobe, BehaviorImmediate, 0},
	"Shutter(n)StrobeRandom": {FeatureStrobe, BehaviorRandomStrobe, 0},
	"StrobeModeRandom":       {FeatureStrobe, BehaviorRandomStrobe, 0},

	"Shutter(n)StrobePulse":      {FeatureShutter, BehaviorPulse, pulse.Pulse},
	"Shutter(n)StrobePulseOpen":  {FeatureShutter, BehaviorPulse, pulse.PulseOpen},
	"Shutter(n)StrobePulseClose": {FeatureShutter, BehaviorPulse, pulse.PulseClose},
	"StrobeModePulse":            {FeatureShutter, BehaviorPulse, pulse.Pulse},
	"StrobeModePulseOpen":        {FeatureShutter, BehaviorPulse, pulse.PulseOpen},
	"StrobeModePulseClose":       {FeatureShutter, BehaviorPulse, pulse.PulseClose},

	"Shutter(n)StrobeRandomPulse":      {FeatureShutter, BehaviorRandomPulse, pulse.Pulse},
	"Shutter(n)StrobeRandomPulseOpen":  {FeatureShutter, BehaviorRandomPulse, pulse.PulseOpen},
	"Shutter(n)StrobeRandomPulseClose": {FeatureShutter, BehaviorRandomPulse, pulse.PulseClose},
	"StrobeModeRandomPulse":            {FeatureShutter, BehaviorRandomPulse, pulse.Pulse},
	"StrobeModeRandomPulseOpen":        {FeatureShutter, BehaviorRandomPulse, pulse.PulseOpen},
	"StrobeModeRandomPulseClose":       {FeatureShutter, BehaviorRandomPulse, pulse.PulseClose},

	"Gobo(n)":  {FeatureGobo, BehaviorImmediate, 0},
	"Color(n)": {FeatureColor, BehaviorImmediate, 0},

	"Blade(n)A":   {FeatureBladeA, BehaviorInterpolated, 0},
	"Blade(n)B":   {FeatureBladeB, BehaviorInterpolated, 0},
	"Blade(n)Rot": {FeatureBladeRot, BehaviorInterpolated, 0},
}

var numberPattern = regexp.MustCompile(`[0-9]+`)

// Classify maps a GDTF attribute name to the feature and behavior it drives.
// Unknown attributes classify as BehaviorUnsupported.
func Classify(attribute string) Route {
	route := Route{Attribute: attribute}
	name := strings.TrimSpace(attribute)

	index := 0
	pattern := numberPattern.ReplaceAllStringFunc(name, func(digits string) string {
		if index == 0 {
			index, _ = strconv.Atoi(digits)
		}
		return "(n)"
	})

	tmpl, ok := routeTable[pattern]
	if !ok {
		return route
	}
	if !strings.Contains(pattern, "(n)") {
		index = 0
		// StrobeMode* and StrobeFrequency drive the first shutter.
		if tmpl.feature == FeatureShutter || tmpl.feature == FeatureStrobe {
			index = 1
		}
	}
	route.Key = Key{Feature: tmpl.feature, Index: index}
	route.Behavior = tmpl.behavior
	route.Effect = tmpl.effect
	return route
}

// Supported reports whether the route drives a feature.
func (r Route) Supported() bool {
	return r.Behavior != BehaviorUnsupported
}

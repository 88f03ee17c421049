// Package description holds already-parsed GDTF fixture descriptions: the DMX
// modes of a fixture, their channels, channel functions and channel sets.
// Descriptions are stored and exchanged as YAML documents.
package description

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDescription is returned when a description fails validation.
var ErrInvalidDescription = errors.New("invalid fixture description")

// PhysicalUnitPercent is the only unit accepted for pulse sub-physical units.
const PhysicalUnitPercent = "Percent"

// Sub-physical unit types used by pulse effects.
const (
	SubPhysicalDutyCycle  = "DutyCycle"
	SubPhysicalTimeOffset = "TimeOffset"
)

// Fixture is a fixture type description.
type Fixture struct {
	Name          string `yaml:"name" json:"name"`
	Manufacturer  string `yaml:"manufacturer" json:"manufacturer"`
	FixtureTypeID string `yaml:"fixtureTypeId,omitempty" json:"fixtureTypeId,omitempty"`
	Modes         []Mode `yaml:"modes" json:"modes"`
}

// Mode is a DMX mode: the channel layout used when the fixture is patched.
type Mode struct {
	Name     string       `yaml:"name" json:"name"`
	Channels []DMXChannel `yaml:"channels" json:"channels"`
}

// DMXChannel is a channel occupying one to four consecutive DMX addresses.
type DMXChannel struct {
	Name string `yaml:"name" json:"name"`
	// Offset lists the 1-based addresses relative to the patch start address,
	// most significant byte first.
	Offset    []int             `yaml:"offset" json:"offset"`
	Default   DMXValue          `yaml:"default" json:"default"`
	Functions []ChannelFunction `yaml:"functions" json:"functions"`
}

// ChannelFunction is a DMX range of a channel driving one attribute.
type ChannelFunction struct {
	Name             string            `yaml:"name" json:"name"`
	Attribute        string            `yaml:"attribute" json:"attribute"`
	DMXFrom          DMXValue          `yaml:"dmxFrom" json:"dmxFrom"`
	PhysicalFrom     float64           `yaml:"physicalFrom" json:"physicalFrom"`
	PhysicalTo       float64           `yaml:"physicalTo" json:"physicalTo"`
	RealFade         float64           `yaml:"realFade,omitempty" json:"realFade,omitempty"`
	RealAcceleration float64           `yaml:"realAcceleration,omitempty" json:"realAcceleration,omitempty"`
	SubPhysicalUnits []SubPhysicalUnit `yaml:"subPhysicalUnits,omitempty" json:"subPhysicalUnits,omitempty"`
	Sets             []ChannelSet      `yaml:"sets,omitempty" json:"sets,omitempty"`

	// DMXTo is derived from the next function (or the channel maximum).
	DMXTo int64 `yaml:"-" json:"dmxTo"`
}

// ChannelSet is a named sub-range of a channel function.
type ChannelSet struct {
	Name           string   `yaml:"name" json:"name"`
	DMXFrom        DMXValue `yaml:"dmxFrom" json:"dmxFrom"`
	PhysicalFrom   float64  `yaml:"physicalFrom" json:"physicalFrom"`
	PhysicalTo     float64  `yaml:"physicalTo" json:"physicalTo"`
	WheelSlotIndex int      `yaml:"wheelSlotIndex,omitempty" json:"wheelSlotIndex,omitempty"`

	// DMXTo is derived from the next set (or the function end).
	DMXTo int64 `yaml:"-" json:"dmxTo"`
}

// SubPhysicalUnit describes a secondary physical quantity of an attribute
// (duty cycle, time offset).
type SubPhysicalUnit struct {
	Type         string  `yaml:"type" json:"type"`
	PhysicalUnit string  `yaml:"physicalUnit" json:"physicalUnit"`
	PhysicalFrom float64 `yaml:"physicalFrom" json:"physicalFrom"`
	PhysicalTo   float64 `yaml:"physicalTo" json:"physicalTo"`
}

// DMXValue is a GDTF DMX value written as "value/bytes", e.g. "128/1" or
// "32768/2". A bare integer is read as a one byte value.
type DMXValue struct {
	Value int64
	Bytes int
}

// ParseDMXValue parses a "value/bytes" literal.
func ParseDMXValue(s string) (DMXValue, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DMXValue{}, fmt.Errorf("empty DMX value")
	}

	valuePart, bytesPart, found := strings.Cut(s, "/")
	bytes := 1
	if found {
		b, err := strconv.Atoi(strings.TrimSpace(bytesPart))
		if err != nil {
			return DMXValue{}, fmt.Errorf("invalid DMX value %q: %w", s, err)
		}
		bytes = b
	}
	if bytes < 1 || bytes > 4 {
		return DMXValue{}, fmt.Errorf("invalid DMX value %q: byte count must be 1-4", s)
	}

	value, err := strconv.ParseInt(strings.TrimSpace(valuePart), 10, 64)
	if err != nil {
		return DMXValue{}, fmt.Errorf("invalid DMX value %q: %w", s, err)
	}
	if value < 0 || value > MaxValue(bytes) {
		return DMXValue{}, fmt.Errorf("invalid DMX value %q: out of range", s)
	}
	return DMXValue{Value: value, Bytes: bytes}, nil
}

// String formats the value as "value/bytes".
func (v DMXValue) String() string {
	bytes := v.Bytes
	if bytes == 0 {
		bytes = 1
	}
	return fmt.Sprintf("%d/%d", v.Value, bytes)
}

// Resolve scales the value to a channel of the given byte width, the way
// GDTF shifts "1/1" to 256 on a 16 bit channel.
func (v DMXValue) Resolve(bytes int) int64 {
	from := v.Bytes
	if from == 0 {
		from = 1
	}
	shift := (bytes - from) * 8
	switch {
	case shift > 0:
		return v.Value << uint(shift)
	case shift < 0:
		return v.Value >> uint(-shift)
	default:
		return v.Value
	}
}

// UnmarshalYAML accepts "value/bytes" strings and plain integers.
func (v *DMXValue) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: DMX value must be a scalar", node.Line)
	}
	parsed, err := ParseDMXValue(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*v = parsed
	return nil
}

// MarshalYAML writes the "value/bytes" form.
func (v DMXValue) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// MarshalText writes the "value/bytes" form for JSON encoding.
func (v DMXValue) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// MaxValue returns the largest value a channel of the given byte width can
// carry (0xFF, 0xFFFF, 0xFFFFFF or 0xFFFFFFFF).
func MaxValue(bytes int) int64 {
	if bytes < 1 {
		bytes = 1
	}
	if bytes > 4 {
		bytes = 4
	}
	return int64(1)<<(8*uint(bytes)) - 1
}

// Parse decodes and validates a YAML description, deriving the DMX ranges of
// every function and set.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f.resolveRanges()
	return &f, nil
}

// LoadFile reads and parses a YAML description file.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture description %s: %w", path, err)
	}
	return Parse(data)
}

// Marshal encodes the description as YAML.
func (f *Fixture) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode fixture description: %w", err)
	}
	return data, nil
}

// Mode returns the named mode, or the first mode when name is empty.
func (f *Fixture) Mode(name string) (*Mode, bool) {
	if len(f.Modes) == 0 {
		return nil, false
	}
	if name == "" {
		return &f.Modes[0], true
	}
	for i := range f.Modes {
		if f.Modes[i].Name == name {
			return &f.Modes[i], true
		}
	}
	return nil, false
}

// Footprint returns the number of DMX addresses the mode occupies.
func (m *Mode) Footprint() int {
	footprint := 0
	for _, ch := range m.Channels {
		for _, offset := range ch.Offset {
			if offset > footprint {
				footprint = offset
			}
		}
	}
	return footprint
}

// Bytes returns the byte width of the channel.
func (c *DMXChannel) Bytes() int {
	return len(c.Offset)
}

// DefaultValue returns the channel default resolved to the channel width.
func (c *DMXChannel) DefaultValue() int64 {
	return c.Default.Resolve(c.Bytes())
}

// Validate checks the structural rules the lookup trees rely on.
func (f *Fixture) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: fixture name is required", ErrInvalidDescription)
	}
	if len(f.Modes) == 0 {
		return fmt.Errorf("%w: fixture %s has no modes", ErrInvalidDescription, f.Name)
	}
	for _, mode := range f.Modes {
		if err := mode.validate(); err != nil {
			return fmt.Errorf("%w: fixture %s mode %s: %v", ErrInvalidDescription, f.Name, mode.Name, err)
		}
	}
	return nil
}

func (m *Mode) validate() error {
	used := make(map[int]string)
	for _, ch := range m.Channels {
		if len(ch.Offset) < 1 || len(ch.Offset) > 4 {
			return fmt.Errorf("channel %s must span 1-4 addresses, has %d", ch.Name, len(ch.Offset))
		}
		for _, offset := range ch.Offset {
			if offset < 1 || offset > 512 {
				return fmt.Errorf("channel %s offset %d outside 1-512", ch.Name, offset)
			}
			if other, taken := used[offset]; taken {
				return fmt.Errorf("channel %s offset %d already used by %s", ch.Name, offset, other)
			}
			used[offset] = ch.Name
		}
		if len(ch.Functions) == 0 {
			return fmt.Errorf("channel %s has no functions", ch.Name)
		}

		bytes := ch.Bytes()
		prev := int64(-1)
		for i, fn := range ch.Functions {
			from := fn.DMXFrom.Resolve(bytes)
			if i == 0 && from != 0 {
				return fmt.Errorf("channel %s first function must start at 0", ch.Name)
			}
			if from <= prev {
				return fmt.Errorf("channel %s function %s DMXFrom not ascending", ch.Name, fn.Name)
			}
			if from > MaxValue(bytes) {
				return fmt.Errorf("channel %s function %s starts beyond the channel range", ch.Name, fn.Name)
			}
			prev = from

			end := MaxValue(bytes) + 1
			if i+1 < len(ch.Functions) {
				end = ch.Functions[i+1].DMXFrom.Resolve(bytes)
			}

			setPrev := int64(-1)
			for j, set := range fn.Sets {
				setFrom := set.DMXFrom.Resolve(bytes)
				if j == 0 && setFrom != from {
					return fmt.Errorf("channel %s function %s first set must start at the function start", ch.Name, fn.Name)
				}
				if setFrom <= setPrev {
					return fmt.Errorf("channel %s function %s set %s DMXFrom not ascending", ch.Name, fn.Name, set.Name)
				}
				if setFrom >= end {
					return fmt.Errorf("channel %s function %s set %s starts beyond the function", ch.Name, fn.Name, set.Name)
				}
				setPrev = setFrom
			}
		}
	}
	return nil
}

// resolveRanges fills DMXTo on every function and set, and gives functions
// without sets a single set spanning the whole function.
func (f *Fixture) resolveRanges() {
	for mi := range f.Modes {
		for ci := range f.Modes[mi].Channels {
			ch := &f.Modes[mi].Channels[ci]
			bytes := ch.Bytes()
			max := MaxValue(bytes)

			for fi := range ch.Functions {
				fn := &ch.Functions[fi]
				if fi+1 < len(ch.Functions) {
					fn.DMXTo = ch.Functions[fi+1].DMXFrom.Resolve(bytes)
				} else {
					fn.DMXTo = max
				}

				if len(fn.Sets) == 0 {
					fn.Sets = []ChannelSet{{
						Name:         fn.Name,
						DMXFrom:      fn.DMXFrom,
						PhysicalFrom: fn.PhysicalFrom,
						PhysicalTo:   fn.PhysicalTo,
					}}
				}
				for si := range fn.Sets {
					set := &fn.Sets[si]
					if si+1 < len(fn.Sets) {
						set.DMXTo = fn.Sets[si+1].DMXFrom.Resolve(bytes)
					} else {
						set.DMXTo = fn.DMXTo
					}
				}
			}
		}
	}
}

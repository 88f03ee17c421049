package channeltree

import "github.com/bbernstein/lacylights-motion/internal/description"

// functionEntry is a channel function with the tree of its channel sets.
type functionEntry struct {
	function *description.ChannelFunction
	sets     *Tree[*description.ChannelSet]
}

// ChannelTree is the two-level lookup of a DMX channel: channel function
// first, then channel set within that function.
type ChannelTree struct {
	bytes     int
	functions *Tree[functionEntry]
}

// NewChannelTree builds the lookup for a channel whose function and set
// ranges have been resolved.
func NewChannelTree(ch *description.DMXChannel) *ChannelTree {
	t := &ChannelTree{
		bytes:     ch.Bytes(),
		functions: &Tree[functionEntry]{},
	}
	for i := range ch.Functions {
		t.insertFunction(&ch.Functions[i])
	}
	return t
}

func (t *ChannelTree) insertFunction(fn *description.ChannelFunction) {
	from := fn.DMXFrom.Resolve(t.bytes)
	entry := functionEntry{function: fn, sets: &Tree[*description.ChannelSet]{}}

	if len(fn.Sets) == 0 {
		synthetic := &description.ChannelSet{
			Name:         fn.Name,
			DMXFrom:      fn.DMXFrom,
			DMXTo:        fn.DMXTo,
			PhysicalFrom: fn.PhysicalFrom,
			PhysicalTo:   fn.PhysicalTo,
		}
		entry.sets.Insert(from, fn.DMXTo, synthetic)
	}
	for i := range fn.Sets {
		set := &fn.Sets[i]
		entry.sets.Insert(set.DMXFrom.Resolve(t.bytes), set.DMXTo, set)
	}
	t.functions.Insert(from, fn.DMXTo, entry)
}

// Lookup returns the function and set active for value. ok is false when the
// value falls outside every range; callers ignore such updates.
func (t *ChannelTree) Lookup(value int64) (*description.ChannelFunction, *description.ChannelSet, bool) {
	entry, ok := t.functions.Lookup(value)
	if !ok {
		return nil, nil, false
	}
	set, ok := entry.sets.Lookup(value)
	if !ok {
		return nil, nil, false
	}
	return entry.function, set, true
}

// IsEmpty reports whether the channel has no functions.
func (t *ChannelTree) IsEmpty() bool { return t.functions.IsEmpty() }

// Bytes returns the byte width of the channel.
func (t *ChannelTree) Bytes() int { return t.bytes }

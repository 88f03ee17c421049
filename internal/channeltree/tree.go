// Package channeltree resolves raw DMX values to the channel function and
// channel set active for that value.
package channeltree

// Range is a half-open DMX range [From, To) carrying a payload.
type Range[T any] struct {
	From    int64
	To      int64
	Payload T
}

type node[T any] struct {
	rng   Range[T]
	left  *node[T]
	right *node[T]
}

// Tree is an unbalanced binary search tree over non-overlapping ranges.
// Ranges are inserted once at setup; insertion order determines the shape.
type Tree[T any] struct {
	root *node[T]
	size int
}

// Build inserts the ranges in order.
func Build[T any](ranges []Range[T]) *Tree[T] {
	t := &Tree[T]{}
	for _, r := range ranges {
		t.Insert(r.From, r.To, r.Payload)
	}
	return t
}

// Insert adds the range [from, to).
func (t *Tree[T]) Insert(from, to int64, payload T) {
	n := &node[T]{rng: Range[T]{From: from, To: to, Payload: payload}}
	t.size++
	if t.root == nil {
		t.root = n
		return
	}

	cur := t.root
	for {
		if from > cur.rng.From {
			if cur.right == nil {
				cur.right = n
				return
			}
			cur = cur.right
		} else {
			if cur.left == nil {
				cur.left = n
				return
			}
			cur = cur.left
		}
	}
}

// Lookup returns the payload of the range containing value. A range ending
// on 0xFF, 0xFFFF, 0xFFFFFF or 0xFFFFFFFF also contains its end, so the top
// value of a channel always resolves.
func (t *Tree[T]) Lookup(value int64) (T, bool) {
	var (
		fallback    T
		hasFallback bool
	)

	cur := t.root
	for cur != nil {
		r := cur.rng
		if r.From <= value && value < r.To {
			return r.Payload, true
		}
		if value == r.To && r.From <= value && isMaxLiteral(r.To) {
			fallback, hasFallback = r.Payload, true
		}
		if r.To <= value {
			cur = cur.right
		} else {
			cur = cur.left
		}
	}
	return fallback, hasFallback
}

// Len returns the number of ranges in the tree.
func (t *Tree[T]) Len() int { return t.size }

// IsEmpty reports whether the tree has no ranges.
func (t *Tree[T]) IsEmpty() bool { return t.root == nil }

func isMaxLiteral(v int64) bool {
	return v == 0xFF || v == 0xFFFF || v == 0xFFFFFF || v == 0xFFFFFFFF
}

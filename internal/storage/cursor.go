package storage

import "github.com/google/btree"

// Cursor tracks an iteration position inside a transaction's private
// tree view. It has no independent existence once the owning txn closes
// (spec.md §4.7.3: "a cursor outlives only its owning transaction").
type Cursor struct {
	tree  *btree.BTreeG[item]
	pos   item
	valid bool
}

// NewCursor allocates a cursor positioned nowhere, tied to t's view, and
// returns its opaque id alongside it.
func (t *Txn) NewCursor() ([8]byte, *Cursor) {
	c := &Cursor{tree: t.tree}
	id := t.NewCursorID()
	t.cursors[cursorKey(id)] = c
	return id, c
}

// Cursor looks up a previously allocated cursor by its opaque id. The
// bool is false if the id is unknown or belongs to a different txn (or
// the txn has since closed) — storagefam reports this as UnknownKey.
func (t *Txn) Cursor(id [8]byte) (*Cursor, bool) {
	c, ok := t.cursors[cursorKey(id)]
	return c, ok
}

func cursorKey(id [8]byte) uint64 {
	return uint64(id[0])<<56 | uint64(id[1])<<48 | uint64(id[2])<<40 | uint64(id[3])<<32 |
		uint64(id[4])<<24 | uint64(id[5])<<16 | uint64(id[6])<<8 | uint64(id[7])
}

// Current returns the cursor's current position, if any.
func (c *Cursor) Current() (key, value []byte, ok bool) {
	if !c.valid {
		return nil, nil, false
	}
	return c.pos.key, c.pos.value, true
}

// First positions at the smallest key in the tree.
func (c *Cursor) First() (key, value []byte, ok bool) {
	min, found := c.tree.Min()
	if !found {
		c.valid = false
		return nil, nil, false
	}
	c.pos, c.valid = min, true
	return min.key, min.value, true
}

// Last positions at the largest key in the tree.
func (c *Cursor) Last() (key, value []byte, ok bool) {
	max, found := c.tree.Max()
	if !found {
		c.valid = false
		return nil, nil, false
	}
	c.pos, c.valid = max, true
	return max.key, max.value, true
}

// Next advances to the smallest key strictly greater than the current
// position. If the cursor has no current position, behaves like First.
func (c *Cursor) Next() (key, value []byte, ok bool) {
	if !c.valid {
		return c.First()
	}
	var next item
	found := false
	c.tree.AscendGreaterOrEqual(c.pos, func(it item) bool {
		if less(c.pos, it) {
			next, found = it, true
			return false
		}
		return true
	})
	if !found {
		c.valid = false
		return nil, nil, false
	}
	c.pos, c.valid = next, true
	return next.key, next.value, true
}

// Prev retreats to the largest key strictly less than the current
// position. If the cursor has no current position, behaves like Last.
func (c *Cursor) Prev() (key, value []byte, ok bool) {
	if !c.valid {
		return c.Last()
	}
	var prev item
	found := false
	c.tree.DescendLessOrEqual(c.pos, func(it item) bool {
		if less(it, c.pos) {
			prev, found = it, true
			return false
		}
		return true
	})
	if !found {
		c.valid = false
		return nil, nil, false
	}
	c.pos, c.valid = prev, true
	return prev.key, prev.value, true
}

// Seek positions at the least key >= key.
func (c *Cursor) Seek(key []byte) (k, value []byte, ok bool) {
	var found item
	has := false
	c.tree.AscendGreaterOrEqual(item{key: key}, func(it item) bool {
		found, has = it, true
		return false
	})
	if !has {
		c.valid = false
		return nil, nil, false
	}
	c.pos, c.valid = found, true
	return found.key, found.value, true
}

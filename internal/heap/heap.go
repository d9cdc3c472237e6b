// Package heap implements the per-environment append-only byte allocator.
//
// An EnvHeap hands out byte slices that never move for the lifetime of the
// heap: allocation only ever bumps a cursor within the current chunk or
// appends a brand new chunk. Nothing is ever copied, resized in place, or
// freed before the whole heap is dropped.
package heap

// minChunkCap is the capacity given to the very first chunk.
const minChunkCap = 4096

// EnvHeap is a bump allocator across a growing list of fixed-capacity
// chunks. Addresses returned by Alloc remain valid and unchanged until the
// EnvHeap itself is discarded.
type EnvHeap struct {
	chunks []*chunk
}

type chunk struct {
	buf  []byte
	used int
}

// New creates an empty heap. The first chunk is allocated lazily on first
// use so that an EnvHeap that is never written to costs nothing.
func New() *EnvHeap {
	return &EnvHeap{}
}

// Alloc returns a fresh, zeroed slice of length n whose address is stable
// for the life of the heap. It finds the first chunk with enough spare
// capacity; if none fits, it appends a new chunk sized to fit n.
func (h *EnvHeap) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	for _, c := range h.chunks {
		if c.used+n <= len(c.buf) {
			s := c.buf[c.used : c.used+n : c.used+n]
			c.used += n
			return s
		}
	}
	cap := minChunkCap
	if len(h.chunks) > 0 {
		cap = len(h.chunks[len(h.chunks)-1].buf)
	}
	if n > cap {
		cap = n
	}
	c := &chunk{buf: make([]byte, cap)}
	h.chunks = append(h.chunks, c)
	s := c.buf[0:n:n]
	c.used = n
	return s
}

// AllocCopy allocates len(src) bytes and copies src into them, returning the
// stable-address copy. This is the primitive used whenever a byte slice
// obtained from a transient source (a transaction read, a parsed literal)
// must outlive that source.
func (h *EnvHeap) AllocCopy(src []byte) []byte {
	dst := h.Alloc(len(src))
	copy(dst, src)
	return dst
}

// Chunks reports the number of chunks currently allocated, for tests and
// diagnostics.
func (h *EnvHeap) Chunks() int {
	return len(h.chunks)
}

// Package hlc implements the Hybrid Logical Clock oracle: a monotonic
// timestamp source whose state is persisted to non-volatile storage on
// every issuance (spec.md §4.6.5, §9 Design Notes).
//
// Layout: a Stamp serialises to exactly 16 bytes: an 8-byte big-endian wall
// time (milliseconds since epoch), a 4-byte big-endian logical counter, and
// a 4-byte node/randomness tag that breaks ties between concurrent
// oracles. Because every field is big-endian and fixed-width, byte-wise
// lexicographic comparison of two Stamps equals their (wall, count, node)
// tuple comparison.
package hlc

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const Size = 16

// Stamp is one HLC timestamp.
type Stamp struct {
	Wall  uint64
	Count uint32
	Node  uint32
}

// Bytes serialises the stamp to its 16-byte wire form.
func (s Stamp) Bytes() []byte {
	buf := make([]byte, Size)
	binary.BigEndian.PutUint64(buf[0:8], s.Wall)
	binary.BigEndian.PutUint32(buf[8:12], s.Count)
	binary.BigEndian.PutUint32(buf[12:16], s.Node)
	return buf
}

// Parse decodes a 16-byte wire form into a Stamp.
func Parse(b []byte) (Stamp, error) {
	if len(b) != Size {
		return Stamp{}, fmt.Errorf("hlc: stamp must be %d bytes, got %d", Size, len(b))
	}
	return Stamp{
		Wall:  binary.BigEndian.Uint64(b[0:8]),
		Count: binary.BigEndian.Uint32(b[8:12]),
		Node:  binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// Oracle issues and observes Stamps, guarded by a single mutex and backed
// by an NVMem scratchpad that is rewritten on every successful Now/Observe
// call — the original engine persists on every hlc() call, not only on
// observe, and this preserves that.
type Oracle struct {
	mu     sync.Mutex
	last   Stamp
	nvmem  NVMem
	nodeID uint32
	now    func() time.Time
	log    zerolog.Logger
}

// Option configures an Oracle.
type Option func(*Oracle)

// WithLogger attaches structured logging.
func WithLogger(l zerolog.Logger) Option { return func(o *Oracle) { o.log = l } }

// WithNowFunc overrides the wall-clock source, for deterministic tests.
func WithNowFunc(f func() time.Time) Option { return func(o *Oracle) { o.now = f } }

// New creates an Oracle persisting to nvmem, tagged with nodeID to break
// ties between concurrent oracles sharing no other coordination.
func New(nvmem NVMem, nodeID uint32, opts ...Option) *Oracle {
	o := &Oracle{
		nvmem:  nvmem,
		nodeID: nodeID,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if last, err := loadStamp(nvmem); err == nil {
		o.last = last
	}
	return o
}

// Now issues a fresh, monotonically increasing Stamp and persists it.
func (o *Oracle) Now() Stamp {
	o.mu.Lock()
	defer o.mu.Unlock()

	wall := uint64(o.now().UnixMilli())
	if wall > o.last.Wall {
		o.last = Stamp{Wall: wall, Count: 0, Node: o.nodeID}
	} else {
		o.last = Stamp{Wall: o.last.Wall, Count: o.last.Count + 1, Node: o.nodeID}
	}
	o.persist()
	return o.last
}

// Observe merges an externally-observed Stamp into the oracle's state and
// returns a fresh Stamp that dominates both. It persists only if the merge
// and subsequent encode succeed.
func (o *Oracle) Observe(ext Stamp) (Stamp, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	wall := uint64(o.now().UnixMilli())
	merged := o.last
	if ext.Wall > merged.Wall {
		merged.Wall = ext.Wall
	}
	if wall > merged.Wall {
		merged = Stamp{Wall: wall, Count: 0, Node: o.nodeID}
	} else if ext.Wall == merged.Wall && ext.Count >= merged.Count {
		merged.Count = ext.Count + 1
	} else {
		merged.Count++
	}
	merged.Node = o.nodeID
	o.last = merged
	if err := o.writeNVMem(); err != nil {
		return Stamp{}, err
	}
	return o.last, nil
}

func (o *Oracle) persist() {
	if err := o.writeNVMem(); err != nil {
		o.log.Warn().Err(err).Msg("hlc: failed to persist scratchpad")
	}
}

func (o *Oracle) writeNVMem() error {
	if o.nvmem == nil {
		return nil
	}
	if _, err := o.nvmem.Seek(0, 0); err != nil {
		return err
	}
	_, err := o.nvmem.Write(o.last.Bytes())
	return err
}

func loadStamp(nvmem NVMem) (Stamp, error) {
	if nvmem == nil {
		return Stamp{}, fmt.Errorf("hlc: no nvmem")
	}
	buf := make([]byte, Size)
	if _, err := nvmem.Seek(0, 0); err != nil {
		return Stamp{}, err
	}
	n, err := nvmem.Read(buf)
	if err != nil || n != Size {
		return Stamp{}, fmt.Errorf("hlc: scratchpad not initialised")
	}
	return Parse(buf)
}

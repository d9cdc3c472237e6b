// Package vm implements the per-program execution context: the value
// stack, program continuation, dictionary, try/catch frames, and the
// pub/sub delivery capability described in spec.md §3-§4.4.
package vm

import (
	"github.com/google/uuid"

	"github.com/pumpkindb/pumpkindb/internal/heap"
)

// ID identifies one running environment.
type ID = uuid.UUID

// NewID mints a fresh environment id.
func NewID() ID { return uuid.New() }

// DeliveryFunc is the capability an Env carries for the pub/sub handler to
// invoke when one of the env's subscriptions receives a message.
type DeliveryFunc func(topic, message []byte)

// DictMode selects flat (single map) or scoped (stack of maps) dictionary
// behaviour. The original engine gates scoped mode behind a compile-time
// feature; here it is a runtime option, defaulting to flat.
type DictMode int

const (
	DictFlat DictMode = iota
	DictScoped
)

// Env is the runtime state of one executing program.
type Env struct {
	ID ID

	stack   [][]byte
	program [][]byte

	dictMode DictMode
	dict     []map[string][]byte // topmost (dict[len-1]) is the writable scope

	TryDepth int
	Aborting []*ProgramError

	heap     *heap.EnvHeap
	delivery DeliveryFunc

	// Features reports which optional engine features are compiled in,
	// queried by the core family's FEATURE? instruction.
	Features map[string]bool
}

// New creates an Env ready to run program as its initial continuation.
func New(id ID, program []byte, mode DictMode) *Env {
	e := &Env{
		ID:       id,
		heap:     heap.New(),
		dictMode: mode,
		dict:     []map[string][]byte{{}},
		Features: map[string]bool{
			"scoped_dictionary": mode == DictScoped,
		},
	}
	if len(program) > 0 {
		e.program = append(e.program, e.heap.AllocCopy(program))
	}
	return e
}

// --- value stack ---

// Push places v on top of the value stack.
func (e *Env) Push(v []byte) {
	e.stack = append(e.stack, v)
}

// Pop removes and returns the top of the value stack, or (nil, false) if
// empty.
func (e *Env) Pop() ([]byte, bool) {
	n := len(e.stack)
	if n == 0 {
		return nil, false
	}
	v := e.stack[n-1]
	e.stack = e.stack[:n-1]
	return v, true
}

// Top returns the top of the value stack without removing it.
func (e *Env) Top() ([]byte, bool) {
	n := len(e.stack)
	if n == 0 {
		return nil, false
	}
	return e.stack[n-1], true
}

// Depth reports the current value stack depth.
func (e *Env) Depth() int { return len(e.stack) }

// StackCopy returns a snapshot of the value stack, bottom-to-top, for
// reporting back to the caller on termination or failure.
func (e *Env) StackCopy() [][]byte {
	out := make([][]byte, len(e.stack))
	copy(out, e.stack)
	return out
}

// --- program continuation ---

// PushProgram pushes a bytecode fragment onto the continuation stack; it
// becomes the next fragment executed.
func (e *Env) PushProgram(p []byte) {
	if len(p) == 0 {
		return
	}
	e.program = append(e.program, p)
}

// PopProgram removes and returns the top continuation fragment.
func (e *Env) PopProgram() ([]byte, bool) {
	n := len(e.program)
	if n == 0 {
		return nil, false
	}
	p := e.program[n-1]
	e.program = e.program[:n-1]
	return p, true
}

// ProgramEmpty reports whether the continuation stack is exhausted, the
// scheduler's termination condition.
func (e *Env) ProgramEmpty() bool {
	for i := len(e.program) - 1; i >= 0; i-- {
		if len(e.program[i]) > 0 {
			return false
		}
	}
	return true
}

// --- heap ---

// Alloc hands out a stable-address slice of length n from the env's heap.
func (e *Env) Alloc(n int) []byte { return e.heap.Alloc(n) }

// AllocCopy copies src into a stable-address slice from the env's heap.
func (e *Env) AllocCopy(src []byte) []byte { return e.heap.AllocCopy(src) }

// --- delivery callback ---

func (e *Env) SetDeliveryCallback(cb DeliveryFunc) { e.delivery = cb }

func (e *Env) DeliveryCallback() (DeliveryFunc, bool) {
	if e.delivery == nil {
		return nil, false
	}
	return e.delivery, true
}

// --- dictionary ---

// Define binds name to definition in the current (topmost) dictionary
// scope.
func (e *Env) Define(name string, definition []byte) {
	e.dict[len(e.dict)-1][name] = definition
}

// Lookup walks dictionary scopes top-down (there is only one scope in flat
// mode) and returns the first binding found.
func (e *Env) Lookup(name string) ([]byte, bool) {
	for i := len(e.dict) - 1; i >= 0; i-- {
		if v, ok := e.dict[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// PushScope clones the topmost dictionary scope onto a new frame, used by
// EVAL/SCOPED. Only meaningful in DictScoped mode, but harmless otherwise.
func (e *Env) PushScope() {
	if e.dictMode != DictScoped {
		return
	}
	top := e.dict[len(e.dict)-1]
	clone := make(map[string][]byte, len(top))
	for k, v := range top {
		clone[k] = v
	}
	e.dict = append(e.dict, clone)
}

// PopScope discards the topmost dictionary scope, used by the internal
// SCOPE_END marker.
func (e *Env) PopScope() {
	if len(e.dict) > 1 {
		e.dict = e.dict[:len(e.dict)-1]
	}
}

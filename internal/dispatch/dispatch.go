// Package dispatch composes instruction-family handlers into the fixed
// chain described in spec.md §4.6: core, stack, queue, binaries, numbers,
// storage, hash, hlc, json, msg, uuid, string. Each handler decides
// independently whether a token is its own; the first one that claims it
// wins.
package dispatch

import (
	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

// Instruction is the decoded token handed to a family's Handle method: a
// named instruction, possibly internal (continuation-marker) only.
type Instruction struct {
	Name     []byte
	Internal bool
}

// FromToken adapts a parsed bytecode.Token into an Instruction. Panics if
// given a data token — callers must push data tokens directly onto the
// stack without going through dispatch.
func FromToken(t bytecode.Token) Instruction {
	if t.Kind != bytecode.KindInstruction {
		panic("dispatch: data token passed to FromToken")
	}
	return Instruction{Name: t.Bytes, Internal: t.Internal}
}

// Handler is one instruction-family module.
type Handler interface {
	// Init is called once when an Env is scheduled, before any pass runs.
	Init(env *vm.Env)
	// Done is called once when the Env terminates, successfully or not.
	Done(env *vm.Env)
	// Handle executes instr if this handler owns it. It returns:
	//   - nil on success
	//   - vm.ErrUnhandled if instr does not belong to this family
	//   - vm.ErrReschedule if the env must be requeued unchanged
	//   - *vm.ProgramError for any other domain failure
	Handle(env *vm.Env, instr Instruction) error
}

// Dispatcher runs a fixed, ordered set of handlers, per spec.md §4.6.
type Dispatcher struct {
	handlers []Handler
}

// New builds a Dispatcher over handlers in the given order. Callers should
// pass family handlers in the canonical order: core, stack, queue,
// binaries, numbers, storage, hash, hlc, json, msg, uuid, string.
func New(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Init calls Init on every handler, in order.
func (d *Dispatcher) Init(env *vm.Env) {
	for _, h := range d.handlers {
		h.Init(env)
	}
}

// Done calls Done on every handler, in reverse order, so that handlers
// which depend on resources acquired by earlier ones (e.g. storage
// depending on nothing else here, but the convention generalises) tear
// down innermost-first.
func (d *Dispatcher) Done(env *vm.Env) {
	for i := len(d.handlers) - 1; i >= 0; i-- {
		d.handlers[i].Done(env)
	}
}

// Handle walks the handler chain in declaration order and returns the
// first non-"unhandled" result. If no handler claims instr, it returns
// vm.ErrUnhandled so the caller can fall through to the dictionary.
func (d *Dispatcher) Handle(env *vm.Env, instr Instruction) error {
	for _, h := range d.handlers {
		err := h.Handle(env, instr)
		if err == vm.ErrUnhandled {
			continue
		}
		return err
	}
	return vm.ErrUnhandled
}

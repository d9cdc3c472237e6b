// Package core implements the core instruction family: evaluation,
// control flow, dictionary binding, and boolean logic (spec.md §4.6.1).
// TRY/TRY_END are handled directly by the scheduler's pass loop (spec.md
// §4.5 step 4), not by this handler.
package core

import (
	"bytes"
	"math/big"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

var (
	stackTrue  = []byte{0x01}
	stackFalse = []byte{0x00}
)

// ScopeEndName is the internal continuation marker pushed by EVAL/SCOPED
// to close the dictionary scope it opened.
const ScopeEndName = "SCOPE_END"

// Handler implements the core family.
type Handler struct {
	// Builtins holds bootstrap alias definitions (e.g. IF in terms of
	// IFELSE) installed into every new Env's base dictionary.
	Builtins map[string][]byte
}

func New() *Handler {
	return &Handler{Builtins: DefaultBuiltins()}
}

func (h *Handler) Init(env *vm.Env) {
	for name, def := range h.Builtins {
		env.Define(name, def)
	}
}

func (h *Handler) Done(env *vm.Env) {}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		if string(instr.Name) == ScopeEndName {
			env.PopScope()
			return nil
		}
		return vm.ErrUnhandled
	}

	switch string(instr.Name) {
	case "EVAL":
		code, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.PushProgram(code)
		return nil

	case "EVAL/VALID?":
		code, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		if _, err := bytecode.Parse(code); err != nil {
			env.Push(stackFalse)
		} else {
			env.Push(stackTrue)
		}
		return nil

	case "EVAL/SCOPED":
		code, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.PushScope()
		env.PushProgram(bytecode.EncodeInstruction(nil, []byte(ScopeEndName), true))
		env.PushProgram(code)
		return nil

	case "DOWHILE":
		// Runs code once; if it leaves TRUE on top, loops. Built as a
		// self-reinjecting continuation: code runs first leaving a bool,
		// then an IFELSE chooses between "run code and DOWHILE again" and
		// "stop", using the bool code just left as IFELSE's condition.
		code, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		loopAgain := bytecode.EncodeData(nil, code)
		loopAgain = append(loopAgain, bytecode.EncodeInstruction(nil, []byte("DOWHILE"), false)...)
		var frag []byte
		frag = append(frag, bytecode.EncodeData(nil, loopAgain)...)
		frag = append(frag, bytecode.EncodeData(nil, nil)...)
		frag = append(frag, bytecode.EncodeInstruction(nil, []byte("IFELSE"), false)...)
		env.PushProgram(frag)
		env.PushProgram(code)
		return nil

	case "TIMES":
		nBytes, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		code, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		n := new(big.Int).SetBytes(nBytes)
		count := n.Uint64()
		for i := uint64(0); i < count; i++ {
			env.PushProgram(code)
		}
		return nil

	case "SET":
		name, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		value, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Define(string(name), bytecode.EncodeData(nil, value))
		return nil

	case "DEF":
		name, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		if len(name) == 0 || len(name) > 0x7f {
			return vm.ErrInvalidValue(name)
		}
		value, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Define(string(name), value)
		return nil

	case "NOT":
		a, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		b, err := asBool(a)
		if err != nil {
			return err
		}
		if b {
			env.Push(stackFalse)
		} else {
			env.Push(stackTrue)
		}
		return nil

	case "AND":
		b, a, err := popTwoBools(env)
		if err != nil {
			return err
		}
		pushBool(env, a && b)
		return nil

	case "OR":
		b, a, err := popTwoBools(env)
		if err != nil {
			return err
		}
		pushBool(env, a || b)
		return nil

	case "IFELSE":
		elseCode, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		thenCode, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		cond, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		b, err := asBool(cond)
		if err != nil {
			return err
		}
		if b {
			env.PushProgram(thenCode)
		} else {
			env.PushProgram(elseCode)
		}
		return nil

	case "FEATURE?":
		name, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		if env.Features[string(name)] {
			env.Push(stackTrue)
		} else {
			env.Push(stackFalse)
		}
		return nil

	default:
		return vm.ErrUnhandled
	}
}

func asBool(v []byte) (bool, *vm.ProgramError) {
	if bytes.Equal(v, stackTrue) {
		return true, nil
	}
	if bytes.Equal(v, stackFalse) {
		return false, nil
	}
	return false, vm.ErrInvalidValue(v)
}

func popTwoBools(env *vm.Env) (b, a bool, err *vm.ProgramError) {
	bb, ok := env.Pop()
	if !ok {
		return false, false, vm.ErrEmptyStack()
	}
	ab, ok := env.Pop()
	if !ok {
		return false, false, vm.ErrEmptyStack()
	}
	b, err = asBool(bb)
	if err != nil {
		return false, false, err
	}
	a, err = asBool(ab)
	if err != nil {
		return false, false, err
	}
	return b, a, nil
}

func pushBool(env *vm.Env, v bool) {
	if v {
		env.Push(stackTrue)
	} else {
		env.Push(stackFalse)
	}
}

// DefaultBuiltins returns the bootstrap alias table, equivalent to the
// original engine's textual bootstrap script: IF is defined in terms of
// IFELSE with an empty else-branch.
func DefaultBuiltins() map[string][]byte {
	body := bytecode.EncodeData(nil, nil)
	body = append(body, bytecode.EncodeInstruction(nil, []byte("IFELSE"), false)...)
	return map[string][]byte{
		"IF": body,
	}
}

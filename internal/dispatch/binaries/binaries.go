// Package binaries implements byte-string comparison and manipulation:
// EQUAL?, LT?, GT?, LENGTH, CONCAT, SLICE, PAD (spec.md §4.6.1).
package binaries

import (
	"bytes"
	"math/big"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

var (
	stackTrue  = []byte{0x01}
	stackFalse = []byte{0x00}
)

type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Init(env *vm.Env) {}
func (h *Handler) Done(env *vm.Env) {}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	switch string(instr.Name) {
	case "EQUAL?":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		pushBool(env, bytes.Equal(a, b))
		return nil

	case "LT?":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		pushBool(env, bytes.Compare(a, b) < 0)
		return nil

	case "GT?":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		pushBool(env, bytes.Compare(a, b) > 0)
		return nil

	case "LENGTH":
		a, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		n := big.NewInt(int64(len(a)))
		mag := n.Bytes()
		if len(mag) == 0 {
			mag = []byte{0}
		}
		env.Push(env.AllocCopy(mag))
		return nil

	case "CONCAT":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		out := make([]byte, 0, len(a)+len(b))
		out = append(out, a...)
		out = append(out, b...)
		env.Push(env.AllocCopy(out))
		return nil

	case "SLICE":
		endB, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		startB, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		start := int(new(big.Int).SetBytes(startB).Int64())
		end := int(new(big.Int).SetBytes(endB).Int64())
		if start < 0 || end < start || end > len(s) {
			return vm.ErrInvalidValue(s)
		}
		env.Push(s[start:end])
		return nil

	case "PAD":
		padByte, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		nB, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		v, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		n := int(new(big.Int).SetBytes(nB).Int64())
		if n > 1024 || n < len(v) || len(padByte) != 1 {
			return vm.ErrInvalidValue(v)
		}
		out := make([]byte, n)
		for i := 0; i < n-len(v); i++ {
			out[i] = padByte[0]
		}
		copy(out[n-len(v):], v)
		env.Push(env.AllocCopy(out))
		return nil

	default:
		return vm.ErrUnhandled
	}
}

func pop2(env *vm.Env) (top, second []byte, ok bool) {
	b, ok1 := env.Pop()
	a, ok2 := env.Pop()
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	return b, a, true
}

func pushBool(env *vm.Env, v bool) {
	if v {
		env.Push(stackTrue)
	} else {
		env.Push(stackFalse)
	}
}

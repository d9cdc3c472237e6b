// Package stackfam implements the stack-shuffling instruction family:
// DROP, DUP, SWAP, ROT, OVER, 2SWAP, 2ROT, 2OVER, DEPTH, WRAP, UNWRAP
// (spec.md §4.6.1).
package stackfam

import (
	"encoding/binary"
	"math/big"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
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
	case "DROP":
		if _, ok := env.Pop(); !ok {
			return vm.ErrEmptyStack()
		}
		return nil

	case "DUP":
		a, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Push(a)
		env.Push(a)
		return nil

	case "SWAP":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Push(b)
		env.Push(a)
		return nil

	case "2SWAP":
		vs, ok := popN(env, 4)
		if !ok {
			return vm.ErrEmptyStack()
		}
		// vs = [d, c, b, a] (pop order); want c,d,a,b pushed bottom->top
		a, b, c, d := vs[3], vs[2], vs[1], vs[0]
		env.Push(c)
		env.Push(d)
		env.Push(a)
		env.Push(b)
		return nil

	case "ROT":
		vs, ok := popN(env, 3)
		if !ok {
			return vm.ErrEmptyStack()
		}
		a, b, c := vs[2], vs[1], vs[0]
		env.Push(b)
		env.Push(c)
		env.Push(a)
		return nil

	case "2ROT":
		vs, ok := popN(env, 6)
		if !ok {
			return vm.ErrEmptyStack()
		}
		a, b, c, d, e, f := vs[5], vs[4], vs[3], vs[2], vs[1], vs[0]
		env.Push(c)
		env.Push(d)
		env.Push(e)
		env.Push(f)
		env.Push(a)
		env.Push(b)
		return nil

	case "OVER":
		b, a, ok := pop2(env)
		if !ok {
			return vm.ErrEmptyStack()
		}
		env.Push(a)
		env.Push(b)
		env.Push(a)
		return nil

	case "2OVER":
		vs, ok := popN(env, 4)
		if !ok {
			return vm.ErrEmptyStack()
		}
		a, b, c, d := vs[3], vs[2], vs[1], vs[0]
		env.Push(a)
		env.Push(b)
		env.Push(c)
		env.Push(d)
		env.Push(a)
		env.Push(b)
		return nil

	case "DEPTH":
		n := big.NewInt(int64(env.Depth()))
		mag := n.Bytes()
		if len(mag) == 0 {
			mag = []byte{0}
		}
		env.Push(env.AllocCopy(mag))
		return nil

	case "WRAP":
		nBytes, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		n := int(new(big.Int).SetBytes(nBytes).Int64())
		vs, ok := popN(env, n)
		if !ok {
			return vm.ErrEmptyStack()
		}
		// vs is top-first; reverse to bottom-first order for concatenation.
		var out []byte
		for i := len(vs) - 1; i >= 0; i-- {
			out = append(out, lengthPrefixed(vs[i])...)
		}
		env.Push(env.AllocCopy(out))
		return nil

	case "UNWRAP":
		blob, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		items, err := unwrapAll(blob)
		if err != nil {
			return vm.ErrInvalidValue(blob)
		}
		for _, it := range items {
			env.Push(it)
		}
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

// popN pops n items and returns them top-first (vs[0] was the topmost).
func popN(env *vm.Env, n int) ([][]byte, bool) {
	vs := make([][]byte, n)
	for i := 0; i < n; i++ {
		v, ok := env.Pop()
		if !ok {
			return nil, false
		}
		vs[i] = v
	}
	return vs, true
}

func lengthPrefixed(v []byte) []byte {
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, uint32(len(v)))
	return append(hdr, v...)
}

func unwrapAll(blob []byte) ([][]byte, error) {
	var out [][]byte
	for len(blob) > 0 {
		if len(blob) < 4 {
			return nil, bytecode.ErrIncomplete
		}
		n := binary.BigEndian.Uint32(blob[:4])
		blob = blob[4:]
		if uint32(len(blob)) < n {
			return nil, bytecode.ErrIncomplete
		}
		out = append(out, blob[:n])
		blob = blob[n:]
	}
	return out, nil
}

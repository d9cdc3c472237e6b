// Package stringfam implements the STRING conversion instruction family:
// parsing decimal text into the engine's unsigned, signed, sized and
// floating-point wire encodings (spec.md §4.6.7). It shares its encoding
// rules with the text compiler and the numbers family rather than
// reimplementing them independently.
package stringfam

import (
	"math/big"
	"strconv"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Init(env *vm.Env) {}
func (h *Handler) Done(env *vm.Env) {}

var sizedWidths = map[string]int{
	"STRING/->UINT8": 1, "STRING/->INT8": 1,
	"STRING/->UINT16": 2, "STRING/->INT16": 2,
	"STRING/->UINT32": 4, "STRING/->INT32": 4,
	"STRING/->UINT64": 8, "STRING/->INT64": 8,
}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	name := string(instr.Name)

	switch name {
	case "STRING/->UINT":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		v, ok := new(big.Int).SetString(string(s), 10)
		if !ok || v.Sign() < 0 {
			return vm.ErrInvalidValue(s)
		}
		mag := v.Bytes()
		if len(mag) == 0 {
			mag = []byte{0}
		}
		env.Push(env.AllocCopy(mag))
		return nil

	case "STRING/->INT":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		v, ok := new(big.Int).SetString(string(s), 10)
		if !ok {
			return vm.ErrInvalidValue(s)
		}
		env.Push(env.AllocCopy(bytecode.EncodeSint(v)))
		return nil

	case "STRING/->F32":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		f, err := strconv.ParseFloat(string(s), 32)
		if err != nil {
			return vm.ErrInvalidValue(s)
		}
		env.Push(env.AllocCopy(bytecode.PackFloat32(float32(f))))
		return nil

	case "STRING/->F64":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		f, err := strconv.ParseFloat(string(s), 64)
		if err != nil {
			return vm.ErrInvalidValue(s)
		}
		env.Push(env.AllocCopy(bytecode.PackFloat64(f)))
		return nil
	}

	if width, ok := sizedWidths[name]; ok {
		return convertSized(env, name, width)
	}
	return vm.ErrUnhandled
}

func convertSized(env *vm.Env, name string, width int) error {
	s, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	v, ok := new(big.Int).SetString(string(s), 10)
	if !ok {
		return vm.ErrInvalidValue(s)
	}
	signed := name[len("STRING/->")] == 'I'
	buf := make([]byte, width)
	if signed {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(width*8))
		half := new(big.Int).Rsh(mod, 1)
		negHalf := new(big.Int).Neg(half)
		if v.Cmp(negHalf) < 0 || v.Cmp(half) >= 0 {
			return vm.ErrInvalidValue(s)
		}
		m := new(big.Int).Mod(v, mod)
		if m.Sign() < 0 {
			m.Add(m, mod)
		}
		b := m.Bytes()
		copy(buf[width-len(b):], b)
		buf[0] ^= 0x80
	} else {
		if v.Sign() < 0 {
			return vm.ErrInvalidValue(s)
		}
		b := v.Bytes()
		if len(b) > width {
			return vm.ErrInvalidValue(s)
		}
		copy(buf[width-len(b):], b)
	}
	env.Push(env.AllocCopy(buf))
	return nil
}

// Package numbers implements arithmetic, casting, and comparison over
// unsigned/signed bigints, fixed-width sized integers, and floats
// (spec.md §4.6.2).
package numbers

import (
	"math/big"
	"strings"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
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

type sizedKind struct {
	width  int
	signed bool
}

var sizedKinds = map[string]sizedKind{
	"UINT8": {1, false}, "INT8": {1, true},
	"UINT16": {2, false}, "INT16": {2, true},
	"UINT32": {4, false}, "INT32": {4, true},
	"UINT64": {8, false}, "INT64": {8, true},
}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	name := string(instr.Name)

	switch name {
	case "UINT/ADD":
		return binUintOp(env, (*big.Int).Add, false)
	case "UINT/SUB":
		return binUintOp(env, (*big.Int).Sub, true)
	case "INT/ADD":
		return binSintOp(env, (*big.Int).Add)
	case "INT/SUB":
		return binSintOp(env, (*big.Int).Sub)
	case "INT->UINT":
		return intToUint(env)
	case "UINT->INT":
		return uintToInt(env)
	case "UINT/EQUAL?", "UINT/GT?", "UINT/LT?":
		return uintCompare(env, name)
	case "INT/EQUAL?", "INT/GT?", "INT/LT?":
		return sintCompare(env, name)
	case "F32/ADD":
		return floatOp(env, 32, true)
	case "F32/SUB":
		return floatOp(env, 32, false)
	case "F64/ADD":
		return floatOp(env, 64, true)
	case "F64/SUB":
		return floatOp(env, 64, false)
	}

	for _, suf := range []string{"/ADD", "/SUB"} {
		if strings.HasSuffix(name, suf) {
			prefix := strings.TrimSuffix(name, suf)
			if kind, ok := sizedKinds[prefix]; ok {
				return sizedOp(env, kind, suf == "/ADD")
			}
		}
	}
	return vm.ErrUnhandled
}

func pop2(env *vm.Env) (top, second []byte, ok bool) {
	b, ok1 := env.Pop()
	a, ok2 := env.Pop()
	if !ok1 || !ok2 {
		return nil, nil, false
	}
	return b, a, true
}

func pushMag(env *vm.Env, v *big.Int) {
	mag := v.Bytes()
	if len(mag) == 0 {
		mag = []byte{0}
	}
	env.Push(env.AllocCopy(mag))
}

func binUintOp(env *vm.Env, op func(z, a, b *big.Int) *big.Int, checkNonNeg bool) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	av := new(big.Int).SetBytes(a)
	bv := new(big.Int).SetBytes(b)
	c := op(new(big.Int), av, bv)
	if checkNonNeg && c.Sign() < 0 {
		return vm.ErrInvalidValue(a)
	}
	pushMag(env, c)
	return nil
}

// decodeSint reads the sign-byte + magnitude encoding used by the arbitrary
// precision signed integer literal (bytecode.EncodeSint's inverse).
func decodeSint(b []byte) (*big.Int, error) {
	if len(b) == 0 {
		return nil, errInvalid
	}
	sign := b[0]
	mag := append([]byte{}, b[1:]...)
	switch sign {
	case 0x01:
		return new(big.Int).SetBytes(mag), nil
	case 0x00:
		for i := range mag {
			mag[i] = ^mag[i]
		}
		carry := byte(1)
		for i := len(mag) - 1; i >= 0 && carry > 0; i-- {
			sum := uint16(mag[i]) + uint16(carry)
			mag[i] = byte(sum)
			carry = byte(sum >> 8)
		}
		v := new(big.Int).SetBytes(mag)
		v.Neg(v)
		return v, nil
	default:
		return nil, errInvalid
	}
}

var errInvalid = vm.ErrInvalidValue(nil)

func binSintOp(env *vm.Env, op func(z, a, b *big.Int) *big.Int) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	av, err := decodeSint(a)
	if err != nil {
		return vm.ErrInvalidValue(a)
	}
	bv, err := decodeSint(b)
	if err != nil {
		return vm.ErrInvalidValue(b)
	}
	c := op(new(big.Int), av, bv)
	env.Push(env.AllocCopy(bytecode.EncodeSint(c)))
	return nil
}

func intToUint(env *vm.Env) error {
	a, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	v, err := decodeSint(a)
	if err != nil || v.Sign() < 0 {
		return vm.ErrInvalidValue(a)
	}
	pushMag(env, v)
	return nil
}

func uintToInt(env *vm.Env) error {
	a, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	v := new(big.Int).SetBytes(a)
	env.Push(env.AllocCopy(bytecode.EncodeSint(v)))
	return nil
}

func uintCompare(env *vm.Env, name string) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	av := new(big.Int).SetBytes(a)
	bv := new(big.Int).SetBytes(b)
	return pushCompareResult(env, name, av.Cmp(bv))
}

func sintCompare(env *vm.Env, name string) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	av, err := decodeSint(a)
	if err != nil {
		return vm.ErrInvalidValue(a)
	}
	bv, err := decodeSint(b)
	if err != nil {
		return vm.ErrInvalidValue(b)
	}
	return pushCompareResult(env, name, av.Cmp(bv))
}

func pushCompareResult(env *vm.Env, name string, cmp int) error {
	var result bool
	switch {
	case strings.HasSuffix(name, "EQUAL?"):
		result = cmp == 0
	case strings.HasSuffix(name, "GT?"):
		result = cmp > 0
	case strings.HasSuffix(name, "LT?"):
		result = cmp < 0
	}
	if result {
		env.Push(stackTrue)
	} else {
		env.Push(stackFalse)
	}
	return nil
}

func sizedUintVal(b []byte, w int) (*big.Int, error) {
	if len(b) != w {
		return nil, errInvalid
	}
	return new(big.Int).SetBytes(b), nil
}

func encodeSizedUintVal(v *big.Int, w int) ([]byte, error) {
	if v.Sign() < 0 || v.BitLen() > w*8 {
		return nil, errInvalid
	}
	buf := make([]byte, w)
	b := v.Bytes()
	copy(buf[w-len(b):], b)
	return buf, nil
}

func sizedIntVal(b []byte, w int) (*big.Int, error) {
	if len(b) != w {
		return nil, errInvalid
	}
	buf := append([]byte{}, b...)
	buf[0] ^= 0x80
	v := new(big.Int).SetBytes(buf)
	if buf[0]&0x80 != 0 {
		mod := new(big.Int).Lsh(big.NewInt(1), uint(w*8))
		v.Sub(v, mod)
	}
	return v, nil
}

func encodeSizedIntVal(v *big.Int, w int) ([]byte, error) {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(w*8))
	half := new(big.Int).Rsh(mod, 1)
	negHalf := new(big.Int).Neg(half)
	if v.Cmp(negHalf) < 0 || v.Cmp(half) >= 0 {
		return nil, errInvalid
	}
	m := new(big.Int).Mod(v, mod)
	if m.Sign() < 0 {
		m.Add(m, mod)
	}
	b := m.Bytes()
	buf := make([]byte, w)
	copy(buf[w-len(b):], b)
	buf[0] ^= 0x80
	return buf, nil
}

func sizedOp(env *vm.Env, kind sizedKind, add bool) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	var av, bv *big.Int
	var err error
	if kind.signed {
		av, err = sizedIntVal(a, kind.width)
		if err != nil {
			return vm.ErrInvalidValue(a)
		}
		bv, err = sizedIntVal(b, kind.width)
		if err != nil {
			return vm.ErrInvalidValue(b)
		}
	} else {
		av, err = sizedUintVal(a, kind.width)
		if err != nil {
			return vm.ErrInvalidValue(a)
		}
		bv, err = sizedUintVal(b, kind.width)
		if err != nil {
			return vm.ErrInvalidValue(b)
		}
	}
	c := new(big.Int)
	if add {
		c.Add(av, bv)
	} else {
		c.Sub(av, bv)
	}
	var out []byte
	if kind.signed {
		out, err = encodeSizedIntVal(c, kind.width)
	} else {
		out, err = encodeSizedUintVal(c, kind.width)
	}
	if err != nil {
		return vm.ErrInvalidValue(a)
	}
	env.Push(env.AllocCopy(out))
	return nil
}

func floatOp(env *vm.Env, bits int, add bool) error {
	b, a, ok := pop2(env)
	if !ok {
		return vm.ErrEmptyStack()
	}
	if bits == 32 {
		av, err := bytecode.UnpackFloat32(a)
		if err != nil {
			return vm.ErrInvalidValue(a)
		}
		bv, err := bytecode.UnpackFloat32(b)
		if err != nil {
			return vm.ErrInvalidValue(b)
		}
		var c float32
		if add {
			c = av + bv
		} else {
			c = av - bv
		}
		env.Push(env.AllocCopy(bytecode.PackFloat32(c)))
		return nil
	}
	av, err := bytecode.UnpackFloat64(a)
	if err != nil {
		return vm.ErrInvalidValue(a)
	}
	bv, err := bytecode.UnpackFloat64(b)
	if err != nil {
		return vm.ErrInvalidValue(b)
	}
	var c float64
	if add {
		c = av + bv
	} else {
		c = av - bv
	}
	env.Push(env.AllocCopy(bytecode.PackFloat64(c)))
	return nil
}

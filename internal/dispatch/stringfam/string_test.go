package stringfam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

func newEnv() *vm.Env {
	return vm.New(vm.NewID(), nil, vm.DictFlat)
}

func TestStringToUint(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("255"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->UINT")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, []byte{255}, out)
}

func TestStringToUintRejectsNegative(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("-1"))
	err := h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->UINT")})
	require.Error(t, err)
}

func TestStringToIntNegative(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("-123"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->INT")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, []byte{0, 133}, out) // sign byte 0x00 + two's-complement magnitude of 123
}

func TestStringToSizedUint8(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("123"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->UINT8")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, []byte{123}, out)
}

func TestStringToSizedInt8Negative(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("-123"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->INT8")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, []byte{5}, out)
}

func TestStringToSizedOverflow(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("999"))
	err := h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->UINT8")})
	require.Error(t, err)
}

func TestStringToFloat32(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("1.3"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->F32")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, bytecode.PackFloat32(1.3), out)
}

func TestStringToFloat64(t *testing.T) {
	h := New()
	env := newEnv()
	env.Push([]byte("2.5"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("STRING/->F64")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, bytecode.PackFloat64(2.5), out)
}

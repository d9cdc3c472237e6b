package hlcfam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/hlc"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

func newEnv() *vm.Env {
	return vm.New(vm.NewID(), nil, vm.DictFlat)
}

func TestHLCPushesStamp(t *testing.T) {
	fixed := time.UnixMilli(42)
	oracle := hlc.New(hlc.NewMemNVMem(), 1, hlc.WithNowFunc(func() time.Time { return fixed }))
	h := New(oracle)
	env := newEnv()

	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("HLC")}))
	stamp, ok := env.Pop()
	require.True(t, ok)
	require.Len(t, stamp, hlc.Size)
}

func TestHLCTickIncrementsCounterOnly(t *testing.T) {
	oracle := hlc.New(hlc.NewMemNVMem(), 1)
	h := New(oracle)
	env := newEnv()

	s := hlc.Stamp{Wall: 100, Count: 5, Node: 9}
	env.Push(s.Bytes())
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("HLC/TICK")}))
	out, ok := env.Pop()
	require.True(t, ok)
	parsed, err := hlc.Parse(out)
	require.NoError(t, err)
	require.Equal(t, uint32(6), parsed.Count)
	require.Equal(t, uint64(100), parsed.Wall)
}

func TestHLCLCExtractsCounter(t *testing.T) {
	oracle := hlc.New(hlc.NewMemNVMem(), 1)
	h := New(oracle)
	env := newEnv()

	s := hlc.Stamp{Wall: 1, Count: 0x01020304, Node: 0}
	env.Push(s.Bytes())
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("HLC/LC")}))
	out, ok := env.Pop()
	require.True(t, ok)
	require.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestHLCObserveMergesExternal(t *testing.T) {
	fixed := time.UnixMilli(1)
	oracle := hlc.New(hlc.NewMemNVMem(), 1, hlc.WithNowFunc(func() time.Time { return fixed }))
	h := New(oracle)
	env := newEnv()

	future := hlc.Stamp{Wall: 9999, Count: 3}
	env.Push(future.Bytes())
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("HLC/OBSERVE")}))
	out, ok := env.Pop()
	require.True(t, ok)
	merged, err := hlc.Parse(out)
	require.NoError(t, err)
	require.GreaterOrEqual(t, merged.Wall, future.Wall)
}

func TestHLCEmptyStack(t *testing.T) {
	oracle := hlc.New(hlc.NewMemNVMem(), 1)
	h := New(oracle)
	env := newEnv()
	err := h.Handle(env, dispatch.Instruction{Name: []byte("HLC/TICK")})
	require.Error(t, err)
}

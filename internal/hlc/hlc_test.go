package hlc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNowMonotonic(t *testing.T) {
	fixed := time.UnixMilli(1000)
	o := New(NewMemNVMem(), 1, WithNowFunc(func() time.Time { return fixed }))
	a := o.Now()
	b := o.Now()
	require.Equal(t, a.Wall, b.Wall)
	require.Less(t, a.Count, b.Count)
}

func TestNowPersistsEveryCall(t *testing.T) {
	mem := NewMemNVMem()
	fixed := time.UnixMilli(5000)
	o := New(mem, 1, WithNowFunc(func() time.Time { return fixed }))
	o.Now()
	reloaded, err := loadStamp(mem)
	require.NoError(t, err)
	require.Equal(t, uint64(5000), reloaded.Wall)
}

func TestObserveDominatesExternal(t *testing.T) {
	fixed := time.UnixMilli(1000)
	o := New(NewMemNVMem(), 1, WithNowFunc(func() time.Time { return fixed }))
	future := Stamp{Wall: 9999, Count: 3}
	merged, err := o.Observe(future)
	require.NoError(t, err)
	require.GreaterOrEqual(t, merged.Wall, future.Wall)
	if merged.Wall == future.Wall {
		require.Greater(t, merged.Count, future.Count)
	}
}

func TestStampRoundTrip(t *testing.T) {
	s := Stamp{Wall: 123456789, Count: 42, Node: 7}
	parsed, err := Parse(s.Bytes())
	require.NoError(t, err)
	require.Equal(t, s, parsed)
}

package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/core"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/stackfam"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

func testDispatcher() *dispatch.Dispatcher {
	return dispatch.New(core.New(), stackfam.New())
}

func compile(t *testing.T, src string) []byte {
	t.Helper()
	code, err := bytecode.Compile(src)
	require.NoError(t, err)
	return code
}

func await(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduler result")
		return Result{}
	}
}

func TestSimpleProgramTerminates(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(1))
	defer pool.Stop()

	code := compile(t, `"hello"`)
	ch := pool.ScheduleEnv(code, vm.DictFlat, nil)
	res := await(t, ch)

	require.Nil(t, res.Err)
	require.Len(t, res.Stack, 1)
	require.Equal(t, []byte("hello"), res.Stack[0])
}

func TestUnknownInstructionFails(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(1))
	defer pool.Stop()

	code := compile(t, `NOSUCHWORD`)
	ch := pool.ScheduleEnv(code, vm.DictFlat, nil)
	res := await(t, ch)

	require.NotNil(t, res.Err)
	require.Equal(t, vm.CodeUnknownInstruction, res.Err.Code)
}

func TestDupThenDrop(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(1))
	defer pool.Stop()

	code := compile(t, `1 DUP DROP`)
	ch := pool.ScheduleEnv(code, vm.DictFlat, nil)
	res := await(t, ch)

	require.Nil(t, res.Err)
	require.Len(t, res.Stack, 1)
}

func TestTryCatchesFailure(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(1))
	defer pool.Stop()

	code := compile(t, `[NOSUCHWORD] TRY`)
	ch := pool.ScheduleEnv(code, vm.DictFlat, nil)
	res := await(t, ch)

	require.Nil(t, res.Err)
	require.Len(t, res.Stack, 1)
	// the caught value is the wire error record, not a free-form string:
	// [desc_len][desc][details_len][details][2-byte code]
	require.Contains(t, string(res.Stack[0]), "Unknown instruction")
	require.Equal(t, vm.CodeUnknownInstruction[:], res.Stack[0][len(res.Stack[0])-2:])
}

func TestTrySucceedsPushesNil(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(1))
	defer pool.Stop()

	code := compile(t, `["ok"] TRY`)
	ch := pool.ScheduleEnv(code, vm.DictFlat, nil)
	res := await(t, ch)

	require.Nil(t, res.Err)
	require.Len(t, res.Stack, 2)
	require.Equal(t, []byte("ok"), res.Stack[0])
	require.Empty(t, res.Stack[1])
}

func TestManyEnvsConcurrently(t *testing.T) {
	pool := New(testDispatcher(), WithWorkers(4))
	defer pool.Stop()

	code := compile(t, `1 DUP DROP`)
	chans := make([]<-chan Result, 50)
	for i := range chans {
		chans[i] = pool.ScheduleEnv(code, vm.DictFlat, nil)
	}
	for _, ch := range chans {
		res := await(t, ch)
		require.Nil(t, res.Err)
	}
}

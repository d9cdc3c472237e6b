package wire

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/core"
	"github.com/pumpkindb/pumpkindb/internal/dispatch/stackfam"
	"github.com/pumpkindb/pumpkindb/internal/scheduler"
)

func TestSessionRunsProgramAndRepliesWithStack(t *testing.T) {
	pool := scheduler.New(dispatch.New(core.New(), stackfam.New()), scheduler.WithWorkers(1))
	defer pool.Stop()

	client, server := net.Pipe()
	defer client.Close()

	go NewSession(server, pool, zerolog.Nop()).Run()

	code, err := bytecode.Compile(`"hi"`)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(client, code))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := ReadFrame(client)
	require.NoError(t, err)

	toks, err := bytecode.Parse(reply)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Equal(t, []byte("hi"), toks[0].Bytes)
}

func TestSessionSurfacesEnvFailureAsLeadingErrorRecord(t *testing.T) {
	pool := scheduler.New(dispatch.New(core.New(), stackfam.New()), scheduler.WithWorkers(1))
	defer pool.Stop()

	client, server := net.Pipe()
	defer client.Close()

	go NewSession(server, pool, zerolog.Nop()).Run()

	code, err := bytecode.Compile(`NOSUCHWORD`)
	require.NoError(t, err)
	require.NoError(t, WriteFrame(client, code))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := ReadFrame(client)
	require.NoError(t, err)

	toks, err := bytecode.Parse(reply)
	require.NoError(t, err)
	require.Len(t, toks, 1)
	require.Contains(t, string(toks[0].Bytes), "Unknown instruction")
}

package wire

import (
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/pumpkindb/pumpkindb/internal/scheduler"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

// Session drives one client connection: read a program frame, run it to
// completion on the pool, stream any published-message frames as they
// arrive, then write the terminal frame. The connection is kept open for
// further programs, matching the original server's one-connection-many-
// requests lifecycle (pumpkindb_server/src/server.rs).
type Session struct {
	conn net.Conn
	pool *scheduler.Pool
	log  zerolog.Logger

	writeMu sync.Mutex
}

func NewSession(conn net.Conn, pool *scheduler.Pool, log zerolog.Logger) *Session {
	return &Session{conn: conn, pool: pool, log: log}
}

// Run blocks, serving frames on the connection until it closes or a
// non-EOF read error occurs.
func (s *Session) Run() {
	defer s.conn.Close()
	r := NewReader(s.conn)
	for {
		program, err := r.ReadFrame()
		if err != nil {
			if err != io.EOF {
				s.log.Debug().Err(err).Msg("connection closed")
			}
			return
		}
		if err := s.runProgram(program); err != nil {
			s.log.Warn().Err(err).Msg("failed to write response frame")
			return
		}
	}
}

func (s *Session) writeFrame(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.conn, payload)
}

func (s *Session) runProgram(program []byte) error {
	deliver := func(topic, message []byte) {
		frame := EncodeStack([][]byte{topic, message})
		if err := s.writeFrame(frame); err != nil {
			s.log.Debug().Err(err).Msg("dropped published-message frame, connection gone")
		}
	}

	result := <-s.pool.ScheduleEnv(program, vm.DictFlat, deliver)

	var stack [][]byte
	if result.Err != nil {
		stack = append(stack, result.Err.Encode())
		stack = append(stack, result.Stack...)
	} else {
		stack = result.Stack
	}
	return s.writeFrame(EncodeStack(stack))
}

// Serve accepts connections on ln until it is closed, running each one in
// its own goroutine.
func Serve(ln net.Listener, pool *scheduler.Pool, log zerolog.Logger) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go NewSession(conn, pool, log).Run()
	}
}

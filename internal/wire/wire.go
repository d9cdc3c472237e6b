// Package wire implements the TCP framing described in spec.md §6: every
// message in either direction is a length-prefixed frame, and a failed
// program's terminal frame leads with an encoded error record.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
)

const maxFrameLen = 64 << 20 // generous upper bound against a hostile length prefix

// ErrFrameTooLarge is returned by ReadFrame when the advertised length
// exceeds maxFrameLen.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds maximum size")

// ReadFrame reads one [u32 big-endian length][payload] frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame to w.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// Reader wraps a bufio.Reader so ReadFrame calls benefit from buffering on
// a raw net.Conn, mirroring the original server's preallocated-then-grown
// read path without reproducing its manual WouldBlock bookkeeping — Go's
// blocking io.Reader contract makes that unnecessary.
type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader { return &Reader{br: bufio.NewReader(r)} }

func (r *Reader) ReadFrame() ([]byte, error) { return ReadFrame(r.br) }

// EncodeStack serialises a final value stack, bottom-to-top, as the
// concatenation of data-push tokens spec.md §6 describes for the terminal
// frame.
func EncodeStack(stack [][]byte) []byte {
	var out []byte
	for _, v := range stack {
		out = bytecode.EncodeData(out, v)
	}
	return out
}

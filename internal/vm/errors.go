package vm

import (
	"encoding/binary"
	"fmt"
)

// Code is the 2-byte wire error code from the external error taxonomy.
type Code [2]byte

var (
	CodeUnknownInstruction = Code{0x01, 0x02}
	CodeInvalidValue       = Code{0x01, 0x03}
	CodeEmptyStack         = Code{0x01, 0x04}
	CodeDecodingError      = Code{0x01, 0x05}
	CodeDuplicateKey       = Code{0x01, 0x06}
	CodeUnknownKey         = Code{0x01, 0x07}
	CodeNoTransaction      = Code{0x01, 0x08}
	CodeDatabaseError      = Code{0x01, 0x09}
)

// ProgramError is every user-visible error a handler can raise: it carries
// exactly the fields the wire error record needs (spec.md §6), so
// translating it onto the wire is a direct field read.
type ProgramError struct {
	Desc    string
	Details []byte
	Code    Code
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("%s: %s", e.Desc, e.Details)
}

// Encode serialises the error as the wire error record spec.md §6 defines:
// [desc_len][desc_utf8][details_len][details_bytes][2-byte code]. TRY
// publishes exactly this payload as the caught value (spec.md §7), and the
// terminal wire frame on program failure carries it as its first token.
func (e *ProgramError) Encode() []byte {
	desc := []byte(e.Desc)
	out := make([]byte, 0, 4+len(desc)+4+len(e.Details)+2)
	out = appendU32(out, len(desc))
	out = append(out, desc...)
	out = appendU32(out, len(e.Details))
	out = append(out, e.Details...)
	out = append(out, e.Code[0], e.Code[1])
	return out
}

func appendU32(dst []byte, n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return append(dst, b[:]...)
}

func NewProgramError(code Code, desc string, details []byte) *ProgramError {
	return &ProgramError{Code: code, Desc: desc, Details: details}
}

func ErrUnknownInstruction(name []byte) *ProgramError {
	return NewProgramError(CodeUnknownInstruction, "Unknown instruction", name)
}

func ErrInvalidValue(v []byte) *ProgramError {
	return NewProgramError(CodeInvalidValue, "Invalid value", v)
}

func ErrEmptyStack() *ProgramError {
	return NewProgramError(CodeEmptyStack, "Empty stack", nil)
}

func ErrDecoding(v []byte) *ProgramError {
	return NewProgramError(CodeDecodingError, "Decoding error", v)
}

func ErrDuplicateKey(key []byte) *ProgramError {
	return NewProgramError(CodeDuplicateKey, "Duplicate key", key)
}

func ErrUnknownKey(key []byte) *ProgramError {
	return NewProgramError(CodeUnknownKey, "Unknown key", key)
}

func ErrNoTransaction() *ProgramError {
	return NewProgramError(CodeNoTransaction, "No transaction", nil)
}

func ErrDatabase(detail string) *ProgramError {
	return NewProgramError(CodeDatabaseError, "Database error", []byte(detail))
}

// Reschedule is not a user-visible error: a handler returns it to signal
// that the env cannot make progress right now (e.g. the write slot is
// held elsewhere). The scheduler consumes it by re-queuing the env
// unchanged; it is never surfaced as EnvFailed.
var ErrReschedule = fmt.Errorf("vm: reschedule")

// ErrHeapAllocFailed is fatal to the env and can never be caught by TRY.
var ErrHeapAllocFailed = fmt.Errorf("vm: heap allocation failed")

// ErrUnhandled is returned internally by a dispatch handler to mean "this
// token is not mine" — distinct from any domain error.
var ErrUnhandled = fmt.Errorf("vm: unhandled instruction")

// Package storagefam implements the storage instruction family (spec.md
// §4.7): transaction bracketing (WRITE/READ ... WRITE_END/READ_END),
// associative operations (ASSOC, ASSOC?, RETR), the cursor family, and
// COMMIT, against an internal/storage.Engine.
package storagefam

import (
	"encoding/binary"
	"strings"

	"github.com/pumpkindb/pumpkindb/internal/bytecode"
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/storage"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

// frame is one entry in an env's txn stack, innermost at the tail.
type frame struct {
	kind storage.Kind
	txn  *storage.Txn
}

type Handler struct {
	engine *storage.Engine
	stacks map[vm.ID][]*frame
}

func New(engine *storage.Engine) *Handler {
	return &Handler{
		engine: engine,
		stacks: make(map[vm.ID][]*frame),
	}
}

func (h *Handler) Init(env *vm.Env) {
	h.stacks[env.ID] = nil
}

// Done rolls back whatever txns this env still has open — reached when
// the env fails or the scheduler shuts it down mid-bracket, per spec.md
// §8's handler contract ("rolling back open transactions and dropping
// cursors regardless of how the env terminated").
func (h *Handler) Done(env *vm.Env) {
	for _, f := range h.stacks[env.ID] {
		f.txn.Close()
	}
	delete(h.stacks, env.ID)
}

func (h *Handler) top(env *vm.Env) *frame {
	s := h.stacks[env.ID]
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}

func (h *Handler) pushFrame(env *vm.Env, f *frame) {
	h.stacks[env.ID] = append(h.stacks[env.ID], f)
}

func (h *Handler) popFrame(env *vm.Env) *frame {
	s := h.stacks[env.ID]
	if len(s) == 0 {
		return nil
	}
	f := s[len(s)-1]
	h.stacks[env.ID] = s[:len(s)-1]
	return f
}

func (h *Handler) hasActiveWrite(env *vm.Env) bool {
	for _, f := range h.stacks[env.ID] {
		if f.kind == storage.KindWrite {
			return true
		}
	}
	return false
}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	name := string(instr.Name)

	if instr.Internal {
		switch name {
		case "WRITE_END", "READ_END":
			return h.endBracket(env)
		}
		return vm.ErrUnhandled
	}

	switch name {
	case "WRITE":
		return h.beginWrite(env)
	case "READ":
		return h.beginRead(env)
	case "COMMIT":
		return h.commit(env)
	case "ASSOC":
		return h.assoc(env)
	case "ASSOC?":
		return h.assocQuery(env)
	case "RETR":
		return h.retr(env)
	case "CURSOR":
		return h.cursor(env)
	}

	if op, wantsBool, wantsKey, ok := parseCursorOp(name); ok {
		return h.cursorOp(env, op, wantsBool, wantsKey)
	}

	return vm.ErrUnhandled
}

func (h *Handler) beginWrite(env *vm.Env) error {
	code, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	if h.hasActiveWrite(env) {
		return vm.NewProgramError(vm.CodeDatabaseError, "Nested WRITEs are not currently allowed.", nil)
	}
	txn, err := h.engine.BeginWrite()
	if err == storage.ErrWriteLocked {
		env.Push(code)
		return vm.ErrReschedule
	}
	if err != nil {
		return vm.ErrDatabase(err.Error())
	}
	h.pushFrame(env, &frame{kind: storage.KindWrite, txn: txn})
	env.PushProgram(bytecode.EncodeInstruction(nil, []byte("WRITE_END"), true))
	env.PushProgram(code)
	return nil
}

func (h *Handler) beginRead(env *vm.Env) error {
	code, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	txn, err := h.engine.BeginRead()
	if err == storage.ErrReadersFull {
		env.Push(code)
		return vm.ErrReschedule
	}
	if err != nil {
		return vm.ErrDatabase(err.Error())
	}
	h.pushFrame(env, &frame{kind: storage.KindRead, txn: txn})
	env.PushProgram(bytecode.EncodeInstruction(nil, []byte("READ_END"), true))
	env.PushProgram(code)
	return nil
}

func (h *Handler) endBracket(env *vm.Env) error {
	f := h.popFrame(env)
	if f == nil {
		return vm.ErrNoTransaction()
	}
	f.txn.Close()
	return nil
}

func (h *Handler) commit(env *vm.Env) error {
	f := h.top(env)
	if f == nil || f.kind != storage.KindWrite {
		return vm.ErrNoTransaction()
	}
	if err := f.txn.Commit(); err != nil {
		return vm.ErrDatabase(err.Error())
	}
	return nil
}

func (h *Handler) assoc(env *vm.Env) error {
	f := h.top(env)
	if f == nil || f.kind != storage.KindWrite {
		return vm.ErrNoTransaction()
	}
	value, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	key, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	if err := f.txn.Assoc(key, value); err != nil {
		if err == storage.ErrDuplicateKey {
			return vm.ErrDuplicateKey(key)
		}
		return vm.ErrDatabase(err.Error())
	}
	return nil
}

func (h *Handler) assocQuery(env *vm.Env) error {
	f := h.top(env)
	if f == nil {
		return vm.ErrNoTransaction()
	}
	key, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	pushBool(env, f.txn.AssocQuery(key))
	return nil
}

func (h *Handler) retr(env *vm.Env) error {
	f := h.top(env)
	if f == nil {
		return vm.ErrNoTransaction()
	}
	key, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	value, err := f.txn.Retr(key)
	if err != nil {
		return vm.ErrUnknownKey(key)
	}
	env.Push(env.AllocCopy(value))
	return nil
}

func (h *Handler) cursor(env *vm.Env) error {
	f := h.top(env)
	if f == nil {
		return vm.ErrNoTransaction()
	}
	id, _ := f.txn.NewCursor()
	env.Push(env.AllocCopy(id[:]))
	return nil
}

// parseCursorOp recognises the two naming schemes spec.md §4.7.3 defines
// over {FIRST, LAST, NEXT, PREV, SEEK, CUR}: "?CURSOR/<OP>" (pushes a
// blob) and "CURSOR/<OP>?" (pushes a bool). SEEK additionally consumes a
// key argument.
func parseCursorOp(name string) (op string, wantsBool bool, wantsKey bool, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(name, "?CURSOR/"):
		rest, wantsBool = strings.TrimPrefix(name, "?CURSOR/"), false
	case strings.HasPrefix(name, "CURSOR/") && strings.HasSuffix(name, "?"):
		rest, wantsBool = strings.TrimSuffix(strings.TrimPrefix(name, "CURSOR/"), "?"), true
	default:
		return "", false, false, false
	}
	switch rest {
	case "FIRST", "LAST", "NEXT", "PREV", "CUR":
		return rest, wantsBool, false, true
	case "SEEK":
		return rest, wantsBool, true, true
	default:
		return "", false, false, false
	}
}

func (h *Handler) cursorOp(env *vm.Env, op string, wantsBool, wantsKey bool) error {
	var seekKey []byte
	if wantsKey {
		k, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		seekKey = k
	}
	rawID, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	f := h.top(env)
	if f == nil {
		return vm.ErrNoTransaction()
	}
	id, err := toCursorID(rawID)
	if err != nil {
		return vm.ErrInvalidValue(rawID)
	}
	c, found := f.txn.Cursor(id)
	if !found {
		return vm.ErrUnknownKey(rawID)
	}

	var key, value []byte
	var positioned bool
	switch op {
	case "FIRST":
		key, value, positioned = c.First()
	case "LAST":
		key, value, positioned = c.Last()
	case "NEXT":
		key, value, positioned = c.Next()
	case "PREV":
		key, value, positioned = c.Prev()
	case "CUR":
		key, value, positioned = c.Current()
	case "SEEK":
		key, value, positioned = c.Seek(seekKey)
	}

	if wantsBool {
		pushBool(env, positioned)
		return nil
	}
	if !positioned {
		env.Push(env.AllocCopy(nil))
		return nil
	}
	env.Push(env.AllocCopy(encodeBlob(key, value)))
	return nil
}

func toCursorID(raw []byte) ([8]byte, error) {
	var id [8]byte
	if len(raw) != 8 {
		return id, errBadCursorID
	}
	copy(id[:], raw)
	return id, nil
}

var errBadCursorID = vm.ErrInvalidValue(nil)

func pushBool(env *vm.Env, v bool) {
	if v {
		env.Push([]byte{0x01})
	} else {
		env.Push([]byte{0x00})
	}
}

// encodeBlob builds the [keylen][key][vallen][val] concatenation
// ?CURSOR/<OP> pushes on success. The 4-byte big-endian length prefixes
// are an internal framing choice (spec.md leaves the width unspecified);
// it matches the stack family's WRAP framing for consistency.
func encodeBlob(key, value []byte) []byte {
	out := make([]byte, 0, 8+len(key)+len(value))
	out = appendLen(out, len(key))
	out = append(out, key...)
	out = appendLen(out, len(value))
	out = append(out, value...)
	return out
}

func appendLen(dst []byte, n int) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	return append(dst, b[:]...)
}

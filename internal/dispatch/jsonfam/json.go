// Package jsonfam implements the JSON inspection instruction family over
// raw UTF-8 byte strings, using zero-copy scanning rather than
// unmarshalling into Go values (spec.md §4.6.4).
package jsonfam

import (
	"github.com/buger/jsonparser"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
	bytestr "github.com/pumpkindb/pumpkindb/json"
)

var (
	stackTrue  = []byte{0x01}
	stackFalse = []byte{0x00}
)

type Handler struct{}

func New() *Handler { return &Handler{} }

func (h *Handler) Init(env *vm.Env) {}
func (h *Handler) Done(env *vm.Env) {}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	switch string(instr.Name) {
	case "JSON?":
		v, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		_, _, _, err := jsonparser.Get(v)
		pushBool(env, err == nil)
		return nil

	case "JSON/OBJECT?":
		return typeCheck(env, jsonparser.Object)
	case "JSON/STRING?":
		return typeCheck(env, jsonparser.String)
	case "JSON/NUMBER?":
		return typeCheck(env, jsonparser.Number)
	case "JSON/BOOLEAN?":
		return typeCheck(env, jsonparser.Boolean)
	case "JSON/ARRAY?":
		return typeCheck(env, jsonparser.Array)
	case "JSON/NULL?":
		return typeCheck(env, jsonparser.Null)

	case "JSON/GET":
		key, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		obj, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		val, _, _, err := jsonparser.Get(obj, bytestr.S(key))
		if err != nil {
			return vm.ErrInvalidValue(obj)
		}
		env.Push(env.AllocCopy(val))
		return nil

	case "JSON/HAS?":
		key, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		obj, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		_, _, _, err := jsonparser.Get(obj, bytestr.S(key))
		pushBool(env, err == nil)
		return nil

	case "JSON/SET":
		val, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		key, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		obj, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		out, err := jsonparser.Set(obj, val, bytestr.S(key))
		if err != nil {
			return vm.ErrInvalidValue(obj)
		}
		env.Push(env.AllocCopy(out))
		return nil

	case "JSON/STRING->":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		val, typ, _, err := jsonparser.Get(s)
		if err != nil || typ != jsonparser.String {
			return vm.ErrInvalidValue(s)
		}
		raw, err := jsonparser.ParseString(val)
		if err != nil {
			return vm.ErrInvalidValue(s)
		}
		env.Push(env.AllocCopy([]byte(raw)))
		return nil

	case "JSON/->STRING":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		out := make([]byte, 0, len(raw)+2)
		out = append(out, '"')
		out = appendEscaped(out, raw)
		out = append(out, '"')
		env.Push(env.AllocCopy(out))
		return nil

	default:
		return vm.ErrUnhandled
	}
}

func typeCheck(env *vm.Env, want jsonparser.ValueType) error {
	v, ok := env.Pop()
	if !ok {
		return vm.ErrEmptyStack()
	}
	_, actual, _, err := jsonparser.Get(v)
	pushBool(env, err == nil && actual == want)
	return nil
}

func pushBool(env *vm.Env, v bool) {
	if v {
		env.Push(stackTrue)
	} else {
		env.Push(stackFalse)
	}
}

func appendEscaped(dst, raw []byte) []byte {
	for _, b := range raw {
		switch b {
		case '"':
			dst = append(dst, '\\', '"')
		case '\\':
			dst = append(dst, '\\', '\\')
		case '\n':
			dst = append(dst, '\\', 'n')
		default:
			dst = append(dst, b)
		}
	}
	return dst
}

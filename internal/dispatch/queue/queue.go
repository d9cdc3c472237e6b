// Package queue implements the per-env double-ended byte-slice queue:
// >Q, Q>, <Q, Q<, Q? (spec.md §4.6.7).
package queue

import (
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

var (
	stackTrue  = []byte{0x01}
	stackFalse = []byte{0x00}
)

// Handler carries one deque per env, keyed by env id.
type Handler struct {
	queues map[vm.ID]*deque
}

func New() *Handler {
	return &Handler{queues: make(map[vm.ID]*deque)}
}

type deque struct {
	items [][]byte
}

func (h *Handler) Init(env *vm.Env) {
	h.queues[env.ID] = &deque{}
}

func (h *Handler) Done(env *vm.Env) {
	delete(h.queues, env.ID)
}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	q := h.queues[env.ID]
	switch string(instr.Name) {
	case ">Q":
		v, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		q.items = append(q.items, v)
		return nil

	case "Q>":
		n := len(q.items)
		if n == 0 {
			return vm.ErrEmptyStack()
		}
		v := q.items[n-1]
		q.items = q.items[:n-1]
		env.Push(v)
		return nil

	case "<Q":
		v, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		q.items = append([][]byte{v}, q.items...)
		return nil

	case "Q<":
		if len(q.items) == 0 {
			return vm.ErrEmptyStack()
		}
		v := q.items[0]
		q.items = q.items[1:]
		env.Push(v)
		return nil

	case "Q?":
		if len(q.items) > 0 {
			env.Push(stackTrue)
		} else {
			env.Push(stackFalse)
		}
		return nil

	default:
		return vm.ErrUnhandled
	}
}

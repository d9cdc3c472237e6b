// Package uuidfam implements the UUID instruction family: UUID/V4, UUID/V5,
// UUID/->STRING and UUID/STRING-> (spec.md §4.6.6), backed by
// github.com/google/uuid exactly as vm.ID already is.
package uuidfam

import (
	"github.com/google/uuid"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/vm"
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
	case "UUID/V4":
		id := uuid.New()
		raw := id[:]
		env.Push(env.AllocCopy(raw))
		return nil

	case "UUID/V5":
		name, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		ns, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		nsID, err := uuid.FromBytes(ns)
		if err != nil {
			return vm.ErrInvalidValue(ns)
		}
		id := uuid.NewSHA1(nsID, name)
		env.Push(env.AllocCopy(id[:]))
		return nil

	case "UUID/->STRING":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		id, err := uuid.FromBytes(raw)
		if err != nil {
			return vm.ErrInvalidValue(raw)
		}
		env.Push(env.AllocCopy([]byte(id.String())))
		return nil

	case "UUID/STRING->":
		s, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		id, err := uuid.Parse(string(s))
		if err != nil {
			return vm.ErrInvalidValue(s)
		}
		env.Push(env.AllocCopy(id[:]))
		return nil

	default:
		return vm.ErrUnhandled
	}
}

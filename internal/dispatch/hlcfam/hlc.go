// Package hlcfam exposes the HLC oracle to PScript programs: HLC, HLC/LC,
// HLC/TICK and HLC/OBSERVE (spec.md §4.6.5), grounded on the original
// engine's mod_hlc.rs instruction set. HLC/TICK and HLC/LC operate purely
// on the popped stamp bytes, not on the oracle's own state — only HLC and
// HLC/OBSERVE touch the oracle.
package hlcfam

import (
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/hlc"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

type Handler struct {
	oracle *hlc.Oracle
}

func New(oracle *hlc.Oracle) *Handler {
	return &Handler{oracle: oracle}
}

func (h *Handler) Init(env *vm.Env) {}
func (h *Handler) Done(env *vm.Env) {}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	switch string(instr.Name) {
	case "HLC":
		stamp := h.oracle.Now()
		env.Push(env.AllocCopy(stamp.Bytes()))
		return nil

	case "HLC/LC":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		stamp, err := hlc.Parse(raw)
		if err != nil {
			return vm.ErrInvalidValue(raw)
		}
		env.Push(env.AllocCopy(encodeCounter(stamp.Count)))
		return nil

	case "HLC/TICK":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		stamp, err := hlc.Parse(raw)
		if err != nil {
			return vm.ErrInvalidValue(raw)
		}
		stamp.Count++
		env.Push(env.AllocCopy(stamp.Bytes()))
		return nil

	case "HLC/OBSERVE":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		ext, err := hlc.Parse(raw)
		if err != nil {
			return vm.ErrInvalidValue(raw)
		}
		merged, err := h.oracle.Observe(ext)
		if err != nil {
			return vm.ErrDatabase(err.Error())
		}
		env.Push(env.AllocCopy(merged.Bytes()))
		return nil

	default:
		return vm.ErrUnhandled
	}
}

func encodeCounter(c uint32) []byte {
	return []byte{byte(c >> 24), byte(c >> 16), byte(c >> 8), byte(c)}
}

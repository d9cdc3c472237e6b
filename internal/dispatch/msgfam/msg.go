// Package msgfam implements PUBLISH/SUBSCRIBE/UNSUBSCRIBE (spec.md §4.6.8)
// against an internal/pubsub.Broker. The broker is a separate component
// with its own state; this handler only ever talks to it through
// Subscribe/Unsubscribe/Publish, never reaching into its internals.
package msgfam

import (
	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/pubsub"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

type Handler struct {
	broker *pubsub.Broker

	// active tracks each live env's own subscriptions so Done can tear
	// them all down when the env terminates without having unsubscribed
	// from them itself.
	active map[vm.ID][]pubsub.SubscriptionID
}

func New(broker *pubsub.Broker) *Handler {
	return &Handler{
		broker: broker,
		active: make(map[vm.ID][]pubsub.SubscriptionID),
	}
}

func (h *Handler) Init(env *vm.Env) {
	h.active[env.ID] = nil
}

func (h *Handler) Done(env *vm.Env) {
	for _, id := range h.active[env.ID] {
		h.broker.Unsubscribe(id)
	}
	delete(h.active, env.ID)
}

func (h *Handler) Handle(env *vm.Env, instr dispatch.Instruction) error {
	if instr.Internal {
		return vm.ErrUnhandled
	}
	switch string(instr.Name) {
	case "PUBLISH":
		topic, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		data, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		h.broker.Publish(string(topic), data)
		return nil

	case "SUBSCRIBE":
		topic, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		deliver, ok := env.DeliveryCallback()
		if !ok {
			// No delivery callback: SUBSCRIBE is a documented no-op, but
			// callers still expect an id to pop later, so push a zero id.
			env.Push(env.AllocCopy(make([]byte, 16)))
			return nil
		}
		id := h.broker.Subscribe(string(topic), deliver)
		h.active[env.ID] = append(h.active[env.ID], id)
		env.Push(env.AllocCopy(id[:]))
		return nil

	case "UNSUBSCRIBE":
		raw, ok := env.Pop()
		if !ok {
			return vm.ErrEmptyStack()
		}
		id, err := pubsub.ParseSubscriptionID(raw)
		if err != nil {
			return vm.ErrInvalidValue(raw)
		}
		h.broker.Unsubscribe(id)
		h.removeActive(env.ID, id)
		return nil

	default:
		return vm.ErrUnhandled
	}
}

func (h *Handler) removeActive(env vm.ID, id pubsub.SubscriptionID) {
	list := h.active[env]
	for i, existing := range list {
		if existing == id {
			h.active[env] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

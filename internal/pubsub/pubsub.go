// Package pubsub implements the topic broker behind the PUBLISH/SUBSCRIBE
// instruction family (spec.md §4.6.8), grounded on the original engine's
// messaging actor: a separate component with its own state that the
// engine only ever talks to through subscribe/unsubscribe/publish
// requests, never by reaching into its state directly.
package pubsub

import (
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"

	"github.com/pumpkindb/pumpkindb/internal/vm"
)

// SubscriptionID is the opaque id SUBSCRIBE pushes onto the stack and
// UNSUBSCRIBE later consumes.
type SubscriptionID = uuid.UUID

// ParseSubscriptionID decodes the 16-byte wire form SUBSCRIBE pushed.
func ParseSubscriptionID(raw []byte) (SubscriptionID, error) {
	return uuid.FromBytes(raw)
}

type subscription struct {
	topic   string
	deliver vm.DeliveryFunc
}

// Broker tracks subscriptions and fans out published messages. Safe for
// concurrent use by many scheduler goroutines at once.
type Broker struct {
	topics *xsync.MapOf[string, *xsync.MapOf[SubscriptionID, struct{}]]
	subs   *xsync.MapOf[SubscriptionID, subscription]
	log    zerolog.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger attaches structured logging.
func WithLogger(l zerolog.Logger) Option { return func(b *Broker) { b.log = l } }

// New creates an empty broker.
func New(opts ...Option) *Broker {
	b := &Broker{
		topics: xsync.NewMapOf[string, *xsync.MapOf[SubscriptionID, struct{}]](),
		subs:   xsync.NewMapOf[SubscriptionID, subscription](),
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers deliver to receive messages published on topic and
// returns the opaque id UNSUBSCRIBE later takes.
func (b *Broker) Subscribe(topic string, deliver vm.DeliveryFunc) SubscriptionID {
	id := uuid.New()
	b.subs.Store(id, subscription{topic: topic, deliver: deliver})
	members, _ := b.topics.LoadOrCompute(topic, func() *xsync.MapOf[SubscriptionID, struct{}] {
		return xsync.NewMapOf[SubscriptionID, struct{}]()
	})
	members.Store(id, struct{}{})
	return id
}

// Unsubscribe removes the subscription named by id, if it still exists.
func (b *Broker) Unsubscribe(id SubscriptionID) {
	sub, ok := b.subs.LoadAndDelete(id)
	if !ok {
		return
	}
	if members, ok := b.topics.Load(sub.topic); ok {
		members.Delete(id)
	}
}

// Publish delivers message to every current subscriber of topic. Delivery
// is synchronous and best-effort: a panicking subscriber does not stop
// delivery to the rest, but is logged.
func (b *Broker) Publish(topic string, message []byte) int {
	members, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	n := 0
	members.Range(func(id SubscriptionID, _ struct{}) bool {
		if sub, ok := b.subs.Load(id); ok {
			n++
			b.safeDeliver(id, sub.deliver, topic, message)
		}
		return true
	})
	return n
}

func (b *Broker) safeDeliver(id SubscriptionID, deliver vm.DeliveryFunc, topic string, message []byte) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Warn().Str("topic", topic).Stringer("subscription", id).Interface("panic", r).Msg("pubsub: subscriber delivery panicked")
		}
	}()
	deliver([]byte(topic), message)
}

// SubscriberCount reports how many subscriptions are currently active on
// topic, for diagnostics.
func (b *Broker) SubscriberCount(topic string) int {
	members, ok := b.topics.Load(topic)
	if !ok {
		return 0
	}
	n := 0
	members.Range(func(SubscriptionID, struct{}) bool {
		n++
		return true
	})
	return n
}

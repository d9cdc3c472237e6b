package msgfam

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pumpkindb/pumpkindb/internal/dispatch"
	"github.com/pumpkindb/pumpkindb/internal/pubsub"
	"github.com/pumpkindb/pumpkindb/internal/vm"
)

func newEnv() *vm.Env {
	return vm.New(vm.NewID(), nil, vm.DictFlat)
}

func TestSubscribeThenPublishDelivers(t *testing.T) {
	broker := pubsub.New()
	h := New(broker)
	env := newEnv()

	var receivedTopic, receivedMsg []byte
	env.SetDeliveryCallback(func(topic, message []byte) {
		receivedTopic = topic
		receivedMsg = message
	})
	h.Init(env)

	env.Push([]byte("weather"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("SUBSCRIBE")}))
	subID, ok := env.Pop()
	require.True(t, ok)
	require.Len(t, subID, 16)

	env.Push([]byte("sunny"))
	env.Push([]byte("weather"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("PUBLISH")}))

	require.Equal(t, []byte("weather"), receivedTopic)
	require.Equal(t, []byte("sunny"), receivedMsg)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	broker := pubsub.New()
	h := New(broker)
	env := newEnv()
	delivered := 0
	env.SetDeliveryCallback(func(topic, message []byte) { delivered++ })
	h.Init(env)

	env.Push([]byte("t"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("SUBSCRIBE")}))
	subID, _ := env.Pop()

	env.Push(subID)
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("UNSUBSCRIBE")}))

	env.Push([]byte("x"))
	env.Push([]byte("t"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("PUBLISH")}))
	require.Equal(t, 0, delivered)
}

func TestSubscribeWithNoCallbackIsNoop(t *testing.T) {
	broker := pubsub.New()
	h := New(broker)
	env := newEnv()
	h.Init(env)

	env.Push([]byte("t"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("SUBSCRIBE")}))
	id, ok := env.Pop()
	require.True(t, ok)
	require.Len(t, id, 16)
	require.Equal(t, 0, broker.SubscriberCount("t"))
}

func TestDoneTearsDownRemainingSubscriptions(t *testing.T) {
	broker := pubsub.New()
	h := New(broker)
	env := newEnv()
	env.SetDeliveryCallback(func(topic, message []byte) {})
	h.Init(env)

	env.Push([]byte("t"))
	require.NoError(t, h.Handle(env, dispatch.Instruction{Name: []byte("SUBSCRIBE")}))
	require.Equal(t, 1, broker.SubscriberCount("t"))

	h.Done(env)
	require.Equal(t, 0, broker.SubscriberCount("t"))
}

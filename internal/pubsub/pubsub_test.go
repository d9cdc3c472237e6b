package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New()
	var got []byte
	b.Subscribe("news", func(topic, message []byte) { got = message })
	n := b.Publish("news", []byte("hello"))
	require.Equal(t, 1, n)
	require.Equal(t, []byte("hello"), got)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	delivered := 0
	id := b.Subscribe("topic", func(topic, message []byte) { delivered++ })
	b.Publish("topic", []byte("one"))
	b.Unsubscribe(id)
	b.Publish("topic", []byte("two"))
	require.Equal(t, 1, delivered)
}

func TestPublishWithNoSubscribersReturnsZero(t *testing.T) {
	b := New()
	require.Equal(t, 0, b.Publish("nobody-home", []byte("x")))
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := New()
	count := 0
	b.Subscribe("t", func(topic, message []byte) { count++ })
	b.Subscribe("t", func(topic, message []byte) { count++ })
	b.Publish("t", []byte("x"))
	require.Equal(t, 2, count)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New()
	delivered := false
	b.Subscribe("t", func(topic, message []byte) { panic("boom") })
	b.Subscribe("t", func(topic, message []byte) { delivered = true })
	require.NotPanics(t, func() { b.Publish("t", []byte("x")) })
	require.True(t, delivered)
}

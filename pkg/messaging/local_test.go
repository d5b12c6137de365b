package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBrokerRoundTrip(t *testing.T) {
	broker := NewLocalBroker()
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *Message, 1)
	var payload struct {
		Text string `json:"text"`
	}
	err := Consume(ctx, broker, ChannelTransferMessages, func(_ context.Context, raw []byte) error {
		msg, err := Decode(raw, &payload)
		if err != nil {
			return err
		}
		received <- msg
		return nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, broker.Publish(ctx, ChannelTransferMessages, Message{
		Type:    "message.posted",
		Key:     "abc",
		Payload: map[string]string{"text": "bed 4 ready"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "message.posted", msg.Type)
		assert.Equal(t, "abc", msg.Key)
		assert.Equal(t, "bed 4 ready", payload.Text)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestLocalBrokerIgnoresOtherChannels(t *testing.T) {
	broker := NewLocalBroker()
	defer broker.Close()
	ctx := context.Background()

	ch, err := broker.Subscribe(ctx, ChannelTransferEvents)
	require.NoError(t, err)
	require.NoError(t, broker.Publish(ctx, ChannelTransferMessages, "hello"))

	select {
	case <-ch:
		t.Fatal("unexpected delivery")
	case <-time.After(50 * time.Millisecond):
	}
}

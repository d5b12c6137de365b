package messaging

import (
	"context"
	"encoding/json"
)

// Handler processes one raw payload received on a channel.
type Handler func(ctx context.Context, payload []byte) error

// Consume subscribes to channel and feeds every payload to handler until
// ctx is cancelled. Handler errors are reported to onErr and do not stop
// the loop.
func Consume(ctx context.Context, broker Broker, channel string, handler Handler, onErr func(error)) error {
	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			if err := handler(ctx, msg); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}()

	return nil
}

// Decode unmarshals an envelope and its payload into v.
func Decode(raw []byte, v interface{}) (*Message, error) {
	var env struct {
		Type    string          `json:"type"`
		Key     string          `json:"key"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if v != nil && len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return nil, err
		}
	}
	return &Message{Type: env.Type, Key: env.Key, Payload: v}, nil
}

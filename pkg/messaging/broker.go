package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels shared by the API and worker processes.
const (
	ChannelTransferEvents   = "transfer-events"
	ChannelTransferMessages = "transfer-messages"
)

// Message is the envelope published on every channel.
type Message struct {
	Type    string      `json:"type"`
	Key     string      `json:"key,omitempty"`
	Payload interface{} `json:"payload"`
}

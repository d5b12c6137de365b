package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/pkg/messaging"
)

// Forwarder returns a broker handler that relays coordination-channel
// messages to the websocket clients of the transfer they belong to.
func (h *Hub) Forwarder() messaging.Handler {
	return func(_ context.Context, raw []byte) error {
		var env struct {
			Type    string          `json:"type"`
			Key     string          `json:"key"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("failed to decode broker message: %w", err)
		}
		transferID, err := uuid.Parse(env.Key)
		if err != nil {
			return fmt.Errorf("broker message has no transfer key: %w", err)
		}

		h.Broadcast(Event{
			Type:      env.Type,
			Topic:     TransferTopic(transferID),
			Timestamp: time.Now().UTC(),
			Data:      env.Payload,
		})
		return nil
	}
}

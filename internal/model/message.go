package model

import (
	"time"

	"github.com/google/uuid"
)

// Message is an immutable entry on a transfer's coordination channel.
type Message struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TransferID uuid.UUID `json:"transfer_id" db:"transfer_id"`
	SenderID   uuid.UUID `json:"sender_id" db:"sender_id"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type PostMessageRequest struct {
	Message string `json:"message" binding:"required,max=4000"`
}

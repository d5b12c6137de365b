package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
)

type messageRepository struct {
	BaseRepository
}

func NewMessageRepository(base BaseRepository) repository.MessageRepository {
	return &messageRepository{base}
}

func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, transfer_id, sender_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if _, err := r.db.ExecContext(ctx, query, msg.ID, msg.TransferID, msg.SenderID, msg.Message, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

func (r *messageRepository) ListByTransfer(ctx context.Context, transferID uuid.UUID) ([]*model.Message, error) {
	query := `
		SELECT id, transfer_id, sender_id, message, created_at
		FROM messages
		WHERE transfer_id = $1
		ORDER BY created_at ASC
	`
	var messages []*model.Message
	if err := r.db.SelectContext(ctx, &messages, query, transferID); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

package message

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/messaging"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

const (
	TypeMessagePosted = "message.posted"
	maxMessageLength  = 4000
)

// TransferAuthorizer checks that an actor can see a transfer.
type TransferAuthorizer interface {
	Authorize(ctx context.Context, actor model.Actor, transferID uuid.UUID) error
}

// Service is the coordination channel of a transfer. Messages are stored
// first and then fanned out through the broker; delivery is best effort.
type Service struct {
	repo      repository.MessageRepository
	transfers TransferAuthorizer
	broker    messaging.Broker
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewService(repo repository.MessageRepository, transfers TransferAuthorizer, broker messaging.Broker, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	return &Service{
		repo:      repo,
		transfers: transfers,
		broker:    broker,
		logger:    logger,
		metrics:   metrics,
	}
}

func (s *Service) Post(ctx context.Context, actor model.Actor, transferID uuid.UUID, text string) (*model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.BadRequest("message is required", nil)
	}
	if len(text) > maxMessageLength {
		return nil, apperrors.BadRequest("message is too long", nil)
	}
	if err := s.transfers.Authorize(ctx, actor, transferID); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:         uuid.New(),
		TransferID: transferID,
		SenderID:   actor.ActorID(),
		Message:    text,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}
	s.metrics.MessagesPosted.Inc()

	if err := s.broker.Publish(ctx, messaging.ChannelTransferMessages, messaging.Message{
		Type:    TypeMessagePosted,
		Key:     transferID.String(),
		Payload: msg,
	}); err != nil {
		s.logger.Warn("failed to publish message",
			"transfer_id", transferID.String(),
			"message_id", msg.ID.String(),
			"error", err.Error())
	}
	return msg, nil
}

func (s *Service) List(ctx context.Context, actor model.Actor, transferID uuid.UUID) ([]*model.Message, error) {
	if err := s.transfers.Authorize(ctx, actor, transferID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListByTransfer(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return msgs, nil
}

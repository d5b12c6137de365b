package message

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/memory"
	apperrors "github.com/jwalitptl/carebridge/pkg/errors"
	"github.com/jwalitptl/carebridge/pkg/logger"
	"github.com/jwalitptl/carebridge/pkg/messaging"
	"github.com/jwalitptl/carebridge/pkg/metrics"
)

type mockAuthorizer struct{ mock.Mock }

func (m *mockAuthorizer) Authorize(ctx context.Context, actor model.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

type mockBroker struct{ mock.Mock }

func (m *mockBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return m.Called(ctx, channel, message).Error(0)
}

func (m *mockBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	ch, _ := args.Get(0).(<-chan []byte)
	return ch, args.Error(1)
}

func (m *mockBroker) Close() error { return m.Called().Error(0) }

func TestPostStoresAndPublishes(t *testing.T) {
	store := memory.NewStore()
	auth := &mockAuthorizer{}
	broker := &mockBroker{}
	svc := NewService(store.Messages(), auth, broker, logger.Nop(), metrics.New("test"))

	ctx := context.Background()
	transferID := uuid.New()
	actor := model.HospitalActor{ID: uuid.New()}

	auth.On("Authorize", ctx, actor, transferID).Return(nil)
	broker.On("Publish", ctx, messaging.ChannelTransferMessages, mock.MatchedBy(func(m messaging.Message) bool {
		return m.Type == TypeMessagePosted && m.Key == transferID.String()
	})).Return(nil).Once()

	msg, err := svc.Post(ctx, actor, transferID, "  ambulance dispatched  ")
	require.NoError(t, err)
	assert.Equal(t, "ambulance dispatched", msg.Message)
	assert.Equal(t, actor.ID, msg.SenderID)

	list, err := svc.List(ctx, actor, transferID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, msg.ID, list[0].ID)

	broker.AssertExpectations(t)
}

func TestPostSurvivesBrokerFailure(t *testing.T) {
	store := memory.NewStore()
	auth := &mockAuthorizer{}
	broker := &mockBroker{}
	svc := NewService(store.Messages(), auth, broker, logger.Nop(), metrics.New("test"))

	auth.On("Authorize", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	_, err := svc.Post(context.Background(), model.HospitalActor{ID: uuid.New()}, uuid.New(), "hello")
	assert.NoError(t, err)
}

func TestPostRequiresVisibility(t *testing.T) {
	store := memory.NewStore()
	auth := &mockAuthorizer{}
	broker := &mockBroker{}
	svc := NewService(store.Messages(), auth, broker, logger.Nop(), metrics.New("test"))

	auth.On("Authorize", mock.Anything, mock.Anything, mock.Anything).Return(apperrors.Forbidden("no"))

	_, err := svc.Post(context.Background(), model.AdminActor{ID: uuid.New()}, uuid.New(), "hello")
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = svc.List(context.Background(), model.AdminActor{ID: uuid.New()}, uuid.New())
	assert.Equal(t, apperrors.ErrForbidden, apperrors.CodeOf(err))

	_, err = svc.Post(context.Background(), model.AdminActor{ID: uuid.New()}, uuid.New(), "   ")
	assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err))

	broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/internal/model"
	"github.com/jwalitptl/carebridge/internal/repository/memory"
	"github.com/jwalitptl/carebridge/pkg/logger"
)

func TestOutboxCleanupKeepsUnprocessed(t *testing.T) {
	store := memory.NewStore()
	repo := store.Outbox()
	ctx := context.Background()

	processed := &model.OutboxEvent{EventType: model.EventTransferRequested, Payload: []byte(`{}`)}
	failed := &model.OutboxEvent{EventType: model.EventTransferAccepted, Payload: []byte(`{}`)}
	pending := &model.OutboxEvent{EventType: model.EventTransferCompleted, Payload: []byte(`{}`)}
	for _, e := range []*model.OutboxEvent{processed, failed, pending} {
		require.NoError(t, repo.Create(ctx, e))
	}
	require.NoError(t, repo.MarkProcessed(ctx, processed.ID))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "sink down"))

	time.Sleep(5 * time.Millisecond)

	w := NewOutboxCleanupWorker(repo, time.Millisecond, time.Hour, logger.Nop())
	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var left []string
	for _, e := range store.OutboxEvents() {
		left = append(left, e.Status)
	}
	assert.ElementsMatch(t, []string{string(model.OutboxStatusFailed), string(model.OutboxStatusPending)}, left)

	n, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/carebridge/pkg/metrics"
)

func TestPublishOpensBreakerOnRepeatedFailures(t *testing.T) {
	// Nothing listens on this port, so every publish fails fast.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	log := zerolog.Nop()
	b := newBroker(client, Config{FailureThreshold: 2, OpenTimeout: time.Minute}, &log, metrics.New("test"))
	ctx := context.Background()

	require.Error(t, b.Publish(ctx, "transfer-messages", "one"))
	require.Error(t, b.Publish(ctx, "transfer-messages", "two"))

	err := b.Publish(ctx, "transfer-messages", "three")
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, gobreaker.StateOpen, b.cb.State())
}

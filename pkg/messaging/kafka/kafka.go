// Package kafka publishes outbox events to Kafka topics. Each channel maps
// to a topic of the same name.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/carebridge/pkg/messaging"
)

type Config struct {
	Brokers      []string
	GroupID      string
	BatchTimeout time.Duration
}

type Broker struct {
	writer *kafka.Writer
	config Config
	logger *zerolog.Logger
}

func NewBroker(config Config, logger *zerolog.Logger) (*Broker, error) {
	if len(config.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	batch := config.BatchTimeout
	if batch == 0 {
		batch = 10 * time.Millisecond
	}

	return &Broker{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(config.Brokers...),
			Balancer:               &kafka.LeastBytes{},
			BatchTimeout:           batch,
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		config: config,
		logger: logger,
	}, nil
}

func (b *Broker) Publish(ctx context.Context, channel string, message interface{}) error {
	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	msg := kafka.Message{Topic: channel, Value: value, Time: time.Now()}
	if env, ok := message.(messaging.Message); ok && env.Key != "" {
		// Same key, same partition: per-transfer ordering is kept.
		msg.Key = []byte(env.Key)
	}

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to topic %s: %w", channel, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.Brokers,
		Topic:    channel,
		GroupID:  b.config.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	msgChan := make(chan []byte, 100)
	go func() {
		defer func() {
			reader.Close()
			close(msgChan)
		}()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					b.logger.Error().Err(err).Str("topic", channel).Msg("kafka read failed")
				}
				return
			}
			select {
			case msgChan <- m.Value:
			case <-ctx.Done():
				return
			}
		}
	}()
	return msgChan, nil
}

func (b *Broker) Close() error {
	return b.writer.Close()
}

var _ messaging.Broker = (*Broker)(nil)

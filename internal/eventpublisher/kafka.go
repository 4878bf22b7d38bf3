package eventpublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "ledger_events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON messages keyed by account id, so that
// events of one account land on one partition in commit order.
type Kafka struct {
	writer messageWriter
}

// NewKafka returns a publisher writing to the given topic.
func NewKafka(brokers []string, topic string) *Kafka {
	if topic == "" {
		topic = DefaultTopic
	}

	return &Kafka{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// Publish writes all the events in one batch.
func (k *Kafka) Publish(ctx context.Context, events ...domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	msgs, err := messages(events)
	if err != nil {
		return err
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int("events", len(events)).Send()
		return fmt.Errorf("write messages: %w", err)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}

func messages(events []domain.Event) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(events))

	for i, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal event %s: %w", e.ID, err)
		}

		msgs[i] = kafka.Message{
			Key:   []byte(strconv.FormatInt(e.AccountID, 10)),
			Value: value,
			Time:  e.CreatedAt,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		}
	}

	return msgs, nil
}

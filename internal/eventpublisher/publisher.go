// Package eventpublisher delivers ledger events of committed operations.
package eventpublisher

import (
	"context"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// PublishCloser is a publisher holding resources released by Close.
type PublishCloser interface {
	Publish(ctx context.Context, events ...domain.Event) error
	Close() error
}

// New returns a Kafka publisher, or Nop when no brokers are given.
func New(brokers []string, topic string) PublishCloser {
	if len(brokers) == 0 {
		return Nop{}
	}

	return NewKafka(brokers, topic)
}

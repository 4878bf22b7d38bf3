package eventpublisher

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// Nop drops events. It is used when no brokers are configured.
type Nop struct{}

// Publish logs the events at debug level and drops them.
func (Nop) Publish(ctx context.Context, events ...domain.Event) error {
	l := zerolog.Ctx(ctx)

	for _, e := range events {
		l.Debug().
			Str("event_type", string(e.Type)).
			Int64("account_id", e.AccountID).
			Str("amount", e.Amount.String()).
			Msg("event dropped")
	}

	return nil
}

// Close does nothing.
func (Nop) Close() error { return nil }

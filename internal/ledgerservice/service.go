// Package ledgerservice manages balance mutations of accounts.
//
// Every operation reads the current state, validates it, mutates a copy and
// hands it to a compare-and-swap save. A save rejected because a concurrent
// writer got there first is retried from the read, up to Options.MaxAttempts.
package ledgerservice

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// Default options.
const (
	DefaultMaxAttempts  = 5
	DefaultRetryBackoff = 10 * time.Millisecond
)

// Repo provides data access layer interface needed by ledger service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package ledgerservice
type Repo interface {
	Get(ctx context.Context, id int64) (domain.Account, error)
	Save(ctx context.Context, a domain.Account) (domain.Account, error)
	SaveAll(ctx context.Context, accounts ...domain.Account) ([]domain.Account, error)
}

// Publisher delivers events about committed balance changes.
type Publisher interface {
	Publish(ctx context.Context, events ...domain.Event) error
}

// Options tunes the retry behaviour of the service.
type Options struct {
	// MaxAttempts bounds the number of read-validate-save rounds per operation.
	MaxAttempts int
	// RetryBackoff is the base pause between rounds, grown linearly and jittered.
	RetryBackoff time.Duration
}

// Service facilitates ledger service layer logic.
type Service struct {
	repo      Repo
	publisher Publisher
	opts      Options
	now       func() time.Time
}

// New returns ledger service struct to manage balance mutations.
//
// publisher may be nil, then no events are sent.
func New(repo Repo, publisher Publisher, opts Options) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	if opts.RetryBackoff < 0 {
		opts.RetryBackoff = 0
	}

	return &Service{
		repo:      repo,
		publisher: publisher,
		opts:      opts,
		now:       time.Now,
	}
}

// Pay withdraws amount from the account balance.
func (s *Service) Pay(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if !amount.IsPositive() || !moneypkg.InRange(amount) {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	var saved domain.Account

	err := s.retry(ctx, func() error {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		if !a.CanCover(amount) {
			return domain.ErrInsufficientBalance
		}

		a.Balance = a.Balance.Sub(amount)

		saved, err = s.repo.Save(ctx, a)

		return err
	})
	if err != nil {
		l.Info().Err(err).Int64("account_id", id).Str("amount", amount.String()).Msg("pay failed")
		return domain.Account{}, err
	}

	s.publish(ctx, s.event(domain.EventPay, saved, 0, amount.Neg()))

	return saved, nil
}

// Refund adds amount to the account balance.
//
// There is no upper bound on the refunded amount other than the largest
// storable balance.
func (s *Service) Refund(ctx context.Context, id int64, amount decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if !amount.IsPositive() || !moneypkg.InRange(amount) {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	var saved domain.Account

	err := s.retry(ctx, func() error {
		a, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}

		a.Balance = a.Balance.Add(amount)
		if !moneypkg.InRange(a.Balance) {
			return domain.ErrBalanceLimit
		}

		saved, err = s.repo.Save(ctx, a)

		return err
	})
	if err != nil {
		l.Info().Err(err).Int64("account_id", id).Str("amount", amount.String()).Msg("refund failed")
		return domain.Account{}, err
	}

	s.publish(ctx, s.event(domain.EventRefund, saved, 0, amount))

	return saved, nil
}

// Transfer moves amount between two accounts.
//
// Both balances are saved by a single SaveAll, so either both change or none.
func (s *Service) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) (domain.TransferResult, error) {
	l := zerolog.Ctx(ctx)

	if !amount.IsPositive() || !moneypkg.InRange(amount) {
		return domain.TransferResult{}, domain.ErrInvalidAmount
	}

	if fromID == toID {
		return domain.TransferResult{}, domain.ErrSameAccount
	}

	var result domain.TransferResult

	err := s.retry(ctx, func() error {
		from, to, err := s.getPair(ctx, fromID, toID)
		if err != nil {
			return err
		}

		if !from.CanCover(amount) {
			return domain.ErrInsufficientBalance
		}

		from.Balance = from.Balance.Sub(amount)
		to.Balance = to.Balance.Add(amount)
		if !moneypkg.InRange(to.Balance) {
			return domain.ErrBalanceLimit
		}

		saved, err := s.repo.SaveAll(ctx, from, to)
		if err != nil {
			return err
		}

		if len(saved) != 2 {
			return fmt.Errorf("%w: SaveAll returned %d accounts", domain.ErrPersistence, len(saved))
		}

		result = domain.TransferResult{
			FromAccount: saved[0],
			ToAccount:   saved[1],
			Amount:      amount,
		}

		return nil
	})
	if err != nil {
		l.Info().Err(err).
			Int64("from_account_id", fromID).
			Int64("to_account_id", toID).
			Str("amount", amount.String()).
			Msg("transfer failed")

		return domain.TransferResult{}, err
	}

	s.publish(ctx,
		s.event(domain.EventTransfer, result.FromAccount, toID, amount.Neg()),
		s.event(domain.EventTransfer, result.ToAccount, fromID, amount),
	)

	return result, nil
}

// getPair reads both accounts in ascending id order.
func (s *Service) getPair(ctx context.Context, fromID, toID int64) (domain.Account, domain.Account, error) {
	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.repo.Get(ctx, firstID)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}

	second, err := s.repo.Get(ctx, secondID)
	if err != nil {
		return domain.Account{}, domain.Account{}, err
	}

	if first.ID == fromID {
		return first, second, nil
	}

	return second, first, nil
}

// retry runs fn until it succeeds, fails with an error other than
// domain.ErrConflict, or the attempts are exhausted.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	l := zerolog.Ctx(ctx)

	for attempt := 1; ; attempt++ {
		err := fn()

		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrLockTimeout):
			return domain.ErrContention
		case !errors.Is(err, domain.ErrConflict):
			return err
		}

		if attempt >= s.opts.MaxAttempts {
			l.Warn().Int("attempts", attempt).Msg("retry budget exhausted")
			return domain.ErrContention
		}

		l.Debug().Int("attempt", attempt).Msg("version conflict, retrying")

		if err := s.sleep(ctx, attempt); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrContention, err)
		}
	}
}

func (s *Service) sleep(ctx context.Context, attempt int) error {
	if s.opts.RetryBackoff == 0 {
		return ctx.Err()
	}

	d := time.Duration(attempt)*s.opts.RetryBackoff + time.Duration(rand.Int63n(int64(s.opts.RetryBackoff)))

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) event(typ domain.EventType, a domain.Account, counterpartyID int64, amount decimal.Decimal) domain.Event {
	return domain.Event{
		ID:             uuid.New(),
		Type:           typ,
		AccountID:      a.ID,
		CounterpartyID: counterpartyID,
		Amount:         amount,
		Balance:        a.Balance,
		Version:        a.Version,
		CreatedAt:      s.now().UTC(),
	}
}

// publish sends the events of an already committed operation.
//
// A failure cannot undo the commit, so it is only logged.
func (s *Service) publish(ctx context.Context, events ...domain.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, events...); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("events", len(events)).Msg("cannot publish ledger events")
	}
}

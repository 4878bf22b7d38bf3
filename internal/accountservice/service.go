// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, name string, balance decimal.Decimal) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	List(ctx context.Context, limit, offset int32) ([]domain.Account, error)
	Delete(ctx context.Context, id int64) error
}

// Service facilitates account service layer logic.
type Service struct {
	repo Repo
}

// New returns account service struct to manage account bussines logic.
func New(ar Repo) *Service {
	return &Service{repo: ar}
}

// Create creates and returns account with the given name and initial balance.
func (s *Service) Create(ctx context.Context, name, initialBalance string) (domain.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}

	balance, ok := moneypkg.Parse(initialBalance)
	if !ok {
		return domain.Account{}, domain.ErrInvalidAmount
	}

	if balance.IsNegative() {
		return domain.Account{}, domain.ErrNegativeBalance
	}

	account, err := s.repo.Create(ctx, name, balance)
	if err != nil {
		return domain.Account{}, err
	}

	zerolog.Ctx(ctx).Info().Int64("account_id", account.ID).Msg("account created")

	return account, nil
}

// Get returns account for the given account ID.
func (s *Service) Get(ctx context.Context, id int64) (domain.Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	return account, nil
}

// List returns the requested page of accounts.
//
// Pages starting past the largest representable offset are empty.
func (s *Service) List(ctx context.Context, pageSize, pageID int32) ([]domain.Account, error) {
	if pageSize <= 0 || pageID <= 0 {
		return []domain.Account{}, nil
	}

	offset := (int64(pageID) - 1) * int64(pageSize)
	if offset > math.MaxInt32 {
		return []domain.Account{}, nil
	}

	accounts, err := s.repo.List(ctx, pageSize, int32(offset))
	if err != nil {
		return nil, err
	}

	return accounts, nil
}

// Delete removes the account with the given ID.
//
// An account locked by an in-flight mutation for too long is reported as
// domain.ErrContention.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			return domain.ErrContention
		}

		return err
	}

	zerolog.Ctx(ctx).Info().Int64("account_id", id).Msg("account deleted")

	return nil
}

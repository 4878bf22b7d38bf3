package accountrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// PostgreSQL error codes mapped to domain errors.
const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqNumericOverflow      = "22003"
)

// RepoPGS facilitates account repository layer logic on PostgreSQL.
type RepoPGS struct {
	db          dbpkg.SQLInterface
	conn        *sql.DB
	lockTimeout time.Duration
}

// NewRepoPGS returns account RepoPGS with connection to start transactions.
func NewRepoPGS(db *sql.DB, lockTimeout time.Duration) *RepoPGS {
	return &RepoPGS{
		db:          db,
		conn:        db,
		lockTimeout: lockTimeout,
	}
}

const createQuery = `
INSERT INTO
    accounts (name, balance)
VALUES
    ($1, $2)
RETURNING id, name, balance, version, created_at
`

// Create creates the account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, name string, balance decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, name, balance)

	a, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Send()

		switch mapped := mapPQError(err); mapped {
		case domain.ErrInsufficientBalance:
			return a, domain.ErrNegativeBalance
		case domain.ErrBalanceLimit:
			return a, mapped
		}

		return a, domain.ErrPersistence
	}

	return a, nil
}

const getQuery = `
SELECT
	id, name, balance, version, created_at
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return a, domain.ErrPersistence
	}

	return a, nil
}

const listQuery = `
SELECT
	id, name, balance, version, created_at
FROM accounts
ORDER BY id
LIMIT $1 OFFSET $2
`

// List returns the specified number of accounts ordered by id.
func (r *RepoPGS) List(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrPersistence
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrPersistence
		}

		items = append(items, a)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrPersistence
	}

	return items, nil
}

const deleteQuery = `
DELETE FROM accounts
WHERE id = $1
`

// Delete removes the account with the given id.
func (r *RepoPGS) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	res, err := r.db.ExecContext(ctx, deleteQuery, id)
	if err != nil {
		l.Error().Err(err).Send()
		return mapPQError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		l.Error().Err(err).Send()
		return domain.ErrPersistence
	}

	if n == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// Save stores the account if its version matches the stored version and
// returns the stored copy with the version incremented.
func (r *RepoPGS) Save(ctx context.Context, a domain.Account) (domain.Account, error) {
	saved, err := r.SaveAll(ctx, a)
	if err != nil {
		return domain.Account{}, err
	}

	return saved[0], nil
}

// SaveAll stores all the accounts within a single transaction.
//
// The result is in the order of the arguments.
func (r *RepoPGS) SaveAll(ctx context.Context, accounts ...domain.Account) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	// To avoid deadlocks execute statements in consistent id order
	ordered := make([]domain.Account, len(accounts))
	copy(ordered, accounts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	byID := make(map[int64]domain.Account, len(accounts))

	err := dbpkg.ExecTx(ctx, r.conn, func(tx *sql.Tx) error {
		if err := r.setLockTimeout(ctx, tx); err != nil {
			return err
		}

		for _, a := range ordered {
			saved, err := update(ctx, tx, a)
			if err != nil {
				return err
			}

			byID[saved.ID] = saved
		}

		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}

		l.Error().Err(err).Send()

		return nil, mapPQError(err)
	}

	saved := make([]domain.Account, len(accounts))
	for i, a := range accounts {
		saved[i] = byID[a.ID]
	}

	return saved, nil
}

const lockTimeoutQuery = `SELECT set_config('lock_timeout', $1, true)`

func (r *RepoPGS) setLockTimeout(ctx context.Context, tx *sql.Tx) error {
	if r.lockTimeout <= 0 {
		return nil
	}

	ms := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
	_, err := tx.ExecContext(ctx, lockTimeoutQuery, ms)

	return err
}

const updateQuery = `
UPDATE accounts
SET name = $1, balance = $2, version = version + 1
WHERE id = $3 AND version = $4
RETURNING id, name, balance, version, created_at
`

const versionQuery = `
SELECT version FROM accounts
WHERE id = $1
`

func update(ctx context.Context, q dbpkg.SQLInterface, a domain.Account) (domain.Account, error) {
	saved, err := scanAccount(q.QueryRowContext(ctx, updateQuery, a.Name, a.Balance, a.ID, a.Version))
	if err == nil {
		return saved, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return saved, err
	}

	// Nothing matched: the account is either gone or has a newer version.
	var version int64
	if err := q.QueryRowContext(ctx, versionQuery, a.ID).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return saved, domain.ErrAccountNotFound
		}
		return saved, err
	}

	return saved, domain.ErrConflict
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Balance,
		&a.Version,
		&a.CreatedAt,
	)

	return a, err
}

func mapPQError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return domain.ErrPersistence
	}

	if pqErr.Constraint == "accounts_balance_check" {
		return domain.ErrInsufficientBalance
	}

	switch pqErr.Code {
	case pqLockNotAvailable:
		return domain.ErrLockTimeout
	case pqSerializationFailure, pqDeadlockDetected:
		return domain.ErrConflict
	case pqNumericOverflow:
		return domain.ErrBalanceLimit
	}

	return domain.ErrPersistence
}

var domainErrors = []error{
	domain.ErrAccountNotFound,
	domain.ErrConflict,
	domain.ErrLockTimeout,
	domain.ErrInsufficientBalance,
	domain.ErrBalanceLimit,
	domain.ErrPersistence,
}

func isDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

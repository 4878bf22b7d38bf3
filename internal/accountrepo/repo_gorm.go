package accountrepo

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/go-petr/pet-ledger/internal/domain"
)

// MySQL error numbers mapped to domain errors.
const (
	myLockWaitTimeout  = 1205
	myDeadlock         = 1213
	myCheckConstraint  = 3819
	myOutOfRange       = 1264
	minLockWaitSeconds = 1
)

// accountModel maps the accounts table.
type accountModel struct {
	ID        int64           `gorm:"primaryKey;autoIncrement"`
	Name      string          `gorm:"size:255;not null"`
	Balance   decimal.Decimal `gorm:"type:decimal(19,4);not null;check:accounts_balance_check,balance >= 0"`
	Version   int64           `gorm:"not null;default:0"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (accountModel) TableName() string {
	return "accounts"
}

func (m accountModel) toDomain() domain.Account {
	return domain.Account{
		ID:        m.ID,
		Name:      m.Name,
		Balance:   m.Balance,
		Version:   m.Version,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

// RepoGORM facilitates account repository layer logic on MySQL through GORM.
type RepoGORM struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewRepoGORM returns account RepoGORM.
func NewRepoGORM(db *gorm.DB, lockTimeout time.Duration) *RepoGORM {
	return &RepoGORM{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

// Migrate creates or updates the accounts table.
func (r *RepoGORM) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&accountModel{})
}

// Create creates the account and then returns it.
func (r *RepoGORM) Create(ctx context.Context, name string, balance decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	m := accountModel{
		Name:      name,
		Balance:   balance,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		l.Error().Err(err).Send()

		switch mapped := mapMySQLError(err); mapped {
		case domain.ErrInsufficientBalance:
			return domain.Account{}, domain.ErrNegativeBalance
		case domain.ErrBalanceLimit:
			return domain.Account{}, mapped
		}

		return domain.Account{}, domain.ErrPersistence
	}

	return m.toDomain(), nil
}

// Get returns the account with the given id.
func (r *RepoGORM) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	var m accountModel

	err := r.db.WithContext(ctx).First(&m, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, domain.ErrPersistence
	}

	return m.toDomain(), nil
}

// List returns the specified number of accounts ordered by id.
func (r *RepoGORM) List(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	var models []accountModel

	err := r.db.WithContext(ctx).Order("id").Limit(int(limit)).Offset(int(offset)).Find(&models).Error
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrPersistence
	}

	items := make([]domain.Account, 0, len(models))
	for _, m := range models {
		items = append(items, m.toDomain())
	}

	return items, nil
}

// Delete removes the account with the given id.
func (r *RepoGORM) Delete(ctx context.Context, id int64) error {
	l := zerolog.Ctx(ctx)

	res := r.db.WithContext(ctx).Delete(&accountModel{}, id)
	if res.Error != nil {
		l.Error().Err(res.Error).Send()
		return mapMySQLError(res.Error)
	}

	if res.RowsAffected == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// Save stores the account if its version matches the stored version and
// returns the stored copy with the version incremented.
func (r *RepoGORM) Save(ctx context.Context, a domain.Account) (domain.Account, error) {
	saved, err := r.SaveAll(ctx, a)
	if err != nil {
		return domain.Account{}, err
	}

	return saved[0], nil
}

// SaveAll stores all the accounts within a single transaction.
//
// The result is in the order of the arguments.
func (r *RepoGORM) SaveAll(ctx context.Context, accounts ...domain.Account) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	// To avoid deadlocks execute statements in consistent id order
	ordered := make([]domain.Account, len(accounts))
	copy(ordered, accounts)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	byID := make(map[int64]domain.Account, len(accounts))

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.setLockTimeout(tx); err != nil {
			return err
		}

		for _, a := range ordered {
			saved, err := updateModel(tx, a)
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

		return nil, mapMySQLError(err)
	}

	saved := make([]domain.Account, len(accounts))
	for i, a := range accounts {
		saved[i] = byID[a.ID]
	}

	return saved, nil
}

func (r *RepoGORM) setLockTimeout(tx *gorm.DB) error {
	if r.lockTimeout <= 0 {
		return nil
	}

	// innodb_lock_wait_timeout has a one second granularity.
	seconds := int(math.Ceil(r.lockTimeout.Seconds()))
	if seconds < minLockWaitSeconds {
		seconds = minLockWaitSeconds
	}

	return tx.Exec("SET SESSION innodb_lock_wait_timeout = ?", seconds).Error
}

func updateModel(tx *gorm.DB, a domain.Account) (domain.Account, error) {
	res := tx.Model(&accountModel{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"name":    a.Name,
			"balance": a.Balance,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return domain.Account{}, res.Error
	}

	var m accountModel

	if res.RowsAffected == 0 {
		// Nothing matched: the account is either gone or has a newer version.
		err := tx.Select("id", "version").First(&m, a.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		if err != nil {
			return domain.Account{}, err
		}

		return domain.Account{}, domain.ErrConflict
	}

	if err := tx.First(&m, a.ID).Error; err != nil {
		return domain.Account{}, err
	}

	return m.toDomain(), nil
}

func mapMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return domain.ErrPersistence
	}

	switch myErr.Number {
	case myLockWaitTimeout:
		return domain.ErrLockTimeout
	case myDeadlock:
		return domain.ErrConflict
	case myCheckConstraint:
		return domain.ErrInsufficientBalance
	case myOutOfRange:
		return domain.ErrBalanceLimit
	}

	return domain.ErrPersistence
}

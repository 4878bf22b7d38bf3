// Package accountrepo manages repository layer of accounts.
//
// Every repository implements compare-and-swap saves: a write is accepted only
// if the version of the given account matches the stored one.
package accountrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// RepoMem is an in-memory account repository.
//
// Writers take a per-account lock, always in ascending id order, and wait for
// it at most lockTimeout. The map itself is guarded by mu, which is only held
// for the short read or write sections, so a reader never observes half of a
// multi-account save.
type RepoMem struct {
	mu       sync.RWMutex
	accounts map[int64]domain.Account
	locks    map[int64]chan struct{}
	nextID   int64

	lockTimeout time.Duration
	now         func() time.Time
}

// NewRepoMem returns an empty RepoMem.
//
// A non-positive lockTimeout makes writers wait until their context is done.
func NewRepoMem(lockTimeout time.Duration) *RepoMem {
	return &RepoMem{
		accounts:    make(map[int64]domain.Account),
		locks:       make(map[int64]chan struct{}),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// Create creates the account and then returns it.
func (r *RepoMem) Create(ctx context.Context, name string, balance decimal.Decimal) (domain.Account, error) {
	if balance.IsNegative() {
		return domain.Account{}, domain.ErrNegativeBalance
	}

	if !moneypkg.InRange(balance) {
		return domain.Account{}, domain.ErrBalanceLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++

	a := domain.Account{
		ID:        r.nextID,
		Name:      name,
		Balance:   balance,
		CreatedAt: r.now().UTC().Truncate(time.Microsecond),
	}
	r.accounts[a.ID] = a

	return a, nil
}

// Get returns the account with the given id.
func (r *RepoMem) Get(ctx context.Context, id int64) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// List returns the specified number of accounts ordered by id.
func (r *RepoMem) List(ctx context.Context, limit, offset int32) ([]domain.Account, error) {
	r.mu.RLock()
	items := make([]domain.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		items = append(items, a)
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	if offset < 0 || limit < 0 || int(offset) >= len(items) {
		return []domain.Account{}, nil
	}

	items = items[offset:]
	if int(limit) < len(items) {
		items = items[:limit]
	}

	return items, nil
}

// Delete removes the account with the given id.
//
// It waits for in-flight saves of the account to finish. The lock of the
// account is dropped with it.
func (r *RepoMem) Delete(ctx context.Context, id int64) error {
	unlock, err := r.lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[id]; !ok {
		return domain.ErrAccountNotFound
	}

	delete(r.accounts, id)
	delete(r.locks, id)

	return nil
}

// Save stores the account if its version matches the stored version and
// returns the stored copy with the version incremented.
func (r *RepoMem) Save(ctx context.Context, a domain.Account) (domain.Account, error) {
	saved, err := r.SaveAll(ctx, a)
	if err != nil {
		return domain.Account{}, err
	}

	return saved[0], nil
}

// SaveAll stores all the accounts or none of them.
//
// The result is in the order of the arguments. An id given twice is a
// conflict, as only one of the copies could be based on the stored version.
func (r *RepoMem) SaveAll(ctx context.Context, accounts ...domain.Account) ([]domain.Account, error) {
	ids := make([]int64, len(accounts))
	seen := make(map[int64]bool, len(accounts))

	for i, a := range accounts {
		if seen[a.ID] {
			return nil, domain.ErrConflict
		}

		seen[a.ID] = true
		ids[i] = a.ID
	}

	unlock, err := r.lock(ctx, ids...)
	if err != nil {
		return nil, err
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	saved := make([]domain.Account, len(accounts))

	for i, a := range accounts {
		stored, ok := r.accounts[a.ID]
		if !ok {
			return nil, domain.ErrAccountNotFound
		}

		if stored.Version != a.Version {
			return nil, domain.ErrConflict
		}

		if a.Balance.IsNegative() {
			return nil, domain.ErrInsufficientBalance
		}

		if !moneypkg.InRange(a.Balance) {
			return nil, domain.ErrBalanceLimit
		}

		saved[i] = domain.Account{
			ID:        stored.ID,
			Name:      a.Name,
			Balance:   a.Balance,
			Version:   stored.Version + 1,
			CreatedAt: stored.CreatedAt,
		}
	}

	for _, a := range saved {
		r.accounts[a.ID] = a
	}

	return saved, nil
}

// lock acquires the locks of the given accounts in ascending id order.
//
// On failure no lock is held.
func (r *RepoMem) lock(ctx context.Context, ids ...int64) (func(), error) {
	sorted := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))

	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			sorted = append(sorted, id)
		}
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var timeout <-chan time.Time
	if r.lockTimeout > 0 {
		timer := time.NewTimer(r.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, id := range sorted {
		ch := r.lockFor(id)

		select {
		case ch <- struct{}{}:
			held = append(held, ch)
			continue
		default:
		}

		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timeout:
			release()
			return nil, domain.ErrLockTimeout
		case <-ctx.Done():
			release()
			return nil, fmt.Errorf("%w: %v", domain.ErrLockTimeout, ctx.Err())
		}
	}

	return release, nil
}

// lockFor returns the lock of the account. Unknown ids get a lock that is not
// kept, so lookups of missing accounts do not grow the table.
func (r *RepoMem) lockFor(id int64) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.locks[id]
	if ok {
		return ch
	}

	ch = make(chan struct{}, 1)
	if _, exists := r.accounts[id]; exists {
		r.locks[id] = ch
	}

	return ch
}

package accountrepo

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/accountservice"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/pkg/randompkg"
)

type store interface {
	ledgerservice.Repo
	accountservice.Repo
}

// testStore runs the behaviour every repository must share against the
// store returned by newStore. newStore must return an empty store.
func testStore(t *testing.T, newStore func(t *testing.T) store) {
	t.Run("CreateGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		name := randompkg.Name()
		want, err := s.Create(ctx, name, decimal.RequireFromString("12.3456"))
		require.NoError(t, err)
		require.NotZero(t, want.ID)
		require.Equal(t, name, want.Name)
		require.Zero(t, want.Version)
		require.False(t, want.CreatedAt.IsZero())

		got, err := s.Get(ctx, want.ID)
		require.NoError(t, err)

		if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(time.Second)); diff != "" {
			t.Errorf("s.Get(ctx, %d) returned unexpected difference (-want +got):\n%s", want.ID, diff)
		}

		_, err = s.Get(ctx, want.ID+1000)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("List", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []int64
		for i := 0; i < 3; i++ {
			a, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(1))
			require.NoError(t, err)
			ids = append(ids, a.ID)
		}

		got, err := s.List(ctx, 2, 1)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, ids[1], got[0].ID)
		require.Equal(t, ids[2], got[1].ID)

		got, err = s.List(ctx, 2, 5)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("BalanceLimit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.Create(ctx, randompkg.Name(), decimal.New(1, 15))
		require.ErrorIs(t, err, domain.ErrBalanceLimit)

		a, err := s.Create(ctx, randompkg.Name(), decimal.RequireFromString("999999999999999.9999"))
		require.NoError(t, err)

		a.Balance = decimal.New(1, 15)
		_, err = s.Save(ctx, a)
		require.ErrorIs(t, err, domain.ErrBalanceLimit)
	})

	t.Run("SaveComparesVersion", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(100))
		require.NoError(t, err)

		a.Balance = decimal.NewFromInt(60)
		saved, err := s.Save(ctx, a)
		require.NoError(t, err)
		require.Equal(t, a.Version+1, saved.Version)
		require.True(t, decimal.NewFromInt(60).Equal(saved.Balance))

		a.Balance = decimal.NewFromInt(1)
		_, err = s.Save(ctx, a)
		require.ErrorIs(t, err, domain.ErrConflict)

		saved.Balance = decimal.NewFromInt(-1)
		_, err = s.Save(ctx, saved)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		got, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		require.Equal(t, int64(1), got.Version)
		require.True(t, decimal.NewFromInt(60).Equal(got.Balance))
	})

	t.Run("SaveAllIsAtomic", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a1, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(100))
		require.NoError(t, err)
		a2, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(50))
		require.NoError(t, err)

		a1.Balance = decimal.NewFromInt(70)
		a2.Balance = decimal.NewFromInt(-1)

		_, err = s.SaveAll(ctx, a2, a1)
		require.ErrorIs(t, err, domain.ErrInsufficientBalance)

		got1, err := s.Get(ctx, a1.ID)
		require.NoError(t, err)
		require.Zero(t, got1.Version)
		require.True(t, decimal.NewFromInt(100).Equal(got1.Balance))

		a2.Balance = decimal.NewFromInt(80)
		saved, err := s.SaveAll(ctx, a2, a1)
		require.NoError(t, err)
		require.Len(t, saved, 2)
		require.Equal(t, a2.ID, saved[0].ID)
		require.Equal(t, a1.ID, saved[1].ID)
		require.True(t, decimal.NewFromInt(80).Equal(saved[0].Balance))
		require.True(t, decimal.NewFromInt(70).Equal(saved[1].Balance))
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(5))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, a.ID))
		require.ErrorIs(t, s.Delete(ctx, a.ID), domain.ErrAccountNotFound)

		_, err = s.Get(ctx, a.ID)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)

		_, err = s.Save(ctx, a)
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
	})

	t.Run("ConcurrentOppositeSaveAll", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a1, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(100))
		require.NoError(t, err)
		a2, err := s.Create(ctx, randompkg.Name(), decimal.NewFromInt(100))
		require.NoError(t, err)

		move := func(fromID, toID int64) error {
			for {
				from, err := s.Get(ctx, fromID)
				if err != nil {
					return err
				}

				to, err := s.Get(ctx, toID)
				if err != nil {
					return err
				}

				from.Balance = from.Balance.Sub(decimal.NewFromInt(1))
				to.Balance = to.Balance.Add(decimal.NewFromInt(1))

				_, err = s.SaveAll(ctx, from, to)
				if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrLockTimeout) {
					continue
				}

				return err
			}
		}

		const n = 10

		var wg sync.WaitGroup
		errs := make(chan error, 2*n)

		for i := 0; i < n; i++ {
			wg.Add(2)

			go func() {
				defer wg.Done()
				errs <- move(a1.ID, a2.ID)
			}()

			go func() {
				defer wg.Done()
				errs <- move(a2.ID, a1.ID)
			}()
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			require.NoError(t, err)
		}

		got1, err := s.Get(ctx, a1.ID)
		require.NoError(t, err)
		got2, err := s.Get(ctx, a2.ID)
		require.NoError(t, err)

		require.True(t, decimal.NewFromInt(200).Equal(got1.Balance.Add(got2.Balance)))
		require.Equal(t, int64(2*n), got1.Version)
		require.Equal(t, int64(2*n), got2.Version)
	})
}

func TestRepoMemStore(t *testing.T) {
	testStore(t, func(t *testing.T) store {
		return NewRepoMem(time.Second)
	})
}

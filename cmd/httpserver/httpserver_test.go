package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/internal/domain"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	config := configpkg.Config{
		DBDriver:     configpkg.DriverMemory,
		MaxAttempts:  50,
		LockTimeout:  time.Second,
		RetryBackoff: time.Millisecond,
	}

	store, closeStore, err := OpenStore(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, closeStore()) })

	server, err := New(store, nil, zerolog.Nop(), config)
	require.NoError(t, err)

	return server
}

func do(t *testing.T, s *Server, method, path string, body any) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	recorder := httptest.NewRecorder()
	s.ServeHTTP(recorder, req)

	var res envelope
	if recorder.Body.Len() > 0 {
		require.NoError(t, json.NewDecoder(recorder.Body).Decode(&res))
	}

	return recorder.Code, res
}

func createAccount(t *testing.T, s *Server, balance string) domain.Account {
	t.Helper()

	code, res := do(t, s, http.MethodPost, "/accounts", gin.H{"name": "student", "balance": balance})
	require.Equal(t, http.StatusOK, code, res.Error)

	var data struct {
		Account domain.Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &data))

	return data.Account
}

func balanceOf(t *testing.T, s *Server, id int64) decimal.Decimal {
	t.Helper()

	code, res := do(t, s, http.MethodGet, fmt.Sprintf("/accounts/%d", id), nil)
	require.Equal(t, http.StatusOK, code, res.Error)

	var data struct {
		Account domain.Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &data))

	return data.Account.Balance
}

func TestLedgerFlow(t *testing.T) {
	s := newTestServer(t)

	a1 := createAccount(t, s, "100")
	a2 := createAccount(t, s, "50")

	code, res := do(t, s, http.MethodPost, fmt.Sprintf("/accounts/%d/payments", a1.ID), gin.H{"amount": "40"})
	require.Equal(t, http.StatusOK, code, res.Error)
	require.True(t, decimal.NewFromInt(60).Equal(balanceOf(t, s, a1.ID)))

	code, res = do(t, s, http.MethodPost, fmt.Sprintf("/accounts/%d/payments", a1.ID), gin.H{"amount": "100"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, domain.ErrInsufficientBalance.Error(), res.Error)
	require.True(t, decimal.NewFromInt(60).Equal(balanceOf(t, s, a1.ID)))

	code, res = do(t, s, http.MethodPost, fmt.Sprintf("/accounts/%d/refunds", a1.ID), gin.H{"amount": "40"})
	require.Equal(t, http.StatusOK, code, res.Error)

	code, res = do(t, s, http.MethodPost, "/transfers", gin.H{
		"from_account_id": a1.ID,
		"to_account_id":   a2.ID,
		"amount":          "30",
	})
	require.Equal(t, http.StatusOK, code, res.Error)
	require.True(t, decimal.NewFromInt(70).Equal(balanceOf(t, s, a1.ID)))
	require.True(t, decimal.NewFromInt(80).Equal(balanceOf(t, s, a2.ID)))

	code, _ = do(t, s, http.MethodPost, "/accounts/999/payments", gin.H{"amount": "10"})
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, s, http.MethodGet, "/accounts?page_id=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = do(t, s, http.MethodDelete, fmt.Sprintf("/accounts/%d", a2.ID), nil)
	require.Equal(t, http.StatusNoContent, code)

	code, _ = do(t, s, http.MethodPost, "/transfers", gin.H{
		"from_account_id": a1.ID,
		"to_account_id":   a2.ID,
		"amount":          "1",
	})
	require.Equal(t, http.StatusNotFound, code)
	require.True(t, decimal.NewFromInt(70).Equal(balanceOf(t, s, a1.ID)))
}

func TestOversizedInput(t *testing.T) {
	s := newTestServer(t)

	a := createAccount(t, s, "999999999999999")

	code, res := do(t, s, http.MethodPost, "/accounts", gin.H{"name": "huge", "balance": "1e50000000"})
	require.Equal(t, http.StatusBadRequest, code, res.Error)

	code, res = do(t, s, http.MethodPost, fmt.Sprintf("/accounts/%d/refunds", a.ID), gin.H{"amount": "1e50000000"})
	require.Equal(t, http.StatusBadRequest, code, res.Error)

	code, res = do(t, s, http.MethodPost, fmt.Sprintf("/accounts/%d/refunds", a.ID), gin.H{"amount": "1"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, domain.ErrBalanceLimit.Error(), res.Error)
	require.True(t, decimal.RequireFromString("999999999999999").Equal(balanceOf(t, s, a.ID)))

	code, res = do(t, s, http.MethodGet, "/accounts?page_id=2147483647&page_size=100", nil)
	require.Equal(t, http.StatusOK, code, res.Error)

	var page struct {
		Accounts []domain.Account `json:"accounts"`
	}
	require.NoError(t, json.Unmarshal(res.Data, &page))
	require.Empty(t, page.Accounts)
}

func transfer(s *Server, fromID, toID int64, amount string) int {
	body := fmt.Sprintf(`{"from_account_id":%d,"to_account_id":%d,"amount":%q}`, fromID, toID, amount)

	req := httptest.NewRequest(http.MethodPost, "/transfers", bytes.NewBufferString(body))
	recorder := httptest.NewRecorder()
	s.ServeHTTP(recorder, req)

	return recorder.Code
}

func TestConcurrentTransfersOverHTTP(t *testing.T) {
	s := newTestServer(t)

	a1 := createAccount(t, s, "100")
	a2 := createAccount(t, s, "50")

	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)

		go func() {
			defer wg.Done()
			transfer(s, a1.ID, a2.ID, "6")
		}()

		go func() {
			defer wg.Done()
			transfer(s, a2.ID, a1.ID, "1")
		}()
	}

	wg.Wait()

	b1, b2 := balanceOf(t, s, a1.ID), balanceOf(t, s, a2.ID)
	require.False(t, b1.IsNegative())
	require.False(t, b2.IsNegative())
	require.True(t, decimal.NewFromInt(150).Equal(b1.Add(b2)))
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	_, _, err := OpenStore(context.Background(), configpkg.Config{DBDriver: "sqlite"})
	require.Error(t, err)
}

var _ Store = (*accountrepo.RepoMem)(nil)

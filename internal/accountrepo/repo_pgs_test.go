//go:build integration

package accountrepo

import (
	"testing"
	"time"

	"github.com/go-petr/pet-ledger/internal/integrationtest"
)

func TestRepoPGSStore(t *testing.T) {
	testStore(t, func(t *testing.T) store {
		conn := integrationtest.SetupDB(t, "../../configs")
		return NewRepoPGS(conn, 2*time.Second)
	})
}

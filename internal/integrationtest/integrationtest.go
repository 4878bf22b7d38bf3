// Package integrationtest provides db helpers used in integration tests.
package integrationtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"gorm.io/gorm"

	"github.com/go-petr/pet-ledger/db"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/gormpkg"
)

// MySQLSourceEnv names the variable holding the DSN of the MySQL test database.
const MySQLSourceEnv = "TEST_MYSQL_SOURCE"

var poolOptions = dbpkg.Options{MaxOpenConns: 20, MaxIdleConns: 5}

// Flush removes all accounts and resets the id sequence.
func Flush(t *testing.T, conn *sql.DB) {
	t.Helper()

	if _, err := conn.Exec(`TRUNCATE TABLE accounts RESTART IDENTITY CASCADE`); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB connects to the Postgres database from configs/app.env, applies
// the migrations and cleans the data up after the test.
func SetupDB(t *testing.T, configPath string) *sql.DB {
	t.Helper()

	config, err := configpkg.Load(configPath)
	if err != nil {
		t.Fatalf("configpkg.Load(%q) returned error: %v", configPath, err)
	}

	conn, err := dbpkg.Setup(configpkg.DriverPostgres, config.DBSource, poolOptions)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("db.Migrate() failed: %v", err)
	}

	Flush(t, conn)

	t.Cleanup(func() {
		Flush(t, conn)

		if err := conn.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return conn
}

// SetupGORM connects to the MySQL database named by TEST_MYSQL_SOURCE.
//
// The test is skipped when the variable is not set.
func SetupGORM(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv(MySQLSourceEnv)
	if dsn == "" {
		t.Skipf("%s is not set", MySQLSourceEnv)
	}

	gdb, err := gormpkg.Open(dsn, poolOptions, "silent")
	if err != nil {
		t.Fatalf("gormpkg.Open() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := gdb.Exec("DELETE FROM accounts").Error; err != nil {
			t.Errorf("db cleanup failed. err: %v", err)
		}

		if err := gormpkg.Close(gdb); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return gdb
}

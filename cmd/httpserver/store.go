package httpserver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/db"
	"github.com/go-petr/pet-ledger/internal/accountrepo"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/dbpkg"
	"github.com/go-petr/pet-ledger/pkg/gormpkg"
)

// OpenStore connects the store selected by config.DBDriver and prepares its schema.
//
// The returned close function releases the connection pool.
func OpenStore(ctx context.Context, config configpkg.Config) (Store, func() error, error) {
	l := zerolog.Ctx(ctx)

	opts := dbpkg.Options{
		MaxOpenConns:    config.DBMaxOpenConns,
		MaxIdleConns:    config.DBMaxIdleConns,
		ConnMaxLifetime: config.DBConnMaxLifetime,
	}

	switch config.DBDriver {
	case configpkg.DriverMemory:
		l.Warn().Msg("using in-memory store, data is lost on exit")
		return accountrepo.NewRepoMem(config.LockTimeout), func() error { return nil }, nil

	case configpkg.DriverPostgres:
		conn, err := dbpkg.Setup(config.DBDriver, config.DBSource, opts)
		if err != nil {
			return nil, nil, err
		}

		if err := db.Migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, nil, err
		}

		return accountrepo.NewRepoPGS(conn, config.LockTimeout), conn.Close, nil

	case configpkg.DriverMySQL:
		logLevel := "error"
		if config.Environement == configpkg.EnvDevelopment {
			logLevel = "warn"
		}

		gdb, err := gormpkg.Open(config.DBSource, opts, logLevel)
		if err != nil {
			return nil, nil, err
		}

		repo := accountrepo.NewRepoGORM(gdb, config.LockTimeout)
		if err := repo.Migrate(ctx); err != nil {
			gormpkg.Close(gdb)
			return nil, nil, err
		}

		return repo, func() error { return gormpkg.Close(gdb) }, nil
	}

	return nil, nil, fmt.Errorf("unsupported DB_DRIVER %q", config.DBDriver)
}

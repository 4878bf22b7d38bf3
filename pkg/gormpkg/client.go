// Package gormpkg opens GORM connections to MySQL.
package gormpkg

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/go-petr/pet-ledger/pkg/dbpkg"
)

// Open connects to MySQL with the given DSN and applies the pool settings.
//
// The DSN must enable parseTime, e.g. user:pass@tcp(host:3306)/ledger?parseTime=true.
func Open(dsn string, opts dbpkg.Options, logLevel string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		// Writes are wrapped in explicit transactions where needed.
		SkipDefaultTransaction: true,
		Logger:                 NewLogger(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("mysql ping: %w", err)
	}

	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

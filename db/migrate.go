// Package db holds the Postgres schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migration/*.sql
var migrations embed.FS

// Migrate applies every up migration in file name order.
//
// The migrations are idempotent, so Migrate is safe to run on every start.
func Migrate(ctx context.Context, conn *sql.DB) error {
	files, err := upFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		query, err := migrations.ReadFile(f)
		if err != nil {
			return err
		}

		if _, err := conn.ExecContext(ctx, string(query)); err != nil {
			return fmt.Errorf("migration %s: %w", f, err)
		}
	}

	return nil
}

func upFiles() ([]string, error) {
	entries, err := migrations.ReadDir("migration")
	if err != nil {
		return nil, err
	}

	var files []string

	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, "migration/"+e.Name())
		}
	}

	sort.Strings(files)

	return files, nil
}

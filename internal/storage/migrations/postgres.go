// Package migrations carries the schema as embedded SQL and applies it at
// startup. Files run in lexical order and are written to be idempotent
// (CREATE TABLE IF NOT EXISTS), so reapplying on every boot is safe.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"token-trader/internal/storage/postgres"
)

//go:embed postgres/*.sql
var postgresFS embed.FS

// RunPostgresMigrations applies the embedded PostgreSQL schema.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := fs.Glob(postgresFS, "postgres/*.sql")
	if err != nil {
		return fmt.Errorf("glob postgres migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(postgresFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		sql := strings.TrimSpace(string(data))
		if sql == "" {
			continue
		}
		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}

	return nil
}

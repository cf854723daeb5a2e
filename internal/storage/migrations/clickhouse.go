package migrations

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	chstore "token-trader/internal/storage/clickhouse"
)

//go:embed clickhouse/*.sql
var clickhouseFS embed.FS

// RunClickhouseMigrations applies the embedded ClickHouse schema. The driver
// does not support multiquery in Exec, so statements run one at a time;
// migration files must keep semicolons out of string literals and use
// -- style comments only.
func RunClickhouseMigrations(ctx context.Context, conn *chstore.Conn) error {
	files, err := fs.Glob(clickhouseFS, "clickhouse/*.sql")
	if err != nil {
		return fmt.Errorf("glob clickhouse migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(clickhouseFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		for _, stmt := range splitStatements(string(data)) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}

	return nil
}

// splitStatements splits SQL content on semicolons after dropping blank
// lines and -- comments.
func splitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

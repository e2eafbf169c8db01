package db

import (
	"context"
	"fmt"
	"strings"
)

// Migrate creates tables and their indexes, Users and Admins when none are
// given. It is idempotent.
func Migrate(ctx context.Context, d *DB, tables ...TableSpec) error {
	if len(tables) == 0 {
		tables = []TableSpec{Users, Admins}
	}
	for _, table := range tables {
		for _, stmt := range schema(table) {
			if _, err := d.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("db: migrate %s: %w", table.Name, err)
			}
		}
	}
	return nil
}

func schema(table TableSpec) []string {
	required := make(map[string]bool, len(table.Required))
	for _, c := range table.Required {
		required[c] = true
	}

	cols := []string{"id text PRIMARY KEY"}
	for _, c := range table.Columns {
		def := c + " text"
		if required[c] {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	cols = append(cols,
		"created_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP",
		"updated_at timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP",
	)

	stmts := []string{fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		table.Name, strings.Join(cols, ",\n    "),
	)}
	for _, c := range table.Unique {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE UNIQUE INDEX IF NOT EXISTS %s_%s_lower_unique ON %s (LOWER(%s))",
			table.Name, c, table.Name, c,
		))
	}
	return stmts
}

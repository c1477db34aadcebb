package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// Tables lists every table the schema creates, children first.
var Tables = []string{
	"gear_components",
	"gears",
	"group_instances",
	"applications",
	"users",
	"district_nodes",
	"districts",
}

// Migrate applies every embedded up migration in name order inside one
// transaction. The statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, name := range names {
			schema, err := migrations.ReadFile(name)
			if err != nil {
				return fmt.Errorf("failed to read migration %s: %w", name, err)
			}
			if _, err := tx.Exec(ctx, string(schema)); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", name, err)
			}
		}
		return nil
	})
}

// DropAll removes every table in Tables.
func DropAll(ctx context.Context, pool *pgxpool.Pool) error {
	for _, table := range Tables {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{table}.Sanitize()+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}

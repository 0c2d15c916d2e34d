// Package phagedb embeds the upgrade chain for the actinobacteriophage
// database, from the schema-1 baseline through the current shape.
//
// The scripts are written against MySQL and deliberately stay inside the
// dialect SQLite also understands, which is what the tests run them on. They
// are not idempotent: each one assumes the exact schema its predecessor left
// behind, and the runner's version gating is what keeps them in order.
package phagedb

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/actinodb/migrate"
	"github.com/actinodb/migrate/script"
	"github.com/actinodb/migrate/source"
)

// BaselineVersion is the schema version db_schema_1.sql installs.
const BaselineVersion = 1

//go:embed upgrade_*.sql
var scriptsFS embed.FS

//go:embed db_schema_1.sql
var baselineSQL string

// Source returns the embedded upgrade scripts.
func Source() source.Source {
	return source.NewFS(scriptsFS)
}

// Chain loads and validates the embedded upgrade chain.
func Chain(ctx context.Context) (*migrate.Chain, error) {
	scripts, err := source.Load(ctx, Source())
	if err != nil {
		return nil, err
	}
	return migrate.NewChain(scripts)
}

// InstallBaseline creates the schema-1 tables on an empty database and seeds
// the one-row version table.
func InstallBaseline(ctx context.Context, db *sql.DB) error {
	for _, stmt := range script.SplitStatements(baselineSQL) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("install baseline: %w", err)
		}
	}
	return nil
}

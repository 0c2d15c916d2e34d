package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// executor is the slice of *sql.DB and *sql.Tx the runner uses, so a script
// can be applied and verified inside a transaction when one is open.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Spellings vary across schema generations: some deployments capitalized the
// version table, and the schema column was renamed from schema_version to
// SchemaVersion partway through the chain. Reads probe the spellings in
// order, current first.
var (
	versionTables = []string{"version", "Version"}
	schemaColumns = []string{"SchemaVersion", "schema_version"}
	dataColumns   = []string{"Version", "version"}
)

// readSchemaVersion returns the stored schema version. ErrNoVersionTable and
// ErrVersionTableEmpty distinguish a missing baseline from a table nothing
// ever wrote to.
func readSchemaVersion(ctx context.Context, e executor) (int, error) {
	columnSeen := false
	for _, table := range versionTables {
		for _, column := range schemaColumns {
			var v int
			err := e.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s", column, table)).Scan(&v)
			if err == nil {
				return v, nil
			}
			if errors.Is(err, sql.ErrNoRows) {
				return 0, ErrVersionTableEmpty
			}
			if isMissingColumn(err) {
				columnSeen = true
				continue
			}
			if isMissingTable(err) {
				break
			}
			return 0, fmt.Errorf("read schema version: %w", err)
		}
	}
	if columnSeen {
		return 0, errors.New("migrate: version table has no SchemaVersion or schema_version column")
	}
	return 0, ErrNoVersionTable
}

// readDataVersion returns the phage-data generation counter, or nil when the
// version table does not carry one. An empty or missing table also reports
// nil; readSchemaVersion is the place those conditions surface as errors.
func readDataVersion(ctx context.Context, e executor) (*int, error) {
	for _, table := range versionTables {
		for _, column := range dataColumns {
			var v int
			err := e.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s", column, table)).Scan(&v)
			if err == nil {
				return &v, nil
			}
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			if isMissingColumn(err) {
				continue
			}
			if isMissingTable(err) {
				break
			}
			return nil, fmt.Errorf("read data version: %w", err)
		}
	}
	return nil, nil
}

// Driver error codes are not portable, so missing tables and columns are
// recognized by message text across the supported drivers.
func isMissingTable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"): // sqlite
		return true
	case strings.Contains(msg, "doesn't exist"): // mysql 1146
		return true
	case strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"): // postgres 42P01
		return true
	}
	return false
}

func isMissingColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such column"): // sqlite
		return true
	case strings.Contains(msg, "unknown column"): // mysql 1054
		return true
	case strings.Contains(msg, "column") && strings.Contains(msg, "does not exist"): // postgres 42703
		return true
	}
	return false
}

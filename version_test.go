package migrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"
)

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// Every new connection to :memory: is a fresh database, so keep the pool
	// at one connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func mustExec(t *testing.T, db *sql.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
}

func TestReadSchemaVersionCurrentSpelling(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db,
		"CREATE TABLE version (Version INTEGER NOT NULL, SchemaVersion INTEGER NOT NULL)",
		"INSERT INTO version (Version, SchemaVersion) VALUES (412, 7)",
	)

	v, err := readSchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("readSchemaVersion: %v", err)
	}
	if v != 7 {
		t.Errorf("schema version = %d, want 7", v)
	}
}

func TestReadSchemaVersionLegacySpelling(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db,
		"CREATE TABLE version (version INTEGER NOT NULL, schema_version INTEGER NOT NULL)",
		"INSERT INTO version (version, schema_version) VALUES (398, 4)",
	)

	v, err := readSchemaVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("readSchemaVersion: %v", err)
	}
	if v != 4 {
		t.Errorf("schema version = %d, want 4", v)
	}
}

func TestReadSchemaVersionMissingTable(t *testing.T) {
	db := openInMemoryDB(t)

	_, err := readSchemaVersion(context.Background(), db)
	if !errors.Is(err, ErrNoVersionTable) {
		t.Fatalf("err = %v, want ErrNoVersionTable", err)
	}
}

func TestReadSchemaVersionEmptyTable(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db, "CREATE TABLE version (SchemaVersion INTEGER NOT NULL)")

	_, err := readSchemaVersion(context.Background(), db)
	if !errors.Is(err, ErrVersionTableEmpty) {
		t.Fatalf("err = %v, want ErrVersionTableEmpty", err)
	}
}

func TestReadSchemaVersionUnrecognizedColumns(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db,
		"CREATE TABLE version (generation INTEGER NOT NULL)",
		"INSERT INTO version (generation) VALUES (3)",
	)

	_, err := readSchemaVersion(context.Background(), db)
	if err == nil {
		t.Fatal("expected an error for a version table without a schema column")
	}
	if errors.Is(err, ErrNoVersionTable) || errors.Is(err, ErrVersionTableEmpty) {
		t.Fatalf("err = %v, want a column error", err)
	}
}

func TestReadDataVersion(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db,
		"CREATE TABLE version (version INTEGER NOT NULL, schema_version INTEGER NOT NULL)",
		"INSERT INTO version (version, schema_version) VALUES (412, 5)",
	)

	v, err := readDataVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("readDataVersion: %v", err)
	}
	if v == nil || *v != 412 {
		t.Errorf("data version = %v, want 412", v)
	}
}

func TestReadDataVersionAbsentColumn(t *testing.T) {
	db := openInMemoryDB(t)
	mustExec(t, db,
		"CREATE TABLE version (SchemaVersion INTEGER NOT NULL)",
		"INSERT INTO version (SchemaVersion) VALUES (7)",
	)

	v, err := readDataVersion(context.Background(), db)
	if err != nil {
		t.Fatalf("readDataVersion: %v", err)
	}
	if v != nil {
		t.Errorf("data version = %d, want nil", *v)
	}
}

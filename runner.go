package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/actinodb/migrate/internal/observability"
	"github.com/actinodb/migrate/script"
)

// Status describes where a database stands relative to a chain. DataVersion
// is the phage-data generation counter; it is nil on schemas that predate it
// or databases that never set it.
type Status struct {
	SchemaVersion int             `json:"schema_version"`
	DataVersion   *int            `json:"data_version,omitempty"`
	Latest        int             `json:"latest"`
	Pending       []script.Script `json:"pending"`
}

// Plan lists the scripts Up would apply, in order. Target equals Current
// when there is nothing to do.
type Plan struct {
	Current int             `json:"current"`
	Target  int             `json:"target"`
	Scripts []script.Script `json:"scripts"`
}

// Runner applies a chain to one database. Scripts run statement by statement
// in file order; a rejected statement stops the script and the run, leaving
// earlier scripts applied.
type Runner struct {
	db      *sql.DB
	chain   *Chain
	logger  *slog.Logger
	metrics *observability.Metrics

	// Transactional wraps each script in its own transaction and rolls it
	// back if a statement fails. Engines that commit DDL implicitly, MySQL
	// among them, narrow but do not remove the partial-apply window, so the
	// default stays off.
	Transactional bool
}

func NewRunner(db *sql.DB, chain *Chain, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = observability.NewLogger("migrate.runner")
	}
	return &Runner{db: db, chain: chain, logger: logger, metrics: metrics}
}

// Current reads the stored schema version.
func (r *Runner) Current(ctx context.Context) (int, error) {
	return readSchemaVersion(ctx, r.db)
}

// Status reports the stored versions and every script the chain could still
// apply from there.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	current, err := readSchemaVersion(ctx, r.db)
	if err != nil {
		return Status{}, err
	}
	data, err := readDataVersion(ctx, r.db)
	if err != nil {
		return Status{}, err
	}
	st := Status{SchemaVersion: current, DataVersion: data, Latest: r.chain.Latest()}
	for v := current; ; {
		s, ok := r.chain.Next(v)
		if !ok {
			break
		}
		st.Pending = append(st.Pending, s)
		v = s.To
	}
	return st, nil
}

// Plan resolves the scripts Up would apply for the given target without
// touching the schema. Target 0 means as far as the chain goes.
func (r *Runner) Plan(ctx context.Context, target int) (Plan, error) {
	current, err := readSchemaVersion(ctx, r.db)
	if err != nil {
		return Plan{}, err
	}
	scripts, err := r.pending(current, target)
	if err != nil {
		return Plan{}, err
	}
	p := Plan{Current: current, Target: current, Scripts: scripts}
	if n := len(scripts); n > 0 {
		p.Target = scripts[n-1].To
	}
	return p, nil
}

// Up applies pending scripts in order until target is reached. Target 0
// upgrades as far as the chain goes. It returns the number of scripts
// applied; on failure, scripts applied before the failure stay applied.
func (r *Runner) Up(ctx context.Context, target int) (int, error) {
	current, err := readSchemaVersion(ctx, r.db)
	if err != nil {
		return 0, err
	}
	scripts, err := r.pending(current, target)
	if err != nil {
		return 0, err
	}
	if len(scripts) == 0 {
		r.logger.Info("schema is up to date", "event", "schema_current", "schema_version", current)
		return 0, nil
	}

	applied := 0
	for _, s := range scripts {
		logger := observability.WithScript(r.logger, s.Name)
		for _, note := range s.Annotations {
			logger.Warn("destructive step", "event", "data_loss", "note", note)
		}
		logger.Info("applying script", "event", "script_apply", "from", s.From, "to", s.To, "statements", len(s.Statements))

		start := time.Now()
		if err := r.applyScript(ctx, s); err != nil {
			r.metrics.IncFailure(failureKind(err))
			logger.Error("script failed", "event", "script_failed", "error", err)
			return applied, err
		}
		elapsed := time.Since(start)
		r.metrics.IncApplied(s.Name)
		r.metrics.ObserveApply(s.Name, elapsed)
		logger.Info("script applied", "event", "script_applied", "schema_version", s.To, "elapsed_ms", elapsed.Milliseconds())
		applied++
	}
	return applied, nil
}

// pending returns the scripts that take the database from current to target.
// Target 0 resolves to the chain's latest version; a database already past
// the chain is left alone. An explicit target behind the database is an
// error, since downgrades do not exist.
func (r *Runner) pending(current, target int) ([]script.Script, error) {
	if target == 0 {
		if current >= r.chain.Latest() {
			return nil, nil
		}
		target = r.chain.Latest()
	}
	if current == target {
		return nil, nil
	}
	if current > target {
		return nil, fmt.Errorf("migrate: database is at schema version %d, beyond target %d", current, target)
	}
	var scripts []script.Script
	for v := current; v != target; {
		s, ok := r.chain.Next(v)
		if !ok {
			return nil, UnknownVersionError{Version: v}
		}
		scripts = append(scripts, s)
		v = s.To
	}
	return scripts, nil
}

func (r *Runner) applyScript(ctx context.Context, s script.Script) error {
	if !r.Transactional {
		return runStatements(ctx, r.db, s)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", s.Name, err)
	}
	if err := runStatements(ctx, tx, s); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// runStatements executes a script and then re-reads the stored schema
// version: the final statement is required to have set it to the script's
// target, so anything else means the script and the chain disagree.
func runStatements(ctx context.Context, e executor, s script.Script) error {
	for i, stmt := range s.Statements {
		if _, err := e.ExecContext(ctx, stmt); err != nil {
			return StatementError{Script: s.Name, Statement: i + 1, SQL: stmt, Err: err}
		}
	}
	got, err := readSchemaVersion(ctx, e)
	if err != nil {
		return fmt.Errorf("verify %s: %w", s.Name, err)
	}
	if got != s.To {
		return VersionSkewError{Script: s.Name, Want: s.To, Got: got}
	}
	return nil
}

func failureKind(err error) string {
	switch {
	case IsStatementError(err):
		return "statement"
	case IsVersionSkew(err):
		return "version_skew"
	default:
		return "verify"
	}
}

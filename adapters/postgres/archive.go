// Package postgres persists analysis-run summaries. The archive is
// optional: without a database URL the service runs fully in-memory and
// every archive call is a no-op.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"sleepanalysis/domain/core"
	"sleepanalysis/internal"
	"sleepanalysis/internal/causal"
	"sleepanalysis/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_runs (
	id          TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	nights      INTEGER NOT NULL,
	summary     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS causal_estimates (
	run_id            TEXT NOT NULL REFERENCES analysis_runs(id) ON DELETE CASCADE,
	medication        TEXT NOT NULL,
	metric            TEXT NOT NULL,
	causal_effect     DOUBLE PRECISION NOT NULL,
	ci_lower          DOUBLE PRECISION NOT NULL,
	ci_upper          DOUBLE PRECISION NOT NULL,
	is_causal         BOOLEAN NOT NULL,
	p_value           DOUBLE PRECISION NOT NULL,
	p_value_kind      TEXT NOT NULL,
	refutation_passed BOOLEAN NOT NULL,
	method            TEXT NOT NULL,
	PRIMARY KEY (run_id, medication, metric)
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_created_at ON analysis_runs (created_at DESC);
`

// RunSummary is one archived analysis run.
type RunSummary struct {
	ID        core.RunID `db:"id" json:"id"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Nights    int        `db:"nights" json:"nights"`
	Summary   string     `db:"summary" json:"summary"`
}

// Archive stores run summaries and their causal estimates.
type Archive struct {
	db  *sqlx.DB
	log *internal.Logger
}

// NewArchive connects to the database and ensures the schema exists. An
// empty URL returns a nil archive, which is a valid no-op receiver.
func NewArchive(ctx context.Context, databaseURL string) (*Archive, error) {
	if databaseURL == "" {
		return nil, nil
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ensure archive schema")
	}

	internal.DefaultLogger.Info("run archive connected")
	return &Archive{db: db, log: internal.DefaultLogger}, nil
}

// Enabled reports whether runs are actually persisted.
func (a *Archive) Enabled() bool { return a != nil && a.db != nil }

// Close releases the connection pool.
func (a *Archive) Close() error {
	if !a.Enabled() {
		return nil
	}
	return a.db.Close()
}

// SaveRun persists one run summary with its estimates atomically.
func (a *Archive) SaveRun(ctx context.Context, run RunSummary, estimates []causal.Estimate) error {
	if !a.Enabled() {
		return nil
	}

	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin archive transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO analysis_runs (id, created_at, nights, summary) VALUES ($1, $2, $3, $4)`,
		run.ID, run.CreatedAt, run.Nights, run.Summary,
	)
	if err != nil {
		return errors.Wrap(err, "failed to save run")
	}

	for _, e := range estimates {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO causal_estimates (
				run_id, medication, metric, causal_effect, ci_lower, ci_upper,
				is_causal, p_value, p_value_kind, refutation_passed, method
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			run.ID, e.Medication, e.Metric, e.Effect, e.CILower, e.CIUpper,
			e.IsCausal, e.PValue, e.PValueKind, e.RefutationPassed, e.Method,
		)
		if err != nil {
			return errors.Wrap(err, "failed to save estimate")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit archive transaction")
	}
	a.log.Debug("archived run %s with %d estimates", run.ID, len(estimates))
	return nil
}

// RecentRuns lists the newest archived runs.
func (a *Archive) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if !a.Enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var runs []RunSummary
	err := a.db.SelectContext(ctx, &runs,
		`SELECT id, created_at, nights, summary FROM analysis_runs ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	return runs, nil
}

// RunEstimates returns the estimates stored for one run.
func (a *Archive) RunEstimates(ctx context.Context, id core.RunID) ([]causal.Estimate, error) {
	if !a.Enabled() {
		return nil, nil
	}

	rows, err := a.db.QueryxContext(ctx,
		`SELECT medication, metric, causal_effect, ci_lower, ci_upper,
		        is_causal, p_value, p_value_kind, refutation_passed, method
		 FROM causal_estimates WHERE run_id = $1
		 ORDER BY medication, metric`,
		id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query estimates")
	}
	defer rows.Close()

	var estimates []causal.Estimate
	for rows.Next() {
		var e causal.Estimate
		err := rows.Scan(
			&e.Medication, &e.Metric, &e.Effect, &e.CILower, &e.CIUpper,
			&e.IsCausal, &e.PValue, &e.PValueKind, &e.RefutationPassed, &e.Method,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan estimate")
		}
		estimates = append(estimates, e)
	}
	return estimates, rows.Err()
}

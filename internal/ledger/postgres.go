// Package ledger records render job status in PostgreSQL.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/adm-engine-worker/pkg/schema"
)

const maxMessageRunes = 2000

var ErrNotFound = errors.New("ledger: job not found")

// DB is the subset of *pgxpool.Pool used by the ledger.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Ledger struct {
	db DB
}

func New(db DB) *Ledger {
	return &Ledger{db: db}
}

// Open connects a pool and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Ledger, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect ledger database: %w", err)
	}
	l := New(pool)
	if err := l.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return l, pool, nil
}

func (l *Ledger) Name() string { return "postgres" }

const createTable = `CREATE TABLE IF NOT EXISTS render_jobs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	element_id       TEXT,
	source_path      TEXT,
	destination_path TEXT,
	message          TEXT,
	failure_type     TEXT,
	processing_ms    BIGINT,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ
)`

func (l *Ledger) Migrate(ctx context.Context) error {
	if _, err := l.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("migrate render_jobs: %w", err)
	}
	return nil
}

// MarkRunning inserts the job or resets a previous attempt to RUNNING.
func (l *Ledger) MarkRunning(ctx context.Context, jobID string, params schema.Parameters) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO render_jobs (id, status, element_id, source_path, destination_path, started_at)
		 VALUES ($1, 'RUNNING', $2, $3, $4, NOW())
		 ON CONFLICT (id) DO UPDATE SET status='RUNNING', started_at=NOW(), finished_at=NULL, message=NULL, failure_type=NULL`,
		jobID, params.ElementID, params.SourcePath, params.DestinationPath,
	)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", jobID, err)
	}
	return nil
}

// Report stores the final status of a job.
func (l *Ledger) Report(ctx context.Context, done schema.RenderDone) error {
	_, err := l.db.Exec(ctx,
		`INSERT INTO render_jobs (id, status, element_id, source_path, destination_path, message, failure_type, processing_ms, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (id) DO UPDATE SET status=$2, message=$6, failure_type=$7, processing_ms=$8, finished_at=NOW()`,
		done.ID,
		ledgerStatus(done.Status),
		done.ElementID,
		done.SourcePath,
		done.DestinationPath,
		nullIfEmpty(truncate(done.Message, maxMessageRunes)),
		nullIfEmpty(string(done.FailureType)),
		done.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("record job %s result: %w", done.ID, err)
	}
	return nil
}

// Entry is one row of the ledger.
type Entry struct {
	ID          string
	Status      string
	Message     string
	FailureType string
	FinishedAt  *time.Time
}

func (l *Ledger) Get(ctx context.Context, jobID string) (*Entry, error) {
	var e Entry
	var message, failureType *string
	err := l.db.QueryRow(ctx,
		`SELECT id, status, message, failure_type, finished_at FROM render_jobs WHERE id=$1`,
		jobID,
	).Scan(&e.ID, &e.Status, &message, &failureType, &e.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if message != nil {
		e.Message = *message
	}
	if failureType != nil {
		e.FailureType = *failureType
	}
	return &e, nil
}

func ledgerStatus(s schema.JobStatus) string {
	if s == schema.JobStatusCompleted {
		return "COMPLETED"
	}
	return "ERROR"
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

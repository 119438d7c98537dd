// Package stores persists run history in a local SQLite database.
package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/korora-tech/dhd/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned when a run id has no record.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the list view of a stored run, without the full report.
type RunSummary struct {
	ID         string              `json:"id"`
	DryRun     bool                `json:"dry_run"`
	Status     engine.ModuleStatus `json:"status"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Totals     engine.ReportTotals `json:"totals"`
}

// Duration is the wall time of the stored run.
func (s RunSummary) Duration() time.Duration { return s.FinishedAt.Sub(s.StartedAt) }

// HistoryStore records completed runs in SQLite.
type HistoryStore struct {
	db   *sql.DB
	path string
}

// OpenHistory opens (creating if needed) the history database at path
// and brings its schema up to date.
func OpenHistory(ctx context.Context, path string) (*HistoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging history database: %w", err)
	}

	store := &HistoryStore{db: db, path: path}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *HistoryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *HistoryStore) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// SaveRun stores a completed run. The full report is kept as JSON so
// GetRun can replay it without schema churn.
func (s *HistoryStore) SaveRun(ctx context.Context, report *engine.Report) error {
	blob, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	query := `
		INSERT INTO runs (id, dry_run, status, started_at, finished_at, satisfied, changed, failed, skipped, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		report.RunID,
		report.DryRun,
		string(report.Status),
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
		report.Totals.Satisfied,
		report.Totals.Changed,
		report.Totals.Failed,
		report.Totals.Skipped,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", report.RunID, err)
	}
	return nil
}

// GetRun returns the full report of a stored run.
func (s *HistoryStore) GetRun(ctx context.Context, id string) (*engine.Report, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT report FROM runs WHERE id = ?`, id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run %s: %w", id, err)
	}

	report := &engine.Report{}
	if err := json.Unmarshal([]byte(blob), report); err != nil {
		return nil, fmt.Errorf("decoding run %s: %w", id, err)
	}
	return report, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *HistoryStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, dry_run, status, started_at, finished_at, satisfied, changed, failed, skipped
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var sum RunSummary
		var status string
		err := rows.Scan(
			&sum.ID,
			&sum.DryRun,
			&status,
			&sum.StartedAt,
			&sum.FinishedAt,
			&sum.Totals.Satisfied,
			&sum.Totals.Changed,
			&sum.Totals.Failed,
			&sum.Totals.Skipped,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		sum.Status = engine.ModuleStatus(status)
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return summaries, nil
}

// Prune deletes runs older than the cutoff and returns how many were
// removed.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned runs: %w", err)
	}
	return rows, nil
}

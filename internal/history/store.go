package history

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Run is one finished analysis run as recorded in the history database.
type Run struct {
	RunID           string
	RunKey          string
	InstanceURL     string
	LookbackDays    int
	ProjectCount    int
	StagesCompleted int
	StagesRestored  int
	StagesSkipped   int
	StartedAt       time.Time
	FinishedAt      time.Time
	Duration        time.Duration
}

// Store persists run history in SQLite
type Store struct {
	db      *sql.DB
	closed  bool
	writeMu sync.Mutex
}

// NewStore opens (or creates) the history database at dbPath
func NewStore(dbPath string) (*Store, error) {
	// Configure SQLite for concurrent access
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=2000&_foreign_keys=on&_busy_timeout=60000", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(10 * time.Minute)

	store := &Store{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT NOT NULL,
		run_key TEXT NOT NULL,
		instance_url TEXT NOT NULL,
		lookback_days INTEGER NOT NULL,
		project_count INTEGER NOT NULL,
		stages_completed INTEGER NOT NULL,
		stages_restored INTEGER NOT NULL,
		stages_skipped INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		PRIMARY KEY (run_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);
	`

	_, err := s.db.Exec(query)
	return err
}

// SaveRun saves or updates a run record with retry mechanism
func (s *Store) SaveRun(run *Run) error {
	if s.closed {
		return fmt.Errorf("history store is closed")
	}

	// Serialize writes to avoid SQLITE_BUSY from multiple concurrent writers
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.retryOnBusy(func() error {
		return s.saveRunWithTransaction(run)
	})
}

func (s *Store) saveRunWithTransaction(run *Run) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // This will be ignored if Commit() succeeds

	// Use UPSERT so rerunning the same run id refreshes its row
	query := `
	INSERT INTO runs
	(run_id, run_key, instance_url, lookback_days, project_count,
	 stages_completed, stages_restored, stages_skipped,
	 started_at, finished_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		run_key = excluded.run_key,
		instance_url = excluded.instance_url,
		lookback_days = excluded.lookback_days,
		project_count = excluded.project_count,
		stages_completed = excluded.stages_completed,
		stages_restored = excluded.stages_restored,
		stages_skipped = excluded.stages_skipped,
		started_at = excluded.started_at,
		finished_at = excluded.finished_at,
		duration_ms = excluded.duration_ms
	`

	_, err = tx.Exec(query,
		run.RunID,
		run.RunKey,
		run.InstanceURL,
		run.LookbackDays,
		run.ProjectCount,
		run.StagesCompleted,
		run.StagesRestored,
		run.StagesSkipped,
		run.StartedAt,
		run.FinishedAt,
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to execute insert: %w", err)
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]*Run, error) {
	if s.closed {
		return nil, fmt.Errorf("history store is closed")
	}
	if limit <= 0 {
		limit = 20
	}

	var result []*Run
	err := s.retryOnBusy(func() error {
		var err error
		result, err = s.listRunsInternal(limit)
		return err
	})
	return result, err
}

func (s *Store) listRunsInternal(limit int) ([]*Run, error) {
	query := `
	SELECT run_id, run_key, instance_url, lookback_days, project_count,
	       stages_completed, stages_restored, stages_skipped,
	       started_at, finished_at, duration_ms
	FROM runs
	ORDER BY finished_at DESC
	LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run

	for rows.Next() {
		var run Run
		var durationMs int64

		err := rows.Scan(
			&run.RunID,
			&run.RunKey,
			&run.InstanceURL,
			&run.LookbackDays,
			&run.ProjectCount,
			&run.StagesCompleted,
			&run.StagesRestored,
			&run.StagesSkipped,
			&run.StartedAt,
			&run.FinishedAt,
			&durationMs,
		)
		if err != nil {
			return nil, err
		}

		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// retryOnBusy retries the operation if SQLite is busy
func (s *Store) retryOnBusy(operation func() error) error {
	maxRetries := 10
	baseDelay := 50 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if isSQLiteBusyError(err) {
			if attempt < maxRetries-1 {
				delay := baseDelay * time.Duration(1<<uint(attempt))
				jitter := time.Duration(attempt*10) * time.Millisecond
				time.Sleep(delay + jitter)
				continue
			}
		}

		return err
	}

	return nil
}

func isSQLiteBusyError(err error) bool {
	if err == nil {
		return false
	}
	errorStr := err.Error()
	return strings.Contains(errorStr, "database is locked") ||
		strings.Contains(errorStr, "SQLITE_BUSY") ||
		strings.Contains(errorStr, "database is closed")
}

// Close closes the database connection
func (s *Store) Close() error {
	s.closed = true
	return s.db.Close()
}

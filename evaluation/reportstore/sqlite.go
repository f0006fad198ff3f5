package reportstore

import (
	"context"
	"database/sql"
	"math"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/YuminosukeSato/genotrain/evaluation"
	"github.com/YuminosukeSato/genotrain/metrics"
	"github.com/YuminosukeSato/genotrain/pkg/errors"
)

const (
	scopeTask          = "task"
	scopeComputational = "computational"
)

// SQLiteStore persists reports in a SQLite database. NaN metric values are
// stored as NULL and read back as NaN.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLiteStore returns a store backed by the database file at path. The
// file is opened by Init.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

// Init opens the database and creates the reports and report_metrics tables
// when they do not exist. Calling Init on an open store is a no-op.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrapf(err, "open %s", s.path)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "open %s", s.path)
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return errors.Wrap(err, "create tables")
	}

	s.db = db
	return nil
}

// Save replaces any earlier report with the same RunID in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, report *evaluation.Report) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (run_id, started_at, duration_ns, num_batches)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			duration_ns = excluded.duration_ns,
			num_batches = excluded.num_batches
	`, report.RunID, report.StartedAt.UTC().Format(time.RFC3339Nano), int64(report.Duration), report.NumBatches)
	if err != nil {
		return errors.Wrapf(err, "save report %s", report.RunID)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM report_metrics WHERE run_id = ?`, report.RunID); err != nil {
		return errors.Wrapf(err, "save report %s", report.RunID)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO report_metrics (run_id, scope, task, name, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for task, res := range report.TaskResults {
		for name, v := range res.Metrics {
			if _, err := stmt.ExecContext(ctx, report.RunID, scopeTask, task, name, nullable(v)); err != nil {
				return errors.Wrapf(err, "save metric %s/%s", task, name)
			}
		}
		if len(res.Metrics) == 0 {
			// keep tasks that reported nothing visible on Get
			if _, err := stmt.ExecContext(ctx, report.RunID, scopeTask, task, "", nil); err != nil {
				return errors.Wrapf(err, "save task %s", task)
			}
		}
	}
	for name, v := range report.ComputationalMetrics {
		if _, err := stmt.ExecContext(ctx, report.RunID, scopeComputational, "", name, nullable(v)); err != nil {
			return errors.Wrapf(err, "save metric %s", name)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (*evaluation.Report, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var (
		startedAt  string
		durationNs int64
		numBatches int
	)
	err = db.QueryRowContext(ctx, `
		SELECT started_at, duration_ns, num_batches FROM reports WHERE run_id = ?
	`, runID).Scan(&startedAt, &durationNs, &numBatches)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	started, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decode report %s", runID)
	}

	report := &evaluation.Report{
		RunID:                runID,
		StartedAt:            started,
		Duration:             time.Duration(durationNs),
		NumBatches:           numBatches,
		TaskResults:          make(map[string]metrics.EvaluationResult),
		ComputationalMetrics: make(map[string]float64),
		SummaryMetrics:       make(map[string]float64),
	}

	rows, err := db.QueryContext(ctx, `
		SELECT scope, task, name, value FROM report_metrics WHERE run_id = ?
	`, runID)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			scope, task, name string
			value             sql.NullFloat64
		)
		if err := rows.Scan(&scope, &task, &name, &value); err != nil {
			return nil, false, errors.Wrapf(err, "decode report %s", runID)
		}
		v := math.NaN()
		if value.Valid {
			v = value.Float64
		}
		switch scope {
		case scopeComputational:
			report.ComputationalMetrics[name] = v
		case scopeTask:
			res, ok := report.TaskResults[task]
			if !ok {
				res = metrics.EvaluationResult{TaskName: task, Metrics: make(map[string]float64)}
			}
			if name != "" {
				res.Metrics[name] = v
				report.SummaryMetrics[evaluation.SummaryKey(task, name)] = v
			}
			report.TaskResults[task] = res
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	return report, true, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]RunInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT run_id, started_at, duration_ns, num_batches FROM reports`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunInfo
	for rows.Next() {
		var (
			info       RunInfo
			startedAt  string
			durationNs int64
		)
		if err := rows.Scan(&info.RunID, &startedAt, &durationNs, &info.NumBatches); err != nil {
			return nil, err
		}
		if info.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, errors.Wrapf(err, "decode report %s", info.RunID)
		}
		info.Duration = time.Duration(durationNs)
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortRuns(out)
	return out, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	return s.db, nil
}

func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS reports (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			num_batches INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS report_metrics (
			run_id TEXT NOT NULL REFERENCES reports(run_id),
			scope TEXT NOT NULL,
			task TEXT NOT NULL,
			name TEXT NOT NULL,
			value REAL,
			PRIMARY KEY (run_id, scope, task, name)
		);
	`)
	return err
}

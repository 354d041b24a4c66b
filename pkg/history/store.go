// Package history records print jobs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"peachy-go/pkg/machine"

	_ "modernc.org/sqlite"
)

// Outcome is how a job ended.
type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeCompleted  Outcome = "completed"
	OutcomeCancelled  Outcome = "cancelled"
	OutcomeError      Outcome = "error"
)

// Job is one print job record.
type Job struct {
	ID        int64     `json:"job_id"`
	Name      string    `json:"name"`
	DryRun    bool      `json:"dry_run"`
	Outcome   Outcome   `json:"status"`
	StartTime time.Time `json:"start_time"`
	// EndTime is zero while the job is in progress.
	EndTime time.Time `json:"end_time"`
	Layers  int       `json:"layers"`
	Height  float64   `json:"height"`
	Drips   int       `json:"drips"`
	Errors  []string  `json:"errors"`
}

// Duration is the wall time of a finished job, or zero.
func (j Job) Duration() time.Duration {
	if j.EndTime.IsZero() {
		return 0
	}
	return j.EndTime.Sub(j.StartTime)
}

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("history: job not found")

// Store is a SQLite-backed job history.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the history database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	dry_run INTEGER NOT NULL DEFAULT 0,
	outcome TEXT NOT NULL,
	start_time TEXT NOT NULL,
	end_time TEXT NOT NULL DEFAULT '',
	layers INTEGER NOT NULL DEFAULT 0,
	height REAL NOT NULL DEFAULT 0,
	drips INTEGER NOT NULL DEFAULT 0,
	errors_json TEXT NOT NULL DEFAULT '[]'
)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialize history db: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartJob inserts an in-progress job and returns its id.
func (s *Store) StartJob(ctx context.Context, name string, dryRun bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (name, dry_run, outcome, start_time) VALUES (?, ?, ?, ?)`,
		name, boolInt(dryRun), string(OutcomeInProgress), formatTime(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("start job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("start job: %w", err)
	}
	return id, nil
}

// FinishJob stores the final snapshot and outcome of a job.
func (s *Store) FinishJob(ctx context.Context, id int64, snap machine.Snapshot, outcome Outcome) error {
	errs := snap.Errors
	if errs == nil {
		errs = []string{}
	}
	payload, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal job errors: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET outcome = ?, end_time = ?, layers = ?, height = ?, drips = ?, errors_json = ?
		 WHERE id = ?`,
		string(outcome), formatTime(s.now()), snap.CurrentLayer, snap.Height, snap.Drips, string(payload), id,
	)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish job %d: %w", id, ErrNotFound)
	}
	return nil
}

const jobColumns = `id, name, dry_run, outcome, start_time, end_time, layers, height, drips, errors_json`

// Get returns one job.
func (s *Store) Get(ctx context.Context, id int64) (Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("get job %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// List returns up to limit jobs, newest first. limit <= 0 returns all jobs.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (Job, error) {
	var (
		job               Job
		dryRun            int
		outcome           string
		start, end, errJS string
	)
	if err := row.Scan(&job.ID, &job.Name, &dryRun, &outcome, &start, &end,
		&job.Layers, &job.Height, &job.Drips, &errJS); err != nil {
		return Job{}, err
	}
	job.DryRun = dryRun != 0
	job.Outcome = Outcome(outcome)

	var err error
	if job.StartTime, err = parseTime(start); err != nil {
		return Job{}, err
	}
	if job.EndTime, err = parseTime(end); err != nil {
		return Job{}, err
	}
	if err := json.Unmarshal([]byte(errJS), &job.Errors); err != nil {
		return Job{}, fmt.Errorf("unmarshal errors of job %d: %w", job.ID, err)
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package storage keeps the render-job history in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mgpai22/capsync/internal/render"
)

var ErrNotFound = errors.New("job not found")

type Status string

const (
	StatusRunning   Status = "running"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// one row of render_jobs
type Record struct {
	JobID      string     `json:"jobId"`
	Video      string     `json:"video"`
	Style      string     `json:"style"`
	Engine     string     `json:"engine"`
	Output     string     `json:"output"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Frames     int        `json:"frames"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// JobDB handles the render_jobs table. It implements render.Recorder.
type JobDB struct {
	db *sql.DB
}

func Open(dbPath string) (*JobDB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: sqlite serialises writers anyway and :memory: is per-connection
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS render_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL UNIQUE,
		video TEXT NOT NULL,
		style TEXT NOT NULL,
		engine TEXT NOT NULL,
		output TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		frames INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_render_jobs_created_at ON render_jobs(created_at);
	`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &JobDB{db: db}, nil
}

// Save inserts a running job.
func (j *JobDB) Save(ctx context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = StatusRunning
	}

	query := `
	INSERT INTO render_jobs (job_id, video, style, engine, output, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.ExecContext(ctx, query,
		rec.JobID, rec.Video, rec.Style, rec.Engine, rec.Output, string(rec.Status),
		rec.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// Finish records the terminal state of a job.
func (j *JobDB) Finish(ctx context.Context, jobID string, status Status, output string, frames int, errMsg string) error {
	query := `
	UPDATE render_jobs SET status = ?, output = ?, frames = ?, error = ?, finished_at = ?
	WHERE job_id = ?
	`
	res, err := j.db.ExecContext(ctx, query,
		string(status), output, frames, errMsg, time.Now().UnixMilli(), jobID)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const selectColumns = `job_id, video, style, engine, output, status, error, frames, created_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec      Record
		status   string
		created  int64
		finished sql.NullInt64
	)
	err := row.Scan(&rec.JobID, &rec.Video, &rec.Style, &rec.Engine, &rec.Output,
		&status, &rec.Error, &rec.Frames, &created, &finished)
	if err != nil {
		return Record{}, err
	}
	rec.Status = Status(status)
	rec.CreatedAt = time.UnixMilli(created)
	if finished.Valid {
		t := time.UnixMilli(finished.Int64)
		rec.FinishedAt = &t
	}
	return rec, nil
}

func (j *JobDB) Get(ctx context.Context, jobID string) (*Record, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM render_jobs WHERE job_id = ?`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &rec, nil
}

// List returns the most recent jobs first.
func (j *JobDB) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM render_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (j *JobDB) Close() error {
	return j.db.Close()
}

// Started records a job as running.
func (j *JobDB) Started(ctx context.Context, id string, job render.Job) error {
	engine := job.Engine
	if engine == "" {
		engine = render.EngineASS
	}
	return j.Save(ctx, Record{
		JobID:  id,
		Video:  job.VideoSource,
		Style:  string(job.Style),
		Engine: string(engine),
		Output: job.OutputPath,
	})
}

// Finished records how a job ended.
func (j *JobDB) Finished(ctx context.Context, id string, res *render.Result, err error) error {
	if err != nil {
		status := StatusFailed
		if render.KindOf(err) == render.KindCancelled {
			status = StatusCancelled
		}
		return j.Finish(ctx, id, status, "", 0, err.Error())
	}
	return j.Finish(ctx, id, StatusDone, res.OutputPath, res.TotalFrames, "")
}

var _ render.Recorder = (*JobDB)(nil)

package job

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/maauso/mindset-media-api/internal/compilation"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// interruptedMessage is recorded on jobs that were unfinished at startup.
const interruptedMessage = "interrupted by restart"

// Compile-time check that SQLiteRepository implements Repository.
var _ Repository = (*SQLiteRepository)(nil)

// SQLiteRepository persists jobs in a SQLite database so that job history
// survives restarts. Jobs that were queued or running when the process
// stopped are marked FAILED when the repository is opened.
type SQLiteRepository struct {
	conn   *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepository opens (or creates) the database at dbPath and applies
// pending migrations. A nil logger uses slog.Default().
func NewSQLiteRepository(dbPath string, logger *slog.Logger) (*SQLiteRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	r := &SQLiteRepository{conn: conn, logger: logger}

	if err := r.migrate(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if n, err := r.markInterrupted(context.Background()); err != nil {
		logger.Warn("failed to mark interrupted jobs", slog.Any("error", err))
	} else if n > 0 {
		logger.Info("marked interrupted jobs as failed", slog.Int64("count", n))
	}

	return r, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.conn.Close()
}

func (r *SQLiteRepository) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()

		if r.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := r.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("execute migration %s: %w", name, err)
		}
		if _, err := r.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}

		r.logger.Info("applied migration", slog.String("name", name))
	}

	return nil
}

func (r *SQLiteRepository) isMigrationApplied(name string) bool {
	var exists int
	err := r.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}

	var applied int
	err = r.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (r *SQLiteRepository) markInterrupted(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())
	res, err := r.conn.ExecContext(ctx,
		`UPDATE jobs
		    SET status = ?, error = ?, error_stage = stage, error_index = -1,
		        updated_at = ?, completed_at = ?
		  WHERE status IN (?, ?)`,
		StatusFailed, interruptedMessage, now, now, StatusRunning, StatusInQueue,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Save inserts or updates a job.
func (r *SQLiteRepository) Save(ctx context.Context, job *Job) error {
	j := job.Clone()

	req, err := json.Marshal(j.Request)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO jobs (
		    id, status, request_json, stage, progress, error, error_stage, error_index,
		    output_path, video_url, duration, width, height, mixed_background,
		    created_at, updated_at, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		    status = excluded.status,
		    request_json = excluded.request_json,
		    stage = excluded.stage,
		    progress = excluded.progress,
		    error = excluded.error,
		    error_stage = excluded.error_stage,
		    error_index = excluded.error_index,
		    output_path = excluded.output_path,
		    video_url = excluded.video_url,
		    duration = excluded.duration,
		    width = excluded.width,
		    height = excluded.height,
		    mixed_background = excluded.mixed_background,
		    updated_at = excluded.updated_at,
		    started_at = excluded.started_at,
		    completed_at = excluded.completed_at`,
		j.ID, j.Status, string(req), j.Stage, j.Progress, j.Error, j.ErrorStage, j.ErrorIndex,
		j.OutputVideoPath, j.VideoURL, j.Duration, j.Width, j.Height, j.MixedBackground,
		formatTime(j.CreatedAt), formatTime(j.UpdatedAt),
		nullableTime(j.StartedAt), nullableTime(j.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

const selectJob = `SELECT
    id, status, request_json, stage, progress, error, error_stage, error_index,
    output_path, video_url, duration, width, height, mixed_background,
    created_at, updated_at, started_at, completed_at
FROM jobs`

// FindByID retrieves a job by its ID.
func (r *SQLiteRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	row := r.conn.QueryRowContext(ctx, selectJob+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find job %s: %w", id, err)
	}
	return job, nil
}

// List returns all jobs, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Job, error) {
	rows, err := r.conn.QueryContext(ctx, selectJob+" ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	jobs := make([]*Job, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Delete removes a job.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.conn.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*Job, error) {
	var (
		j                      Job
		reqJSON                string
		createdAt, updatedAt   string
		startedAt, completedAt sql.NullString
	)

	err := s.Scan(
		&j.ID, &j.Status, &reqJSON, &j.Stage, &j.Progress, &j.Error, &j.ErrorStage, &j.ErrorIndex,
		&j.OutputVideoPath, &j.VideoURL, &j.Duration, &j.Width, &j.Height, &j.MixedBackground,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	var req compilation.Request
	if err := json.Unmarshal([]byte(reqJSON), &req); err != nil {
		return nil, fmt.Errorf("decode request of job %s: %w", j.ID, err)
	}
	j.Request = req

	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	j.StartedAt = parseTime(startedAt.String)
	j.CompletedAt = parseTime(completedAt.String)

	return &j, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

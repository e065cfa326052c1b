// Package sqlite stores job and lock rows in a local SQLite file through the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types"
)

const jobColumns = `id, name, data, status, progress, started_at, keep_after_success, created_at`

type SQLiteJobStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteJobStore(db *sql.DB) *SQLiteJobStore {
	return &SQLiteJobStore{db: db, now: time.Now}
}

func (s *SQLiteJobStore) CreateJob(ctx context.Context, name string, data json.RawMessage, keepAfterSuccess bool) (*types.Job, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (name, data, status, progress, keep_after_success, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?)
	`, name, textJSON(data), state.StatusWaiting.String(), keepAfterSuccess, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return s.FindByID(ctx, id)
}

func (s *SQLiteJobStore) FindByID(ctx context.Context, id int64) (*types.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteJobStore) UpdateJob(ctx context.Context, job types.Job) error {
	var startedAt any
	if job.StartedAt != nil {
		startedAt = job.StartedAt.UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, progress = ?, started_at = ?, keep_after_success = ?, updated_at = ?
		WHERE id = ?
	`, job.Status.String(), job.Progress, startedAt, job.KeepAfterSuccess, s.now().UTC(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLiteJobStore) DeleteJob(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteJobStore) FindByStatus(ctx context.Context, statuses ...state.JobStatus) ([]types.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args[i] = st.String()
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE status IN (%s) ORDER BY id ASC`, jobColumns, strings.Join(placeholders, ", "))
	return s.queryJobs(ctx, query, args...)
}

func (s *SQLiteJobStore) ResetStatus(ctx context.Context, from, to state.JobStatus) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = NULL, updated_at = ? WHERE status = ?
	`, to.String(), s.now().UTC(), from.String())
	if err != nil {
		return 0, fmt.Errorf("failed to reset %s jobs: %w", from, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteJobStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}

	where := "1 = 1"
	var args []any
	if status != "" {
		where += " AND status = ?"
		args = append(args, status.String())
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM jobs WHERE %s ORDER BY id DESC LIMIT ? OFFSET ?`, jobColumns, where)
	jobs, err := s.queryJobs(ctx, query, append(args, pageSize, (page-1)*pageSize)...)
	if err != nil {
		return nil, err
	}
	return types.NewPaginationResult(jobs, total, page, pageSize), nil
}

func (s *SQLiteJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, st := range state.AllStatuses {
		result[st] = 0
	}
	for rows.Next() {
		var st state.JobStatus
		var count int
		if err := rows.Scan(&st, &count); err != nil {
			return nil, err
		}
		result[st] = count
	}
	return result, rows.Err()
}

func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteJobStore) queryJobs(ctx context.Context, query string, args ...any) ([]types.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var job types.Job
	var data sql.NullString
	var startedAt sql.NullTime
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&data,
		&job.Status,
		&job.Progress,
		&startedAt,
		&job.KeepAfterSuccess,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		job.Data = json.RawMessage(data.String)
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	return &job, nil
}

func textJSON(data json.RawMessage) any {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return string(data)
}

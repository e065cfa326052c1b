package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/talkvault/talkvault/internal/state"
	"github.com/talkvault/talkvault/internal/store"
	"github.com/talkvault/talkvault/types"
)

const jobColumns = `id, name, data, status, progress, started_at, keep_after_success, created_at`

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(db *sql.DB) *PostgresJobStore {
	return &PostgresJobStore{db: db}
}

func (r *PostgresJobStore) CreateJob(ctx context.Context, name string, data json.RawMessage, keepAfterSuccess bool) (*types.Job, error) {
	query := `
		INSERT INTO talkvault_schema.jobs (name, data, status, progress, keep_after_success, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, now(), now())
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query, name, nullJSON(data), state.StatusWaiting, keepAfterSuccess))
	if err != nil {
		return nil, fmt.Errorf("failed to insert job: %w", err)
	}
	return job, nil
}

func (r *PostgresJobStore) FindByID(ctx context.Context, id int64) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM talkvault_schema.jobs WHERE id = $1`
	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (r *PostgresJobStore) UpdateJob(ctx context.Context, job types.Job) error {
	query := `
		UPDATE talkvault_schema.jobs
		SET status = $1,
		    progress = $2,
		    started_at = $3,
		    keep_after_success = $4,
		    updated_at = now()
		WHERE id = $5
	`
	res, err := r.db.ExecContext(ctx, query, job.Status, job.Progress, job.StartedAt, job.KeepAfterSuccess, job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %d: %w", job.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *PostgresJobStore) DeleteJob(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM talkvault_schema.jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job %d: %w", id, err)
	}
	return nil
}

func (r *PostgresJobStore) FindByStatus(ctx context.Context, statuses ...state.JobStatus) ([]types.Job, error) {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, s.String())
	}

	query := `SELECT ` + jobColumns + ` FROM talkvault_schema.jobs WHERE status = ANY($1) ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(values))
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

func (r *PostgresJobStore) ResetStatus(ctx context.Context, from, to state.JobStatus) (int64, error) {
	query := `
		UPDATE talkvault_schema.jobs
		SET status = $1,
		    started_at = NULL,
		    updated_at = now()
		WHERE status = $2
	`
	res, err := r.db.ExecContext(ctx, query, to, from)
	if err != nil {
		return 0, fmt.Errorf("failed to reset %s jobs: %w", from, err)
	}
	return res.RowsAffected()
}

func (r *PostgresJobStore) GetAll(ctx context.Context, page int, pageSize int, status state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	var args []interface{}
	where := "TRUE"

	argIndex := 1
	if status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, status)
		argIndex++
	}

	countQuery := `SELECT COUNT(*) FROM talkvault_schema.jobs WHERE ` + where
	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM talkvault_schema.jobs
		WHERE %s
		ORDER BY id DESC
		LIMIT $%d OFFSET $%d`, jobColumns, where, argIndex, argIndex+1)

	var totalItems int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, err
	}

	args = append(args, pageSize, offset)
	rows, err := r.db.QueryContext(ctx, selectQuery, args...)
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
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return types.NewPaginationResult(jobs, totalItems, page, pageSize), nil
}

func (r *PostgresJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM talkvault_schema.jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, rows.Err()
}

func (r *PostgresJobStore) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var job types.Job
	var data []byte
	if err := row.Scan(
		&job.ID,
		&job.Name,
		&data,
		&job.Status,
		&job.Progress,
		&job.StartedAt,
		&job.KeepAfterSuccess,
		&job.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(data) > 0 {
		job.Data = json.RawMessage(data)
	}
	return &job, nil
}

func nullJSON(data json.RawMessage) any {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return []byte(data)
}

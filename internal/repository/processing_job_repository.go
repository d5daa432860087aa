package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/datareader/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type processingJobRepository struct {
	pool *pgxpool.Pool
}

// NewProcessingJobRepository wires a repository backed by pgxpool.
func NewProcessingJobRepository(pool *pgxpool.Pool) ProcessingJobRepository {
	return &processingJobRepository{pool: pool}
}

const processingJobColumns = `id, file_location, status, success, total_records, saved_records, error_count,
	error_log_path, started_at, finished_at, created_at`

func (r *processingJobRepository) Create(ctx context.Context, job domain.ProcessingJob) (domain.ProcessingJob, error) {
	if r.pool == nil {
		return domain.ProcessingJob{}, fmt.Errorf("processing job repository not initialized")
	}

	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO processing_jobs (id, file_location, status, started_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		job.ID,
		job.FileLocation,
		string(job.Status),
		job.StartedAt,
	).Scan(&job.CreatedAt)
	if err != nil {
		return domain.ProcessingJob{}, fmt.Errorf("failed to create processing job: %w", classifyError(err))
	}

	return job, nil
}

func (r *processingJobRepository) Complete(ctx context.Context, job domain.ProcessingJob) error {
	if r.pool == nil {
		return fmt.Errorf("processing job repository not initialized")
	}

	var logPath any
	if job.ErrorLogPath != "" {
		logPath = job.ErrorLogPath
	}

	tag, err := r.pool.Exec(
		ctx,
		`UPDATE processing_jobs
		 SET status = $2, success = $3, total_records = $4, saved_records = $5,
		     error_count = $6, error_log_path = $7, finished_at = $8
		 WHERE id = $1`,
		job.ID,
		string(job.Status),
		job.Success,
		job.TotalRecords,
		job.SavedRecords,
		job.ErrorCount,
		logPath,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete processing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("processing job %s: %w", job.ID, ErrNotFound)
	}

	return nil
}

func (r *processingJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ProcessingJob, error) {
	if r.pool == nil {
		return domain.ProcessingJob{}, fmt.Errorf("processing job repository not initialized")
	}

	row := r.pool.QueryRow(ctx, `SELECT `+processingJobColumns+` FROM processing_jobs WHERE id = $1`, id)
	job, err := scanProcessingJob(row)
	if err != nil {
		err = classifyError(err)
		if errors.Is(err, ErrNotFound) {
			return domain.ProcessingJob{}, fmt.Errorf("processing job %s: %w", id, err)
		}
		return domain.ProcessingJob{}, fmt.Errorf("failed to get processing job: %w", err)
	}

	return job, nil
}

func (r *processingJobRepository) List(ctx context.Context, limit int, offset int) ([]domain.ProcessingJob, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("processing job repository not initialized")
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+processingJobColumns+`
		 FROM processing_jobs
		 ORDER BY created_at DESC
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}
	defer rows.Close()

	jobs := []domain.ProcessingJob{}
	for rows.Next() {
		job, scanErr := scanProcessingJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan processing job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate processing jobs: %w", rowsErr)
	}

	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProcessingJob(row rowScanner) (domain.ProcessingJob, error) {
	var (
		job        domain.ProcessingJob
		status     string
		logPath    pgtype.Text
		finishedAt pgtype.Timestamptz
	)
	if err := row.Scan(
		&job.ID,
		&job.FileLocation,
		&status,
		&job.Success,
		&job.TotalRecords,
		&job.SavedRecords,
		&job.ErrorCount,
		&logPath,
		&job.StartedAt,
		&finishedAt,
		&job.CreatedAt,
	); err != nil {
		return domain.ProcessingJob{}, err
	}

	job.Status = domain.ProcessingJobStatus(status)
	if logPath.Valid {
		job.ErrorLogPath = logPath.String
	}
	if finishedAt.Valid {
		finished := finishedAt.Time
		job.FinishedAt = &finished
	}

	return job, nil
}

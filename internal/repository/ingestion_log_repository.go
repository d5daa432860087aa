package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/datareader/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ingestionLogRepository struct {
	pool *pgxpool.Pool
}

// NewIngestionLogRepository wires a repository backed by pgxpool.
func NewIngestionLogRepository(pool *pgxpool.Pool) IngestionLogRepository {
	return &ingestionLogRepository{pool: pool}
}

var ingestionLogColumns = []string{"job_id", "file_name", "line_number", "identifier", "kind", "error_message"}

// RecordBatch copies all entries in a single COPY round trip.
func (r *ingestionLogRepository) RecordBatch(ctx context.Context, entries []domain.IngestionLogEntry) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("ingestion log repository not initialized")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	copied, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"ingestion_logs"},
		ingestionLogColumns,
		pgx.CopyFromSlice(len(entries), func(i int) ([]any, error) {
			entry := entries[i]
			var lineNumber any
			if entry.LineNumber != nil {
				lineNumber = int32(*entry.LineNumber)
			}
			return []any{
				entry.JobID,
				entry.FileName,
				lineNumber,
				entry.Identifier,
				entry.Kind,
				entry.ErrorMessage,
			}, nil
		}),
	)
	if err != nil {
		return copied, fmt.Errorf("failed to record ingestion logs: %w", err)
	}

	return copied, nil
}

func (r *ingestionLogRepository) ListByJob(ctx context.Context, jobID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("ingestion log repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT id, job_id, file_name, line_number, identifier, kind, error_message, created_at
		 FROM ingestion_logs
		 WHERE job_id = $1
		 ORDER BY id ASC
		 LIMIT $2 OFFSET $3`,
		jobID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingestion logs: %w", err)
	}
	defer rows.Close()

	logs := []domain.IngestionLogEntry{}
	for rows.Next() {
		var (
			entry      domain.IngestionLogEntry
			lineNumber pgtype.Int4
			createdAt  pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.JobID,
			&entry.FileName,
			&lineNumber,
			&entry.Identifier,
			&entry.Kind,
			&entry.ErrorMessage,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan ingestion log: %w", scanErr)
		}

		if lineNumber.Valid {
			value := int(lineNumber.Int32)
			entry.LineNumber = &value
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		logs = append(logs, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate ingestion logs: %w", rowsErr)
	}

	return logs, nil
}

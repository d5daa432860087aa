package repository

import (
	"context"

	"github.com/rpattn/datareader/internal/domain"

	"github.com/google/uuid"
)

// PersonStore persists validated people. Insert assigns the stored identity.
type PersonStore interface {
	Insert(ctx context.Context, person domain.Person) (domain.Person, error)
}

// PersonRepository defines the interface for person operations
type PersonRepository interface {
	PersonStore
	GetByPersonalID(ctx context.Context, personalID string) (domain.Person, error)
	Count(ctx context.Context) (int64, error)
}

// ProcessingJobRepository tracks import runs.
type ProcessingJobRepository interface {
	Create(ctx context.Context, job domain.ProcessingJob) (domain.ProcessingJob, error)
	Complete(ctx context.Context, job domain.ProcessingJob) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.ProcessingJob, error)
	List(ctx context.Context, limit int, offset int) ([]domain.ProcessingJob, error)
}

// IngestionLogRepository stores ingestion errors for observability.
type IngestionLogRepository interface {
	RecordBatch(ctx context.Context, entries []domain.IngestionLogEntry) (int64, error)
	ListByJob(ctx context.Context, jobID uuid.UUID, limit int, offset int) ([]domain.IngestionLogEntry, error)
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingJobStatus tracks where a file import is in its lifecycle.
type ProcessingJobStatus string

const (
	ProcessingJobStatusRunning   ProcessingJobStatus = "running"
	ProcessingJobStatusCompleted ProcessingJobStatus = "completed"
)

// ProcessingJob records one import run of one file.
type ProcessingJob struct {
	ID           uuid.UUID           `json:"id"`
	FileLocation string              `json:"fileLocation"`
	Status       ProcessingJobStatus `json:"status"`
	Success      bool                `json:"success"`
	TotalRecords int                 `json:"totalRecords"`
	SavedRecords int                 `json:"savedRecords"`
	ErrorCount   int                 `json:"errorCount"`
	ErrorLogPath string              `json:"errorLogPath,omitempty"`
	StartedAt    time.Time           `json:"startedAt"`
	FinishedAt   *time.Time          `json:"finishedAt,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
}

// NewProcessingJob creates a running job for the given file.
func NewProcessingJob(fileLocation string, startedAt time.Time) ProcessingJob {
	return ProcessingJob{
		ID:           uuid.New(),
		FileLocation: fileLocation,
		Status:       ProcessingJobStatusRunning,
		StartedAt:    startedAt,
		CreatedAt:    time.Now().UTC(),
	}
}

// Complete returns a copy of the job marked as finished with the given totals.
func (j ProcessingJob) Complete(success bool, total, saved, errorCount int, logPath string, finishedAt time.Time) ProcessingJob {
	j.Status = ProcessingJobStatusCompleted
	j.Success = success
	j.TotalRecords = total
	j.SavedRecords = saved
	j.ErrorCount = errorCount
	j.ErrorLogPath = logPath
	j.FinishedAt = &finishedAt
	return j
}

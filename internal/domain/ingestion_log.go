package domain

import (
	"time"

	"github.com/google/uuid"
)

// IngestionLogEntry captures line level issues that occur during ingestion.
type IngestionLogEntry struct {
	ID           int64     `json:"id"`
	JobID        uuid.UUID `json:"jobId"`
	FileName     string    `json:"fileName"`
	LineNumber   *int      `json:"lineNumber,omitempty"`
	Identifier   string    `json:"identifier"`
	Kind         string    `json:"kind"`
	ErrorMessage string    `json:"errorMessage"`
	CreatedAt    time.Time `json:"createdAt"`
}

package ingestion

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CPUTimes is cumulative process CPU time.
type CPUTimes struct {
	User   time.Duration `json:"-"`
	System time.Duration `json:"-"`
}

// MarshalJSON renders both components in microseconds.
func (c CPUTimes) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		User   int64 `json:"user"`
		System int64 `json:"system"`
	}{
		User:   c.User.Microseconds(),
		System: c.System.Microseconds(),
	})
}

// CPUUsage aggregates the CPU samples taken during a run.
type CPUUsage struct {
	Start   CPUTimes `json:"start"`
	End     CPUTimes `json:"end"`
	Average CPUTimes `json:"average"`
}

// MemoryUsage aggregates resident memory samples, in bytes.
type MemoryUsage struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
	Peak  uint64 `json:"peak"`
}

// Result is the accounting of one run.
type Result struct {
	JobID          uuid.UUID     `json:"jobId"`
	Success        bool          `json:"success"`
	TotalRecords   int           `json:"totalRecords"`
	SavedRecords   int           `json:"savedRecords"`
	FailedRecords  int           `json:"failedRecords"`
	ErrorCount     int           `json:"errorCount"`
	ProcessingTime time.Duration `json:"-"`
	CPUUsage       CPUUsage      `json:"cpuUsage"`
	MemoryUsage    MemoryUsage   `json:"memoryUsage"`
	ErrorLogPath   string        `json:"errorLogPath,omitempty"`
}

// ProcessingTimeMillis is the elapsed wall time in milliseconds.
func (r Result) ProcessingTimeMillis() int64 {
	return r.ProcessingTime.Milliseconds()
}

// addBatch folds one committed batch into the run totals.
func (r *Result) addBatch(batch BatchResult) {
	r.TotalRecords += batch.Attempted
	r.SavedRecords += batch.Succeeded
	r.FailedRecords += batch.Attempted - batch.Succeeded
}

// ResourceSample is one observation of process CPU time and resident memory.
type ResourceSample struct {
	CPU CPUTimes
	RSS uint64
	At  time.Time
}

// summarizeSamples reduces start, periodic and end samples into the reported
// aggregates. Peak memory falls back to the end sample when nothing else was seen.
func summarizeSamples(start ResourceSample, periodic []ResourceSample, end ResourceSample) (CPUUsage, MemoryUsage) {
	all := make([]ResourceSample, 0, len(periodic)+2)
	all = append(all, start)
	all = append(all, periodic...)
	all = append(all, end)

	var user, system time.Duration
	for _, sample := range all {
		user += sample.CPU.User
		system += sample.CPU.System
	}
	n := time.Duration(len(all))

	peak := end.RSS
	for _, sample := range periodic {
		if sample.RSS > peak {
			peak = sample.RSS
		}
	}
	if start.RSS > peak {
		peak = start.RSS
	}

	return CPUUsage{
			Start:   start.CPU,
			End:     end.CPU,
			Average: CPUTimes{User: user / n, System: system / n},
		}, MemoryUsage{
			Start: start.RSS,
			End:   end.RSS,
			Peak:  peak,
		}
}

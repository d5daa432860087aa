package ingestion

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Sampler observes process level resource usage.
type Sampler interface {
	Sample() (ResourceSample, error)
}

type processSampler struct {
	proc *process.Process
}

// NewProcessSampler samples the CPU time and resident memory of the current process.
func NewProcessSampler() (Sampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open current process: %w", err)
	}
	return &processSampler{proc: proc}, nil
}

func (s *processSampler) Sample() (ResourceSample, error) {
	sample := ResourceSample{At: time.Now()}

	times, err := s.proc.Times()
	if err != nil {
		return sample, fmt.Errorf("failed to read cpu times: %w", err)
	}
	sample.CPU = CPUTimes{
		User:   secondsToDuration(times.User),
		System: secondsToDuration(times.System),
	}

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return sample, fmt.Errorf("failed to read memory info: %w", err)
	}
	sample.RSS = mem.RSS

	return sample, nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

type noopSampler struct{}

func (noopSampler) Sample() (ResourceSample, error) {
	return ResourceSample{At: time.Now()}, nil
}

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/datareader/internal/domain"
)

func personLine(i int) string {
	return fmt.Sprintf("Name%d|Surname%d|%d|Activo|2023-01-15|true|false", i, i, i)
}

func writeRecords(t *testing.T, lines ...string) string {
	t.Helper()
	return writeFile(t, "people.txt", []byte(strings.Join(lines, "\n")+"\n"))
}

func recordLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = personLine(i + 1)
	}
	return lines
}

func newTestService(t *testing.T, store *stubPersonStore, opts ...Option) (*Service, string) {
	t.Helper()
	logsDir := filepath.Join(t.TempDir(), "logs")
	opts = append([]Option{WithLogsDirectory(logsDir)}, opts...)
	return NewService(store, opts...), logsDir
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	require.NotEmpty(t, path, "expected an error log path")
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(content), "\n"), "\n")
}

func logEntries(lines []string) []string {
	for i, line := range lines {
		if line == "" {
			return lines[i+1:]
		}
	}
	return nil
}

func TestProcessRequiresFileLocation(t *testing.T) {
	service, _ := newTestService(t, newStubPersonStore())
	_, err := service.Process(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrFileLocationRequired)
}

func TestProcessBatchBoundaries(t *testing.T) {
	for _, n := range []int{1, 99, 100, 101, 250} {
		t.Run(fmt.Sprintf("%d records", n), func(t *testing.T) {
			store := newStubPersonStore()
			service, _ := newTestService(t, store)

			result, err := service.Process(context.Background(), writeRecords(t, recordLines(n)...))
			require.NoError(t, err)

			assert.True(t, result.Success)
			assert.Equal(t, n, result.TotalRecords)
			assert.Equal(t, n, result.SavedRecords)
			assert.Zero(t, result.FailedRecords)
			assert.Zero(t, result.ErrorCount)
			assert.Empty(t, result.ErrorLogPath)
			assert.Len(t, store.inserted, n)
		})
	}
}

func TestProcessCountsBatchesThroughCommitter(t *testing.T) {
	metrics := NewMetrics()
	require.NoError(t, metrics.Register(prometheus.NewRegistry()))

	store := newStubPersonStore()
	service, _ := newTestService(t, store, WithBatchSize(10), WithMetrics(metrics))

	result, err := service.Process(context.Background(), writeRecords(t, recordLines(25)...))
	require.NoError(t, err)
	assert.Equal(t, 25, result.SavedRecords)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Runs.WithLabelValues("succeeded")))
	assert.Equal(t, float64(25), testutil.ToFloat64(metrics.Records.WithLabelValues("saved")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.Records.WithLabelValues("invalid")))
}

func TestProcessMalformedLinesAreLoggedAndSkipped(t *testing.T) {
	store := newStubPersonStore()
	service, _ := newTestService(t, store)

	path := writeRecords(t,
		personLine(1),
		"Jane|Doe|2|Activo|2023-01-15|true",
		"",
		"   ",
		"Jane|Doe||Activo|2023-01-15|true|false",
		personLine(3),
		"Jane|Doe|4|Pendiente|2023-01-15|true|false",
	)

	result, err := service.Process(context.Background(), path)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalRecords)
	assert.Equal(t, 2, result.SavedRecords)
	assert.Equal(t, 3, result.ErrorCount)

	entries := logEntries(readLog(t, result.ErrorLogPath))
	assert.Equal(t, []string{
		"Line 2 - N/A: Invalid number of fields. Expected 7, got 6",
		"Line 5 - N/A: Missing required fields: personalId",
		"Line 7 - 4: Invalid status: Pendiente. Must be 'Activo' or 'Inactivo'",
	}, entries)
}

func TestProcessReingestReportsDuplicates(t *testing.T) {
	store := newStubPersonStore()
	service, _ := newTestService(t, store)
	path := writeRecords(t, recordLines(5)...)

	first, err := service.Process(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 5, first.SavedRecords)

	second, err := service.Process(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, second.Success)
	assert.Equal(t, 5, second.TotalRecords)
	assert.Zero(t, second.SavedRecords)
	assert.Equal(t, 5, second.FailedRecords)
	assert.Equal(t, 5, second.ErrorCount)

	entries := logEntries(readLog(t, second.ErrorLogPath))
	require.Len(t, entries, 5)
	for i, entry := range entries {
		assert.True(t, strings.HasPrefix(entry, fmt.Sprintf("Line %d - %d: ", i+1, i+1)), entry)
		assert.Contains(t, entry, "unique constraint")
	}
	assert.Len(t, store.inserted, 5)
}

func TestProcessMissingFile(t *testing.T) {
	sampler := &stepSampler{}
	service, logsDir := newTestService(t, newStubPersonStore(), WithSampler(sampler))
	missing := filepath.Join(t.TempDir(), "nope.txt")

	result, err := service.Process(context.Background(), missing)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Zero(t, result.TotalRecords)
	assert.Zero(t, result.SavedRecords)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Zero(t, sampler.calls)
	assert.True(t, strings.HasPrefix(result.ErrorLogPath, logsDir))

	lines := readLog(t, result.ErrorLogPath)
	assert.Equal(t, "Total Errors: 1", lines[1])
	assert.Equal(t, []string{"File not found: " + missing}, logEntries(lines))
}

func TestProcessDirectoryIsNotAFile(t *testing.T) {
	service, _ := newTestService(t, newStubPersonStore())
	result, err := service.Process(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.ErrorCount)
	assert.Contains(t, logEntries(readLog(t, result.ErrorLogPath))[0], "File not found: ")
}

func TestProcessRejectsPathOutsideBaseDir(t *testing.T) {
	store := newStubPersonStore()
	service, _ := newTestService(t, store, WithAllowedBaseDir(t.TempDir()))

	result, err := service.Process(context.Background(), writeRecords(t, personLine(1)))
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, store.inserted)
	entries := logEntries(readLog(t, result.ErrorLogPath))
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0], "Invalid file location")
}

func TestProcessAllowsPathInsideBaseDir(t *testing.T) {
	store := newStubPersonStore()
	path := writeRecords(t, personLine(1))
	service, _ := newTestService(t, store, WithAllowedBaseDir(filepath.Dir(path)))

	result, err := service.Process(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestProcessStopsAtBatchBoundaryWhenCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newStubPersonStore()
	store.onInsert = func(calls int) {
		if calls == 10 {
			cancel()
		}
	}
	jobs := newStubJobRepo()
	service, _ := newTestService(t, store, WithBatchSize(10), WithProcessingJobs(jobs))

	result, err := service.Process(ctx, writeRecords(t, recordLines(35)...))
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalRecords)
	assert.Equal(t, 10, result.SavedRecords)
	assert.True(t, result.Success)

	entries := logEntries(readLog(t, result.ErrorLogPath))
	require.Len(t, entries, 1)
	assert.Equal(t, "File processing error: context canceled", entries[0])

	// bookkeeping still completes after cancellation
	require.Len(t, jobs.completed, 1)
	assert.Equal(t, domain.ProcessingJobStatusCompleted, jobs.completed[0].Status)
}

func TestProcessKeepsBatchAccountingWhenInsertPanics(t *testing.T) {
	store := newStubPersonStore()
	store.onInsert = func(calls int) {
		if calls == 2 {
			panic("driver exploded")
		}
	}
	service, _ := newTestService(t, store, WithBatchSize(2))

	result, err := service.Process(context.Background(), writeRecords(t, recordLines(4)...))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 4, result.TotalRecords)
	assert.Equal(t, 3, result.SavedRecords)
	assert.Equal(t, len(store.inserted), result.SavedRecords)

	entries := logEntries(readLog(t, result.ErrorLogPath))
	require.Len(t, entries, 1)
	assert.Equal(t, "Line 2 - 2: panic during insert: driver exploded", entries[0])
}

func TestProcessRecoversPanicsOutsideStorage(t *testing.T) {
	store := newStubPersonStore()
	service, _ := newTestService(t, store, WithBatchSize(2))
	service.openSource = func(string, SourceOptions) (LineSource, error) {
		return &scriptedSource{lines: recordLines(2), panicWith: "reader exploded"}, nil
	}

	result, err := service.Process(context.Background(), writeRecords(t, personLine(1)))
	require.NoError(t, err)

	// the full batch was committed before the panic
	assert.Equal(t, 2, result.SavedRecords)
	assert.Len(t, store.inserted, 2)
	entries := logEntries(readLog(t, result.ErrorLogPath))
	require.Len(t, entries, 1)
	assert.Equal(t, "File processing error: panic: reader exploded", entries[0])
}

func TestProcessReadFailureKeepsEarlierRecords(t *testing.T) {
	store := newStubPersonStore()
	service, _ := newTestService(t, store, WithBatchSize(2))
	source := &scriptedSource{lines: recordLines(3), err: io.ErrUnexpectedEOF}
	service.openSource = func(string, SourceOptions) (LineSource, error) {
		return source, nil
	}

	result, err := service.Process(context.Background(), writeRecords(t, personLine(1)))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.TotalRecords)
	assert.Equal(t, 3, result.SavedRecords)
	assert.Len(t, store.inserted, 3)
	assert.True(t, source.closed)

	entries := logEntries(readLog(t, result.ErrorLogPath))
	require.Len(t, entries, 1)
	assert.Equal(t, "File processing error: unexpected EOF", entries[0])
}

func TestProcessSamplesResources(t *testing.T) {
	sampler := &stepSampler{}
	service, _ := newTestService(t, newStubPersonStore(), WithSampler(sampler), WithSampleEvery(2))

	result, err := service.Process(context.Background(), writeRecords(t, recordLines(5)...))
	require.NoError(t, err)

	// start, after lines 2 and 4, end
	require.Equal(t, 4, sampler.calls)
	assert.Equal(t, 10*time.Millisecond, result.CPUUsage.Start.User)
	assert.Equal(t, 40*time.Millisecond, result.CPUUsage.End.User)
	assert.Equal(t, 25*time.Millisecond, result.CPUUsage.Average.User)
	assert.Equal(t, uint64(1<<20), result.MemoryUsage.Start)
	assert.Equal(t, uint64(4<<20), result.MemoryUsage.End)
	assert.Equal(t, uint64(4<<20), result.MemoryUsage.Peak)
}

func TestProcessIgnoresSamplerFailures(t *testing.T) {
	service, _ := newTestService(t, newStubPersonStore(), WithSampler(failingSampler{}))

	result, err := service.Process(context.Background(), writeRecords(t, recordLines(3)...))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.MemoryUsage.Peak)
}

func TestProcessRecordsJobAndIngestionLogs(t *testing.T) {
	store := newStubPersonStore()
	jobs := newStubJobRepo()
	logs := &stubLogRepo{}
	service, _ := newTestService(t, store, WithProcessingJobs(jobs), WithIngestionLogs(logs))

	path := writeRecords(t, personLine(1), "bad line", personLine(1))
	result, err := service.Process(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, jobs.completed, 1)
	job := jobs.completed[0]
	assert.Equal(t, result.JobID, job.ID)
	assert.Equal(t, path, job.FileLocation)
	assert.True(t, job.Success)
	assert.Equal(t, 2, job.TotalRecords)
	assert.Equal(t, 1, job.SavedRecords)
	assert.Equal(t, 2, job.ErrorCount)
	assert.Equal(t, result.ErrorLogPath, job.ErrorLogPath)
	require.NotNil(t, job.FinishedAt)

	require.Len(t, logs.entries, 2)
	assert.Equal(t, result.JobID, logs.entries[0].JobID)
	assert.Equal(t, string(KindFieldCount), logs.entries[0].Kind)
	require.NotNil(t, logs.entries[0].LineNumber)
	assert.Equal(t, 2, *logs.entries[0].LineNumber)
	assert.Equal(t, string(KindUniqueConstraint), logs.entries[1].Kind)
	assert.Equal(t, "1", logs.entries[1].Identifier)
}

func TestProcessBookkeepingFailuresAreNotFatal(t *testing.T) {
	jobs := newStubJobRepo()
	jobs.createErr = errors.New("jobs table unavailable")
	logs := &stubLogRepo{err: errors.New("copy failed")}
	service, _ := newTestService(t, newStubPersonStore(), WithProcessingJobs(jobs), WithIngestionLogs(logs))

	result, err := service.Process(context.Background(), writeRecords(t, personLine(1), "bad"))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, jobs.completed)
	assert.Empty(t, logs.entries)
}

func TestProcessXLSXMatchesText(t *testing.T) {
	path := writeWorkbook(t, [][]any{
		{"Jane", "Doe", "1234567890", "Activo", "2023-01-15", "true", "false"},
		{"John", "Roe", "2", "Unknown", "2023-01-15", "true", "false"},
	})

	store := newStubPersonStore()
	service, _ := newTestService(t, store)
	result, err := service.Process(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 1, result.SavedRecords)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, store.inserted, 1)
	assert.True(t, store.inserted[0].PEP)
	assert.False(t, store.inserted[0].OS)
	assert.Equal(t, domain.PersonStatusActive, store.inserted[0].Status)
}

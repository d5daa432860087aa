package ingestion

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultLogsDir = "logs"
	logFilePrefix  = "processing-errors-"
	logTimeLayout  = "2006-01-02T15:04:05.000Z07:00"
	maxLogSuffix   = 100
)

// ErrorLog writes a run's accumulated errors to a plain text artifact.
type ErrorLog struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewErrorLog creates a writer placing files under dir ("logs" when empty).
func NewErrorLog(dir string, logger zerolog.Logger) *ErrorLog {
	if strings.TrimSpace(dir) == "" {
		dir = defaultLogsDir
	}
	return &ErrorLog{dir: filepath.Clean(dir), now: time.Now, logger: logger}
}

// PathFor derives the log path of a run from its start time. Flush adds a
// numeric suffix when another run already owns that path.
func (l *ErrorLog) PathFor(startedAt time.Time) string {
	stamp := startedAt.UTC().Format(logTimeLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return filepath.Join(l.dir, logFilePrefix+stamp+".log")
}

// Flush writes entries to the run's log file and returns its path. A nil
// summary omits the totals from the header. Failures are logged and reported
// through ok; they never reach the caller as errors.
func (l *ErrorLog) Flush(startedAt time.Time, entries []ErrorEntry, summary *Result) (path string, ok bool) {
	base := l.PathFor(startedAt)
	path, err := l.write(base, entries, summary)
	if err != nil {
		l.logger.Warn().Err(err).Str("path", base).Msg("failed to write error log")
		return "", false
	}
	return path, true
}

// createLogFile opens a new file at base, or at base with "-1", "-2", ... inserted
// before the extension when the name is taken. Existing logs are never
// overwritten.
func createLogFile(base string) (*os.File, string, error) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	path := base
	for i := 1; ; i++ {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, os.ErrExist) || i > maxLogSuffix {
			return nil, "", err
		}
		path = fmt.Sprintf("%s-%d%s", stem, i, ext)
	}
}

func (l *ErrorLog) write(base string, entries []ErrorEntry, summary *Result) (path string, err error) {
	if err := os.MkdirAll(filepath.Dir(base), 0o755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}

	file, path, err := createLogFile(base)
	if err != nil {
		return "", fmt.Errorf("failed to create error log: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close error log: %w", closeErr)
		}
	}()

	w := bufio.NewWriter(file)
	fmt.Fprintf(w, "Processing Errors - %s\n", l.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Total Errors: %d\n", len(entries))
	if summary != nil {
		writeSummary(w, summary)
	}
	fmt.Fprintln(w)

	for _, entry := range entries {
		fmt.Fprintln(w, entry.String())
	}

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("failed to write error log: %w", err)
	}
	return path, nil
}

func writeSummary(w *bufio.Writer, summary *Result) {
	fmt.Fprintf(w, "Total Records: %d\n", summary.TotalRecords)
	fmt.Fprintf(w, "Saved Records: %d\n", summary.SavedRecords)
	fmt.Fprintf(w, "Processing Time: %dms\n", summary.ProcessingTimeMillis())
	cpu := summary.CPUUsage
	fmt.Fprintf(w, "CPU Usage: start=%s end=%s average=%s\n", formatCPU(cpu.Start), formatCPU(cpu.End), formatCPU(cpu.Average))
	mem := summary.MemoryUsage
	fmt.Fprintf(w, "Memory Usage: start=%s end=%s peak=%s\n", formatMB(mem.Start), formatMB(mem.End), formatMB(mem.Peak))
}

func formatCPU(t CPUTimes) string {
	return fmt.Sprintf("user %dus/system %dus", t.User.Microseconds(), t.System.Microseconds())
}

// formatMB renders a byte count in mebibytes with two decimals, e.g. "12.34MB".
func formatMB(bytes uint64) string {
	return fmt.Sprintf("%.2fMB", float64(bytes)/1024/1024)
}

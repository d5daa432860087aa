package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rpattn/datareader/internal/domain"
	"github.com/rpattn/datareader/internal/repository"
)

const (
	DefaultBatchSize   = 100
	DefaultSampleEvery = 1000
)

// Service streams person files into storage.
type Service struct {
	people    repository.PersonStore
	jobs      repository.ProcessingJobRepository
	logRepo   repository.IngestionLogRepository
	sampler   Sampler
	metrics   *Metrics
	logger    zerolog.Logger
	committer *Committer
	errorLog  *ErrorLog

	batchSize   int
	sampleEvery int
	logsDir     string
	baseDir     string
	sourceOpts  SourceOptions
	openSource  func(path string, opts SourceOptions) (LineSource, error)
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithProcessingJobs records every run as a processing job.
func WithProcessingJobs(repo repository.ProcessingJobRepository) Option {
	return func(s *Service) { s.jobs = repo }
}

// WithIngestionLogs copies every run's errors into the ingestion log table.
func WithIngestionLogs(repo repository.IngestionLogRepository) Option {
	return func(s *Service) { s.logRepo = repo }
}

func WithSampler(sampler Sampler) Option {
	return func(s *Service) {
		if sampler != nil {
			s.sampler = sampler
		}
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithBatchSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

func WithSampleEvery(lines int) Option {
	return func(s *Service) {
		if lines > 0 {
			s.sampleEvery = lines
		}
	}
}

// WithLogsDirectory sets where error logs are written.
func WithLogsDirectory(dir string) Option {
	return func(s *Service) { s.logsDir = dir }
}

// WithAllowedBaseDir rejects file locations outside dir.
func WithAllowedBaseDir(dir string) Option {
	return func(s *Service) { s.baseDir = dir }
}

func WithEncoding(encoding string) Option {
	return func(s *Service) { s.sourceOpts.Encoding = encoding }
}

// NewService creates a new ingestion service.
func NewService(people repository.PersonStore, opts ...Option) *Service {
	s := &Service{
		people:      people,
		sampler:     noopSampler{},
		logger:      zerolog.Nop(),
		batchSize:   DefaultBatchSize,
		sampleEvery: DefaultSampleEvery,
		openSource:  OpenSource,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.committer = NewCommitter(people, s.logger, s.metrics)
	s.errorLog = NewErrorLog(s.logsDir, s.logger)
	s.errorLog.now = s.now
	return s
}

// run is the mutable state of one Process call. Nothing in it is shared
// between runs.
type run struct {
	fileLocation string
	startedAt    time.Time
	job          domain.ProcessingJob
	jobRecorded  bool
	logger       zerolog.Logger

	result  Result
	errors  []ErrorEntry
	invalid int
	batch   []ParsedLine

	linesRead int
	start     ResourceSample
	samples   []ResourceSample
}

func (r *run) addError(entry ErrorEntry) {
	r.errors = append(r.errors, entry)
}

// fail records a terminal stream error.
func (r *run) fail(err error) {
	r.addError(ErrorEntry{
		Identifier: unknownIdentifier,
		Kind:       KindStream,
		Message:    "File processing error: " + err.Error(),
	})
}

// Process ingests the file at fileLocation. Every failure inside the run is
// reported through the returned Result; the error is reserved for invalid calls.
func (s *Service) Process(ctx context.Context, fileLocation string) (Result, error) {
	fileLocation = strings.TrimSpace(fileLocation)
	if fileLocation == "" {
		return Result{}, ErrFileLocationRequired
	}

	startedAt := s.now()
	r := &run{
		fileLocation: fileLocation,
		startedAt:    startedAt,
		job:          domain.NewProcessingJob(fileLocation, startedAt),
		batch:        make([]ParsedLine, 0, s.batchSize),
	}
	r.result.JobID = r.job.ID
	r.logger = s.runLogger(ctx).With().Str("jobId", r.job.ID.String()).Str("file", fileLocation).Logger()
	s.beginJob(ctx, r)

	path, err := resolveInputPath(fileLocation, s.baseDir)
	if err != nil {
		s.abort(ctx, r, err)
		return r.result, nil
	}

	source, err := s.openSource(path, s.sourceOpts)
	if err != nil {
		s.abort(ctx, r, err)
		return r.result, nil
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			r.logger.Warn().Err(closeErr).Msg("failed to close input file")
		}
	}()

	r.logger.Info().Int("batchSize", s.batchSize).Msg("processing file")
	r.start = s.sample(r)
	s.stream(ctx, r, source)
	s.finalize(ctx, r, true)

	return r.result, nil
}

// abort ends a run that could not open its input.
func (s *Service) abort(ctx context.Context, r *run, cause error) {
	entry := ErrorEntry{Kind: KindFileNotFound}
	if errors.Is(cause, ErrOutsideBaseDir) {
		entry.Message = fmt.Sprintf("Invalid file location: %s (%v)", r.fileLocation, cause)
	} else {
		entry.Message = (&FileNotFoundError{Path: r.fileLocation, Err: cause}).Error()
	}
	r.addError(entry)
	r.logger.Warn().Err(cause).Msg("input file unavailable")
	s.finalize(ctx, r, false)
}

func (s *Service) stream(ctx context.Context, r *run, source LineSource) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("ingestion panicked")
			r.fail(fmt.Errorf("panic: %v", rec))
		}
	}()

	for {
		line, err := source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.logger.Error().Err(err).Int("linesRead", r.linesRead).Msg("failed to read input")
			r.fail(err)
			break
		}

		r.linesRead++
		if r.linesRead%s.sampleEvery == 0 {
			r.samples = append(r.samples, s.sample(r))
		}

		if strings.TrimSpace(line.Text) == "" {
			continue
		}

		person, err := ParseLine(line.Text, line.Number)
		if err != nil {
			r.invalid++
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				r.addError(entryFromParseError(parseErr))
			} else {
				r.addError(ErrorEntry{Line: line.Number, Identifier: unknownIdentifier, Kind: KindStream, Message: err.Error()})
			}
			continue
		}

		r.batch = append(r.batch, ParsedLine{Line: line.Number, Person: person})
		if len(r.batch) >= s.batchSize {
			if !s.commit(ctx, r) {
				return
			}
		}
	}

	if len(r.batch) > 0 {
		s.commit(ctx, r)
	}
}

// commit drains the batch buffer. It returns false when the run was canceled
// before the batch could be written.
func (s *Service) commit(ctx context.Context, r *run) bool {
	if err := ctx.Err(); err != nil {
		r.logger.Warn().Err(err).Int("pending", len(r.batch)).Msg("run canceled at batch boundary")
		r.fail(err)
		r.batch = r.batch[:0]
		return false
	}

	batch := s.committer.Commit(ctx, r.batch, &r.errors)
	r.result.addBatch(batch)
	r.batch = r.batch[:0]
	return true
}

func (s *Service) finalize(ctx context.Context, r *run, streamed bool) {
	r.result.ProcessingTime = s.now().Sub(r.startedAt)
	if streamed {
		r.result.CPUUsage, r.result.MemoryUsage = summarizeSamples(r.start, r.samples, s.sample(r))
	}
	r.result.ErrorCount = len(r.errors)
	r.result.Success = r.result.SavedRecords > 0

	if len(r.errors) > 0 {
		var summary *Result
		if streamed {
			summary = &r.result
		}
		if path, ok := s.errorLog.Flush(r.startedAt, r.errors, summary); ok {
			r.result.ErrorLogPath = path
		}
	}

	// Bookkeeping must outlive a canceled request.
	bg := context.WithoutCancel(ctx)
	s.completeJob(bg, r)
	s.recordErrors(bg, r)
	s.metrics.observeRun(r.result, r.invalid)

	r.logger.Info().
		Bool("success", r.result.Success).
		Int("totalRecords", r.result.TotalRecords).
		Int("savedRecords", r.result.SavedRecords).
		Int("errors", r.result.ErrorCount).
		Dur("took", r.result.ProcessingTime).
		Str("errorLog", r.result.ErrorLogPath).
		Msg("file processed")
}

// runLogger prefers a request scoped logger carried by ctx.
func (s *Service) runLogger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return s.logger
}

func (s *Service) sample(r *run) ResourceSample {
	sample, err := s.sampler.Sample()
	if err != nil {
		r.logger.Debug().Err(err).Msg("resource sample failed")
	}
	return sample
}

func (s *Service) beginJob(ctx context.Context, r *run) {
	if s.jobs == nil {
		return
	}
	created, err := s.jobs.Create(ctx, r.job)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to record processing job")
		return
	}
	r.job = created
	r.jobRecorded = true
}

func (s *Service) completeJob(ctx context.Context, r *run) {
	if s.jobs == nil || !r.jobRecorded {
		return
	}
	r.job = r.job.Complete(
		r.result.Success,
		r.result.TotalRecords,
		r.result.SavedRecords,
		r.result.ErrorCount,
		r.result.ErrorLogPath,
		s.now(),
	)
	if err := s.jobs.Complete(ctx, r.job); err != nil {
		r.logger.Warn().Err(err).Msg("failed to complete processing job")
	}
}

func (s *Service) recordErrors(ctx context.Context, r *run) {
	if s.logRepo == nil || !r.jobRecorded || len(r.errors) == 0 {
		return
	}

	entries := make([]domain.IngestionLogEntry, len(r.errors))
	for i, e := range r.errors {
		entry := domain.IngestionLogEntry{
			JobID:        r.job.ID,
			FileName:     r.fileLocation,
			Identifier:   e.Identifier,
			Kind:         string(e.Kind),
			ErrorMessage: e.Message,
		}
		if e.Line > 0 {
			line := e.Line
			entry.LineNumber = &line
		}
		entries[i] = entry
	}

	if _, err := s.logRepo.RecordBatch(ctx, entries); err != nil {
		r.logger.Warn().Err(err).Int("entries", len(entries)).Msg("failed to record ingestion logs")
	}
}

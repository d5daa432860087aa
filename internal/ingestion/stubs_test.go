package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/datareader/internal/domain"
	"github.com/rpattn/datareader/internal/repository"
)

// stubPersonStore enforces personalId uniqueness the way the people table does.
type stubPersonStore struct {
	mu       sync.Mutex
	people   map[string]domain.Person
	inserted []domain.Person
	calls    int
	failOn   map[string]error
	onInsert func(calls int)
}

func newStubPersonStore() *stubPersonStore {
	return &stubPersonStore{people: map[string]domain.Person{}, failOn: map[string]error{}}
}

func (s *stubPersonStore) Insert(_ context.Context, person domain.Person) (domain.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.onInsert != nil {
		s.onInsert(s.calls)
	}
	if err, ok := s.failOn[person.PersonalID]; ok {
		return domain.Person{}, err
	}
	if _, exists := s.people[person.PersonalID]; exists {
		return domain.Person{}, fmt.Errorf("failed to insert person: %w", &repository.UniqueConstraintError{
			Constraint: "people_personal_id_key",
			Detail:     fmt.Sprintf("Key (personal_id)=(%s) already exists.", person.PersonalID),
		})
	}

	stored := person.WithIdentity()
	s.people[person.PersonalID] = stored
	s.inserted = append(s.inserted, stored)
	return stored, nil
}

type stubJobRepo struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]domain.ProcessingJob
	completed []domain.ProcessingJob
	createErr error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: map[uuid.UUID]domain.ProcessingJob{}}
}

func (s *stubJobRepo) Create(_ context.Context, job domain.ProcessingJob) (domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return domain.ProcessingJob{}, s.createErr
	}
	s.jobs[job.ID] = job
	return job, nil
}

func (s *stubJobRepo) Complete(_ context.Context, job domain.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return repository.ErrNotFound
	}
	s.jobs[job.ID] = job
	s.completed = append(s.completed, job)
	return nil
}

func (s *stubJobRepo) GetByID(_ context.Context, id uuid.UUID) (domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ProcessingJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (s *stubJobRepo) List(_ context.Context, limit int, offset int) ([]domain.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingJob
	for _, job := range s.jobs {
		out = append(out, job)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type stubLogRepo struct {
	mu      sync.Mutex
	entries []domain.IngestionLogEntry
	err     error
}

func (s *stubLogRepo) RecordBatch(_ context.Context, entries []domain.IngestionLogEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.entries = append(s.entries, entries...)
	return int64(len(entries)), nil
}

func (s *stubLogRepo) ListByJob(_ context.Context, jobID uuid.UUID, _ int, _ int) ([]domain.IngestionLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.IngestionLogEntry
	for _, entry := range s.entries {
		if entry.JobID == jobID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// stepSampler reports monotonically growing usage so aggregates are predictable.
type stepSampler struct {
	mu    sync.Mutex
	calls int
}

func (s *stepSampler) Sample() (ResourceSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return ResourceSample{
		CPU: CPUTimes{User: durationMillis(s.calls * 10), System: durationMillis(s.calls)},
		RSS: uint64(s.calls) << 20,
	}, nil
}

type failingSampler struct{}

func (failingSampler) Sample() (ResourceSample, error) {
	return ResourceSample{}, errors.New("sampling unavailable")
}

func durationMillis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// scriptedSource yields lines then ends with err, or panics when panicWith is set.
type scriptedSource struct {
	lines     []string
	err       error
	panicWith string
	pos       int
	closed    bool
}

func (s *scriptedSource) Next() (RawLine, error) {
	if s.pos < len(s.lines) {
		s.pos++
		return RawLine{Number: s.pos, Text: s.lines[s.pos-1]}, nil
	}
	if s.panicWith != "" {
		panic(s.panicWith)
	}
	if s.err != nil {
		return RawLine{}, s.err
	}
	return RawLine{}, io.EOF
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

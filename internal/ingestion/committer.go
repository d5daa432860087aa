package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rpattn/datareader/internal/domain"
	"github.com/rpattn/datareader/internal/repository"
)

// ParsedLine is a validated person together with the line it came from.
type ParsedLine struct {
	Line   int
	Person domain.Person
}

// RecordOutcome is the result of persisting one record. It succeeded when Err is nil.
type RecordOutcome struct {
	Line       int
	PersonalID string
	ID         uuid.UUID
	Err        error
}

// Succeeded reports whether the record was stored.
func (o RecordOutcome) Succeeded() bool {
	return o.Err == nil
}

// BatchResult summarises one committed batch.
type BatchResult struct {
	Attempted int
	Succeeded int
	Outcomes  []RecordOutcome
}

// Failures returns the outcomes that did not persist, in batch order.
func (b BatchResult) Failures() []RecordOutcome {
	var failed []RecordOutcome
	for _, outcome := range b.Outcomes {
		if !outcome.Succeeded() {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// Committer persists batches record by record so one rejected insert does not
// affect its neighbours.
type Committer struct {
	store   repository.PersonStore
	logger  zerolog.Logger
	metrics *Metrics
}

// NewCommitter creates a committer writing to store.
func NewCommitter(store repository.PersonStore, logger zerolog.Logger, metrics *Metrics) *Committer {
	return &Committer{store: store, logger: logger, metrics: metrics}
}

// Commit inserts every item in order and appends one entry per failed record
// to errs. It never stops early.
func (c *Committer) Commit(ctx context.Context, items []ParsedLine, errs *[]ErrorEntry) BatchResult {
	start := time.Now()
	result := BatchResult{
		Attempted: len(items),
		Outcomes:  make([]RecordOutcome, 0, len(items)),
	}

	for _, item := range items {
		outcome := RecordOutcome{Line: item.Line, PersonalID: item.Person.PersonalID}

		stored, err := c.insert(ctx, item.Person)
		if err != nil {
			outcome.Err = err
			entry := ErrorEntry{
				Line:       item.Line,
				Identifier: item.Person.PersonalID,
				Kind:       KindStorage,
				Message:    err.Error(),
			}
			if errors.Is(err, repository.ErrUniqueViolation) {
				entry.Kind = KindUniqueConstraint
			}
			*errs = append(*errs, entry)
			c.logger.Debug().
				Int("line", item.Line).
				Str("personalId", item.Person.PersonalID).
				Str("kind", string(entry.Kind)).
				Err(err).
				Msg("record rejected by storage")
		} else {
			outcome.ID = stored.UUID
			result.Succeeded++
		}

		result.Outcomes = append(result.Outcomes, outcome)
	}

	if c.metrics != nil {
		c.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	}
	c.logger.Debug().
		Int("attempted", result.Attempted).
		Int("succeeded", result.Succeeded).
		Dur("took", time.Since(start)).
		Msg("batch committed")

	return result
}

// insert turns a panicking store into a failed outcome for that record only.
func (c *Committer) insert(ctx context.Context, person domain.Person) (stored domain.Person, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error().Interface("panic", rec).Str("personalId", person.PersonalID).Msg("insert panicked")
			err = fmt.Errorf("panic during insert: %v", rec)
		}
	}()
	return c.store.Insert(ctx, person)
}

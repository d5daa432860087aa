package ingestion

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFileLocationRequired is returned when Process is called without a path.
var ErrFileLocationRequired = errors.New("fileLocation is required")

// unknownIdentifier stands in for the personalId when a line is too malformed to extract it.
const unknownIdentifier = "N/A"

// ErrorKind classifies an accumulated error for logs and metrics.
type ErrorKind string

const (
	KindFileNotFound     ErrorKind = "file_not_found"
	KindFieldCount       ErrorKind = "field_count"
	KindMissingField     ErrorKind = "missing_field"
	KindInvalidEnum      ErrorKind = "invalid_enum"
	KindInvalidDate      ErrorKind = "invalid_date"
	KindFieldLength      ErrorKind = "field_length"
	KindUniqueConstraint ErrorKind = "unique_constraint"
	KindStorage          ErrorKind = "storage"
	KindStream           ErrorKind = "stream"
)

// FileNotFoundError aborts a run before any line is read.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	return "File not found: " + e.Path
}

func (e *FileNotFoundError) Unwrap() error { return e.Err }

// FieldCountError reports a line that did not split into the expected number of fields.
type FieldCountError struct {
	Expected int
	Actual   int
}

func (e *FieldCountError) Error() string {
	return fmt.Sprintf("Invalid number of fields. Expected %d, got %d", e.Expected, e.Actual)
}

// MissingFieldError lists required fields that were empty after trimming.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "Missing required fields: " + strings.Join(e.Fields, ", ")
}

// InvalidEnumError reports a value outside its enumeration.
type InvalidEnumError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidEnumError) Error() string {
	quoted := make([]string, len(e.Allowed))
	for i, allowed := range e.Allowed {
		quoted[i] = "'" + allowed + "'"
	}
	return fmt.Sprintf("Invalid %s: %s. Must be %s", e.Field, e.Value, strings.Join(quoted, " or "))
}

// InvalidDateError reports a date field that does not parse to a calendar date.
type InvalidDateError struct {
	Value string
	Err   error
}

func (e *InvalidDateError) Error() string {
	return "Invalid date format: " + e.Value
}

func (e *InvalidDateError) Unwrap() error { return e.Err }

// FieldLengthError reports a field longer than its bound, counted in characters.
type FieldLengthError struct {
	Field  string
	Max    int
	Actual int
}

func (e *FieldLengthError) Error() string {
	return fmt.Sprintf("%s exceeds max length %d (got %d)", e.Field, e.Max, e.Actual)
}

// ParseError ties a validation failure to its line.
type ParseError struct {
	Line       int
	Identifier string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Line %d - %s: %v", e.Line, e.Identifier, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind maps the wrapped cause onto its ErrorKind.
func (e *ParseError) Kind() ErrorKind {
	var (
		countErr   *FieldCountError
		missingErr *MissingFieldError
		enumErr    *InvalidEnumError
		dateErr    *InvalidDateError
		lengthErr  *FieldLengthError
	)
	switch {
	case errors.As(e.Err, &countErr):
		return KindFieldCount
	case errors.As(e.Err, &missingErr):
		return KindMissingField
	case errors.As(e.Err, &enumErr):
		return KindInvalidEnum
	case errors.As(e.Err, &dateErr):
		return KindInvalidDate
	case errors.As(e.Err, &lengthErr):
		return KindFieldLength
	default:
		return KindStream
	}
}

// ErrorEntry is one accumulated error of a run, in discovery order.
// Line is zero for run level errors.
type ErrorEntry struct {
	Line       int
	Identifier string
	Kind       ErrorKind
	Message    string
}

// String renders the entry the way it appears in the error log.
func (e ErrorEntry) String() string {
	if e.Line <= 0 {
		return e.Message
	}
	return fmt.Sprintf("Line %d - %s: %s", e.Line, e.Identifier, e.Message)
}

func entryFromParseError(err *ParseError) ErrorEntry {
	return ErrorEntry{
		Line:       err.Line,
		Identifier: err.Identifier,
		Kind:       err.Kind(),
		Message:    err.Err.Error(),
	}
}

package ingestion

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"

	"github.com/rpattn/datareader/internal/domain"
)

const (
	fieldDelimiter = "|"
	fieldCount     = 7
)

// Field positions within a line: name|surname|personalId|status|dateOfEntry|pep|os
const (
	fieldName = iota
	fieldSurname
	fieldPersonalID
	fieldStatus
	fieldDateOfEntry
	fieldPEP
	fieldOS
)

var requiredFields = []struct {
	index int
	name  string
}{
	{fieldName, "name"},
	{fieldSurname, "surname"},
	{fieldPersonalID, "personalId"},
	{fieldStatus, "status"},
	{fieldDateOfEntry, "dateOfEntry"},
}

var lengthBounds = []struct {
	index int
	name  string
	max   int
}{
	{fieldName, "name", domain.MaxNameLength},
	{fieldSurname, "surname", domain.MaxSurnameLength},
	{fieldPersonalID, "personalId", domain.MaxPersonalIDLength},
}

// ParseLine turns one raw line into a validated person. Any failure is
// returned as a *ParseError carrying the line number and, when the line is
// well-formed enough to tell, the personalId.
func ParseLine(line string, lineNumber int) (domain.Person, error) {
	fields := strings.Split(line, fieldDelimiter)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if len(fields) != fieldCount {
		return domain.Person{}, &ParseError{
			Line:       lineNumber,
			Identifier: unknownIdentifier,
			Err:        &FieldCountError{Expected: fieldCount, Actual: len(fields)},
		}
	}

	identifier := fields[fieldPersonalID]
	if identifier == "" {
		identifier = unknownIdentifier
	}
	fail := func(err error) (domain.Person, error) {
		return domain.Person{}, &ParseError{Line: lineNumber, Identifier: identifier, Err: err}
	}

	var missing []string
	for _, required := range requiredFields {
		if fields[required.index] == "" {
			missing = append(missing, required.name)
		}
	}
	if len(missing) > 0 {
		return fail(&MissingFieldError{Fields: missing})
	}

	status, ok := domain.ParsePersonStatus(fields[fieldStatus])
	if !ok {
		return fail(&InvalidEnumError{
			Field:   "status",
			Value:   fields[fieldStatus],
			Allowed: []string{string(domain.PersonStatusActive), string(domain.PersonStatusInactive)},
		})
	}

	dateOfEntry, err := parseDate(fields[fieldDateOfEntry])
	if err != nil {
		return fail(&InvalidDateError{Value: fields[fieldDateOfEntry], Err: err})
	}

	for _, bound := range lengthBounds {
		if n := utf8.RuneCountInString(fields[bound.index]); n > bound.max {
			return fail(&FieldLengthError{Field: bound.name, Max: bound.max, Actual: n})
		}
	}

	return domain.Person{
		Name:        fields[fieldName],
		Surname:     fields[fieldSurname],
		PersonalID:  fields[fieldPersonalID],
		Status:      status,
		DateOfEntry: dateOfEntry,
		PEP:         parseFlag(fields[fieldPEP]),
		OS:          parseFlag(fields[fieldOS]),
	}, nil
}

// parseFlag treats only a case-insensitive "true" as true.
func parseFlag(value string) bool {
	return strings.EqualFold(value, "true")
}

// parseDate accepts ISO, RFC and common textual date forms, interpreted in UTC.
func parseDate(value string) (ts time.Time, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("unparseable date %q", value)
		}
	}()
	return dateparse.ParseIn(value, time.UTC)
}

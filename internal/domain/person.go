package domain

import (
	"time"

	"github.com/google/uuid"
)

// PersonStatus is the enrollment state of a person as it appears in the source file.
type PersonStatus string

const (
	PersonStatusActive   PersonStatus = "Activo"
	PersonStatusInactive PersonStatus = "Inactivo"
)

// Field length bounds enforced before a person reaches storage.
const (
	MaxNameLength       = 50
	MaxSurnameLength    = 50
	MaxPersonalIDLength = 10
)

// ParsePersonStatus maps a source value onto a PersonStatus. Matching is exact.
func ParsePersonStatus(value string) (PersonStatus, bool) {
	switch PersonStatus(value) {
	case PersonStatusActive:
		return PersonStatusActive, true
	case PersonStatusInactive:
		return PersonStatusInactive, true
	default:
		return "", false
	}
}

// IsActive reports whether the status is the active enum value.
func (s PersonStatus) IsActive() bool {
	return s == PersonStatusActive
}

// Person is a validated person record.
type Person struct {
	UUID        uuid.UUID    `json:"uuid"`
	Name        string       `json:"name"`
	Surname     string       `json:"surname"`
	PersonalID  string       `json:"personalId"`
	Status      PersonStatus `json:"status"`
	DateOfEntry time.Time    `json:"dateOfEntry"`
	PEP         bool         `json:"pep"`
	OS          bool         `json:"os"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// WithIdentity returns a copy of the person carrying a freshly generated identity.
func (p Person) WithIdentity() Person {
	p.UUID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	return p
}

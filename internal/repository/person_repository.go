package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/datareader/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

type personRepository struct {
	pool *pgxpool.Pool
}

// NewPersonRepository wires a repository backed by pgxpool.
func NewPersonRepository(pool *pgxpool.Pool) PersonRepository {
	return &personRepository{pool: pool}
}

// Insert stores the person under a freshly generated identity.
func (r *personRepository) Insert(ctx context.Context, person domain.Person) (domain.Person, error) {
	if r.pool == nil {
		return domain.Person{}, fmt.Errorf("person repository not initialized")
	}

	stored := person.WithIdentity()
	err := r.pool.QueryRow(
		ctx,
		`INSERT INTO people (uuid, name, surname, personal_id, status, date_of_entry, pep, os, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		stored.UUID,
		stored.Name,
		stored.Surname,
		stored.PersonalID,
		string(stored.Status),
		stored.DateOfEntry,
		stored.PEP,
		stored.OS,
		stored.CreatedAt,
	).Scan(&stored.CreatedAt)
	if err != nil {
		return domain.Person{}, fmt.Errorf("failed to insert person: %w", classifyError(err))
	}

	return stored, nil
}

func (r *personRepository) GetByPersonalID(ctx context.Context, personalID string) (domain.Person, error) {
	if r.pool == nil {
		return domain.Person{}, fmt.Errorf("person repository not initialized")
	}

	var (
		person domain.Person
		status string
	)
	err := r.pool.QueryRow(
		ctx,
		`SELECT uuid, name, surname, personal_id, status, date_of_entry, pep, os, created_at
		 FROM people
		 WHERE personal_id = $1`,
		personalID,
	).Scan(
		&person.UUID,
		&person.Name,
		&person.Surname,
		&person.PersonalID,
		&status,
		&person.DateOfEntry,
		&person.PEP,
		&person.OS,
		&person.CreatedAt,
	)
	if err != nil {
		err = classifyError(err)
		if errors.Is(err, ErrNotFound) {
			return domain.Person{}, fmt.Errorf("person %s: %w", personalID, err)
		}
		return domain.Person{}, fmt.Errorf("failed to get person: %w", err)
	}
	person.Status = domain.PersonStatus(status)

	return person, nil
}

func (r *personRepository) Count(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("person repository not initialized")
	}

	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM people`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count people: %w", err)
	}
	return count, nil
}

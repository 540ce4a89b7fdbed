// Package store persists accounts, student profiles, and the manual-review
// queue for failed space creations. All access goes through PostgreSQL via
// pgx; business rules live in internal/onboard.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store provides persistence for the onboarding pipeline.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// AccountRole distinguishes the three principal kinds in the system.
type AccountRole string

const (
	RoleStudent    AccountRole = "student"
	RoleInstructor AccountRole = "instructor"
	RoleAdmin      AccountRole = "admin"
)

// Account is an identity record. The secret credential is stored only as a
// bcrypt hash; the plaintext exists only in the creation response.
type Account struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	Role         AccountRole
	CreatedAt    time.Time
}

// StudentProfile is the per-student profile linked 1:1 to an Account.
// SpaceID/SpaceURL are empty until space creation succeeds; a non-empty
// SpaceURL is the sole signal that the student's space exists.
type StudentProfile struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	ClassID   uuid.UUID
	Name      string
	StudentID string
	Grade     int
	Note      string
	Email     string
	SpaceID   string
	SpaceURL  string
	CreatedAt time.Time
}

// Class is a target class for a roster batch.
type Class struct {
	ID              uuid.UUID
	Name            string
	SchoolName      string
	InstructorEmail string
}

// NewAccount is the input for a single account+profile pair created during
// phase 1 of a batch.
type NewAccount struct {
	Username     string
	Email        string
	PasswordHash string
	Name         string
	StudentID    string
	Grade        int
	Note         string
}

// DuplicateAccountError reports a username/email collision inside the
// creation transaction. The whole batch is rolled back when this occurs.
type DuplicateAccountError struct {
	Email string
}

func (e *DuplicateAccountError) Error() string {
	return fmt.Sprintf("store: account %s already exists", e.Email)
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

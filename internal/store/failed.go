package store

// failed.go manages the manual-review queue. When automated space creation
// or permission configuration exhausts its retry budget, an entry is
// recorded here for an administrator to review and retry.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FailureKind distinguishes which remote call exhausted its retries, so
// manual review knows what to re-run.
type FailureKind string

const (
	FailureCreation   FailureKind = "creation-failed"
	FailurePermission FailureKind = "permission-failed"
)

// FailureStatus is the lifecycle of a manual-review entry.
type FailureStatus string

const (
	StatusPending         FailureStatus = "pending"
	StatusRetrying        FailureStatus = "retrying"
	StatusResolved        FailureStatus = "resolved"
	StatusPermanentFailed FailureStatus = "permanently-failed"
)

// FailedCreation is one durable failure entry.
type FailedCreation struct {
	ID           uuid.UUID     `json:"id"`
	ProfileID    uuid.UUID     `json:"studentRef"`
	StudentName  string        `json:"studentName"`
	ErrorMessage string        `json:"errorMessage"`
	Kind         FailureKind   `json:"kind"`
	AttemptCount int           `json:"attemptCount"`
	Status       FailureStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// NewFailedCreation is the input recorded when a retry budget is exhausted.
type NewFailedCreation struct {
	ProfileID    uuid.UUID
	ErrorMessage string
	Kind         FailureKind
	AttemptCount int
}

const failedCreationColumns = `
	f.id, f.profile_id, p.name, f.error_message, f.kind, f.attempt_count,
	f.status, f.created_at, f.updated_at`

// CreateFailedCreation records a new pending entry.
func (s *Store) CreateFailedCreation(ctx context.Context, in NewFailedCreation) (*FailedCreation, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO failed_space_creations (id, profile_id, error_message, kind, attempt_count, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, in.ProfileID, in.ErrorMessage, in.Kind, in.AttemptCount, StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert failed creation: %w", err)
	}
	return s.GetFailedCreation(ctx, id)
}

// GetFailedCreation returns one entry by id.
func (s *Store) GetFailedCreation(ctx context.Context, id uuid.UUID) (*FailedCreation, error) {
	var f FailedCreation
	err := s.pool.QueryRow(ctx, `
		SELECT `+failedCreationColumns+`
		FROM failed_space_creations f
		JOIN student_profiles p ON p.id = f.profile_id
		WHERE f.id = $1`,
		id,
	).Scan(
		&f.ID, &f.ProfileID, &f.StudentName, &f.ErrorMessage, &f.Kind,
		&f.AttemptCount, &f.Status, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get failed creation: %w", err)
	}
	return &f, nil
}

// ListFailedCreations returns unresolved entries, oldest first.
func (s *Store) ListFailedCreations(ctx context.Context) ([]FailedCreation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+failedCreationColumns+`
		FROM failed_space_creations f
		JOIN student_profiles p ON p.id = f.profile_id
		WHERE f.status IN ($1, $2)
		ORDER BY f.created_at`,
		StatusPending, StatusRetrying,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed creations: %w", err)
	}
	defer rows.Close()

	var entries []FailedCreation
	for rows.Next() {
		var f FailedCreation
		if err := rows.Scan(
			&f.ID, &f.ProfileID, &f.StudentName, &f.ErrorMessage, &f.Kind,
			&f.AttemptCount, &f.Status, &f.CreatedAt, &f.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan failed creation: %w", err)
		}
		entries = append(entries, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed creation rows: %w", err)
	}

	return entries, nil
}

// MarkFailedCreationRetrying flags an entry while a manual retry runs.
func (s *Store) MarkFailedCreationRetrying(ctx context.Context, id uuid.UUID) error {
	return s.setFailedStatus(ctx, id, StatusRetrying, "")
}

// ResolveFailedCreation closes an entry after a successful manual retry.
func (s *Store) ResolveFailedCreation(ctx context.Context, id uuid.UUID) error {
	return s.setFailedStatus(ctx, id, StatusResolved, "")
}

// RecordFailedRetry increments the attempt count after an unsuccessful
// manual retry and returns the entry to pending.
func (s *Store) RecordFailedRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE failed_space_creations
		SET attempt_count = attempt_count + $2, error_message = $3,
		    status = $4, updated_at = now()
		WHERE id = $1`,
		id, attempts, lastErr, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("record failed retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkFailedCreationPermanent parks an entry that manual retries cannot fix.
func (s *Store) MarkFailedCreationPermanent(ctx context.Context, id uuid.UUID, lastErr string) error {
	return s.setFailedStatus(ctx, id, StatusPermanentFailed, lastErr)
}

func (s *Store) setFailedStatus(ctx context.Context, id uuid.UUID, status FailureStatus, lastErr string) error {
	var tagErr error
	var affected int64

	if lastErr != "" {
		tag, err := s.pool.Exec(ctx, `
			UPDATE failed_space_creations
			SET status = $2, error_message = $3, updated_at = now()
			WHERE id = $1`,
			id, status, lastErr,
		)
		tagErr = err
		affected = tag.RowsAffected()
	} else {
		tag, err := s.pool.Exec(ctx, `
			UPDATE failed_space_creations
			SET status = $2, updated_at = now()
			WHERE id = $1`,
			id, status,
		)
		tagErr = err
		affected = tag.RowsAffected()
	}

	if tagErr != nil {
		return fmt.Errorf("set failed creation status: %w", tagErr)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

package store

// batches.go records onboarding batch history. The dashboard layer reads
// these rows; the pipeline only writes them.

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Batch is one bulk onboarding run against a class.
type Batch struct {
	ID         uuid.UUID
	ClassID    uuid.UUID
	ActorEmail string
	FileName   string
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// CreateBatch records the start of a run, after validation has passed.
func (s *Store) CreateBatch(ctx context.Context, classID uuid.UUID, actorEmail, fileName string, total int) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO onboarding_batches (id, class_id, actor_email, file_name, total)
		VALUES ($1, $2, $3, $4, $5)`,
		id, classID, actorEmail, fileName, total,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert batch: %w", err)
	}
	return id, nil
}

// FinishBatch records final per-batch counts.
func (s *Store) FinishBatch(ctx context.Context, id uuid.UUID, succeeded, failed int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE onboarding_batches
		SET succeeded = $2, failed = $3, finished_at = now()
		WHERE id = $1`,
		id, succeeded, failed,
	)
	if err != nil {
		return fmt.Errorf("finish batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package onboard

// retry.go is the manual-review action: an administrator re-runs the
// remote call that originally exhausted its budget. Entries are only ever
// mutated here, never by the batch pipeline.

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/neulbom/roster/internal/logging"
	"github.com/neulbom/roster/internal/store"
)

// PermanentAttemptThreshold parks an entry as permanently-failed once its
// cumulative attempt count reaches this value (three automatic attempts
// plus two full manual rounds).
const PermanentAttemptThreshold = 9

// RetryFailedCreation re-runs the failed remote call for one
// manual-review entry. creation-failed entries redo space creation and
// permissions from scratch; permission-failed entries only re-run the
// grants against the already-created space. The entry is resolved on
// success; on another exhaustion the attempt count grows, and the entry
// is parked as permanently-failed once it crosses the threshold.
func (s *Service) RetryFailedCreation(ctx context.Context, id uuid.UUID) (*store.FailedCreation, error) {
	entry, err := s.store.GetFailedCreation(ctx, id)
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case store.StatusResolved:
		return entry, nil
	case store.StatusPermanentFailed:
		return entry, fmt.Errorf("onboard: entry %s is permanently failed", id)
	}

	profile, err := s.store.GetProfile(ctx, entry.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("load profile for retry: %w", err)
	}

	class, err := s.store.GetClass(ctx, profile.ClassID)
	if err != nil {
		return nil, fmt.Errorf("load class for retry: %w", err)
	}

	staff, err := s.staffPrincipals(ctx, class, ActingUser{Email: class.InstructorEmail})
	if err != nil {
		return nil, err
	}

	if err := s.store.MarkFailedCreationRetrying(ctx, id); err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx).With("failed_id", id, "student_id", profile.StudentID, "kind", entry.Kind)

	var retryErr error
	switch entry.Kind {
	case store.FailurePermission:
		if profile.SpaceID == "" {
			// The space reference never landed; fall back to the full path.
			retryErr = s.retryFull(ctx, profile, staff)
		} else {
			retryErr = s.retryPermissions(ctx, profile, staff)
		}
	default:
		retryErr = s.retryFull(ctx, profile, staff)
	}

	if retryErr == nil {
		if err := s.store.ResolveFailedCreation(ctx, id); err != nil {
			return nil, err
		}
		log.Info("manual retry succeeded")
		return s.store.GetFailedCreation(ctx, id)
	}

	log.Warn("manual retry failed", "error", retryErr)

	if entry.AttemptCount+s.opts.MaxAttempts >= PermanentAttemptThreshold {
		if err := s.store.MarkFailedCreationPermanent(ctx, id, retryErr.Error()); err != nil {
			return nil, err
		}
	} else if err := s.store.RecordFailedRetry(ctx, id, s.opts.MaxAttempts, retryErr.Error()); err != nil {
		return nil, err
	}

	return s.store.GetFailedCreation(ctx, id)
}

// retryFull redoes space creation and permissions. recordFailure is
// deliberately not involved: the existing entry already tracks this
// student.
func (s *Service) retryFull(ctx context.Context, profile *store.StudentProfile, staff []string) error {
	var spaceID string

	if profile.SpaceID != "" {
		// A previous round already created the space; don't create twice.
		spaceID = profile.SpaceID
	} else {
		var created bool
		err := s.withRetry(ctx, "create_space", func(ctx context.Context) error {
			space, err := s.client.CreateSpace(ctx, spaceName(profile.Name))
			if err != nil {
				return err
			}
			spaceID = space.ID
			created = true
			return s.store.SetProfileSpace(ctx, profile.ID, space.ID, space.URL)
		})
		if err != nil {
			return fmt.Errorf("create space: %w", err)
		}
		if created {
			profile.SpaceID = spaceID
		}
	}

	return s.retryPermissions(ctx, profile, staff)
}

func (s *Service) retryPermissions(ctx context.Context, profile *store.StudentProfile, staff []string) error {
	return s.withRetry(ctx, "set_permission", func(ctx context.Context) error {
		return s.grantSequence(ctx, profile.SpaceID, profile.Email, staff)
	})
}

// ListFailedCreations returns the open manual-review queue, oldest first.
func (s *Service) ListFailedCreations(ctx context.Context) ([]store.FailedCreation, error) {
	return s.store.ListFailedCreations(ctx)
}

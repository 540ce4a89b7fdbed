package onboard

// spaces.go is phases 2 and 3: remote space creation and permission
// grants, per student, with a bounded retry budget. Exhaustion converts
// the error into a durable manual-review entry instead of failing the
// batch.

import (
	"context"
	"fmt"
	"time"

	"github.com/neulbom/roster/internal/logging"
	"github.com/neulbom/roster/internal/store"
	"github.com/neulbom/roster/internal/zep"
)

// spaceName builds the remote space display name for a student.
func spaceName(studentName string) string {
	return fmt.Sprintf("%s_portfolio_%d", studentName, time.Now().Year())
}

// provisionStudent creates the student's space and configures its
// permissions. On retry exhaustion the failure is recorded durably and
// returned; the caller counts it and moves to the next student.
func (s *Service) provisionStudent(ctx context.Context, profile *store.StudentProfile, staff []string) error {
	space, err := s.createSpace(ctx, profile)
	if err != nil {
		return err
	}

	return s.configurePermissions(ctx, profile, space.ID, staff)
}

// createSpace runs the remote create call under the retry budget and
// persists the space reference on success.
func (s *Service) createSpace(ctx context.Context, profile *store.StudentProfile) (zep.Space, error) {
	var space zep.Space

	err := s.withRetry(ctx, "create_space", func(ctx context.Context) error {
		var err error
		space, err = s.client.CreateSpace(ctx, spaceName(profile.Name))
		return err
	})
	if err != nil {
		s.recordFailure(ctx, profile, store.FailureCreation, err)
		return zep.Space{}, fmt.Errorf("create space: %w", err)
	}

	if err := s.store.SetProfileSpace(ctx, profile.ID, space.ID, space.URL); err != nil {
		// The space exists remotely but its reference was lost; queue it
		// so manual review can reconcile instead of leaking the space.
		s.recordFailure(ctx, profile, store.FailureCreation, err)
		return zep.Space{}, err
	}

	profile.SpaceID = space.ID
	profile.SpaceURL = space.URL
	return space, nil
}

// configurePermissions grants owner to the student and staff to every
// oversight principal. The grant sequence shares one retry budget: a
// failure anywhere re-runs the whole sequence, which is safe because the
// remote grant call has PUT semantics.
func (s *Service) configurePermissions(ctx context.Context, profile *store.StudentProfile, spaceID string, staff []string) error {
	err := s.withRetry(ctx, "set_permission", func(ctx context.Context) error {
		return s.grantSequence(ctx, spaceID, profile.Email, staff)
	})
	if err != nil {
		s.recordFailure(ctx, profile, store.FailurePermission, err)
		return fmt.Errorf("configure permissions: %w", err)
	}

	return nil
}

// grantSequence issues the owner grant then every staff grant. Re-running
// it against an already-permissioned space is a no-op remotely.
func (s *Service) grantSequence(ctx context.Context, spaceID, owner string, staff []string) error {
	if err := s.client.SetPermission(ctx, spaceID, owner, zep.RoleOwner); err != nil {
		return fmt.Errorf("grant owner to %s: %w", owner, err)
	}
	for _, principal := range staff {
		if err := s.client.SetPermission(ctx, spaceID, principal, zep.RoleStaff); err != nil {
			return fmt.Errorf("grant staff to %s: %w", principal, err)
		}
	}
	return nil
}

// withRetry runs fn up to the configured attempt budget. The pre-wait
// before attempt k is BackoffBase * 2^(k-2): nothing before the first
// attempt, then 1s, then 2s with the defaults.
func (s *Service) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := s.opts.BackoffBase << (attempt - 2)
			if err := s.sleep(ctx, wait); err != nil {
				return err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			remoteCalls.WithLabelValues(op, "ok").Inc()
			return nil
		}
		remoteCalls.WithLabelValues(op, "error").Inc()

		logging.FromContext(ctx).Warn("remote call failed",
			"op", op,
			"attempt", attempt,
			"max_attempts", s.opts.MaxAttempts,
			"error", lastErr,
		)
	}

	return fmt.Errorf("after %d attempts: %w", s.opts.MaxAttempts, lastErr)
}

// recordFailure writes a manual-review entry. Failing to write it is
// logged but not propagated: the per-student error already stands, and
// the batch must keep going.
func (s *Service) recordFailure(ctx context.Context, profile *store.StudentProfile, kind store.FailureKind, cause error) {
	_, err := s.store.CreateFailedCreation(ctx, store.NewFailedCreation{
		ProfileID:    profile.ID,
		ErrorMessage: cause.Error(),
		Kind:         kind,
		AttemptCount: s.opts.MaxAttempts,
	})
	if err != nil {
		logging.FromContext(ctx).Error("record failed creation",
			"profile_id", profile.ID,
			"kind", kind,
			"error", err,
		)
		return
	}
	failedCreationsRecorded.Inc()
}

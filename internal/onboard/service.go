package onboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/neulbom/roster/internal/logging"
	"github.com/neulbom/roster/internal/roster"
	"github.com/neulbom/roster/internal/store"
	"github.com/neulbom/roster/internal/zep"
)

// Store is the persistence surface the pipeline drives. Implemented by
// *store.Store; tests substitute a fake.
type Store interface {
	ExistingStudentIDs(ctx context.Context) (map[string]bool, error)
	CreateAccounts(ctx context.Context, classID uuid.UUID, accounts []store.NewAccount) ([]store.StudentProfile, error)
	SetProfileSpace(ctx context.Context, profileID uuid.UUID, spaceID, spaceURL string) error
	GetProfile(ctx context.Context, profileID uuid.UUID) (*store.StudentProfile, error)
	GetClass(ctx context.Context, classID uuid.UUID) (*store.Class, error)
	AdminEmails(ctx context.Context) ([]string, error)
	AcquireClassLock(ctx context.Context, classID uuid.UUID) (*store.ClassLock, error)

	CreateFailedCreation(ctx context.Context, in store.NewFailedCreation) (*store.FailedCreation, error)
	GetFailedCreation(ctx context.Context, id uuid.UUID) (*store.FailedCreation, error)
	ListFailedCreations(ctx context.Context) ([]store.FailedCreation, error)
	MarkFailedCreationRetrying(ctx context.Context, id uuid.UUID) error
	ResolveFailedCreation(ctx context.Context, id uuid.UUID) error
	RecordFailedRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error
	MarkFailedCreationPermanent(ctx context.Context, id uuid.UUID, lastErr string) error

	CreateBatch(ctx context.Context, classID uuid.UUID, actorEmail, fileName string, total int) (uuid.UUID, error)
	FinishBatch(ctx context.Context, id uuid.UUID, succeeded, failed int) error
}

// ActingUser is the staff member driving a batch.
type ActingUser struct {
	AccountID uuid.UUID
	Email     string
}

// Options tunes the pipeline.
type Options struct {
	// EmailDomain is the internal domain for generated addresses.
	EmailDomain string
	// MaxBatchSize caps roster rows per run; 0 means no cap. There is no
	// mid-batch cancellation, so this is the practical bound on run time.
	MaxBatchSize int
	// MaxAttempts is the total remote attempt budget per student per call
	// sequence.
	MaxAttempts int
	// BackoffBase is the pre-wait before the second attempt; each further
	// attempt doubles it.
	BackoffBase time.Duration
}

// DefaultOptions match the behavior the rest of this package's doc
// comments describe: 3 attempts, 1s then 2s between them.
func DefaultOptions() Options {
	return Options{
		EmailDomain:  "neulbom.internal",
		MaxBatchSize: 500,
		MaxAttempts:  3,
		BackoffBase:  time.Second,
	}
}

// Service orchestrates the onboarding pipeline. One Run call drives a
// whole batch on the calling goroutine; remote calls are strictly
// sequential, so two students' provisioning never interleaves.
type Service struct {
	store  Store
	client zep.Client
	opts   Options

	// sleep is replaced in tests to assert backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewService creates the pipeline service.
func NewService(st Store, client zep.Client, opts Options) *Service {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Second
	}
	if opts.EmailDomain == "" {
		opts.EmailDomain = "neulbom.internal"
	}
	return &Service{
		store:  st,
		client: client,
		opts:   opts,
		sleep:  sleepCtx,
	}
}

// ValidationReport is the outcome of the preview step: the caller shows
// violations (if any) and re-submits to commit.
type ValidationReport struct {
	CleanCount int                  `json:"cleanCount"`
	Clean      []roster.CleanRecord `json:"-"`
	Violations []roster.Violation   `json:"violations"`
}

// ValidateRoster parses and validates a roster without persisting
// anything. Used by the caller's confirmation step.
func (s *Service) ValidateRoster(ctx context.Context, data []byte, fileName string) (*ValidationReport, error) {
	records, err := roster.Parse(data, fileName)
	if err != nil {
		return nil, err
	}

	if s.opts.MaxBatchSize > 0 && len(records) > s.opts.MaxBatchSize {
		return nil, fmt.Errorf("%w (%d rows, limit %d)", ErrBatchTooLarge, len(records), s.opts.MaxBatchSize)
	}

	existing, err := s.store.ExistingStudentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load existing student ids: %w", err)
	}

	v := &roster.Validator{ExistingIDs: existing}
	clean, violations := v.Validate(records)

	rowsValidated.WithLabelValues("clean").Add(float64(len(clean)))
	rowsValidated.WithLabelValues("rejected").Add(float64(len(violations)))

	return &ValidationReport{
		CleanCount: len(clean),
		Clean:      clean,
		Violations: violations,
	}, nil
}

// Run executes the full pipeline for one roster file:
//
//	Parsing -> Validating -> (Rejected | Provisioning) ->
//	ResourceCreating -> PermissionGranting -> Completed
//
// Validation failures reject the batch before any persistence. Once
// account creation commits, the batch always reaches Completed: a
// student whose space or permissions cannot be set up is recorded in the
// manual-review queue and counted in the failed list, never rolled back.
func (s *Service) Run(ctx context.Context, data []byte, fileName string, classID uuid.UUID, actor ActingUser) (*BatchResult, []Credential, error) {
	log := logging.FromContext(ctx).With("class_id", classID, "actor", actor.Email, "file", fileName)

	report, err := s.ValidateRoster(ctx, data, fileName)
	if err != nil {
		return nil, nil, err
	}
	if len(report.Violations) > 0 {
		log.Info("roster rejected", "violations", len(report.Violations), "clean", report.CleanCount)
		batchesTotal.WithLabelValues(string(PhaseRejected)).Inc()
		return nil, nil, &RejectedError{Violations: report.Violations}
	}
	if len(report.Clean) == 0 {
		batchesTotal.WithLabelValues(string(PhaseRejected)).Inc()
		return nil, nil, ErrEmptyBatch
	}

	class, err := s.store.GetClass(ctx, classID)
	if err != nil {
		return nil, nil, fmt.Errorf("load class: %w", err)
	}

	// One bulk operation per class at a time: the account transaction is
	// atomic on its own, but the surrounding read-validate-write sequence
	// is not.
	lock, err := s.store.AcquireClassLock(ctx, classID)
	if err != nil {
		return nil, nil, err
	}
	defer lock.Release(ctx)

	// Every read happens before the account transaction commits. Once
	// accounts exist the run must reach Completed: the credentials in
	// hand are the only copy, and a failure here would strand them.
	staff, err := s.staffPrincipals(ctx, class, actor)
	if err != nil {
		return nil, nil, err
	}

	profiles, credentials, err := s.provisionAccounts(ctx, classID, report.Clean)
	if err != nil {
		batchesTotal.WithLabelValues(string(PhaseRejected)).Inc()
		return nil, nil, err
	}
	log.Info("accounts created", "count", len(profiles))

	batchID, err := s.store.CreateBatch(ctx, classID, actor.Email, fileName, len(profiles))
	if err != nil {
		// Accounts are committed; batch bookkeeping must not undo them.
		log.Error("record batch", "error", err)
		batchID = uuid.Nil
	}

	result := &BatchResult{
		BatchID: batchID,
		Phase:   PhaseResourceCreating,
		Total:   len(profiles),
	}

	for _, profile := range profiles {
		ref := ProfileRef{ProfileID: profile.ID, Name: profile.Name, StudentID: profile.StudentID}

		started := time.Now()
		err := s.provisionStudent(ctx, &profile, staff)
		studentDuration.Observe(time.Since(started).Seconds())

		if err != nil {
			log.Warn("student provisioning failed", "student_id", profile.StudentID, "error", err)
			result.Failed = append(result.Failed, Failure{ProfileRef: ref, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, ref)
	}

	result.Phase = PhaseCompleted

	if batchID != uuid.Nil {
		if err := s.store.FinishBatch(ctx, batchID, len(result.Succeeded), len(result.Failed)); err != nil {
			log.Error("finish batch", "error", err)
		}
	}

	batchesTotal.WithLabelValues(string(PhaseCompleted)).Inc()
	log.Info("batch completed",
		"total", result.Total,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)

	return result, credentials, nil
}

// staffPrincipals collects the addresses granted staff access on every
// created space: the acting instructor, the class instructor, and every
// administrator.
func (s *Service) staffPrincipals(ctx context.Context, class *store.Class, actor ActingUser) ([]string, error) {
	admins, err := s.store.AdminEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("load admin emails: %w", err)
	}

	seen := make(map[string]bool, len(admins)+2)
	var staff []string
	for _, email := range append([]string{actor.Email, class.InstructorEmail}, admins...) {
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		staff = append(staff, email)
	}
	return staff, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

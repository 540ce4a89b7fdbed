// Package onboard implements the bulk roster-onboarding pipeline: parse,
// validate, provision accounts atomically, create remote spaces with
// bounded retry, and configure permissions, accumulating a per-student
// result instead of failing the batch on individual errors.
package onboard

import (
	"github.com/google/uuid"
)

// Phase is the pipeline stage a batch is in. A batch that enters
// Provisioning always reaches Completed regardless of per-student
// failures; Rejected is the only other terminal phase.
type Phase string

const (
	PhaseParsing          Phase = "parsing"
	PhaseValidating       Phase = "validating"
	PhaseRejected         Phase = "rejected"
	PhaseProvisioning     Phase = "provisioning"
	PhaseResourceCreating Phase = "resource-creating"
	PhasePermissionGrant  Phase = "permission-granting"
	PhaseCompleted        Phase = "completed"
)

// ProfileRef identifies a student profile in batch results.
type ProfileRef struct {
	ProfileID uuid.UUID `json:"profileId"`
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
}

// Failure is one student whose space or permissions could not be set up.
// The account itself exists; the entry is queued for manual retry.
type Failure struct {
	ProfileRef
	Reason string `json:"reason"`
}

// BatchResult aggregates per-student outcomes for one onboarding run.
type BatchResult struct {
	BatchID   uuid.UUID    `json:"batchId"`
	Phase     Phase        `json:"phase"`
	Total     int          `json:"total"`
	Succeeded []ProfileRef `json:"succeeded"`
	Failed    []Failure    `json:"failed"`
}

// SuccessRatio is successes over total, 0 for an empty batch. A pure
// function of the accumulated lists.
func (r *BatchResult) SuccessRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Succeeded)) / float64(r.Total)
}

// Credential is the one-time credential set for a created account. The
// password is never stored in recoverable form; this value is the only
// place it exists.
type Credential struct {
	ProfileID uuid.UUID `json:"profileId"`
	Name      string    `json:"name"`
	StudentID string    `json:"studentId"`
	Grade     int       `json:"grade"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
}

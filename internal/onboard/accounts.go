package onboard

// accounts.go is phase 1 of the pipeline: one identity and one profile per
// clean record, created inside a single all-or-nothing transaction.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/neulbom/roster/internal/roster"
	"github.com/neulbom/roster/internal/store"
)

// accountEmail derives the login principal for a student. Generation is
// deterministic so re-uploads of the same roster collide loudly instead
// of creating near-duplicates.
func (s *Service) accountEmail(studentID string) string {
	return fmt.Sprintf("%s@%s", studentID, s.opts.EmailDomain)
}

// provisionAccounts creates accounts and profiles for every clean record
// in one transaction. Returns the created profiles along with each
// account's one-time credential; the plaintext password is never written
// to storage, so this return value is its only exposure.
//
// Any collision or storage failure aborts the whole transaction and is
// reported as *AccountCreationError naming the offending record; the
// caller sees zero accounts persisted for the batch.
func (s *Service) provisionAccounts(ctx context.Context, classID uuid.UUID, clean []roster.CleanRecord) ([]store.StudentProfile, []Credential, error) {
	inputs := make([]store.NewAccount, 0, len(clean))
	passwords := make(map[string]string, len(clean)) // email -> plaintext

	for _, rec := range clean {
		email := s.accountEmail(rec.StudentID)

		password, err := GeneratePassword()
		if err != nil {
			return nil, nil, err
		}
		hash, err := HashPassword(password)
		if err != nil {
			return nil, nil, err
		}

		passwords[email] = password
		inputs = append(inputs, store.NewAccount{
			Username:     email,
			Email:        email,
			PasswordHash: hash,
			Name:         rec.Name,
			StudentID:    rec.StudentID,
			Grade:        rec.Grade,
			Note:         rec.Note,
		})
	}

	profiles, err := s.store.CreateAccounts(ctx, classID, inputs)
	if err != nil {
		var dup *store.DuplicateAccountError
		if errors.As(err, &dup) {
			return nil, nil, &AccountCreationError{
				StudentID: studentIDForEmail(inputs, dup.Email),
				Email:     dup.Email,
				Err:       err,
			}
		}
		return nil, nil, fmt.Errorf("create accounts: %w", err)
	}

	credentials := make([]Credential, 0, len(profiles))
	for _, p := range profiles {
		credentials = append(credentials, Credential{
			ProfileID: p.ID,
			Name:      p.Name,
			StudentID: p.StudentID,
			Grade:     p.Grade,
			Username:  p.Email,
			Email:     p.Email,
			Password:  passwords[p.Email],
		})
	}

	return profiles, credentials, nil
}

func studentIDForEmail(inputs []store.NewAccount, email string) string {
	for _, in := range inputs {
		if in.Email == email {
			return in.StudentID
		}
	}
	return ""
}

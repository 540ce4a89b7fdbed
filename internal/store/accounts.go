package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ExistingStudentIDs returns the set of student IDs already persisted.
// student_id is globally unique, so the whole table is consulted rather
// than one class.
func (s *Store) ExistingStudentIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT student_id FROM student_profiles`)
	if err != nil {
		return nil, fmt.Errorf("query student ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan student id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("student id rows: %w", err)
	}

	return ids, nil
}

// CreateAccounts creates one account and one linked student profile per
// input inside a single transaction. Any failure rolls back every record
// from the batch; a username or email collision is reported as
// *DuplicateAccountError naming the offending address.
func (s *Store) CreateAccounts(ctx context.Context, classID uuid.UUID, accounts []NewAccount) ([]StudentProfile, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	profiles := make([]StudentProfile, 0, len(accounts))

	for _, acct := range accounts {
		// Generation is deterministic from student_id, so a collision here
		// means the address is already taken by a prior batch. Checked
		// explicitly to name the record instead of surfacing a bare
		// constraint error.
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM accounts WHERE username = $1 OR email = $2)`,
			acct.Username, acct.Email,
		).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("check account collision: %w", err)
		}
		if exists {
			return nil, &DuplicateAccountError{Email: acct.Email}
		}

		accountID := uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO accounts (id, username, email, password_hash, role)
			VALUES ($1, $2, $3, $4, $5)`,
			accountID, acct.Username, acct.Email, acct.PasswordHash, RoleStudent,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &DuplicateAccountError{Email: acct.Email}
			}
			return nil, fmt.Errorf("insert account %s: %w", acct.Email, err)
		}

		profileID := uuid.New()
		var profile StudentProfile
		err = tx.QueryRow(ctx, `
			INSERT INTO student_profiles (id, account_id, class_id, name, student_id, grade, note)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, account_id, class_id, name, student_id, grade, note, created_at`,
			profileID, accountID, classID, acct.Name, acct.StudentID, acct.Grade, acct.Note,
		).Scan(
			&profile.ID, &profile.AccountID, &profile.ClassID,
			&profile.Name, &profile.StudentID, &profile.Grade, &profile.Note,
			&profile.CreatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &DuplicateAccountError{Email: acct.Email}
			}
			return nil, fmt.Errorf("insert profile %s: %w", acct.StudentID, err)
		}
		profile.Email = acct.Email

		profiles = append(profiles, profile)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit account batch: %w", err)
	}

	return profiles, nil
}

// SetProfileSpace records the remote space id and URL on a profile once
// space creation succeeds.
func (s *Store) SetProfileSpace(ctx context.Context, profileID uuid.UUID, spaceID, spaceURL string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE student_profiles SET space_id = $2, space_url = $3 WHERE id = $1`,
		profileID, spaceID, spaceURL,
	)
	if err != nil {
		return fmt.Errorf("set profile space: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProfile returns a single student profile with its generated address.
func (s *Store) GetProfile(ctx context.Context, profileID uuid.UUID) (*StudentProfile, error) {
	var p StudentProfile
	err := s.pool.QueryRow(ctx, `
		SELECT p.id, p.account_id, p.class_id, p.name, p.student_id, p.grade, p.note,
		       COALESCE(p.space_id, ''), COALESCE(p.space_url, ''), p.created_at, a.email
		FROM student_profiles p
		JOIN accounts a ON a.id = p.account_id
		WHERE p.id = $1`,
		profileID,
	).Scan(
		&p.ID, &p.AccountID, &p.ClassID, &p.Name, &p.StudentID, &p.Grade, &p.Note,
		&p.SpaceID, &p.SpaceURL, &p.CreatedAt, &p.Email,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &p, nil
}

// GetClass returns a class with its instructor's address.
func (s *Store) GetClass(ctx context.Context, classID uuid.UUID) (*Class, error) {
	var c Class
	err := s.pool.QueryRow(ctx, `
		SELECT c.id, c.name, c.school_name, a.email
		FROM classes c
		JOIN accounts a ON a.id = c.instructor_id
		WHERE c.id = $1`,
		classID,
	).Scan(&c.ID, &c.Name, &c.SchoolName, &c.InstructorEmail)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &c, nil
}

// AdminEmails returns the addresses of every active administrator. These
// principals retain oversight access on every created space.
func (s *Store) AdminEmails(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT email FROM accounts WHERE role = $1 AND email <> '' ORDER BY email`,
		RoleAdmin,
	)
	if err != nil {
		return nil, fmt.Errorf("query admin emails: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("admin email rows: %w", err)
	}

	return emails, nil
}

package roster

// validate.go checks parsed roster records against schema and business
// rules. A record is wholly clean or wholly rejected: one violation on any
// field rejects the row, and rejected rows never reach account creation.

import (
	"fmt"
	"strconv"
	"strings"
)

// Grade bounds for elementary after-school programs.
const (
	MinGrade = 1
	MaxGrade = 6
)

// Violation describes a single rejected row.
type Violation struct {
	Row    int    `json:"row"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (v Violation) Error() string {
	return fmt.Sprintf("row %d: %s: %s", v.Row, v.Field, v.Reason)
}

// CleanRecord is a roster record that passed validation. Grade is the
// parsed integer value.
type CleanRecord struct {
	RowNumber int
	Name      string
	StudentID string
	Grade     int
	Note      string
}

// Validator validates roster records against business rules and the set of
// student IDs already present in storage.
type Validator struct {
	// ExistingIDs holds student IDs already persisted. A roster row whose
	// student_id appears here is rejected.
	ExistingIDs map[string]bool
}

// Validate partitions records into clean candidates and per-row violations.
// When the same student_id appears twice in one file, the first occurrence
// in file order is kept as potentially clean and later occurrences are
// flagged.
func (v *Validator) Validate(records []Record) ([]CleanRecord, []Violation) {
	clean := make([]CleanRecord, 0, len(records))
	var violations []Violation

	seen := make(map[string]int, len(records)) // student_id -> first row

	for _, rec := range records {
		var rowErrs []Violation

		if rec.Name == "" {
			rowErrs = append(rowErrs, Violation{Row: rec.RowNumber, Field: ColName, Reason: "required field is empty"})
		}

		if rec.StudentID == "" {
			rowErrs = append(rowErrs, Violation{Row: rec.RowNumber, Field: ColStudentID, Reason: "required field is empty"})
		} else {
			if firstRow, dup := seen[rec.StudentID]; dup {
				rowErrs = append(rowErrs, Violation{
					Row:    rec.RowNumber,
					Field:  ColStudentID,
					Reason: fmt.Sprintf("duplicate of row %d (%s)", firstRow, rec.StudentID),
				})
			} else if v.ExistingIDs[rec.StudentID] {
				rowErrs = append(rowErrs, Violation{
					Row:    rec.RowNumber,
					Field:  ColStudentID,
					Reason: fmt.Sprintf("student %s already exists", rec.StudentID),
				})
			} else {
				seen[rec.StudentID] = rec.RowNumber
			}
		}

		grade, err := parseGrade(rec.Grade)
		if err != nil {
			rowErrs = append(rowErrs, Violation{Row: rec.RowNumber, Field: ColGrade, Reason: err.Error()})
		}

		if len(rowErrs) > 0 {
			violations = append(violations, rowErrs...)
			continue
		}

		clean = append(clean, CleanRecord{
			RowNumber: rec.RowNumber,
			Name:      rec.Name,
			StudentID: rec.StudentID,
			Grade:     grade,
			Note:      rec.Note,
		})
	}

	return clean, violations
}

// parseGrade parses a grade cell into an integer in [MinGrade, MaxGrade].
// Spreadsheet readers render integer cells as "3.0"-style floats, so an
// integral float is accepted.
func parseGrade(raw string) (int, error) {
	if raw == "" {
		return 0, fmt.Errorf("required field is empty")
	}

	grade, err := strconv.Atoi(raw)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, fmt.Errorf("must be a whole number between %d and %d (got %q)", MinGrade, MaxGrade, raw)
		}
		grade = int(f)
	}

	if grade < MinGrade || grade > MaxGrade {
		return 0, fmt.Errorf("must be between %d and %d (got %d)", MinGrade, MaxGrade, grade)
	}

	return grade, nil
}

// FormatViolations renders violations as one human-readable line each,
// in file order. Used for logs and plain-text error surfaces.
func FormatViolations(violations []Violation) string {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.Error()
	}
	return strings.Join(lines, "\n")
}

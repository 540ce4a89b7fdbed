package onboard

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// CredentialsCSV renders the one-time credential sheet an instructor hands
// out after a batch. The password column is the only place the plaintext
// ever appears.
func CredentialsCSV(credentials []Credential) ([]byte, error) {
	var buf bytes.Buffer

	// Excel needs the BOM to open UTF-8 CSVs with Korean names correctly.
	buf.Write([]byte{0xEF, 0xBB, 0xBF})

	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"name", "student_id", "grade", "username", "password", "email"}); err != nil {
		return nil, err
	}

	for _, c := range credentials {
		record := []string{
			c.Name,
			c.StudentID,
			strconv.Itoa(c.Grade),
			c.Username,
			c.Password,
			c.Email,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

package web

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/neulbom/roster/internal/onboard"
	"github.com/neulbom/roster/internal/roster"
)

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readRosterFile extracts the uploaded roster from a multipart form,
// bounded by the configured file size limit.
func (s *Server) readRosterFile(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	maxSize := s.cfg.Onboard.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid form")
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return nil, "", false
	}

	return data, header.Filename, true
}

// handleValidate runs the preview step: parse and validate a roster
// without persisting anything, returning the violations to show the
// instructor before committing.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readRosterFile(w, r)
	if !ok {
		return
	}

	report, err := s.service.ValidateRoster(r.Context(), data, fileName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// commitResponse is the body returned by a successful commit.
type commitResponse struct {
	Batch       *onboard.BatchResult `json:"batch"`
	Credentials []onboard.Credential `json:"credentials"`
}

// handleCommit runs the full pipeline for one roster file. The
// credentials in the response are the only time plaintext passwords
// leave the system; only their hashes are stored.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	data, fileName, ok := s.readRosterFile(w, r)
	if !ok {
		return
	}

	classID, err := uuid.Parse(r.FormValue("class_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid class_id")
		return
	}

	actor := onboard.ActingUser{Email: r.FormValue("actor_email")}
	if actor.Email == "" {
		writeError(w, http.StatusBadRequest, "missing actor_email")
		return
	}
	if raw := r.FormValue("actor_id"); raw != "" {
		if actor.AccountID, err = uuid.Parse(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid actor_id")
			return
		}
	}

	result, credentials, err := s.service.Run(r.Context(), data, fileName, classID, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// format=csv downloads the credential sheet directly, for handing
	// out to students on paper.
	if r.FormValue("format") == "csv" {
		sheet, err := onboard.CredentialsCSV(credentials)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", credentialsFileName()))
		w.Write(sheet)
		return
	}

	writeJSON(w, http.StatusOK, commitResponse{Batch: result, Credentials: credentials})
}

func credentialsFileName() string {
	return fmt.Sprintf("credentials_%s.csv", time.Now().Format("20060102"))
}

// handleTemplate serves a blank roster template for download. The BOM
// keeps Excel from mangling Korean names on open.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="roster_template.csv"`)
	fmt.Fprintf(w, "\ufeff%s,%s,%s,%s\r\n",
		roster.ColName, roster.ColStudentID, roster.ColGrade, roster.ColNotes)
}

// handleListFailed returns the open manual-review queue.
func (s *Server) handleListFailed(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListFailedCreations(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleRetryFailed re-runs provisioning for one manual-review entry.
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	entry, err := s.service.RetryFailedCreation(r.Context(), id)
	if err != nil {
		if entry != nil {
			// Entry exists but cannot be retried (permanently failed).
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}
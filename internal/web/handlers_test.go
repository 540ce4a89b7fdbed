package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neulbom/roster/internal/config"
	"github.com/neulbom/roster/internal/onboard"
	"github.com/neulbom/roster/internal/store"
	"github.com/neulbom/roster/internal/zep"
)

// ============================================================================
// Fakes
// ============================================================================

type stubStore struct {
	class    *store.Class
	profiles map[uuid.UUID]*store.StudentProfile
	failed   map[uuid.UUID]*store.FailedCreation
}

func newStubStore() *stubStore {
	return &stubStore{
		class: &store.Class{
			ID:              uuid.New(),
			Name:            "1반",
			InstructorEmail: "teacher@school.kr",
		},
		profiles: map[uuid.UUID]*store.StudentProfile{},
		failed:   map[uuid.UUID]*store.FailedCreation{},
	}
}

func (s *stubStore) ExistingStudentIDs(ctx context.Context) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (s *stubStore) CreateAccounts(ctx context.Context, classID uuid.UUID, accounts []store.NewAccount) ([]store.StudentProfile, error) {
	out := make([]store.StudentProfile, 0, len(accounts))
	for _, in := range accounts {
		p := store.StudentProfile{
			ID:        uuid.New(),
			ClassID:   classID,
			Name:      in.Name,
			StudentID: in.StudentID,
			Grade:     in.Grade,
			Email:     in.Email,
		}
		copied := p
		s.profiles[p.ID] = &copied
		out = append(out, p)
	}
	return out, nil
}

func (s *stubStore) SetProfileSpace(ctx context.Context, profileID uuid.UUID, spaceID, spaceURL string) error {
	if p, ok := s.profiles[profileID]; ok {
		p.SpaceID = spaceID
		p.SpaceURL = spaceURL
	}
	return nil
}

func (s *stubStore) GetProfile(ctx context.Context, profileID uuid.UUID) (*store.StudentProfile, error) {
	p, ok := s.profiles[profileID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *stubStore) GetClass(ctx context.Context, classID uuid.UUID) (*store.Class, error) {
	return s.class, nil
}

func (s *stubStore) AdminEmails(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (s *stubStore) AcquireClassLock(ctx context.Context, classID uuid.UUID) (*store.ClassLock, error) {
	return &store.ClassLock{}, nil
}

func (s *stubStore) CreateFailedCreation(ctx context.Context, in store.NewFailedCreation) (*store.FailedCreation, error) {
	entry := &store.FailedCreation{
		ID:           uuid.New(),
		ProfileID:    in.ProfileID,
		ErrorMessage: in.ErrorMessage,
		Kind:         in.Kind,
		AttemptCount: in.AttemptCount,
		Status:       store.StatusPending,
		CreatedAt:    time.Now(),
	}
	s.failed[entry.ID] = entry
	return entry, nil
}

func (s *stubStore) GetFailedCreation(ctx context.Context, id uuid.UUID) (*store.FailedCreation, error) {
	entry, ok := s.failed[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (s *stubStore) ListFailedCreations(ctx context.Context) ([]store.FailedCreation, error) {
	var out []store.FailedCreation
	for _, entry := range s.failed {
		if entry.Status == store.StatusPending || entry.Status == store.StatusRetrying {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *stubStore) MarkFailedCreationRetrying(ctx context.Context, id uuid.UUID) error {
	s.failed[id].Status = store.StatusRetrying
	return nil
}

func (s *stubStore) ResolveFailedCreation(ctx context.Context, id uuid.UUID) error {
	s.failed[id].Status = store.StatusResolved
	return nil
}

func (s *stubStore) RecordFailedRetry(ctx context.Context, id uuid.UUID, attempts int, lastErr string) error {
	s.failed[id].AttemptCount += attempts
	s.failed[id].Status = store.StatusPending
	return nil
}

func (s *stubStore) MarkFailedCreationPermanent(ctx context.Context, id uuid.UUID, lastErr string) error {
	s.failed[id].Status = store.StatusPermanentFailed
	return nil
}

func (s *stubStore) CreateBatch(ctx context.Context, classID uuid.UUID, actorEmail, fileName string, total int) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (s *stubStore) FinishBatch(ctx context.Context, id uuid.UUID, succeeded, failed int) error {
	return nil
}

type stubClient struct {
	fail  bool
	calls int
}

func (c *stubClient) CreateSpace(ctx context.Context, name string) (zep.Space, error) {
	c.calls++
	if c.fail {
		return zep.Space{}, zep.ErrRateLimited
	}
	id := fmt.Sprintf("space-%d", c.calls)
	return zep.Space{ID: id, URL: "https://zep.us/play/" + id}, nil
}

func (c *stubClient) SetPermission(ctx context.Context, spaceID, principal string, role zep.Role) error {
	if c.fail {
		return zep.ErrRateLimited
	}
	return nil
}

// ============================================================================
// Harness
// ============================================================================

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: time.Minute,
			IdleTimeout:  time.Minute,
		},
		Onboard: config.OnboardConfig{
			EmailDomain:  "neulbom.internal",
			MaxBatchSize: 500,
			MaxFileSize:  1 << 20,
			MaxAttempts:  3,
			BackoffBase:  time.Second,
		},
	}
}

func newTestServer(st *stubStore, client *stubClient) *Server {
	svc := onboard.NewService(st, client, onboard.Options{
		EmailDomain:  "neulbom.internal",
		MaxBatchSize: 500,
		MaxAttempts:  1, // no waiting in handler tests
		BackoffBase:  time.Millisecond,
	})
	return NewServer(svc, testConfig())
}

// multipartRoster builds a multipart body with a roster file plus extra
// form fields.
func multipartRoster(t *testing.T, csvBody string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "roster.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvBody))
	require.NoError(t, err)

	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

const validRoster = "student_name,student_id,grade,notes\n김철수,2024001,3,\n이영희,2024002,4,\n"

// ============================================================================
// Handler Tests
// ============================================================================

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestHandleValidate_Clean(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	body, contentType := multipartRoster(t, validRoster, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/roster/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report struct {
		CleanCount int               `json:"cleanCount"`
		Violations []json.RawMessage `json:"violations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.CleanCount)
	assert.Empty(t, report.Violations)
}

func TestHandleValidate_NoFile(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/roster/validate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleValidate_BadExtension(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "roster.pdf")
	require.NoError(t, err)
	part.Write([]byte("not a roster"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/roster/validate", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommit_Success(t *testing.T) {
	st := newStubStore()
	srv := newTestServer(st, &stubClient{})

	body, contentType := multipartRoster(t, validRoster, map[string]string{
		"class_id":    st.class.ID.String(),
		"actor_email": "teacher@school.kr",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/roster/commit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Batch struct {
			Phase     string            `json:"phase"`
			Total     int               `json:"total"`
			Succeeded []json.RawMessage `json:"succeeded"`
		} `json:"batch"`
		Credentials []struct {
			Password string `json:"password"`
		} `json:"credentials"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "completed", resp.Batch.Phase)
	assert.Equal(t, 2, resp.Batch.Total)
	assert.Len(t, resp.Batch.Succeeded, 2)
	require.Len(t, resp.Credentials, 2)
	assert.NotEmpty(t, resp.Credentials[0].Password)
}

func TestHandleCommit_CSVFormat(t *testing.T) {
	st := newStubStore()
	srv := newTestServer(st, &stubClient{})

	body, contentType := multipartRoster(t, validRoster, map[string]string{
		"class_id":    st.class.ID.String(),
		"actor_email": "teacher@school.kr",
		"format":      "csv",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/roster/commit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Body.String(), "2024001")
}

func TestHandleCommit_ValidationRejection(t *testing.T) {
	st := newStubStore()
	srv := newTestServer(st, &stubClient{})

	badRoster := "student_name,student_id,grade\n김철수,2024001,9\n"
	body, contentType := multipartRoster(t, badRoster, map[string]string{
		"class_id":    st.class.ID.String(),
		"actor_email": "teacher@school.kr",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/roster/commit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Violations, 1)
	assert.Equal(t, 2, resp.Violations[0].Row)
	assert.Equal(t, "grade", resp.Violations[0].Field)
}

func TestHandleCommit_MissingClassID(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	body, contentType := multipartRoster(t, validRoster, map[string]string{
		"actor_email": "teacher@school.kr",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/roster/commit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleCommit_PartialFailureStillSucceeds(t *testing.T) {
	st := newStubStore()
	client := &stubClient{fail: true}
	srv := newTestServer(st, client)

	body, contentType := multipartRoster(t, validRoster, map[string]string{
		"class_id":    st.class.ID.String(),
		"actor_email": "teacher@school.kr",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/roster/commit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	// Space failures do not fail the request: accounts exist, failures
	// are queued for review.
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Batch struct {
			Failed []struct {
				Reason string `json:"reason"`
			} `json:"failed"`
		} `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Batch.Failed, 2)
	assert.Len(t, st.failed, 2)
}

func TestHandleTemplate(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/roster/template", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "\ufeff"), "template must carry a BOM")
	assert.Contains(t, body, "student_name,student_id,grade,notes")
}

func TestHandleListFailed(t *testing.T) {
	st := newStubStore()
	profileID := uuid.New()
	st.failed[uuid.New()] = &store.FailedCreation{
		ID:        uuid.New(),
		ProfileID: profileID,
		Kind:      store.FailureCreation,
		Status:    store.StatusPending,
	}
	srv := newTestServer(st, &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/api/failed-creations", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestHandleRetryFailed_NotFound(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/failed-creations/"+uuid.NewString()+"/retry", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRetryFailed_InvalidID(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodPost, "/api/failed-creations/not-a-uuid/retry", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityHeaders(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(newStubStore(), &stubClient{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

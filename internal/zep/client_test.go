package zep

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSpace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/spaces", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "김철수_portfolio_2026", payload["name"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"space_id": "sp_123",
			"url":      "https://zep.us/play/sp_123",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	space, err := c.CreateSpace(context.Background(), "김철수_portfolio_2026")
	require.NoError(t, err)

	assert.Equal(t, "sp_123", space.ID)
	assert.Equal(t, "https://zep.us/play/sp_123", space.URL)
}

func TestCreateSpace_MissingFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"space_id": "sp_123"})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.CreateSpace(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestSetPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/spaces/sp_123/permissions", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "2024001@neulbom.internal", payload["principalAddress"])
		assert.Equal(t, "owner", payload["role"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	err := c.SetPermission(context.Background(), "sp_123", "2024001@neulbom.internal", RoleOwner)
	require.NoError(t, err)
}

func TestSetPermission_InvalidRole(t *testing.T) {
	c := NewHTTPClient("http://unused", "test-key")

	// Rejected client-side; no request is made.
	err := c.SetPermission(context.Background(), "sp_123", "x@y", Role("superuser"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")
}

func TestDo_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.CreateSpace(context.Background(), "x")

	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDo_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"errorCode": "INVALID_NAME",
			"message":   "space name contains forbidden characters",
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.CreateSpace(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_NAME", apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "INVALID_NAME")
}

func TestDo_APIErrorWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.CreateSpace(context.Background(), "x")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.NotEmpty(t, apiErr.Message)
}

func TestDo_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewHTTPClient(srv.URL, "test-key")
	_, err := c.CreateSpace(ctx, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleOwner.Valid())
	assert.True(t, RoleStaff.Valid())
	assert.False(t, Role("admin").Valid())
	assert.False(t, Role("").Valid())
}

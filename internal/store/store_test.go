package store

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassLockKey_Deterministic(t *testing.T) {
	id := uuid.New()

	if classLockKey(id) != classLockKey(id) {
		t.Error("expected the same class to map to the same lock key")
	}
	if classLockKey(id) == classLockKey(uuid.New()) {
		t.Error("expected distinct classes to map to distinct keys")
	}
}

func TestClassLock_ReleaseWithoutConnection(t *testing.T) {
	// A zero-value lock must tolerate Release; test fakes rely on this.
	var l ClassLock
	l.Release(context.Background())
}

func TestDuplicateAccountError(t *testing.T) {
	err := &DuplicateAccountError{Email: "2024001@neulbom.internal"}
	if !strings.Contains(err.Error(), "2024001@neulbom.internal") {
		t.Errorf("expected message to name the address, got %q", err.Error())
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Error("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Error("foreign key violation must not count as unique violation")
	}
}

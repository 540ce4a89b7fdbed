package store

// lock.go serializes bulk operations per class. Account creation for a
// batch runs in one transaction, but nothing else stops two instructors
// from onboarding into the same class at once; a session-scoped advisory
// lock closes that gap without a schema change.

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ClassLock is a held per-class advisory lock. Release returns the
// connection to the pool; callers must release on every path.
type ClassLock struct {
	conn *pgxpool.Conn
	key  int64
}

// AcquireClassLock takes a session advisory lock keyed by the class id.
// Blocks until the lock is available or ctx is done.
func (s *Store) AcquireClassLock(ctx context.Context, classID uuid.UUID) (*ClassLock, error) {
	key := classLockKey(classID)

	// The lock is session-scoped, so it must live on a dedicated
	// connection rather than whatever the pool hands each query.
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire class lock: %w", err)
	}

	return &ClassLock{conn: conn, key: key}, nil
}

// Release unlocks and returns the connection to the pool.
func (l *ClassLock) Release(ctx context.Context) {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
	l.conn = nil
}

// classLockKey folds a class UUID into the bigint key space advisory locks
// use. Collisions across classes are harmless: they only widen the lock.
func classLockKey(classID uuid.UUID) int64 {
	h := fnv.New64a()
	h.Write(classID[:])
	return int64(h.Sum64())
}

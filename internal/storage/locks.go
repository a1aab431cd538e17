package db

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AdvisoryLock is a session-level postgres advisory lock. The session is
// a pooled connection held from acquire to release, so unlock always runs
// on the connection that took the lock.
type AdvisoryLock struct {
	db   *DB
	id   int64
	mu   sync.Mutex
	conn *pgxpool.Conn
}

// NewAdvisoryLock returns a lock on id. It is not acquired yet.
func (db *DB) NewAdvisoryLock(id int64) *AdvisoryLock {
	return &AdvisoryLock{db: db, id: id}
}

// TryAcquire takes the lock without waiting.
func (l *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		return false, nil
	}

	conn, err := l.db.Pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.id).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("try acquire advisory lock: %w", err)
	}

	if !acquired {
		conn.Release()
		return false, nil
	}

	l.conn = conn

	return true, nil
}

// Release unlocks and returns the connection to the pool. Releasing a lock
// that is not held is a no-op.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil
	}

	conn := l.conn
	l.conn = nil

	var released bool

	err := conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.id).Scan(&released)
	if err != nil {
		// Closing the session drops the lock server-side.
		_ = conn.Conn().Close(context.WithoutCancel(ctx)) //nolint:errcheck // best-effort
		conn.Release()

		return fmt.Errorf("release advisory lock: %w", err)
	}

	conn.Release()

	return nil
}

// Package lock provides run locks that keep a job single-flight.
// TryAcquire never waits for a held lock; it reports false instead.
package lock

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrNotHeld is returned when releasing a lock this holder does not own.
var ErrNotHeld = errors.New("lock not held")

// Memory is an in-process lock for single-instance deployments.
type Memory struct {
	held atomic.Bool
}

// NewMemory returns an unlocked in-process lock.
func NewMemory() *Memory {
	return &Memory{}
}

// TryAcquire takes the lock if it is free.
func (m *Memory) TryAcquire(context.Context) (bool, error) {
	return m.held.CompareAndSwap(false, true), nil
}

// Release frees the lock.
func (m *Memory) Release(context.Context) error {
	if !m.held.CompareAndSwap(true, false) {
		return ErrNotHeld
	}

	return nil
}

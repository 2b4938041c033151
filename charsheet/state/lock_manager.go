package state

import (
	"sync"
)

// OperationType defines whether an operation is read or write.
type OperationType int

const (
	// ReadOperation indicates an operation that only reads the record.
	// Multiple read operations can proceed concurrently.
	ReadOperation OperationType = iota

	// WriteOperation indicates an operation that modifies the record.
	WriteOperation
)

// LockManager serialises access to the record data.
//
// The store mutates and reads its record on the editing goroutine, while the
// persistence layer snapshots it from a timer goroutine. LockManager wraps a
// sync.RWMutex so both sides use the same lock discipline. The lock must only
// cover data access: callbacks are always run after it is released, because
// they are free to read the store again.
type LockManager struct {
	mu *sync.RWMutex
}

// NewLockManager creates a new lock manager instance.
func NewLockManager() *LockManager {
	return &LockManager{
		mu: &sync.RWMutex{},
	}
}

// Execute runs fn holding the lock appropriate for opType. The lock is
// released via defer, so it is released even if fn panics.
//
// Example:
//
//	err := locks.Execute(ReadOperation, func() error {
//	    v = record.Get(s.data, path)
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

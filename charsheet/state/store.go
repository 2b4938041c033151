package state

import (
	"fmt"
	"log/slog"

	"github.com/arthur-debert/charsheet/charsheet/record"
)

// Observer receives every committed change set: a single path for an
// unbatched write, or the deduplicated paths flushed at the end of a batch.
type Observer func(paths []string)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used for contained listener failures.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store is the path-addressed source of truth for the character record.
//
// Values handed out by Get are the live values inside the record; callers
// must treat maps and slices they receive as read-only and write through Set.
type Store struct {
	data   record.Map
	locks  *LockManager
	logger *slog.Logger

	listeners *registry
	observers []observerEntry
	nextObs   uint64

	batchDepth int
	pending    map[string]any
	pendingSeq []string
}

type observerEntry struct {
	id uint64
	fn Observer
}

// NewStore creates a store over initial. The map is adopted, not copied.
func NewStore(initial record.Map, opts ...StoreOption) *Store {
	if initial == nil {
		initial = record.Map{}
	}
	s := &Store{
		data:    initial,
		locks:   NewLockManager(),
		logger:  slog.Default(),
		pending: make(map[string]any),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.listeners = newRegistry(s.logger)
	return s
}

// Get returns the value at path, or nil when any segment is missing.
func (s *Store) Get(path string) any {
	var v any
	_ = s.locks.Execute(ReadOperation, func() error {
		v = record.Get(s.data, path)
		return nil
	})
	return v
}

// Set writes value at path and notifies subscribers of that exact path with
// (newValue, oldValue, path).
//
// Go numbers are stored as float64 (record.Scalar), so 30 and 30.0 are the
// same value. Writing a value identical to the current one (see record.Same)
// does nothing: no write, no notification, no recomputation. Inside a batch
// the write happens immediately but notification waits for the batch to end.
func (s *Store) Set(path string, value any) error {
	value = record.Scalar(value)
	var old any
	changed := false
	err := s.locks.Execute(WriteOperation, func() error {
		old = record.Get(s.data, path)
		if record.Same(old, value) {
			return nil
		}
		if err := record.Assign(s.data, path, value); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	if changed {
		s.changed(path, value, old)
	}
	return nil
}

// Delete removes the value at path. Deleting an absent path does nothing.
// Subscribers of path see a nil new value.
func (s *Store) Delete(path string) error {
	segs := record.Split(path)
	if len(segs) == 0 {
		return fmt.Errorf("delete %q: %w", path, record.ErrInvalidPath)
	}
	parentPath := record.Join(segs[:len(segs)-1]...)
	last := segs[len(segs)-1]

	var old any
	found := false
	_ = s.locks.Execute(WriteOperation, func() error {
		parent, ok := record.Get(s.data, parentPath).(record.Map)
		if !ok {
			return nil
		}
		old, found = parent[last]
		delete(parent, last)
		return nil
	})
	if found && old != nil {
		s.changed(path, nil, old)
	}
	return nil
}

func (s *Store) changed(path string, value, old any) {
	if s.batchDepth > 0 {
		if _, seen := s.pending[path]; !seen {
			s.pending[path] = old
			s.pendingSeq = append(s.pendingSeq, path)
		}
		return
	}
	s.listeners.notify(path, value, old)
	s.emit([]string{path})
}

// Subscribe registers cb for changes at exactly path. The returned function
// removes only this subscription and is safe to call more than once.
func (s *Store) Subscribe(path string, cb Callback) func() {
	return s.listeners.add(path, cb)
}

// Observe registers fn to receive every committed change set.
func (s *Store) Observe(fn Observer) func() {
	s.nextObs++
	id := s.nextObs
	s.observers = append(s.observers, observerEntry{id: id, fn: fn})
	return func() {
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) emit(paths []string) {
	for _, o := range append([]observerEntry(nil), s.observers...) {
		if err := observe(o.fn, paths); err != nil {
			s.logger.Error("state observer failed", "paths", paths, "error", err)
		}
	}
}

func observe(fn Observer, paths []string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	fn(paths)
	return nil
}

// Batch runs fn with notifications deferred. Writes made inside fn are
// visible to Get immediately; when fn returns (with an error, or by
// panicking) each written path is notified exactly once and observers receive
// the whole set in one call. A path whose final value is identical to its
// value before the batch is not notified.
//
// Nested calls join the outer batch; flushing happens only when the outermost
// Batch returns.
func (s *Store) Batch(fn func() error) error {
	s.batchDepth++
	defer func() {
		s.batchDepth--
		if s.batchDepth == 0 {
			s.flush()
		}
	}()
	return fn()
}

// Batching reports whether a batch is open.
func (s *Store) Batching() bool {
	return s.batchDepth > 0
}

func (s *Store) flush() {
	if len(s.pendingSeq) == 0 {
		return
	}
	pending, seq := s.pending, s.pendingSeq
	s.pending = make(map[string]any)
	s.pendingSeq = nil

	flushed := make([]string, 0, len(seq))
	for _, path := range seq {
		old := pending[path]
		current := s.Get(path)
		if record.Same(current, old) {
			continue
		}
		s.listeners.notify(path, current, old)
		flushed = append(flushed, path)
	}
	if len(flushed) > 0 {
		s.emit(flushed)
	}
}

// Replace swaps the whole record for next inside a single batch. Top-level
// keys missing from next are deleted. The map is adopted, not copied.
func (s *Store) Replace(next record.Map) error {
	return s.Batch(func() error {
		var stale []string
		_ = s.locks.Execute(ReadOperation, func() error {
			for key := range s.data {
				if _, ok := next[key]; !ok {
					stale = append(stale, key)
				}
			}
			return nil
		})
		for _, key := range stale {
			if err := s.Delete(key); err != nil {
				return err
			}
		}
		for key, value := range next {
			if err := s.Set(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Snapshot returns a deep copy of the record. It is safe to call from any
// goroutine.
func (s *Store) Snapshot() record.Map {
	var snap record.Map
	_ = s.locks.Execute(ReadOperation, func() error {
		snap = record.CloneMap(s.data)
		return nil
	})
	return snap
}

// SubscriberCount returns the number of callbacks registered for path.
func (s *Store) SubscriberCount(path string) int {
	return s.listeners.count(path)
}

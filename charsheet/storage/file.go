package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

const fileFormatVersion = "1.0"

// fileData is the on-disk layout of a file store.
type fileData struct {
	Entries  map[string]fileEntry `json:"entries"`
	Metadata fileMetadata         `json:"metadata"`
}

type fileEntry struct {
	Value     string    `json:"value"`
	Revision  string    `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

type fileMetadata struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileOption is a function that modifies File configuration
type FileOption func(*File)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) FileOption {
	return func(f *File) {
		f.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) FileOption {
	return func(f *File) {
		f.lockFactory = factory
	}
}

// WithTimeFunc sets a custom time function for testing
func WithTimeFunc(fn func() time.Time) FileOption {
	return func(f *File) {
		f.timeFunc = fn
	}
}

// File stores values in a single JSON document on disk. Every operation
// takes a cross-process lock and re-reads the file, so several processes
// can share one store. Writes go to a temp file that is renamed into place.
type File struct {
	path        string
	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock
	timeFunc    func() time.Time
}

// NewFile creates a file store at path. The file is created on first save.
func NewFile(path string, opts ...FileOption) (*File, error) {
	if path == "" {
		return nil, errors.New("file store: empty path")
	}
	f := &File{
		path:     path,
		timeFunc: time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.fs == nil {
		f.fs = OSFileSystem{}
	}
	if f.lockFactory == nil {
		f.lockFactory = FlockFactory{}
	}
	// The lock file lives next to the data file, so the directory must exist
	// before the first lock attempt.
	if err := f.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f.fileLock = f.lockFactory.New(path + ".lock")
	return f, nil
}

// Path returns the data file path.
func (f *File) Path() string {
	return f.path
}

// Load implements Store.Load
func (f *File) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := f.withLock(ctx, func() error {
		data, err := f.read()
		if err != nil {
			return err
		}
		entry, ok := data.Entries[key]
		if !ok {
			return ErrNotFound
		}
		value = entry.Value
		return nil
	})
	return value, err
}

// Save implements Store.Save
func (f *File) Save(ctx context.Context, key, value string) error {
	return f.withLock(ctx, func() error {
		data, err := f.read()
		if err != nil {
			return err
		}
		now := f.timeFunc()
		data.Entries[key] = fileEntry{
			Value:     value,
			Revision:  uuid.New().String(),
			UpdatedAt: now,
		}
		data.Metadata.UpdatedAt = now
		return f.write(data)
	})
}

// Revision returns the revision id of the last save of key.
func (f *File) Revision(ctx context.Context, key string) (string, error) {
	var rev string
	err := f.withLock(ctx, func() error {
		data, err := f.read()
		if err != nil {
			return err
		}
		entry, ok := data.Entries[key]
		if !ok {
			return ErrNotFound
		}
		rev = entry.Revision
		return nil
	})
	return rev, err
}

// Close implements Store.Close
func (f *File) Close() error {
	return nil
}

func (f *File) withLock(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	if err := f.acquireLock(ctx); err != nil {
		return err
	}
	defer func() { _ = f.fileLock.Unlock() }()
	return fn()
}

// acquireLock attempts to acquire an exclusive file lock with retry logic
func (f *File) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := f.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// read loads the file. Caller must hold the lock.
func (f *File) read() (*fileData, error) {
	now := f.timeFunc()
	data := &fileData{
		Entries:  make(map[string]fileEntry),
		Metadata: fileMetadata{Version: fileFormatVersion, CreatedAt: now, UpdatedAt: now},
	}

	if _, err := f.fs.Stat(f.path); errors.Is(err, os.ErrNotExist) {
		return data, nil
	}
	raw, err := f.fs.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Entries == nil {
		data.Entries = make(map[string]fileEntry)
	}
	return data, nil
}

// write saves the file atomically. Caller must hold the lock.
func (f *File) write(data *fileData) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpFile := f.path + ".tmp"
	if err := f.fs.WriteFile(tmpFile, raw, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.fs.Rename(tmpFile, f.path); err != nil {
		_ = f.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

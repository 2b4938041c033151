// Package storage provides durable string stores for the persisted character
// record. Every backend maps a key to one opaque string value: the JSON text
// of the record.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when the key has never been saved.
var ErrNotFound = errors.New("key not found")

// Store is a durable key to string store.
type Store interface {
	// Load returns the value saved under key, or ErrNotFound.
	Load(ctx context.Context, key string) (string, error)

	// Save replaces the value under key.
	Save(ctx context.Context, key, value string) error

	// Close releases any resources held by the store
	Close() error
}

// Backend names a storage implementation.
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBolt   Backend = "bolt"
	BackendRedis  Backend = "redis"
	BackendMemory Backend = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend Backend
	// Path is the data file for the file and bolt backends.
	Path  string
	Redis RedisConfig
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch Backend(strings.ToLower(string(cfg.Backend))) {
	case BackendFile, "":
		return NewFile(cfg.Path)
	case BackendBolt:
		return NewBolt(cfg.Path)
	case BackendRedis:
		return NewRedis(cfg.Redis)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

const boltBucket = "charsheet"

// Bolt stores values in a bucket of a bbolt database file.
type Bolt struct {
	db *bolt.DB
}

// NewBolt opens (creating if needed) the database at path.
func NewBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt store: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := bolt.Open(path, 0644, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

// Load implements Store.Load
func (b *Bolt) Load(ctx context.Context, key string) (string, error) {
	var value string
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(boltBucket)).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = string(v)
		return nil
	})
	return value, err
}

// Save implements Store.Save
func (b *Bolt) Save(ctx context.Context, key, value string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(boltBucket)).Put([]byte(key), []byte(value))
	})
}

// Close implements Store.Close
func (b *Bolt) Close() error {
	return b.db.Close()
}


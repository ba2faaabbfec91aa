package fscache

import (
	"fmt"
	"io/fs"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var bucketFiles = []byte("files")

// BoltStorage keeps durable file contents in a single bbolt database
// instead of the OS filesystem. Useful when the emulator should own
// one artifact on disk rather than a tree of written-through files.
type BoltStorage struct {
	db     *bbolt.DB
	logger *zap.Logger
}

func NewBoltStorage(path string, openTimeout time.Duration, logger *zap.Logger) (*BoltStorage, error) {
	if openTimeout <= 0 {
		openTimeout = 5 * time.Second
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating files bucket: %w", err)
	}

	return &BoltStorage{db: db, logger: logger}, nil
}

func (s *BoltStorage) Read(path string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketFiles).Get([]byte(path))
		if v == nil {
			return fs.ErrNotExist
		}
		data = make([]byte, len(v))
		copy(data, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStorage) Write(path string, data []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(path), data)
	})
}

func (s *BoltStorage) Ping() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketFiles) == nil {
			return fmt.Errorf("files bucket missing")
		}
		return nil
	})
}

func (s *BoltStorage) Close() error {
	return s.db.Close()
}

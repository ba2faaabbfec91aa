package fscache

import (
	"os"
	"path/filepath"
)

// DiskStorage reads and writes whole files on the local filesystem.
type DiskStorage struct{}

func (DiskStorage) Read(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (DiskStorage) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func (DiskStorage) Ping() error {
	return nil
}

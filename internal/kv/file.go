package kv

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// File stores each key as a file inside a directory.
// An exclusive flock on a lock file guards every read and write so that
// several processes can share the directory.
type File struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewFile creates the directory if needed and returns a store rooted at it.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("missing file store directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &File{dir: dir}, nil
}

// Get reads the file for key.
// Lock → Read → Unlock
func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := f.withLock(func() error {
		b, err := os.ReadFile(f.path(key))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		data, found = b, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, found, nil
}

// Set atomically replaces the file for key.
// Lock → Write temp → Sync → Rename → Unlock
func (f *File) Set(_ context.Context, key string, value []byte) error {
	return f.withLock(func() error {
		tmp, err := os.CreateTemp(f.dir, ".tmp-*")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpName := tmp.Name()
		defer os.Remove(tmpName)

		if _, err := tmp.Write(value); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write %s: %w", key, err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to sync %s: %w", key, err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", key, err)
		}
		if err := os.Rename(tmpName, f.path(key)); err != nil {
			return fmt.Errorf("failed to replace %s: %w", key, err)
		}
		return nil
	})
}

// Close marks the store closed. Later calls return ErrClosed.
func (f *File) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

// withLock runs fn while holding both the in-process mutex and the directory flock.
func (f *File) withLock(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	lock, err := os.OpenFile(filepath.Join(f.dir, ".lock"), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to open lock file: %w", err)
	}
	defer lock.Close()

	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock file: %w", err)
	}
	defer syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)

	return fn()
}

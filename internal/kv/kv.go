// Package kv provides durable key-value stores used to persist the task collection.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by operations on a store that has been closed.
var ErrClosed = errors.New("kv: store is closed")

// Store defines the interface for key-value persistence.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set replaces the value stored under key.
	Set(ctx context.Context, key string, value []byte) error
	// Close releases the underlying resources.
	Close() error
}

// Supported driver names.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverFile   = "file"
)

// Config selects and configures a Store implementation.
type Config struct {
	Driver string
	// DSN is a database path for sqlite, a redis URL or host:port for redis,
	// and a directory for file. It is ignored by memory.
	DSN string
	// Prefix namespaces keys in redis.
	Prefix string
}

// Versioned is implemented by stores that count writes per key.
type Versioned interface {
	// Version returns how many times key has been written, or 0 when it is absent.
	Version(ctx context.Context, key string) (int64, error)
}

// NormalizeDriver maps a driver name or alias to its canonical name.
// An empty name selects the memory driver.
func NormalizeDriver(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case DriverMemory, "":
		return DriverMemory, true
	case DriverSQLite, "sqlite3":
		return DriverSQLite, true
	case DriverRedis:
		return DriverRedis, true
	case DriverFile:
		return DriverFile, true
	default:
		return "", false
	}
}

// Open creates the Store named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	driver, ok := NormalizeDriver(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	var (
		s   Store
		err error
	)
	switch driver {
	case DriverMemory:
		s = NewMemory()
	case DriverSQLite:
		s, err = NewSQLite(cfg.DSN)
	case DriverRedis:
		s, err = NewRedisFromURL(cfg.DSN, cfg.Prefix)
	case DriverFile:
		s, err = NewFile(cfg.DSN)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

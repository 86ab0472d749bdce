package kv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Redis stores values in Redis under prefix+key.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps an existing client. The caller keeps ownership of the client
// until Close is called on the returned store.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if client == nil {
		panic("kv.NewRedis: client is nil")
	}
	return &Redis{client: client, prefix: prefix}
}

// NewRedisFromURL parses conn as a redis:// URL, falling back to the
// "host:port,password=...,ssl=true" connection string form.
func NewRedisFromURL(conn, prefix string) (*Redis, error) {
	if conn == "" {
		return nil, errors.New("missing redis connection string")
	}

	opts, err := redis.ParseURL(conn)
	if err != nil {
		parts := strings.Split(conn, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(kv[0])) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.EqualFold(kv[1], "true") {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}

	return NewRedis(redis.NewClient(opts), prefix), nil
}

// Get reads the prefixed key. A missing key is reported as absent, not as an error.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, false, ErrClosed
		}
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return data, true, nil
}

// Set writes the prefixed key without an expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

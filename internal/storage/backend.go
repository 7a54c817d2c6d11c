package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoSnapshot is returned by Read when the backend holds nothing yet.
var ErrNoSnapshot = errors.New("no snapshot stored")

// Backend stores one opaque snapshot blob.
type Backend interface {
	Name() string
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
}

// MirrorOptions selects the optional secondary backend.
type MirrorOptions struct {
	Kind        string // "", "redis", "postgres", "sqlite"
	RedisURL    string
	DatabaseURL string
	SQLitePath  string
}

// OpenMirror builds the configured secondary backend; nil means local only.
// The returned closer is never nil.
func OpenMirror(ctx context.Context, opts MirrorOptions) (Backend, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", "none":
		return nil, noop, nil
	case "redis":
		b, err := OpenRedis(ctx, opts.RedisURL)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case "postgres":
		b, err := OpenPostgres(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	case "sqlite":
		b, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		return b, b.Close, nil
	}
	return nil, noop, fmt.Errorf("unknown storage mirror %q", opts.Kind)
}

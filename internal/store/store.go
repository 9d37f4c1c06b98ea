// Package store provides the "plain storage" key-value capability: an
// unencrypted string store the capture pipeline writes its single
// last-capture slot into. Backends are interchangeable behind Plain.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/large-farva/precision-lens/internal/config"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store closed")

// Plain is a string key-value store. SetItem overwrites; GetItem reports
// absence with ok == false rather than an error.
type Plain interface {
	SetItem(ctx context.Context, key, value string) error
	GetItem(ctx context.Context, key string) (value string, ok bool, err error)
	Close() error
}

// Open builds the backend named in cfg. Backend "none" returns a nil store,
// which callers treat as "storage capability absent".
func Open(ctx context.Context, cfg config.StorageConfig) (Plain, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		r, err := OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

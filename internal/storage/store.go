// Package storage is the durable local key-value store behind the feed cache
// and the seen-title sets.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Store persists opaque values under string keys. Implementations must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix, in no particular order.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open creates the configured backend. path is used by the file and sqlite
// backends, dsn by postgres.
func Open(ctx context.Context, backend, path, dsn string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(ctx, path)
	case BackendPostgres:
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

// GetStats counts stored items: "total_items" for everything, plus one
// entry per prefix.
func GetStats(ctx context.Context, s Store, prefixes ...string) (map[string]int, error) {
	keys, err := s.Keys(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	stats := map[string]int{"total_items": len(keys)}
	for _, prefix := range prefixes {
		stats[prefix] = 0
	}
	for _, k := range keys {
		for _, prefix := range prefixes {
			if strings.HasPrefix(k, prefix) {
				stats[prefix]++
			}
		}
	}
	return stats, nil
}

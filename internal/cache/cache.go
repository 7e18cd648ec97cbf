// Package cache keeps the last raw upstream payload per feed, with a TTL and
// a stale-tolerant mode for rate-limited upstreams.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/news"
	"github.com/deusflow/hknews/internal/storage"
)

// SchemaVersion is written into every entry. Entries with any other version
// are discarded on read.
const SchemaVersion = 1

// KeyPrefix namespaces cache entries in the shared store.
const KeyPrefix = "news_"

// ErrCorrupt marks an entry that could not be decoded or has an unknown
// schema version. Such entries are deleted and read as a miss.
var ErrCorrupt = errors.New("cache entry corrupt")

// Mode selects how entry age is judged.
type Mode string

const (
	ModeFreshOrFetch  Mode = "fresh-or-fetch"
	ModeStaleTolerant Mode = "stale-tolerant"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeFreshOrFetch, ModeStaleTolerant:
		return m, nil
	case "":
		return ModeFreshOrFetch, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", s)
	}
}

// Key identifies one feed: a kind plus an optional scope such as a region
// label or the "fallback" suffix.
type Key struct {
	Kind  news.Kind
	Scope string
}

func (k Key) String() string {
	if k.Scope == "" {
		return KeyPrefix + string(k.Kind)
	}
	return KeyPrefix + string(k.Kind) + "_" + k.Scope
}

// Entry is the persisted form of one payload.
type Entry struct {
	SchemaVersion int          `json:"schemaVersion"`
	Data          news.Payload `json:"data"`
	StoredAt      time.Time    `json:"storedAt"`
}

// Cache wraps a storage.Store. It holds no state of its own beyond config,
// so it is safe for concurrent use whenever the store is.
type Cache struct {
	store storage.Store
	ttl   time.Duration
	mode  Mode
	Now   func() time.Time
}

// New creates a cache. ttl <= 0 means entries never expire.
func New(store storage.Store, ttl time.Duration, mode Mode) *Cache {
	return &Cache{
		store: store,
		ttl:   ttl,
		mode:  mode,
		Now:   time.Now,
	}
}

func (c *Cache) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Get returns the entry under key. A missing entry yields (nil, nil). A
// corrupt entry is deleted and also yields (nil, nil) after logging.
func (c *Cache) Get(ctx context.Context, key Key) (*Entry, error) {
	raw, ok, err := c.store.Get(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}

	entry, err := decode(raw)
	if err != nil {
		logger.Warn("discarding cache entry", "key", key.String(), "error", err)
		if delErr := c.store.Delete(ctx, key.String()); delErr != nil {
			logger.Error("failed to delete corrupt cache entry", "key", key.String(), "error", delErr)
		}
		return nil, nil
	}
	return entry, nil
}

func decode(raw []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entry.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrCorrupt, entry.SchemaVersion)
	}
	return &entry, nil
}

// Put stores payload under key, stamped with the current time.
func (c *Cache) Put(ctx context.Context, key Key, payload news.Payload) error {
	entry := Entry{
		SchemaVersion: SchemaVersion,
		Data:          payload,
		StoredAt:      c.now().UTC(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.store.Put(ctx, key.String(), raw); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	return nil
}

// IsFresh reports whether entry can be served without calling upstream.
func (c *Cache) IsFresh(entry *Entry) bool {
	if entry == nil {
		return false
	}
	if c.mode == ModeStaleTolerant || c.ttl <= 0 {
		return true
	}
	age := c.now().Sub(entry.StoredAt)
	return age >= 0 && age < c.ttl
}

// Purge removes entries that fail to decode. It returns how many were removed.
func (c *Cache) Purge(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	removed := 0
	for _, k := range keys {
		raw, ok, err := c.store.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		if _, err := decode(raw); err != nil {
			if err := c.store.Delete(ctx, k); err != nil {
				return removed, fmt.Errorf("cache purge %s: %w", k, err)
			}
			removed++
		}
	}
	if removed > 0 {
		logger.Info("purged unreadable cache entries", "count", removed)
	}
	return removed, nil
}

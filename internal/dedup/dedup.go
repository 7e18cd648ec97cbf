// Package dedup remembers which headlines each display surface has already
// shown. It only flags items as seen; it never hides them.
package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/deusflow/hknews/internal/logger"
	"github.com/deusflow/hknews/internal/storage"
)

const (
	// Capacity is how many titles a surface remembers.
	Capacity = 100
	// KeyPrefix namespaces seen-title sets in the shared store.
	KeyPrefix = "seenTitles_"

	schemaVersion = 1
	// legacyKey held one global list before sets were split per surface.
	legacyKey = "seenTitles"
)

// Normalize strips punctuation and whitespace and case-folds, so
// "Hong Kong: rain!" and "hong kong rain" compare equal.
func Normalize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		if unicode.IsPunct(r) || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// set is a FIFO of normalized titles with O(1) membership.
type set struct {
	order  []string
	member map[string]struct{}
	loaded bool
	dirty  bool
}

func newSet() *set {
	return &set{member: make(map[string]struct{})}
}

// add appends title unless present. Re-adding does not move it, so the
// oldest insertion is always evicted first.
func (s *set) add(title string) {
	if _, ok := s.member[title]; ok {
		return
	}
	s.order = append(s.order, title)
	s.member[title] = struct{}{}
	for len(s.order) > Capacity {
		delete(s.member, s.order[0])
		s.order = s.order[1:]
	}
	s.dirty = true
}

type persisted struct {
	SchemaVersion int      `json:"schemaVersion"`
	Titles        []string `json:"titles"`
}

// Tracker holds one seen-title set per surface. Surfaces are written
// concurrently during the regional fan-out, so access is serialised.
type Tracker struct {
	store storage.Store
	mu    sync.Mutex
	sets  map[string]*set
}

func New(store storage.Store) *Tracker {
	return &Tracker{
		store: store,
		sets:  make(map[string]*set),
	}
}

func storeKey(surface string) string {
	return KeyPrefix + surface
}

func (t *Tracker) get(surface string) *set {
	s, ok := t.sets[surface]
	if !ok {
		s = newSet()
		t.sets[surface] = s
	}
	return s
}

// Load reads the persisted set for surface. It is a no-op once loaded. An
// unreadable or unknown-version document is discarded and the set starts empty.
func (t *Tracker) Load(ctx context.Context, surface string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.get(surface)
	if s.loaded {
		return nil
	}
	s.loaded = true

	raw, ok, err := t.store.Get(ctx, storeKey(surface))
	if err != nil {
		return fmt.Errorf("loading seen titles for %s: %w", surface, err)
	}
	if !ok {
		return nil
	}

	var p persisted
	if err := json.Unmarshal(raw, &p); err != nil || p.SchemaVersion != schemaVersion {
		logger.Warn("discarding seen-title set", "surface", surface, "error", err, "schemaVersion", p.SchemaVersion)
		if err := t.store.Delete(ctx, storeKey(surface)); err != nil {
			return fmt.Errorf("deleting seen titles for %s: %w", surface, err)
		}
		return nil
	}

	// the persisted list may predate the current capacity; keep the newest
	titles := p.Titles
	if len(titles) > Capacity {
		titles = titles[len(titles)-Capacity:]
	}
	for _, title := range titles {
		s.add(title)
	}
	s.dirty = false
	return nil
}

// IsSeen reports whether title was marked seen on surface.
func (t *Tracker) IsSeen(surface, title string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	_, ok := t.get(surface).member[Normalize(title)]
	return ok
}

// MarkSeen records title for surface, evicting the oldest entry when full.
// Titles that normalize to nothing are ignored.
func (t *Tracker) MarkSeen(surface, title string) {
	n := Normalize(title)
	if n == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.get(surface).add(n)
}

// Len returns how many titles surface currently remembers.
func (t *Tracker) Len(surface string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.get(surface).order)
}

// Save writes surface's set if it changed since the last load or save.
func (t *Tracker) Save(ctx context.Context, surface string) error {
	t.mu.Lock()
	s := t.get(surface)
	if !s.dirty {
		t.mu.Unlock()
		return nil
	}
	p := persisted{
		SchemaVersion: schemaVersion,
		Titles:        append([]string(nil), s.order...),
	}
	s.dirty = false
	t.mu.Unlock()

	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding seen titles for %s: %w", surface, err)
	}
	if err := t.store.Put(ctx, storeKey(surface), raw); err != nil {
		t.mu.Lock()
		s.dirty = true
		t.mu.Unlock()
		return fmt.Errorf("saving seen titles for %s: %w", surface, err)
	}
	return nil
}

// DropLegacy deletes the global seen-title list older versions kept. Its
// titles are not migrated because they carry no surface.
func (t *Tracker) DropLegacy(ctx context.Context) error {
	_, ok, err := t.store.Get(ctx, legacyKey)
	if err != nil {
		return fmt.Errorf("checking legacy seen titles: %w", err)
	}
	if !ok {
		return nil
	}
	logger.Info("dropping legacy global seen-title list")
	return t.store.Delete(ctx, legacyKey)
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deusflow/hknews/internal/logger"
)

// FileStore keeps all entries in memory and mirrors them to one JSON file.
type FileStore struct {
	filePath string
	items    map[string]json.RawMessage
	mu       sync.RWMutex
}

// OpenFile loads the store from filePath. A missing or empty file starts an
// empty store; an unreadable document is moved aside rather than failing.
func OpenFile(filePath string) (*FileStore, error) {
	fs := &FileStore{
		filePath: filePath,
		items:    make(map[string]json.RawMessage),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, &fs.items); err != nil {
		aside := fs.filePath + ".corrupt"
		logger.Warn("store file is corrupt, starting empty", "path", fs.filePath, "moved_to", aside, "error", err)
		fs.items = make(map[string]json.RawMessage)
		if err := os.Rename(fs.filePath, aside); err != nil {
			return fmt.Errorf("failed to move corrupt store file: %w", err)
		}
	}
	return nil
}

// save writes to a temp file and renames it over the old one. Caller holds mu.
func (fs *FileStore) save() error {
	data, err := json.MarshalIndent(fs.items, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if dir := filepath.Dir(fs.filePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store dir: %w", err)
		}
	}

	tmp := fs.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp, fs.filePath); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	v, ok := fs.items[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Put stores value, which must be a JSON document so the file on disk stays
// one readable object.
func (fs *FileStore) Put(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("value for %q is not valid JSON", key)
	}
	raw := json.RawMessage(append([]byte(nil), value...))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.items[key] = raw
	return fs.save()
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.items[key]; !ok {
		return nil
	}
	delete(fs.items, key)
	return fs.save()
}

func (fs *FileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var keys []string
	for k := range fs.items {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close is a no-op: every mutation is already on disk.
func (fs *FileStore) Close() error {
	return nil
}


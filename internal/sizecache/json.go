package sizecache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const cacheVersion = 2
const maxCacheBytes = 64 * 1024 * 1024

type cacheFile struct {
	Version int                   `json:"version"`
	Entries map[string]cacheEntry `json:"entries"`
}

type cacheEntry struct {
	AggregateSize uint64 `json:"size"`
	ModTime       int64  `json:"modTime"`
	ScannedAt     int64  `json:"scannedAt"`
	Partial       bool   `json:"partial,omitempty"`
	Filter        uint64 `json:"filter,omitempty"`
}

// JSONStore keeps entries in memory and writes them to a single JSON file on
// Flush and Close.
type JSONStore struct {
	*Memory
	path  string
	dirty atomic.Bool
	mu    sync.Mutex
}

var _ Store = (*JSONStore)(nil)

// OpenJSON loads the cache file at path. A missing file is an empty cache.
// When the file is unreadable, corrupt or from another version the returned
// store is empty but usable, and the error says why the contents were
// dropped.
func OpenJSON(path string) (*JSONStore, error) {
	store := &JSONStore{Memory: NewMemory(), path: path}
	entries, err := loadCacheFile(path)
	if err != nil {
		return store, err
	}
	store.reset(entries)
	return store, nil
}

func loadCacheFile(path string) (map[string]Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.Size() > maxCacheBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrCorrupt, path, maxCacheBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cached cacheFile
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if cached.Version != cacheVersion {
		return nil, fmt.Errorf("%w: %s has version %d", ErrCorrupt, path, cached.Version)
	}
	entries := make(map[string]Entry, len(cached.Entries))
	for path, entry := range cached.Entries {
		entries[path] = entry.toEntry(path)
	}
	return entries, nil
}

func (store *JSONStore) Path() string {
	return store.path
}

func (store *JSONStore) Store(entry Entry) error {
	if err := store.Memory.Store(entry); err != nil {
		return err
	}
	store.dirty.Store(true)
	return nil
}

func (store *JSONStore) Prune(prefix string) (int, error) {
	removed, err := store.Memory.Prune(prefix)
	if removed > 0 {
		store.dirty.Store(true)
	}
	return removed, err
}

// Flush writes the file if anything changed since the last write. The file
// is replaced atomically.
func (store *JSONStore) Flush() error {
	store.mu.Lock()
	defer store.mu.Unlock()
	if !store.dirty.Swap(false) {
		return nil
	}
	if err := store.save(); err != nil {
		store.dirty.Store(true)
		return err
	}
	return nil
}

func (store *JSONStore) Close() error {
	return store.Flush()
}

func (store *JSONStore) save() error {
	snapshot := store.snapshot("")
	entries := make(map[string]cacheEntry, len(snapshot))
	for _, entry := range snapshot {
		entries[entry.Path] = cacheEntry{
			AggregateSize: entry.AggregateSize,
			ModTime:       entry.ModTime.UnixNano(),
			ScannedAt:     entry.ScannedAt.UnixNano(),
			Partial:       entry.Partial,
			Filter:        entry.Filter,
		}
	}
	data, err := json.Marshal(cacheFile{Version: cacheVersion, Entries: entries})
	if err != nil {
		return err
	}
	if len(data) > maxCacheBytes {
		return fmt.Errorf("cache file would exceed %d bytes", maxCacheBytes)
	}
	if err := os.MkdirAll(filepath.Dir(store.path), 0o755); err != nil {
		return err
	}
	tmpPath := store.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmpPath, store.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

func (entry cacheEntry) toEntry(path string) Entry {
	return Entry{
		Path:          path,
		AggregateSize: entry.AggregateSize,
		ModTime:       timeFrom(entry.ModTime),
		ScannedAt:     timeFrom(entry.ScannedAt),
		Partial:       entry.Partial,
		Filter:        entry.Filter,
	}
}

func timeFrom(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value)
}

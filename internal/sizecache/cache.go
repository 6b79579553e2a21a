// Package sizecache stores directory aggregates between scans.
//
// Entries are keyed by absolute path and validated against the directory's
// modification time. A directory's own mtime does not change when something
// deep below it changes, so a valid entry can be stale. That approximation
// is what makes repeat scans cheap.
package sizecache

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrCorrupt = errors.New("cache data is corrupt")
	ErrLocked  = errors.New("cache directory is used by another process")
	ErrClosed  = errors.New("cache is closed")
)

// Entry is a cached aggregate for one directory.
type Entry struct {
	Path          string
	AggregateSize uint64
	// ModTime is the directory mtime observed when the aggregate was computed.
	ModTime   time.Time
	ScannedAt time.Time
	// Partial entries were computed from incomplete input and are never
	// reused.
	Partial bool
	// Filter is the digest of the walk options the aggregate was computed
	// with.
	Filter uint64
}

// Cache is what the aggregator needs. Implementations must allow concurrent
// use with different keys.
type Cache interface {
	Lookup(path string) (Entry, bool, error)
	Store(entry Entry) error
}

// Store is a Cache with maintenance operations for hosts.
type Store interface {
	Cache
	Len() int
	// Range calls fn for every entry at or below prefix, in path order,
	// until fn returns false. An empty prefix visits everything.
	Range(prefix string, fn func(Entry) bool) error
	// Prune removes every entry at or below prefix.
	Prune(prefix string) (int, error)
	Flush() error
	Close() error
}

// IsValid reports whether entry may be reused for a directory whose current
// modification time is current.
func IsValid(entry Entry, current time.Time) bool {
	return !entry.Partial && entry.ModTime.Equal(current)
}

// Policy adds host rules on top of IsValid.
type Policy struct {
	// MaxAge rejects entries scanned longer ago than this. Zero disables it.
	MaxAge time.Duration
	Filter uint64
}

func (policy Policy) Valid(entry Entry, current, now time.Time) bool {
	if !IsValid(entry, current) || entry.Filter != policy.Filter {
		return false
	}
	if policy.MaxAge > 0 && now.Sub(entry.ScannedAt) > policy.MaxAge {
		return false
	}
	return true
}

// within reports whether path is root or lies below it.
func within(root, path string) bool {
	if root == "" || root == path {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

package sizecache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"sizescope/internal/domain"
)

const (
	BackendMemory = "memory"
	BackendJSON   = "json"
	BackendLog    = "log"
)

const (
	MB                 = 1024 * 1024
	DefaultSegmentSize = 64 * MB
	jsonFileName       = "cache.json"
)

// Options selects and configures a backend.
type Options struct {
	// Backend is one of memory, json or log. Empty means log.
	Backend string
	// Dir holds the persisted cache. Empty means DefaultDir.
	Dir             string
	SegmentSize     int64
	Sync            bool
	CompactSchedule string
	Logger          zerolog.Logger
}

// DefaultDir is the per-user cache directory.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "sizescope")
}

// Open returns the configured store. When the backend cannot be opened it
// returns an in-memory store together with an error wrapping
// domain.ErrCacheUnavailable, so a scan can still run without persistence.
// A JSON file whose contents had to be dropped yields a usable empty store
// and the reason.
func Open(opts Options) (Store, error) {
	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemory(), nil
	case BackendJSON:
		store, err := OpenJSON(filepath.Join(dir, jsonFileName))
		if err != nil {
			return store, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
		}
		return store, nil
	case "", BackendLog:
		store, err := OpenLog(LogOptions{
			DirPath:         dir,
			SegmentSize:     opts.SegmentSize,
			Sync:            opts.Sync,
			CompactSchedule: opts.CompactSchedule,
			Logger:          opts.Logger,
		})
		if err != nil {
			return NewMemory(), fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)
		}
		return store, nil
	default:
		return NewMemory(), fmt.Errorf("%w: unknown backend %q", domain.ErrCacheUnavailable, opts.Backend)
	}
}

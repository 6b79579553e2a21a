package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"sizescope/internal/domain"
	"sizescope/internal/sizecache"
	"sizescope/internal/walker"
)

// FSScanner aggregates directory sizes, reusing cached aggregates where the
// directory mtime has not changed.
type FSScanner struct {
	mu       sync.RWMutex
	handles  map[string]*ScanHandle
	cache    sizecache.Cache
	inflight singleflight.Group

	logger     zerolog.Logger
	newWalker  func(walker.Options) walker.Walker
	resolve    func(string) (string, error)
	now        func() time.Time
	cacheErr   error
	progressAt int64
}

type Option func(*FSScanner)

func WithLogger(logger zerolog.Logger) Option {
	return func(scanner *FSScanner) { scanner.logger = logger }
}

// WithWalker replaces the filesystem walker, mostly for tests.
func WithWalker(fn func(walker.Options) walker.Walker) Option {
	return func(scanner *FSScanner) { scanner.newWalker = fn }
}

// WithResolver replaces symlink resolution used for cycle detection.
func WithResolver(fn func(string) (string, error)) Option {
	return func(scanner *FSScanner) { scanner.resolve = fn }
}

func WithClock(now func() time.Time) Option {
	return func(scanner *FSScanner) { scanner.now = now }
}

// WithCacheError records why the configured cache could not be opened. Every
// result then carries a cache-unavailable warning.
func WithCacheError(err error) Option {
	return func(scanner *FSScanner) { scanner.cacheErr = err }
}

// WithProgressInterval sets how many entries pass between progress updates.
func WithProgressInterval(n int64) Option {
	return func(scanner *FSScanner) {
		if n > 0 {
			scanner.progressAt = n
		}
	}
}

// NewFSScanner returns a scanner backed by cache. A nil cache disables
// caching.
func NewFSScanner(cache sizecache.Cache, opts ...Option) *FSScanner {
	scanner := &FSScanner{
		handles:    make(map[string]*ScanHandle),
		cache:      cache,
		logger:     zerolog.Nop(),
		newWalker:  func(opts walker.Options) walker.Walker { return walker.New(opts) },
		resolve:    filepath.EvalSymlinks,
		now:        time.Now,
		progressAt: 256,
	}
	for _, opt := range opts {
		opt(scanner)
	}
	return scanner
}

// Scan runs a scan to completion. The only error is domain.ErrPathNotFound
// for a root that cannot be read; everything else is reported as warnings.
func (scanner *FSScanner) Scan(ctx context.Context, req ScanRequest) (*domain.Result, error) {
	handle, err := scanner.Start(ctx, req)
	if err != nil {
		return nil, err
	}
	return handle.Wait(), nil
}

// Start validates the root and runs the scan in the background.
func (scanner *FSScanner) Start(ctx context.Context, req ScanRequest) (*ScanHandle, error) {
	run, root, err := scanner.prepare(req.RootPath, req.Options)
	if err != nil {
		return nil, err
	}
	scanCtx, cancel := context.WithCancel(ctx)
	handle := &ScanHandle{
		ID:       uuid.NewString(),
		RootPath: root.Path,
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan ScanProgress, 64),
	}
	run.progress = handle.progress
	scanner.register(handle)

	go func() {
		defer close(handle.done)
		defer close(handle.progress)
		defer scanner.unregister(handle.ID)
		defer cancel()
		handle.result = run.execute(scanCtx, handle.ID, root)
		progressNonBlocking(handle.progress, ScanProgress{
			Path:      root.Path,
			Scanned:   run.scanned.Load(),
			Completed: true,
		})
	}()
	return handle, nil
}

// Expand re-enumerates the directory at path, ignoring its own cache entry.
// Its children still use the cache, so this is how a cached entry is drilled
// into.
func (scanner *FSScanner) Expand(ctx context.Context, path string, opts ScanOptions) (*domain.Result, error) {
	run, root, err := scanner.prepare(path, opts)
	if err != nil {
		return nil, err
	}
	run.bypass = root.Path
	return run.execute(ctx, uuid.NewString(), root), nil
}

func (scanner *FSScanner) prepare(path string, opts ScanOptions) (*scanRun, domain.Node, error) {
	rootPath := cleanPath(path)
	if rootPath == "" {
		return nil, domain.Node{}, fmt.Errorf("%w: empty path", domain.ErrPathNotFound)
	}
	walk := scanner.newWalker(opts.walkerOptions())
	root, err := walk.Stat(rootPath)
	if err == nil && root.Symlink {
		var resolved string
		if resolved, err = scanner.resolve(rootPath); err == nil {
			root, err = walk.Stat(resolved)
		}
	}
	if err != nil {
		return nil, domain.Node{}, fmt.Errorf("%w: %s: %w", domain.ErrPathNotFound, rootPath, err)
	}
	return newScanRun(scanner, walk, opts), root, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"sizescope/internal/domain"
	"sizescope/internal/sizecache"
	"sizescope/internal/walker"
)

// recount holds exact per-directory totals gathered by an audit walk.
type recount struct {
	mu       sync.Mutex
	root     string
	sizes    map[string]uint64
	modTimes map[string]time.Time
	// tainted directories saw errors, so their totals are not exact.
	tainted  map[string]bool
	warnings []domain.Warning
}

func newRecount(root string) *recount {
	return &recount{
		root:     root,
		sizes:    make(map[string]uint64),
		modTimes: make(map[string]time.Time),
		tainted:  make(map[string]bool),
	}
}

func (count *recount) dir(path string, modTime time.Time) {
	count.mu.Lock()
	defer count.mu.Unlock()
	if _, ok := count.sizes[path]; !ok {
		count.sizes[path] = 0
	}
	count.modTimes[path] = modTime
}

// file adds size to every directory from the file's parent up to the root.
func (count *recount) file(path string, size int64) {
	count.mu.Lock()
	defer count.mu.Unlock()
	for dir := filepath.Dir(path); isWithin(count.root, dir); dir = filepath.Dir(dir) {
		count.sizes[dir] += uint64(max(size, 0))
		if dir == count.root {
			break
		}
	}
}

func (count *recount) fail(path string, err error) {
	count.mu.Lock()
	defer count.mu.Unlock()
	count.warnings = append(count.warnings, domain.WarningFor(path, err))
	for dir := path; isWithin(count.root, dir); dir = filepath.Dir(dir) {
		count.tainted[dir] = true
		if dir == count.root {
			break
		}
	}
}

// Audit recounts every directory below root exactly and compares the totals
// with valid cache entries. The mtime check cannot see changes deeper than a
// directory's direct children; this finds them.
func (scanner *FSScanner) Audit(ctx context.Context, root string, opts AuditOptions) (AuditResult, error) {
	started := scanner.now()
	if opts.Options.FollowSymlinks {
		return AuditResult{}, errors.New("audit does not follow symlinks")
	}
	walkOpts := opts.Options.walkerOptions()
	walk := scanner.newWalker(walkOpts)
	rootNode, err := walk.Stat(cleanPath(root))
	if err != nil {
		return AuditResult{}, fmt.Errorf("%w: %s: %w", domain.ErrPathNotFound, root, err)
	}
	if !rootNode.IsDir() {
		return AuditResult{RootPath: rootNode.Path}, nil
	}
	count := newRecount(rootNode.Path)
	if opts.Options.Workers == 1 {
		err = recountSequential(ctx, walk, count)
	} else {
		err = recountParallel(ctx, walkOpts, opts.Options.Workers, count)
	}
	if err != nil {
		return AuditResult{}, err
	}

	result := AuditResult{RootPath: rootNode.Path, Warnings: count.warnings}
	digest := walkOpts.Digest()
	if scanner.cache != nil {
		paths := make([]string, 0, len(count.sizes))
		for path := range count.sizes {
			paths = append(paths, path)
		}
		slices.Sort(paths)
		for _, path := range paths {
			if count.tainted[path] {
				continue
			}
			cached, ok, err := scanner.cache.Lookup(path)
			if err != nil {
				result.Warnings = append(result.Warnings, domain.WarningFor(path, fmt.Errorf("%w: %w", domain.ErrCacheUnavailable, err)))
				break
			}
			if !ok || cached.Partial || cached.Filter != digest {
				continue
			}
			result.Checked++
			actual := count.sizes[path]
			if cached.AggregateSize == actual {
				continue
			}
			finding := AuditFinding{Path: path, Cached: cached.AggregateSize, Actual: actual}
			if opts.Fix {
				err := scanner.cache.Store(sizecache.Entry{
					Path:          path,
					AggregateSize: actual,
					ModTime:       count.modTimes[path],
					ScannedAt:     scanner.now(),
					Filter:        digest,
				})
				finding.Fixed = err == nil
				if err != nil {
					scanner.logger.Warn().Err(err).Str("path", path).Msg("could not store corrected aggregate")
				}
			}
			result.Findings = append(result.Findings, finding)
		}
	}
	result.Duration = scanner.now().Sub(started)
	scanner.logger.Debug().
		Str("root", result.RootPath).
		Int("checked", result.Checked).
		Int("findings", len(result.Findings)).
		Msg("audit finished")
	return result, nil
}

func recountSequential(ctx context.Context, walk walker.Walker, count *recount) error {
	for node, err := range walker.Walk(ctx, walk, count.root) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			path := node.Path
			if path == "" {
				var pathErr *fs.PathError
				if errors.As(err, &pathErr) {
					path = pathErr.Path
				}
			}
			count.fail(path, err)
			continue
		}
		if node.IsDir() && !node.Symlink {
			count.dir(node.Path, node.ModTime)
			continue
		}
		count.file(node.Path, node.OwnSize)
	}
	return nil
}

func recountParallel(ctx context.Context, opts walker.Options, workers int, count *recount) error {
	filter := walker.NewFilter(opts)
	conf := &fastwalk.Config{Follow: false, NumWorkers: max(workers, 0)}
	err := fastwalk.Walk(conf, count.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			count.fail(path, err)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path != count.root && filter.Skip(path) {
			if entry.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			count.fail(path, err)
			return nil
		}
		if entry.IsDir() {
			count.dir(path, info.ModTime())
			return nil
		}
		count.file(path, info.Size())
		return nil
	})
	return err
}

package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"sizescope/internal/domain"
	"sizescope/internal/sizecache"
	"sizescope/internal/walker"
)

// scanRun holds the state of one scan. Aggregation is bottom-up: a
// directory's entry is built only after all of its children returned.
type scanRun struct {
	scanner  *FSScanner
	walker   walker.Walker
	opts     ScanOptions
	policy   sizecache.Policy
	digest   uint64
	keyspace string
	maxDepth int
	// sem limits extra goroutines. Nil means sequential.
	sem      *semaphore.Weighted
	bypass   string
	progress chan<- ScanProgress
	root     string
	now      time.Time

	scanned     atomic.Int64
	cacheFailed atomic.Bool
}

// outcome is the aggregate of one subtree together with what was observed
// while computing it.
type outcome struct {
	entry    *domain.Entry
	warnings []domain.Warning
	stats    domain.ScanStats
}

func (out *outcome) merge(child outcome) {
	out.entry.Children = append(out.entry.Children, child.entry)
	out.entry.AggregateSize += child.entry.AggregateSize
	out.entry.Partial = out.entry.Partial || child.entry.Partial
	out.entry.Cancelled = out.entry.Cancelled || child.entry.Cancelled
	out.warnings = append(out.warnings, child.warnings...)
	out.stats.Dirs += child.stats.Dirs
	out.stats.Files += child.stats.Files
	out.stats.CacheHits += child.stats.CacheHits
	out.stats.CacheMisses += child.stats.CacheMisses
	out.stats.CacheWrites += child.stats.CacheWrites
}

func (out *outcome) warn(warning domain.Warning) {
	out.warnings = append(out.warnings, warning)
}

// ancestry is the chain of resolved directory paths above a node. It is only
// tracked while following symlinks.
type ancestry struct {
	real   string
	parent *ancestry
}

func (anc *ancestry) contains(real string) bool {
	for node := anc; node != nil; node = node.parent {
		if node.real == real {
			return true
		}
	}
	return false
}

func newScanRun(scanner *FSScanner, walk walker.Walker, opts ScanOptions) *scanRun {
	digest := opts.walkerOptions().Digest()
	run := &scanRun{
		scanner:  scanner,
		walker:   walk,
		opts:     opts,
		digest:   digest,
		keyspace: strconv.FormatUint(digest, 16) + "\x00",
		policy:   sizecache.Policy{MaxAge: opts.MaxAge, Filter: digest},
		maxDepth: opts.maxDepth(),
	}
	if opts.Workers > 1 {
		run.sem = semaphore.NewWeighted(int64(opts.Workers - 1))
	}
	return run
}

func (run *scanRun) execute(ctx context.Context, id string, root domain.Node) *domain.Result {
	started := run.scanner.now()
	run.now = started
	run.root = root.Path
	logger := run.scanner.logger.With().Str("scan", id).Str("root", root.Path).Logger()
	logger.Debug().Bool("cache", run.opts.UseCache).Int("workers", run.opts.Workers).Msg("scan started")

	var anc *ancestry
	if run.opts.FollowSymlinks {
		real, err := run.scanner.resolve(root.Path)
		if err != nil {
			real = root.Path
		}
		anc = &ancestry{real: real}
	}
	out := run.aggregate(ctx, root, 0, anc)

	result := &domain.Result{
		ID:        id,
		Root:      out.entry,
		Warnings:  out.warnings,
		Cancelled: out.entry.Cancelled || ctx.Err() != nil,
		Stats:     out.stats,
		StartedAt: started,
		Duration:  run.scanner.now().Sub(started),
	}
	if err := run.scanner.cacheErr; err != nil {
		result.Warnings = append([]domain.Warning{domain.WarningFor("", err)}, result.Warnings...)
	}
	logger.Debug().
		Int64("bytes", result.Root.AggregateSize).
		Int64("dirs", result.Stats.Dirs).
		Int64("files", result.Stats.Files).
		Int64("cacheHits", result.Stats.CacheHits).
		Int("warnings", len(result.Warnings)).
		Bool("cancelled", result.Cancelled).
		Dur("took", result.Duration).
		Msg("scan finished")
	return result
}

func (run *scanRun) aggregate(ctx context.Context, node domain.Node, depth int, anc *ancestry) outcome {
	run.tick(node.Path)
	if !node.IsDir() {
		entry := &domain.Entry{Node: node, AggregateSize: node.OwnSize, Partial: node.Unknown}
		return outcome{entry: entry, stats: domain.ScanStats{Files: 1}}
	}
	if node.Unknown {
		out := outcome{entry: &domain.Entry{Node: node, Partial: true}}
		out.stats.Dirs = 1
		return out
	}
	if anc != nil && depth > 0 {
		real := filepath.Join(anc.real, node.Name)
		if node.Symlink {
			resolved, err := run.scanner.resolve(node.Path)
			if err != nil {
				out := outcome{entry: &domain.Entry{Node: node, Partial: true}}
				out.warn(domain.WarningFor(node.Path, err))
				return out
			}
			real = resolved
		}
		if anc.contains(real) {
			out := outcome{entry: &domain.Entry{Node: node}}
			out.warn(domain.Warning{
				Kind:    domain.WarnSymlinkCycle,
				Path:    node.Path,
				Message: fmt.Sprintf("links back to %s", real),
			})
			return out
		}
		anc = &ancestry{real: real, parent: anc}
	}
	return run.directory(ctx, node, depth, anc)
}

// directory computes a directory once per path even when several scans reach
// it at the same time. A result shared from a caller that was cancelled is
// recomputed if this caller is still running.
func (run *scanRun) directory(ctx context.Context, node domain.Node, depth int, anc *ancestry) outcome {
	key := run.keyspace + node.Path
	if node.Path == run.bypass {
		key = "expand\x00" + key
	}
	ch := run.scanner.inflight.DoChan(key, func() (any, error) {
		return run.computeDirectory(ctx, node, depth, anc), nil
	})
	select {
	case res := <-ch:
		out := res.Val.(outcome)
		if out.entry.Cancelled && ctx.Err() == nil {
			return run.computeDirectory(ctx, node, depth, anc)
		}
		if res.Shared {
			out = cloneOutcome(out)
		}
		return out
	case <-ctx.Done():
		out := outcome{entry: &domain.Entry{Node: node, Partial: true, Cancelled: true}}
		out.stats.Dirs = 1
		return out
	}
}

func cloneOutcome(out outcome) outcome {
	entry := *out.entry
	out.entry = &entry
	out.warnings = append([]domain.Warning(nil), out.warnings...)
	return out
}

func (run *scanRun) computeDirectory(ctx context.Context, node domain.Node, depth int, anc *ancestry) outcome {
	out := outcome{entry: &domain.Entry{Node: node}}
	out.stats.Dirs = 1

	if cached, ok := run.lookup(&out, node); ok {
		out.entry.AggregateSize = int64(cached.AggregateSize)
		out.entry.Cached = true
		out.stats.CacheHits++
		return out
	}
	if ctx.Err() != nil {
		out.entry.Partial = true
		out.entry.Cancelled = true
		return out
	}
	if depth >= run.maxDepth {
		out.entry.Partial = true
		out.warn(domain.Warning{
			Kind:    domain.WarnDepthLimit,
			Path:    node.Path,
			Message: fmt.Sprintf("not descended beyond depth %d", run.maxDepth),
		})
		run.store(&out)
		return out
	}

	var children []domain.Node
	for child, err := range run.walker.Children(ctx, node) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				out.entry.Cancelled = true
				out.entry.Partial = true
				break
			}
			if child.Path == "" {
				out.entry.Partial = true
				out.warn(domain.WarningFor(node.Path, err))
				break
			}
			child.Unknown = true
			out.warn(domain.WarningFor(child.Path, err))
		}
		children = append(children, child)
	}

	results := make([]outcome, len(children))
	var wg conc.WaitGroup
	for i, child := range children {
		if child.IsDir() && run.sem != nil && run.sem.TryAcquire(1) {
			wg.Go(func() {
				defer run.sem.Release(1)
				results[i] = run.aggregate(ctx, child, depth+1, anc)
			})
			continue
		}
		results[i] = run.aggregate(ctx, child, depth+1, anc)
	}
	wg.Wait()

	for _, child := range results {
		out.merge(child)
	}
	out.entry.AggregateSize += node.OwnSize
	if ctx.Err() != nil {
		out.entry.Cancelled = true
		out.entry.Partial = true
	}
	if !out.entry.Cancelled {
		run.store(&out)
	}
	return out
}

func (run *scanRun) lookup(out *outcome, node domain.Node) (sizecache.Entry, bool) {
	cache := run.scanner.cache
	if cache == nil || !run.opts.UseCache || node.Path == run.bypass {
		return sizecache.Entry{}, false
	}
	cached, ok, err := cache.Lookup(node.Path)
	if err != nil {
		run.cacheFailure(out, node.Path, err)
		return sizecache.Entry{}, false
	}
	if ok && run.policy.Valid(cached, node.ModTime, run.now) {
		return cached, true
	}
	out.stats.CacheMisses++
	return sizecache.Entry{}, false
}

func (run *scanRun) store(out *outcome) {
	cache := run.scanner.cache
	if cache == nil {
		return
	}
	entry := out.entry
	err := cache.Store(sizecache.Entry{
		Path:          entry.Path,
		AggregateSize: uint64(max(entry.AggregateSize, 0)),
		ModTime:       entry.ModTime,
		ScannedAt:     run.now,
		Partial:       entry.Partial,
		Filter:        run.digest,
	})
	if err != nil {
		run.cacheFailure(out, entry.Path, err)
		return
	}
	out.stats.CacheWrites++
}

// cacheFailure reports the first cache error of a run as a warning. Later
// ones are only logged.
func (run *scanRun) cacheFailure(out *outcome, path string, err error) {
	if run.cacheFailed.CompareAndSwap(false, true) {
		out.warn(domain.Warning{
			Kind:    domain.WarnCacheUnavailable,
			Path:    path,
			Message: err.Error(),
		})
	}
	run.scanner.logger.Debug().Err(err).Str("path", path).Msg("cache access failed")
}

func (run *scanRun) tick(current string) {
	scanned := run.scanned.Add(1)
	if scanned%run.scanner.progressAt == 0 {
		progressNonBlocking(run.progress, ScanProgress{Path: run.root, Scanned: scanned, Current: current})
	}
}

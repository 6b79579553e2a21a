package services

import (
	"runtime"
	"time"

	"sizescope/internal/walker"
)

const DefaultMaxDepth = 4096

type ScanRequest struct {
	RootPath string
	Options  ScanOptions
}

type ScanOptions struct {
	FollowSymlinks bool
	// Workers bounds the goroutines aggregating sibling directories. One or
	// less scans sequentially.
	Workers int
	// UseCache reuses valid cached aggregates. Aggregates are written back
	// either way, so a scan without it refreshes the cache.
	UseCache      bool
	IncludeHidden bool
	Exclude       []string
	// MaxDepth stops descent below this many levels under the root.
	MaxDepth int
	// MaxAge rejects cached aggregates older than this. Zero disables it.
	MaxAge time.Duration
}

func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Workers:       runtime.NumCPU(),
		UseCache:      true,
		IncludeHidden: true,
		MaxDepth:      DefaultMaxDepth,
	}
}

func (opts ScanOptions) walkerOptions() walker.Options {
	return walker.Options{
		FollowSymlinks: opts.FollowSymlinks,
		IncludeHidden:  opts.IncludeHidden,
		Exclude:        opts.Exclude,
	}
}

func (opts ScanOptions) maxDepth() int {
	if opts.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return opts.MaxDepth
}

type AuditOptions struct {
	Options ScanOptions
	// Fix stores the recounted aggregate for every mismatch.
	Fix bool
}

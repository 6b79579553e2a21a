// Package report orders aggregate trees for display. Orders are computed per
// directory on first request, and directories whose size came from the cache
// are expanded the first time someone drills into them.
package report

import (
	"context"
	"iter"
	"path/filepath"
	"strings"
	"sync"

	"github.com/armon/go-radix"
	"github.com/rs/zerolog"

	"sizescope/internal/domain"
)

// Expander lists the children of a directory that was served from the
// cache.
type Expander interface {
	Expand(ctx context.Context, path string) (*domain.Result, error)
}

type ExpandFunc func(ctx context.Context, path string) (*domain.Result, error)

func (fn ExpandFunc) Expand(ctx context.Context, path string) (*domain.Result, error) {
	return fn(ctx, path)
}

type sortKey struct {
	entry *domain.Entry
	mode  domain.SortMode
}

// Report is a read-only view over a scan result. It never modifies the
// result; expansions and orders are kept on the side. Safe for concurrent
// use.
type Report struct {
	mu       sync.Mutex
	result   *domain.Result
	expander Expander
	logger   zerolog.Logger

	index    *radix.Tree
	expanded map[*domain.Entry][]*domain.Entry
	sorted   map[sortKey][]*domain.Entry
	drift    map[string]int64
	warnings []domain.Warning
}

type Option func(*Report)

func WithExpander(expander Expander) Option {
	return func(r *Report) { r.expander = expander }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Report) { r.logger = logger }
}

func New(result *domain.Result, opts ...Option) *Report {
	r := &Report{
		result:   result,
		logger:   zerolog.Nop(),
		index:    radix.New(),
		expanded: make(map[*domain.Entry][]*domain.Entry),
		sorted:   make(map[sortKey][]*domain.Entry),
		drift:    make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	if result != nil {
		r.warnings = append(r.warnings, result.Warnings...)
		if result.Root != nil {
			r.indexTree(result.Root)
		}
	}
	return r
}

func (r *Report) Result() *domain.Result {
	return r.result
}

func (r *Report) Root() *domain.Entry {
	if r.result == nil {
		return nil
	}
	return r.result.Root
}

// Children returns the children of entry in the given order. A directory
// served from the cache is expanded first when an expander is configured.
func (r *Report) Children(ctx context.Context, entry *domain.Entry, mode domain.SortMode) ([]*domain.Entry, error) {
	if entry == nil || !entry.IsDir() {
		return nil, nil
	}
	key := sortKey{entry: entry, mode: mode}
	r.mu.Lock()
	if sorted, ok := r.sorted[key]; ok {
		r.mu.Unlock()
		return sorted, nil
	}
	r.mu.Unlock()

	children, err := r.childrenOf(ctx, entry)
	if err != nil {
		return nil, err
	}
	sorted := Sorted(children, mode)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sorted[key]; ok {
		return existing, nil
	}
	r.sorted[key] = sorted
	return sorted, nil
}

// SortedChildren yields the children of entry with their aggregate sizes.
// Expansion failures end the sequence early and are kept as warnings.
func (r *Report) SortedChildren(ctx context.Context, entry *domain.Entry, mode domain.SortMode) iter.Seq2[*domain.Entry, int64] {
	return func(yield func(*domain.Entry, int64) bool) {
		children, err := r.Children(ctx, entry, mode)
		if err != nil {
			r.addWarning(domain.WarningFor(entry.Path, err))
			return
		}
		for _, child := range children {
			if !yield(child, child.AggregateSize) {
				return
			}
		}
	}
}

func (r *Report) childrenOf(ctx context.Context, entry *domain.Entry) ([]*domain.Entry, error) {
	if !entry.Cached || len(entry.Children) > 0 || r.expander == nil {
		return entry.Children, nil
	}
	r.mu.Lock()
	children, ok := r.expanded[entry]
	r.mu.Unlock()
	if ok {
		return children, nil
	}

	expansion, err := r.expander.Expand(ctx, entry.Path)
	if err != nil {
		return nil, err
	}
	children = expansion.Root.Children
	r.logger.Debug().Str("path", entry.Path).Int("children", len(children)).Msg("expanded cached entry")

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.expanded[entry]; ok {
		return existing, nil
	}
	r.warnings = append(r.warnings, expansion.Warnings...)
	if expansion.Cancelled {
		return children, nil
	}
	r.expanded[entry] = children
	if diff := expansion.Root.AggregateSize - entry.AggregateSize; diff != 0 {
		r.drift[entry.Path] = diff
	}
	for _, child := range children {
		r.indexTree(child)
	}
	return children, nil
}

// Lookup finds the entry for path among the entries seen so far.
func (r *Report) Lookup(path string) (*domain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found, ok := r.index.Get(filepath.Clean(path))
	if !ok {
		return nil, false
	}
	return found.(*domain.Entry), true
}

// Nearest returns the deepest known entry at or above path.
func (r *Report) Nearest(path string) (*domain.Entry, bool) {
	path = filepath.Clean(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	candidate := path
	for candidate != "" {
		key, found, ok := r.index.LongestPrefix(candidate)
		if !ok {
			return nil, false
		}
		if key == path || isAncestor(key, path) {
			return found.(*domain.Entry), true
		}
		candidate = key[:len(key)-1]
	}
	return nil, false
}

// Drift reports how far a cached aggregate was from the sum of its children
// when it was expanded. Positive means the directory grew.
func (r *Report) Drift(path string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	diff, ok := r.drift[filepath.Clean(path)]
	return diff, ok
}

// Flags summarizes the state of entry: ? unknown, ~ partial, ! cancelled,
// + drift, * cached.
func (r *Report) Flags(entry *domain.Entry) string {
	if entry == nil {
		return ""
	}
	var b strings.Builder
	if entry.Unknown {
		b.WriteByte('?')
	}
	if entry.Partial && !entry.Cancelled {
		b.WriteByte('~')
	}
	if entry.Cancelled {
		b.WriteByte('!')
	}
	if _, drifted := r.Drift(entry.Path); drifted {
		b.WriteByte('+')
	}
	if entry.Cached {
		b.WriteByte('*')
	}
	return b.String()
}

func (r *Report) Warnings() []domain.Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Warning(nil), r.warnings...)
}

func (r *Report) addWarning(warning domain.Warning) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, warning)
}

// indexTree adds entry and its known descendants to the path index. The
// caller holds r.mu or has not shared r yet.
func (r *Report) indexTree(entry *domain.Entry) {
	stack := []*domain.Entry{entry}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		r.index.Insert(next.Path, next)
		stack = append(stack, next.Children...)
	}
}

func isAncestor(dir, path string) bool {
	if strings.HasSuffix(dir, string(filepath.Separator)) {
		return strings.HasPrefix(path, dir)
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

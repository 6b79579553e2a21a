package walker

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	ignore "github.com/sabhiram/go-gitignore"
)

// Options controls what a walker reports.
type Options struct {
	FollowSymlinks bool
	IncludeHidden  bool
	// Exclude holds gitignore-style patterns matched against absolute paths.
	Exclude []string
}

// Digest identifies the option set. Aggregates computed under different
// options are not interchangeable. The default options digest to 0.
func (opts Options) Digest() uint64 {
	patterns := cleanPatterns(opts.Exclude)
	if !opts.FollowSymlinks && opts.IncludeHidden && len(patterns) == 0 {
		return 0
	}
	var b strings.Builder
	b.WriteString(strconv.FormatBool(opts.FollowSymlinks))
	b.WriteByte('|')
	b.WriteString(strconv.FormatBool(opts.IncludeHidden))
	for _, pattern := range patterns {
		b.WriteByte(0)
		b.WriteString(pattern)
	}
	return xxhash.Sum64String(b.String())
}

// Filter decides which entries are left out of a walk.
type Filter struct {
	includeHidden bool
	ignore        *ignore.GitIgnore
}

func NewFilter(opts Options) *Filter {
	filter := &Filter{includeHidden: opts.IncludeHidden}
	if patterns := cleanPatterns(opts.Exclude); len(patterns) > 0 {
		filter.ignore = ignore.CompileIgnoreLines(patterns...)
	}
	return filter
}

// Skip reports whether the entry at path should be left out.
func (filter *Filter) Skip(path string) bool {
	if filter == nil {
		return false
	}
	if !filter.includeHidden && isHidden(filepath.Base(path)) {
		return true
	}
	if filter.ignore == nil {
		return false
	}
	return filter.ignore.MatchesPath(strings.TrimPrefix(filepath.ToSlash(path), "/"))
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func cleanPatterns(patterns []string) []string {
	cleaned := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		cleaned = append(cleaned, pattern)
	}
	slices.Sort(cleaned)
	return slices.Compact(cleaned)
}

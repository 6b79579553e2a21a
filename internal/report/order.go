package report

import (
	"cmp"
	"slices"
	"strings"

	"sizescope/internal/domain"
)

// Compare returns the ordering for mode. Every order falls back to the path,
// so the result never depends on the order children were computed in.
func Compare(mode domain.SortMode) func(a, b *domain.Entry) int {
	switch mode {
	case domain.SortByName:
		return func(a, b *domain.Entry) int {
			if c := cmp.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
				return c
			}
			return cmp.Compare(a.Path, b.Path)
		}
	case domain.SortByMod:
		return func(a, b *domain.Entry) int {
			if c := b.ModTime.Compare(a.ModTime); c != 0 {
				return c
			}
			return cmp.Compare(a.Path, b.Path)
		}
	default:
		return func(a, b *domain.Entry) int {
			if c := cmp.Compare(b.AggregateSize, a.AggregateSize); c != 0 {
				return c
			}
			return cmp.Compare(a.Path, b.Path)
		}
	}
}

// Sorted returns a sorted copy of entries.
func Sorted(entries []*domain.Entry, mode domain.SortMode) []*domain.Entry {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, Compare(mode))
	return sorted
}

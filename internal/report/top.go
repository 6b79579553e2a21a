package report

import (
	"context"

	"sizescope/internal/domain"
)

// Branch is one entry of a Top hierarchy.
type Branch struct {
	Entry    *domain.Entry
	Children []Branch
	// Omitted counts the children left out by the per-level limit.
	Omitted int
	// OmittedSize is their combined aggregate.
	OmittedSize int64
}

// Top returns the n first children of the root in mode order, and the n
// first of each of those, down to levels levels.
func (r *Report) Top(ctx context.Context, levels, n int, mode domain.SortMode) Branch {
	root := r.Root()
	if root == nil {
		return Branch{}
	}
	return r.branch(ctx, root, levels, n, mode)
}

func (r *Report) branch(ctx context.Context, entry *domain.Entry, levels, n int, mode domain.SortMode) Branch {
	branch := Branch{Entry: entry}
	if levels <= 0 || !entry.IsDir() || ctx.Err() != nil {
		return branch
	}
	children, err := r.Children(ctx, entry, mode)
	if err != nil {
		r.addWarning(domain.WarningFor(entry.Path, err))
		return branch
	}
	limit := len(children)
	if n > 0 && n < limit {
		limit = n
	}
	for _, child := range children[:limit] {
		branch.Children = append(branch.Children, r.branch(ctx, child, levels-1, n, mode))
	}
	for _, child := range children[limit:] {
		branch.Omitted++
		branch.OmittedSize += child.AggregateSize
	}
	return branch
}

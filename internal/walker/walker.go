// Package walker enumerates filesystem entries for the aggregator.
package walker

import (
	"context"
	"iter"

	"sizescope/internal/domain"
)

// Walker reports filesystem metadata. Implementations must be safe for
// concurrent use.
//
// Children yields the entries of dir lazily. When the directory itself cannot
// be listed the sequence yields a zero Node with the error and stops. When a
// single entry cannot be read it yields that entry with Unknown set together
// with the error, and continues.
type Walker interface {
	Stat(path string) (domain.Node, error)
	Children(ctx context.Context, dir domain.Node) iter.Seq2[domain.Node, error]
}

// Walk yields root and everything below it, depth first, using an explicit
// stack. Directory symlinks are never descended.
func Walk(ctx context.Context, walker Walker, root string) iter.Seq2[domain.Node, error] {
	return func(yield func(domain.Node, error) bool) {
		node, err := walker.Stat(root)
		if !yield(node, err) || err != nil || !node.IsDir() {
			return
		}
		stack := []domain.Node{node}
		for len(stack) > 0 {
			if ctx.Err() != nil {
				yield(domain.Node{}, ctx.Err())
				return
			}
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			var subdirs []domain.Node
			for child, err := range walker.Children(ctx, dir) {
				if !yield(child, err) {
					return
				}
				if err == nil && child.IsDir() && !child.Symlink {
					subdirs = append(subdirs, child)
				}
			}
			// reversed so the first listed directory is visited first
			for i := len(subdirs) - 1; i >= 0; i-- {
				stack = append(stack, subdirs[i])
			}
		}
	}
}

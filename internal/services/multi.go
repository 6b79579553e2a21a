package services

import (
	"context"

	"github.com/sourcegraph/conc/pool"

	"sizescope/internal/domain"
)

// ScanAll scans several roots with at most parallel scans at a time. Results
// are in the order of roots; a root that failed has a nil result and its
// error is part of the returned error.
func ScanAll(ctx context.Context, scanner Scanner, roots []string, opts ScanOptions, parallel int) ([]*domain.Result, error) {
	results := make([]*domain.Result, len(roots))
	if parallel <= 0 {
		parallel = 1
	}
	p := pool.New().WithMaxGoroutines(parallel).WithContext(ctx)
	for i, root := range roots {
		p.Go(func(ctx context.Context) error {
			result, err := scanner.Scan(ctx, ScanRequest{RootPath: root, Options: opts})
			if err != nil {
				return err
			}
			results[i] = result
			return nil
		})
	}
	return results, p.Wait()
}

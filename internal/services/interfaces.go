package services

import (
	"context"

	"sizescope/internal/domain"
)

type Scanner interface {
	Scan(ctx context.Context, req ScanRequest) (*domain.Result, error)
}

// Expander re-enumerates a single directory whose aggregate was served from
// the cache.
type Expander interface {
	Expand(ctx context.Context, path string, opts ScanOptions) (*domain.Result, error)
}

type ScanStarter interface {
	Start(ctx context.Context, req ScanRequest) (*ScanHandle, error)
}

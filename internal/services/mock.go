package services

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sizescope/internal/domain"
)

// MockScanner returns a fixed two-level tree after a short delay.
type MockScanner struct {
	Delay time.Duration
}

func NewMockScanner() *MockScanner {
	return &MockScanner{Delay: 350 * time.Millisecond}
}

func (scanner *MockScanner) Scan(ctx context.Context, req ScanRequest) (*domain.Result, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		return &domain.Result{Root: mockTree(req.RootPath), Cancelled: true, StartedAt: start}, nil
	case <-time.After(scanner.Delay):
	}
	return &domain.Result{
		ID:        uuid.NewString(),
		Root:      mockTree(req.RootPath),
		StartedAt: start,
		Duration:  time.Since(start),
	}, nil
}

// Start runs Scan in the background behind a handle, like FSScanner.Start.
func (scanner *MockScanner) Start(ctx context.Context, req ScanRequest) (*ScanHandle, error) {
	scanCtx, cancel := context.WithCancel(ctx)
	handle := &ScanHandle{
		ID:       uuid.NewString(),
		RootPath: cleanPath(req.RootPath),
		cancel:   cancel,
		done:     make(chan struct{}),
		progress: make(chan ScanProgress, 4),
	}
	go func() {
		defer close(handle.done)
		defer close(handle.progress)
		defer cancel()
		progressNonBlocking(handle.progress, ScanProgress{Path: handle.RootPath, Scanned: 1, Current: handle.RootPath})
		result, _ := scanner.Scan(scanCtx, req)
		result.ID = handle.ID
		handle.result = result
	}()
	return handle, nil
}

func (scanner *MockScanner) Expand(ctx context.Context, path string, opts ScanOptions) (*domain.Result, error) {
	return scanner.Scan(ctx, ScanRequest{RootPath: path, Options: opts})
}

func mockTree(root string) *domain.Entry {
	root = cleanPath(root)
	file := func(dir, name string, size int64) *domain.Entry {
		return &domain.Entry{
			Node:          domain.Node{Path: filepath.Join(dir, name), Name: name, Type: domain.NodeFile, OwnSize: size},
			AggregateSize: size,
		}
	}
	docs := &domain.Entry{
		Node:     domain.Node{Path: filepath.Join(root, "docs"), Name: "docs", Type: domain.NodeDir},
		Children: []*domain.Entry{file(filepath.Join(root, "docs"), "guide.pdf", 4096), file(filepath.Join(root, "docs"), "notes.txt", 512)},
	}
	docs.AggregateSize = 4096 + 512
	top := &domain.Entry{
		Node:     domain.Node{Path: root, Name: filepath.Base(root), Type: domain.NodeDir},
		Children: []*domain.Entry{docs, file(root, "video.mp4", 1<<20)},
	}
	top.AggregateSize = docs.AggregateSize + 1<<20
	return top
}

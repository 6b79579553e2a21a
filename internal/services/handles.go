package services

import (
	"context"
	"errors"
	"fmt"

	"sizescope/internal/domain"
)

var ErrScanNotFound = errors.New("scan not found")

// ScanHandle tracks a scan started with Start.
type ScanHandle struct {
	ID       string
	RootPath string

	cancel   context.CancelFunc
	done     chan struct{}
	progress chan ScanProgress
	result   *domain.Result
}

// Wait blocks until the scan ends and returns its result. A cancelled scan
// still returns a result, flagged Cancelled.
func (handle *ScanHandle) Wait() *domain.Result {
	<-handle.done
	return handle.result
}

func (handle *ScanHandle) Done() <-chan struct{} {
	return handle.done
}

// Progress delivers best-effort updates and is closed when the scan ends.
func (handle *ScanHandle) Progress() <-chan ScanProgress {
	return handle.progress
}

// Cancel stops the scan. It is safe to call more than once and after the
// scan ended.
func (handle *ScanHandle) Cancel() {
	handle.cancel()
}

func (scanner *FSScanner) register(handle *ScanHandle) {
	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	scanner.handles[handle.ID] = handle
}

func (scanner *FSScanner) unregister(id string) {
	scanner.mu.Lock()
	defer scanner.mu.Unlock()
	delete(scanner.handles, id)
}

// Handle returns the running scan with the given id.
func (scanner *FSScanner) Handle(id string) (*ScanHandle, error) {
	scanner.mu.RLock()
	defer scanner.mu.RUnlock()
	handle, ok := scanner.handles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	return handle, nil
}

// Cancel stops the running scan with the given id and reports whether one
// was found.
func (scanner *FSScanner) Cancel(id string) bool {
	handle, err := scanner.Handle(id)
	if err != nil {
		return false
	}
	handle.Cancel()
	return true
}

// Running returns the ids of scans that have not finished.
func (scanner *FSScanner) Running() []string {
	scanner.mu.RLock()
	defer scanner.mu.RUnlock()
	ids := make([]string, 0, len(scanner.handles))
	for id := range scanner.handles {
		ids = append(ids, id)
	}
	return ids
}

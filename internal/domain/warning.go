package domain

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrPathNotFound     = errors.New("path not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

type WarningKind string

const (
	WarnPermissionDenied WarningKind = "permission-denied"
	WarnNotFound         WarningKind = "not-found"
	WarnUnreadable       WarningKind = "unreadable"
	WarnCacheUnavailable WarningKind = "cache-unavailable"
	WarnSymlinkCycle     WarningKind = "symlink-cycle"
	WarnDepthLimit       WarningKind = "depth-limit"
)

// Warning is a non-fatal problem met during a scan.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Path    string      `json:"path"`
	Message string      `json:"message"`
}

func (warning Warning) String() string {
	return fmt.Sprintf("%s: %s: %s", warning.Kind, warning.Path, warning.Message)
}

// WarningFor classifies a filesystem error. The path of a *fs.PathError wins
// over fallback.
func WarningFor(fallback string, err error) Warning {
	path := fallback
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Path != "" {
		path = pathErr.Path
	}
	kind := WarnUnreadable
	switch {
	case errors.Is(err, fs.ErrPermission), errors.Is(err, ErrPermissionDenied):
		kind = WarnPermissionDenied
	case errors.Is(err, fs.ErrNotExist):
		kind = WarnNotFound
	case errors.Is(err, ErrCacheUnavailable):
		kind = WarnCacheUnavailable
	}
	return Warning{Kind: kind, Path: path, Message: err.Error()}
}

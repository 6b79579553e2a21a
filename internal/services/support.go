package services

import (
	"path/filepath"
	"strings"
)

type ScanProgress struct {
	Path       string
	Scanned    int64
	Completed  bool
	ErrMessage string
	Current    string
}

func progressNonBlocking(ch chan<- ScanProgress, msg ScanProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

func isWithin(root, path string) bool {
	if root == path {
		return true
	}
	if strings.HasSuffix(root, string(filepath.Separator)) {
		return strings.HasPrefix(path, root)
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}

func cleanPath(path string) string {
	if path == "" {
		return path
	}
	clean := filepath.Clean(path)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean
	}
	return abs
}

package ui

import (
	"sizescope/internal/domain"
	"sizescope/internal/services"
)

type startScanMsg struct{}

type scanResultMsg struct {
	id     string
	result *domain.Result
}

type scanProgressMsg struct {
	id       string
	progress services.ScanProgress
}

// loadedMsg reports that a cached directory's children were fetched.
type loadedMsg struct {
	path  string
	enter bool
	err   error
}

package services

import (
	"time"

	"sizescope/internal/domain"
)

// AuditFinding is a directory whose cached aggregate differs from a recount.
type AuditFinding struct {
	Path   string `json:"path"`
	Cached uint64 `json:"cached"`
	Actual uint64 `json:"actual"`
	Fixed  bool   `json:"fixed"`
}

type AuditResult struct {
	RootPath string           `json:"root"`
	Checked  int              `json:"checked"`
	Findings []AuditFinding   `json:"findings"`
	Warnings []domain.Warning `json:"warnings,omitempty"`
	Duration time.Duration    `json:"duration"`
}

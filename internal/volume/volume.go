// Package volume reports capacity of the filesystem holding a path.
package volume

import "errors"

// Usage is in bytes. Used counts blocks not available to anyone, so Used +
// Free can be less than Total on filesystems with reserved blocks.
type Usage struct {
	Total uint64 `json:"total"`
	Free  uint64 `json:"free"`
	Used  uint64 `json:"used"`
}

// Percent returns Used as a percentage of Total.
func (u Usage) Percent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Used) / float64(u.Total) * 100
}

var ErrUnsupported = errors.ErrUnsupported

//go:build !(linux || darwin || freebsd)

package volume

import "fmt"

func Of(path string) (Usage, error) {
	return Usage{}, fmt.Errorf("statfs %s: %w", path, ErrUnsupported)
}

//go:build linux || darwin || freebsd

package volume

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Of returns the usage of the filesystem containing path.
func Of(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize) //nolint:gosec
	total := uint64(st.Blocks) * bsize
	free := uint64(st.Bavail) * bsize
	used := total - uint64(st.Bfree)*bsize
	return Usage{Total: total, Free: free, Used: used}, nil
}

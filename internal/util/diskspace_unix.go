//go:build !windows

package util

import "syscall"

// FreeDiskGB reports the space available to unprivileged writers at
// path, in gigabytes.
func FreeDiskGB(path string) (float64, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return float64(stat.Bavail*uint64(stat.Bsize)) / (1024 * 1024 * 1024), nil
}

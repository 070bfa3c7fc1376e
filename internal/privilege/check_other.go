//go:build !windows

package privilege

import "golang.org/x/sys/unix"

// IsRunningAsRoot returns true if the effective UID is 0.
func IsRunningAsRoot() bool {
	return unix.Geteuid() == 0
}

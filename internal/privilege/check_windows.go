//go:build windows

package privilege

// IsRunningAsRoot is always false on Windows, which has no uid 0. Processes
// owned by an account named "root" are therefore always protected.
func IsRunningAsRoot() bool {
	return false
}

//go:build !windows

package killgate

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/paolino/mcp-memory-server/internal/process"
)

// OSSignaler delivers signals with kill(2).
type OSSignaler struct{}

func (OSSignaler) Signal(pid int, sig Signal) error {
	s := unix.SIGTERM
	if sig == SigKill {
		s = unix.SIGKILL
	}

	err := unix.Kill(pid, s)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.ESRCH):
		return fmt.Errorf("%w: %v", process.ErrNotFound, err)
	case errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %v", process.ErrAccessDenied, err)
	default:
		return err
	}
}

//go:build windows

package killgate

import (
	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/paolino/mcp-memory-server/internal/process"
)

// OSSignaler terminates processes through gopsutil. Windows has no signals,
// so both SIGTERM and SIGKILL end the process.
type OSSignaler struct{}

func (OSSignaler) Signal(pid int, sig Signal) error {
	p, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return process.Classify(err)
	}
	if sig == SigKill {
		return process.Classify(p.Kill())
	}
	return process.Classify(p.Terminate())
}

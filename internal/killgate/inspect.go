package killgate

import (
	"context"
	"fmt"
	"math"

	"github.com/paolino/mcp-memory-server/internal/process"
)

// PsInspector resolves PIDs through gopsutil.
type PsInspector struct{}

// Inspect opens pid and reads its name and owner.
func (PsInspector) Inspect(ctx context.Context, pid int) (Target, error) {
	if pid > math.MaxInt32 {
		return Target{}, fmt.Errorf("%w: pid %d", process.ErrNotFound, pid)
	}
	h, err := process.Open(ctx, int32(pid))
	if err != nil {
		return Target{}, err
	}
	name, err := h.Name(ctx)
	if err != nil {
		return Target{}, process.Classify(err)
	}
	user, err := h.Username(ctx)
	if err != nil {
		return Target{}, process.Classify(err)
	}
	return Target{Name: name, Username: user}, nil
}

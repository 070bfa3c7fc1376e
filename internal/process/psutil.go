package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// PsLister enumerates processes through gopsutil.
type PsLister struct{}

// NewPsLister creates a gopsutil-backed Lister.
func NewPsLister() *PsLister {
	return &PsLister{}
}

// Processes returns a fresh handle for every visible process.
func (l *PsLister) Processes(ctx context.Context) ([]Handle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}

	// total RAM is read once per pass and shared by its handles
	var total uint64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		total = vm.Total
	}

	handles := make([]Handle, 0, len(procs))
	for _, p := range procs {
		handles = append(handles, &psHandle{proc: p, totalMem: total})
	}
	return handles, nil
}

// Open returns a handle for a single PID or ErrNotFound.
func Open(ctx context.Context, pid int32) (Handle, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, Classify(err)
	}
	var total uint64
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		total = vm.Total
	}
	return &psHandle{proc: p, totalMem: total}, nil
}

// Classify maps gopsutil and OS errors onto ErrNotFound / ErrAccessDenied.
// Other errors are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, process.ErrorProcessNotRunning), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	default:
		return err
	}
}

type psHandle struct {
	proc     *process.Process
	totalMem uint64
}

func (h *psHandle) PID() int32 {
	return h.proc.Pid
}

func (h *psHandle) Name(ctx context.Context) (string, error) {
	name, err := h.proc.NameWithContext(ctx)
	return name, Classify(err)
}

// Username falls back to the numeric uid when the account has no passwd entry.
func (h *psHandle) Username(ctx context.Context) (string, error) {
	username, err := h.proc.UsernameWithContext(ctx)
	if err == nil {
		return username, nil
	}
	uids, uidErr := h.proc.UidsWithContext(ctx)
	if uidErr != nil || len(uids) == 0 {
		return "", Classify(err)
	}
	return strconv.Itoa(int(uids[0])), nil
}

func (h *psHandle) RSS(ctx context.Context) (uint64, error) {
	info, err := h.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, Classify(err)
	}
	if info == nil {
		return 0, nil
	}
	return info.RSS, nil
}

func (h *psHandle) MemoryPercent(ctx context.Context) (float64, error) {
	if h.totalMem == 0 {
		pct, err := h.proc.MemoryPercentWithContext(ctx)
		return float64(pct), Classify(err)
	}
	rss, err := h.RSS(ctx)
	if err != nil {
		return 0, err
	}
	return 100 * float64(rss) / float64(h.totalMem), nil
}

// CPUPercent is the lifetime average of the process (CPU time / wall time
// since creation). No sample is carried between calls.
func (h *psHandle) CPUPercent(ctx context.Context) (float64, error) {
	pct, err := h.proc.CPUPercentWithContext(ctx)
	return pct, Classify(err)
}

func (h *psHandle) Status(ctx context.Context) (string, error) {
	states, err := h.proc.StatusWithContext(ctx)
	if err != nil {
		return "", Classify(err)
	}
	if len(states) == 0 {
		return StatusUnknown, nil
	}
	return NormalizeStatus(states[0]), nil
}

func (h *psHandle) CreateTime(ctx context.Context) (int64, error) {
	ms, err := h.proc.CreateTimeWithContext(ctx)
	return ms, Classify(err)
}

func (h *psHandle) Cmdline(ctx context.Context) ([]string, error) {
	args, err := h.proc.CmdlineSliceWithContext(ctx)
	return args, Classify(err)
}

// NormalizeStatus maps gopsutil state names onto the reported vocabulary.
// Unrecognised values pass through unchanged.
func NormalizeStatus(s string) string {
	switch s {
	case process.Running:
		return StatusRunning
	case process.Sleep:
		return StatusSleeping
	case process.Blocked:
		return StatusDiskSleep
	case process.Wait:
		return StatusWaking
	case process.Stop:
		return StatusStopped
	case process.Zombie:
		return StatusZombie
	case process.Idle:
		return StatusIdle
	case process.Lock:
		return StatusLocked
	case "":
		return StatusUnknown
	default:
		return s
	}
}

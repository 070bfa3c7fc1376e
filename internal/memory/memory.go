// Package memory summarises whole-system RAM and swap usage.
package memory

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/process"
)

var log = logging.L("memory")

// Warning thresholds, inclusive.
const (
	CriticalMemoryPercent = 95.0
	HighMemoryPercent     = 80.0
	HighSwapPercent       = 50.0
)

const bytesPerGB = 1024 * 1024 * 1024

// Snapshot is the system memory summary.
type Snapshot struct {
	TotalGB     float64  `json:"total_gb" yaml:"total_gb"`
	AvailableGB float64  `json:"available_gb" yaml:"available_gb"`
	UsedGB      float64  `json:"used_gb" yaml:"used_gb"`
	UsedPercent float64  `json:"used_percent" yaml:"used_percent"`
	SwapTotalGB float64  `json:"swap_total_gb" yaml:"swap_total_gb"`
	SwapUsedGB  float64  `json:"swap_used_gb" yaml:"swap_used_gb"`
	SwapPercent float64  `json:"swap_percent" yaml:"swap_percent"`
	Warnings    []string `json:"warnings" yaml:"warnings"`
}

// Reader supplies raw RAM and swap counters.
type Reader interface {
	Virtual(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Swap(ctx context.Context) (*mem.SwapMemoryStat, error)
}

// PsReader reads counters through gopsutil.
type PsReader struct{}

func (PsReader) Virtual(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (PsReader) Swap(ctx context.Context) (*mem.SwapMemoryStat, error) {
	return mem.SwapMemoryWithContext(ctx)
}

// Summarizer produces memory snapshots. Nothing is cached between calls.
type Summarizer struct {
	reader Reader
}

// NewSummarizer creates a Summarizer. A nil reader uses gopsutil.
func NewSummarizer(r Reader) *Summarizer {
	if r == nil {
		r = PsReader{}
	}
	return &Summarizer{reader: r}
}

// Summary reads RAM and swap counters and evaluates warnings.
func (s *Summarizer) Summary(ctx context.Context) (Snapshot, error) {
	vm, err := s.reader.Virtual(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}
	sw, err := s.reader.Swap(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read swap memory: %w", err)
	}

	snap := Snapshot{
		TotalGB:     toGB(vm.Total),
		AvailableGB: toGB(vm.Available),
		UsedGB:      toGB(vm.Used),
		UsedPercent: process.Round(vm.UsedPercent, 1),
		SwapTotalGB: toGB(sw.Total),
		SwapUsedGB:  toGB(sw.Used),
		SwapPercent: process.Round(sw.UsedPercent, 1),
	}
	snap.Warnings = Warnings(snap.UsedPercent, snap.SwapPercent)

	log.Debugw("memory summary",
		"usedPercent", snap.UsedPercent,
		"swapPercent", snap.SwapPercent,
		"warnings", len(snap.Warnings))
	return snap, nil
}

// Warnings evaluates the memory and swap thresholds. The result is never nil.
// A critical memory warning replaces the high memory one; the swap warning
// is independent.
func Warnings(memPercent, swapPercent float64) []string {
	warnings := []string{}
	switch {
	case memPercent >= CriticalMemoryPercent:
		warnings = append(warnings, fmt.Sprintf("CRITICAL: Memory usage at %s%%", formatPercent(memPercent)))
	case memPercent >= HighMemoryPercent:
		warnings = append(warnings, fmt.Sprintf("High memory usage: %s%%", formatPercent(memPercent)))
	}
	if swapPercent >= HighSwapPercent {
		warnings = append(warnings, fmt.Sprintf("High swap usage: %s%%", formatPercent(swapPercent)))
	}
	return warnings
}

func toGB(b uint64) float64 {
	return process.Round(float64(b)/bytesPerGB, 2)
}

// formatPercent prints 85 as "85" and 85.5 as "85.5".
func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

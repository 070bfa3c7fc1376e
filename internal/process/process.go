// Package process reads per-process snapshots from the live process table.
// A snapshot is all-or-nothing: if any attribute read fails the process is
// treated as absent and skipped by callers.
package process

import (
	"context"
	"errors"
)

// Common errors
var (
	ErrNotFound     = errors.New("process not found")
	ErrAccessDenied = errors.New("access denied")
)

// CmdlineLimit is the number of characters kept from a joined command line.
const CmdlineLimit = 200

// Handle is the capability set a snapshot needs from one OS process.
// Any method may fail independently; callers treat any failure as absence.
type Handle interface {
	PID() int32
	Name(ctx context.Context) (string, error)
	Username(ctx context.Context) (string, error)
	RSS(ctx context.Context) (uint64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	CPUPercent(ctx context.Context) (float64, error)
	Status(ctx context.Context) (string, error)
	// CreateTime returns milliseconds since the Unix epoch.
	CreateTime(ctx context.Context) (int64, error)
	Cmdline(ctx context.Context) ([]string, error)
}

// Lister enumerates the live process table. Each call returns fresh handles.
type Lister interface {
	Processes(ctx context.Context) ([]Handle, error)
}

// Record is one process snapshot as returned to tool callers.
type Record struct {
	PID           int32   `json:"pid" yaml:"pid"`
	Name          string  `json:"name" yaml:"name"`
	Username      string  `json:"username" yaml:"username"`
	MemoryMB      float64 `json:"memory_mb" yaml:"memory_mb"`
	MemoryPercent float64 `json:"memory_percent" yaml:"memory_percent"`
	CPUPercent    float64 `json:"cpu_percent" yaml:"cpu_percent"`
	Status        string  `json:"status" yaml:"status"`
	CreateTime    float64 `json:"create_time" yaml:"create_time"`
	AgeHours      float64 `json:"age_hours" yaml:"age_hours"`
	Age           string  `json:"age" yaml:"age"`
	Started       string  `json:"started" yaml:"started"`
	Cmdline       string  `json:"cmdline" yaml:"cmdline"`
}

// Status vocabulary reported in Record.Status.
const (
	StatusRunning   = "running"
	StatusSleeping  = "sleeping"
	StatusDiskSleep = "disk-sleep"
	StatusWaking    = "waking"
	StatusStopped   = "stopped"
	StatusZombie    = "zombie"
	StatusIdle      = "idle"
	StatusLocked    = "locked"
	StatusUnknown   = "unknown"
)

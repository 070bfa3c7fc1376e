// Package processtest provides in-memory process tables for tests.
package processtest

import (
	"context"
	"sync"
	"time"

	"github.com/paolino/mcp-memory-server/internal/process"
)

// Handle is a scripted process.Handle. A non-nil Err makes every attribute
// read fail with that error.
type Handle struct {
	Pid        int32
	ProcName   string
	User       string
	RSSBytes   uint64
	MemPercent float64
	CPU        float64
	State      string
	Created    time.Time
	Args       []string
	Err        error
}

func (h *Handle) PID() int32 { return h.Pid }

func (h *Handle) Name(context.Context) (string, error) { return h.ProcName, h.Err }

func (h *Handle) Username(context.Context) (string, error) { return h.User, h.Err }

func (h *Handle) RSS(context.Context) (uint64, error) { return h.RSSBytes, h.Err }

func (h *Handle) MemoryPercent(context.Context) (float64, error) { return h.MemPercent, h.Err }

func (h *Handle) CPUPercent(context.Context) (float64, error) { return h.CPU, h.Err }

func (h *Handle) Status(context.Context) (string, error) {
	if h.State == "" {
		return process.StatusSleeping, h.Err
	}
	return h.State, h.Err
}

func (h *Handle) CreateTime(context.Context) (int64, error) { return h.Created.UnixMilli(), h.Err }

func (h *Handle) Cmdline(context.Context) ([]string, error) { return h.Args, h.Err }

// Lister returns its handles in order. A non-nil Err fails the enumeration.
// Block, when set, holds every call until it is closed.
type Lister struct {
	Handles []*Handle
	Err     error
	Block   chan struct{}

	mu    sync.Mutex
	calls int
}

func (l *Lister) Processes(ctx context.Context) ([]process.Handle, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()

	if l.Block != nil {
		select {
		case <-l.Block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.Err != nil {
		return nil, l.Err
	}
	out := make([]process.Handle, 0, len(l.Handles))
	for _, h := range l.Handles {
		out = append(out, h)
	}
	return out, nil
}

// Calls returns how many enumerations ran.
func (l *Lister) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// MB converts megabytes to bytes.
func MB(n float64) uint64 {
	return uint64(n * 1024 * 1024)
}

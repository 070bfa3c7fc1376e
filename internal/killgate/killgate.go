// Package killgate sends termination signals to processes after a set of
// safety checks. Every requested PID gets exactly one outcome: refused by a
// check, failed at delivery, or succeeded.
package killgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/paolino/mcp-memory-server/internal/audit"
	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/privilege"
	"github.com/paolino/mcp-memory-server/internal/process"
)

var log = logging.L("killgate")

// ErrInvalidSignal is returned by ParseSignal for anything but SIGTERM/SIGKILL.
var ErrInvalidSignal = errors.New("invalid signal")

// IsProtected reports whether pid belongs to the kernel scheduler or init.
// Such PIDs are never signalled.
func IsProtected(pid int) bool {
	switch pid {
	case 0, 1:
		return true
	}
	return false
}

// Signal is one of the two deliverable signals.
type Signal int

const (
	SigTerm Signal = iota + 1
	SigKill
)

// DefaultSignalName is used when the caller does not pick a signal.
const DefaultSignalName = "SIGTERM"

func (s Signal) String() string {
	switch s {
	case SigTerm:
		return "SIGTERM"
	case SigKill:
		return "SIGKILL"
	default:
		return fmt.Sprintf("Signal(%d)", int(s))
	}
}

// ParseSignal matches name case-insensitively against SIGTERM and SIGKILL.
func ParseSignal(name string) (Signal, error) {
	switch strings.ToUpper(name) {
	case "SIGTERM":
		return SigTerm, nil
	case "SIGKILL":
		return SigKill, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSignal, name)
	}
}

// Outcome is the result for a single PID.
type Outcome struct {
	PID     int    `json:"pid" yaml:"pid"`
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Report summarises a kill batch. Results follow the requested PID order.
type Report struct {
	Requested int       `json:"requested" yaml:"requested"`
	Succeeded int       `json:"succeeded" yaml:"succeeded"`
	Failed    int       `json:"failed" yaml:"failed"`
	Refused   int       `json:"refused" yaml:"refused"`
	Results   []Outcome `json:"results" yaml:"results"`
}

// Target is what the inspector resolved for a live PID.
type Target struct {
	Name     string
	Username string
}

// Inspector resolves a PID to its name and owner. It returns errors wrapping
// process.ErrNotFound or process.ErrAccessDenied when it cannot.
type Inspector interface {
	Inspect(ctx context.Context, pid int) (Target, error)
}

// Signaler delivers a signal. It returns errors wrapping process.ErrNotFound
// when the process is gone and process.ErrAccessDenied when not permitted.
type Signaler interface {
	Signal(pid int, sig Signal) error
}

// Recorder receives one audit entry per batch.
type Recorder interface {
	Log(eventType string, commandID string, details map[string]any)
}

// Gate runs the safety checks and delivers signals.
type Gate struct {
	inspector Inspector
	signaler  Signaler
	isRoot    func() bool
	recorder  Recorder
}

// Option configures a Gate.
type Option func(*Gate)

// WithInspector replaces the gopsutil inspector.
func WithInspector(i Inspector) Option {
	return func(g *Gate) { g.inspector = i }
}

// WithSignaler replaces the OS signaler.
func WithSignaler(s Signaler) Option {
	return func(g *Gate) { g.signaler = s }
}

// WithPrivilege replaces the superuser check.
func WithPrivilege(isRoot func() bool) Option {
	return func(g *Gate) { g.isRoot = isRoot }
}

// WithRecorder attaches an audit recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Gate) { g.recorder = r }
}

// New creates a Gate wired to the live OS unless overridden.
func New(opts ...Option) *Gate {
	g := &Gate{
		inspector: PsInspector{},
		signaler:  OSSignaler{},
		isRoot:    privilege.IsRunningAsRoot,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Kill validates signalName once for the batch, then checks and signals
// each PID in order. confirmNames optionally maps PID to the exact name the
// process must have.
func (g *Gate) Kill(ctx context.Context, pids []int, signalName string, confirmNames map[int]string) Report {
	report := Report{
		Requested: len(pids),
		Results:   make([]Outcome, 0, len(pids)),
	}

	sig, err := ParseSignal(signalName)
	if err != nil {
		msg := fmt.Sprintf("Invalid signal: %s. Use SIGTERM or SIGKILL.", signalName)
		for _, pid := range pids {
			report.Results = append(report.Results, Outcome{PID: pid, Message: msg})
		}
		report.Refused = len(pids)
		log.Warnw("kill batch refused", "signal", signalName, "pids", len(pids), "reason", "invalid signal")
		return report
	}

	for _, pid := range pids {
		expected, confirm := confirmNames[pid]
		target, reason, ok := g.check(ctx, pid, expected, confirm)
		if !ok {
			report.Refused++
			report.Results = append(report.Results, Outcome{
				PID:     pid,
				Message: "Refused: " + reason,
				Name:    target.Name,
			})
			log.Warnw("kill refused", "pid", pid, "reason", reason)
			continue
		}

		outcome := g.deliver(pid, sig, target.Name)
		if outcome.Success {
			report.Succeeded++
			log.Infow("signal sent", "pid", pid, "name", target.Name, "signal", sig.String())
		} else {
			report.Failed++
			log.Warnw("signal delivery failed", "pid", pid, "name", target.Name, "signal", sig.String(), "message", outcome.Message)
		}
		report.Results = append(report.Results, outcome)
	}

	g.record(sig, report)
	return report
}

// check runs the per-PID safety rules. A returned target carries the
// resolved name whenever one was obtained, even on refusal.
func (g *Gate) check(ctx context.Context, pid int, expected string, confirm bool) (Target, string, bool) {
	if IsProtected(pid) {
		return Target{}, fmt.Sprintf("PID %d is protected (init/kernel)", pid), false
	}
	if pid < 0 {
		return Target{}, fmt.Sprintf("PID %d is not a valid process id", pid), false
	}

	target, err := g.inspector.Inspect(ctx, pid)
	if err != nil {
		switch {
		case errors.Is(err, process.ErrNotFound):
			return Target{}, fmt.Sprintf("PID %d does not exist", pid), false
		case errors.Is(err, process.ErrAccessDenied):
			return Target{}, fmt.Sprintf("Access denied to PID %d", pid), false
		default:
			return Target{}, fmt.Sprintf("Cannot inspect PID %d: %v", pid, err), false
		}
	}

	if target.Username == privilege.RootUsername && !g.isRoot() {
		return target, fmt.Sprintf("PID %d (%s) is owned by root", pid, target.Name), false
	}

	if confirm && target.Name != expected {
		return target, fmt.Sprintf("PID %d name mismatch: expected '%s', got '%s'", pid, expected, target.Name), false
	}

	return target, "", true
}

func (g *Gate) deliver(pid int, sig Signal, name string) Outcome {
	out := Outcome{PID: pid, Name: name}

	err := g.signaler.Signal(pid, sig)
	switch {
	case err == nil:
		out.Success = true
		out.Message = fmt.Sprintf("Sent %s to %s", sig, name)
	case errors.Is(err, process.ErrNotFound):
		out.Message = "Process no longer exists"
	case errors.Is(err, process.ErrAccessDenied):
		out.Message = "Permission denied"
	default:
		out.Message = fmt.Sprintf("OS error: %v", err)
	}
	return out
}

func (g *Gate) record(sig Signal, report Report) {
	if g.recorder == nil || report.Requested == 0 {
		return
	}
	g.recorder.Log(audit.EventProcessKill, uuid.NewString(), map[string]any{
		"signal":    sig.String(),
		"requested": report.Requested,
		"succeeded": report.Succeeded,
		"failed":    report.Failed,
		"refused":   report.Refused,
		"results":   report.Results,
	})
}

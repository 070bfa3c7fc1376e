package killgate

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paolino/mcp-memory-server/internal/audit"
	"github.com/paolino/mcp-memory-server/internal/process"
)

type fakeInspector map[int]Target

func (f fakeInspector) Inspect(_ context.Context, pid int) (Target, error) {
	switch pid {
	case 403:
		return Target{}, process.ErrAccessDenied
	case 500:
		return Target{}, errors.New("proc fs unreadable")
	}
	t, ok := f[pid]
	if !ok {
		return Target{}, process.ErrNotFound
	}
	return t, nil
}

type sent struct {
	pid int
	sig Signal
}

type fakeSignaler struct {
	errs map[int]error
	sent []sent
}

func (f *fakeSignaler) Signal(pid int, sig Signal) error {
	if err, ok := f.errs[pid]; ok {
		return err
	}
	f.sent = append(f.sent, sent{pid, sig})
	return nil
}

type fakeRecorder struct {
	events  []string
	details []map[string]any
}

func (f *fakeRecorder) Log(eventType, _ string, details map[string]any) {
	f.events = append(f.events, eventType)
	f.details = append(f.details, details)
}

func table() fakeInspector {
	return fakeInspector{
		100: {Name: "python3", Username: "alice"},
		101: {Name: "node", Username: "alice"},
		200: {Name: "sshd", Username: "root"},
		300: {Name: "racer", Username: "alice"},
		301: {Name: "locked", Username: "alice"},
		302: {Name: "weird", Username: "alice"},
	}
}

func newGate(sig *fakeSignaler, root bool, opts ...Option) *Gate {
	base := []Option{
		WithInspector(table()),
		WithSignaler(sig),
		WithPrivilege(func() bool { return root }),
	}
	return New(append(base, opts...)...)
}

func assertTally(t *testing.T, r Report) {
	t.Helper()
	assert.Equal(t, r.Requested, r.Succeeded+r.Failed+r.Refused)
	assert.Len(t, r.Results, r.Requested)
}

func TestParseSignal(t *testing.T) {
	s, err := ParseSignal("sigterm")
	require.NoError(t, err)
	assert.Equal(t, SigTerm, s)

	s, err = ParseSignal("SigKill")
	require.NoError(t, err)
	assert.Equal(t, SigKill, s)

	_, err = ParseSignal("SIGHUP")
	assert.ErrorIs(t, err, ErrInvalidSignal)
	_, err = ParseSignal("")
	assert.ErrorIs(t, err, ErrInvalidSignal)
}

func TestKillSuccess(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, false).Kill(context.Background(), []int{100, 101}, "sigkill", nil)

	assertTally(t, r)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, "Sent SIGKILL to python3", r.Results[0].Message)
	assert.Equal(t, "python3", r.Results[0].Name)
	assert.True(t, r.Results[1].Success)
	assert.Equal(t, []sent{{100, SigKill}, {101, SigKill}}, sig.sent)
}

func TestKillInvalidSignalRefusesEverything(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, true).Kill(context.Background(), []int{100, 101, 1}, "SIGHUP", nil)

	assertTally(t, r)
	assert.Equal(t, 3, r.Refused)
	for _, o := range r.Results {
		assert.False(t, o.Success)
		assert.Equal(t, "Invalid signal: SIGHUP. Use SIGTERM or SIGKILL.", o.Message)
		assert.Empty(t, o.Name)
	}
	assert.Empty(t, sig.sent)
}

func TestKillProtectedPIDs(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, true).Kill(context.Background(), []int{0, 1}, "SIGKILL", nil)

	assertTally(t, r)
	assert.Equal(t, 2, r.Refused)
	assert.Equal(t, "Refused: PID 0 is protected (init/kernel)", r.Results[0].Message)
	assert.Equal(t, "Refused: PID 1 is protected (init/kernel)", r.Results[1].Message)
	assert.Empty(t, sig.sent)
}

func TestIsProtected(t *testing.T) {
	assert.True(t, IsProtected(0))
	assert.True(t, IsProtected(1))
	assert.False(t, IsProtected(2))
	assert.False(t, IsProtected(-1))
}

func TestKillNegativePID(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, true).Kill(context.Background(), []int{-1}, "SIGTERM", nil)

	assert.Equal(t, 1, r.Refused)
	assert.Equal(t, "Refused: PID -1 is not a valid process id", r.Results[0].Message)
	assert.Empty(t, sig.sent)
}

func TestKillLookupFailures(t *testing.T) {
	r := newGate(&fakeSignaler{}, false).Kill(context.Background(), []int{999, 403, 500}, "SIGTERM", nil)

	assertTally(t, r)
	assert.Equal(t, 3, r.Refused)
	assert.Equal(t, "Refused: PID 999 does not exist", r.Results[0].Message)
	assert.Equal(t, "Refused: Access denied to PID 403", r.Results[1].Message)
	assert.Contains(t, r.Results[2].Message, "Refused: Cannot inspect PID 500")
}

func TestKillRootOwned(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, false).Kill(context.Background(), []int{200}, "SIGTERM", nil)
	assert.Equal(t, 1, r.Refused)
	assert.Equal(t, "Refused: PID 200 (sshd) is owned by root", r.Results[0].Message)
	assert.Equal(t, "sshd", r.Results[0].Name)
	assert.Empty(t, sig.sent)

	r = newGate(sig, true).Kill(context.Background(), []int{200}, "SIGTERM", nil)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, "Sent SIGTERM to sshd", r.Results[0].Message)
}

func TestKillNameConfirmation(t *testing.T) {
	sig := &fakeSignaler{}
	r := newGate(sig, false).Kill(context.Background(), []int{100, 101}, "SIGTERM",
		map[int]string{100: "python", 101: "node"})

	assertTally(t, r)
	assert.Equal(t, 1, r.Refused)
	assert.Equal(t, 1, r.Succeeded)
	assert.Equal(t, "Refused: PID 100 name mismatch: expected 'python', got 'python3'", r.Results[0].Message)
	assert.Equal(t, []sent{{101, SigTerm}}, sig.sent)
}

func TestKillDeliveryFailures(t *testing.T) {
	sig := &fakeSignaler{errs: map[int]error{
		300: process.ErrNotFound,
		301: process.ErrAccessDenied,
		302: errors.New("resource busy"),
	}}
	r := newGate(sig, false).Kill(context.Background(), []int{300, 301, 302}, "SIGTERM", nil)

	assertTally(t, r)
	assert.Equal(t, 3, r.Failed)
	assert.Equal(t, "Process no longer exists", r.Results[0].Message)
	assert.Equal(t, "Permission denied", r.Results[1].Message)
	assert.Equal(t, "OS error: resource busy", r.Results[2].Message)
	assert.Equal(t, "weird", r.Results[2].Name)
}

func TestKillMixedBatchKeepsOrder(t *testing.T) {
	sig := &fakeSignaler{errs: map[int]error{300: process.ErrNotFound}}
	pids := []int{1, 100, 999, 300, 200, 101}
	r := newGate(sig, false).Kill(context.Background(), pids, "SIGTERM", map[int]string{101: "node"})

	assertTally(t, r)
	assert.Equal(t, 2, r.Succeeded)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 3, r.Refused)
	for i, o := range r.Results {
		assert.Equal(t, pids[i], o.PID)
	}
}

func TestKillEmptyBatch(t *testing.T) {
	rec := &fakeRecorder{}
	r := newGate(&fakeSignaler{}, false, WithRecorder(rec)).Kill(context.Background(), nil, "SIGTERM", nil)
	assert.Equal(t, Report{Results: []Outcome{}}, r)
	assert.Empty(t, rec.events)
}

func TestKillRecordsBatch(t *testing.T) {
	rec := &fakeRecorder{}
	newGate(&fakeSignaler{}, false, WithRecorder(rec)).Kill(context.Background(), []int{100, 1}, "SIGTERM", nil)

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.EventProcessKill, rec.events[0])
	assert.Equal(t, "SIGTERM", rec.details[0]["signal"])
	assert.Equal(t, 1, rec.details[0]["succeeded"])
	assert.Equal(t, 1, rec.details[0]["refused"])
}

func TestKillOwnProcessNameMismatchIsRefused(t *testing.T) {
	sig := &fakeSignaler{}
	g := New(WithSignaler(sig))
	pid := os.Getpid()

	r := g.Kill(context.Background(), []int{pid}, "SIGTERM", map[int]string{pid: "definitely-not-this-binary"})

	require.Len(t, r.Results, 1)
	assert.Equal(t, 1, r.Refused)
	assert.Contains(t, r.Results[0].Message, "name mismatch")
	assert.NotEmpty(t, r.Results[0].Name)
	assert.Empty(t, sig.sent)
}

func TestPsInspectorMissingPID(t *testing.T) {
	_, err := PsInspector{}.Inspect(context.Background(), 999999999)
	assert.ErrorIs(t, err, process.ErrNotFound)

	_, err = PsInspector{}.Inspect(context.Background(), 1<<40)
	assert.ErrorIs(t, err, process.ErrNotFound)
}

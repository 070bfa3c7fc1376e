package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paolino/mcp-memory-server/internal/process"
	"github.com/paolino/mcp-memory-server/internal/process/processtest"
)

var now = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func hoursAgo(h float64) time.Time {
	return now.Add(-time.Duration(h * float64(time.Hour)))
}

func fixture() *processtest.Lister {
	return &processtest.Lister{Handles: []*processtest.Handle{
		{Pid: 10, ProcName: "python3", RSSBytes: processtest.MB(100), MemPercent: 1.0, CPU: 5, State: "sleeping", Created: hoursAgo(3)},
		{Pid: 11, ProcName: "chrome", RSSBytes: processtest.MB(400), MemPercent: 4.0, CPU: 30, State: "running", Created: hoursAgo(0.5)},
		{Pid: 12, ProcName: "chrome", RSSBytes: processtest.MB(300), MemPercent: 3.0, CPU: 2, State: "sleeping", Created: hoursAgo(5)},
		{Pid: 13, ProcName: "gone", Err: process.ErrNotFound},
		{Pid: 14, ProcName: "ghc", RSSBytes: processtest.MB(900), MemPercent: 9.0, CPU: 0, State: "stopped", Created: hoursAgo(30)},
		{Pid: 15, ProcName: "cabal", RSSBytes: processtest.MB(50), MemPercent: 0.5, CPU: 1, State: "Sleeping", Created: hoursAgo(2)},
		{Pid: 16, ProcName: "chrome", RSSBytes: processtest.MB(300), MemPercent: 3.0, CPU: 2, State: "sleeping", Created: hoursAgo(6)},
		{Pid: 17, ProcName: "denied", Err: process.ErrAccessDenied},
	}}
}

func newEngine(l process.Lister) *Engine {
	return NewEngine(l).WithClock(func() time.Time { return now })
}

func pids(recs []process.Record) []int32 {
	out := make([]int32, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.PID)
	}
	return out
}

func TestTopByMemory(t *testing.T) {
	recs, err := newEngine(fixture()).Top(context.Background(), 3, SortByMemory)
	require.NoError(t, err)
	// 12 and 16 tie at 300MB; enumeration order is kept.
	assert.Equal(t, []int32{14, 11, 12}, pids(recs))
}

func TestTopByCPU(t *testing.T) {
	recs, err := newEngine(fixture()).Top(context.Background(), 10, SortByCPU)
	require.NoError(t, err)
	require.Len(t, recs, 6)
	assert.Equal(t, []int32{11, 10, 12, 16, 15, 14}, pids(recs))
	for i := 0; i < len(recs)-1; i++ {
		assert.GreaterOrEqual(t, recs[i].CPUPercent, recs[i+1].CPUPercent)
	}
}

func TestTopUnknownSortFallsBackToMemory(t *testing.T) {
	recs, err := newEngine(fixture()).Top(context.Background(), 1, "bogus")
	require.NoError(t, err)
	assert.Equal(t, []int32{14}, pids(recs))
}

func TestTopClampsN(t *testing.T) {
	handles := make([]*processtest.Handle, 0, 150)
	for i := 0; i < 150; i++ {
		handles = append(handles, &processtest.Handle{
			Pid: int32(1000 + i), ProcName: fmt.Sprintf("p%d", i),
			RSSBytes: processtest.MB(float64(i)), Created: hoursAgo(1),
		})
	}
	e := newEngine(&processtest.Lister{Handles: handles})

	recs, err := e.Top(context.Background(), 200, SortByMemory)
	require.NoError(t, err)
	assert.Len(t, recs, MaxTopN)

	recs, err = e.Top(context.Background(), 0, SortByMemory)
	require.NoError(t, err)
	assert.Len(t, recs, 1)

	recs, err = e.Top(context.Background(), -5, SortByCPU)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestTopEmptyTable(t *testing.T) {
	recs, err := newEngine(&processtest.Lister{}).Top(context.Background(), 10, SortByMemory)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestTopEnumerationFailure(t *testing.T) {
	_, err := newEngine(&processtest.Lister{Err: errors.New("boom")}).Top(context.Background(), 10, "")
	assert.Error(t, err)
}

func TestStaleDefaults(t *testing.T) {
	recs, err := newEngine(fixture()).Stale(context.Background(), DefaultStaleOptions())
	require.NoError(t, err)
	// sleeping and at least an hour old, memory descending
	assert.Equal(t, []int32{12, 16, 10, 15}, pids(recs))
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.AgeHours, 1.0)
		assert.Equal(t, "sleeping", strings.ToLower(r.Status))
	}
}

func TestStaleNilStatesMeansSleeping(t *testing.T) {
	recs, err := newEngine(fixture()).Stale(context.Background(), StaleOptions{MinAgeHours: 0})
	require.NoError(t, err)
	assert.Equal(t, []int32{12, 16, 10, 15}, pids(recs))
}

func TestStaleEmptyStatesMatchesNothing(t *testing.T) {
	l := fixture()
	recs, err := newEngine(l).Stale(context.Background(), StaleOptions{States: []string{}})
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
	assert.Equal(t, 1, l.Calls())
}

func TestStaleStatesCaseInsensitive(t *testing.T) {
	recs, err := newEngine(fixture()).Stale(context.Background(), StaleOptions{
		MinAgeHours: 1,
		States:      []string{"STOPPED", "Running"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{14}, pids(recs))

	recs, err = newEngine(fixture()).Stale(context.Background(), StaleOptions{
		States: []string{"stopped", "running"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{14, 11}, pids(recs))
}

func TestStaleMinMemory(t *testing.T) {
	recs, err := newEngine(fixture()).Stale(context.Background(), StaleOptions{MinMemoryMB: 100})
	require.NoError(t, err)
	assert.Equal(t, []int32{12, 16, 10}, pids(recs))
	for _, r := range recs {
		assert.GreaterOrEqual(t, r.MemoryMB, 100.0)
	}
}

func TestStaleNamePatternIsCaseInsensitiveSearch(t *testing.T) {
	recs, err := newEngine(fixture()).Stale(context.Background(), StaleOptions{
		States:      []string{"sleeping", "stopped"},
		NamePattern: "GHC|cab",
	})
	require.NoError(t, err)
	assert.Equal(t, []int32{14, 15}, pids(recs))

	recs, err = newEngine(fixture()).Stale(context.Background(), StaleOptions{NamePattern: "hon"})
	require.NoError(t, err)
	assert.Equal(t, []int32{10}, pids(recs))
}

func TestStaleInvalidPattern(t *testing.T) {
	l := fixture()
	_, err := newEngine(l).Stale(context.Background(), StaleOptions{NamePattern: "(unclosed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
	assert.Zero(t, l.Calls(), "enumeration should not run with a bad pattern")
}

func TestDefaultStatesAreFresh(t *testing.T) {
	a := DefaultStates()
	a[0] = "mutated"
	assert.Equal(t, []string{"sleeping"}, DefaultStates())
}

func TestGroups(t *testing.T) {
	groups, err := newEngine(fixture()).Groups(context.Background(), 10, 1)
	require.NoError(t, err)
	require.Len(t, groups, 4)

	assert.Equal(t, "chrome", groups[0].Name)
	assert.Equal(t, 3, groups[0].Count)
	assert.Equal(t, 1000.0, groups[0].TotalMemoryMB)
	assert.Equal(t, 10.0, groups[0].TotalMemoryPercent)
	assert.Equal(t, []int32{11, 12, 16}, groups[0].PIDs)

	assert.Equal(t, "ghc", groups[1].Name)
	assert.Equal(t, "python3", groups[2].Name)
	assert.Equal(t, "cabal", groups[3].Name)

	for i, g := range groups {
		assert.Len(t, g.PIDs, g.Count)
		if i > 0 {
			assert.GreaterOrEqual(t, groups[i-1].TotalMemoryMB, g.TotalMemoryMB)
		}
	}
}

func TestGroupsMinCount(t *testing.T) {
	groups, err := newEngine(fixture()).Groups(context.Background(), 50, 2)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "chrome", groups[0].Name)
}

func TestGroupsClampsN(t *testing.T) {
	handles := make([]*processtest.Handle, 0, 80)
	for i := 0; i < 80; i++ {
		handles = append(handles, &processtest.Handle{
			Pid: int32(2000 + i), ProcName: fmt.Sprintf("svc-%d", i),
			RSSBytes: processtest.MB(1), Created: hoursAgo(1),
		})
	}
	e := newEngine(&processtest.Lister{Handles: handles})

	groups, err := e.Groups(context.Background(), 100, 1)
	require.NoError(t, err)
	assert.Len(t, groups, MaxGroupN)

	groups, err = e.Groups(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestGroupsEmptyTable(t *testing.T) {
	groups, err := newEngine(&processtest.Lister{}).Groups(context.Background(), 10, 1)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestEachCallEnumeratesAgain(t *testing.T) {
	l := fixture()
	e := newEngine(l)
	_, _ = e.Top(context.Background(), 5, SortByMemory)
	_, _ = e.Groups(context.Background(), 5, 1)
	_, _ = e.Stale(context.Background(), DefaultStaleOptions())
	assert.Equal(t, 3, l.Calls())
}

func TestLiveProcessTable(t *testing.T) {
	e := NewEngine(nil)

	top, err := e.Top(context.Background(), 5, SortByMemory)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(top), 5)
	for i := 0; i < len(top)-1; i++ {
		assert.GreaterOrEqual(t, top[i].MemoryMB, top[i+1].MemoryMB)
	}

	groups, err := e.Groups(context.Background(), 10, 1)
	require.NoError(t, err)
	for _, g := range groups {
		assert.Len(t, g.PIDs, g.Count)
	}

	stale, err := e.Stale(context.Background(), StaleOptions{MinAgeHours: 0, NamePattern: "python"})
	require.NoError(t, err)
	for _, r := range stale {
		assert.Contains(t, strings.ToLower(r.Name), "python")
	}
}

// Package query answers process-table questions: top consumers, stale
// processes and per-name groups. Every call enumerates the live table again.
package query

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/process"
)

var log = logging.L("query")

// ErrInvalidPattern is returned when a name pattern does not compile.
var ErrInvalidPattern = errors.New("invalid name pattern")

// Limits and defaults for the query operations.
const (
	DefaultTopN      = 10
	MaxTopN          = 100
	DefaultGroupN    = 10
	MaxGroupN        = 50
	DefaultMinCount  = 1
	DefaultMinAgeHrs = 1.0
	SortByMemory     = "memory"
	SortByCPU        = "cpu"
)

// Group aggregates every process sharing one name.
type Group struct {
	Name               string  `json:"name" yaml:"name"`
	Count              int     `json:"count" yaml:"count"`
	TotalMemoryMB      float64 `json:"total_memory_mb" yaml:"total_memory_mb"`
	TotalMemoryPercent float64 `json:"total_memory_percent" yaml:"total_memory_percent"`
	PIDs               []int32 `json:"pids" yaml:"pids"`
}

// StaleOptions are the stale-process search criteria.
type StaleOptions struct {
	MinAgeHours float64
	// States to include, matched case-insensitively. Nil means sleeping;
	// an empty non-nil list matches nothing.
	States      []string
	NamePattern string
	MinMemoryMB float64
}

// DefaultStaleOptions returns a freshly allocated default criteria set.
func DefaultStaleOptions() StaleOptions {
	return StaleOptions{
		MinAgeHours: DefaultMinAgeHrs,
		States:      DefaultStates(),
	}
}

// DefaultStates returns a new default state list on every call.
func DefaultStates() []string {
	return []string{process.StatusSleeping}
}

// Engine runs queries against a process Lister.
type Engine struct {
	lister process.Lister
	now    func() time.Time
}

// NewEngine creates an Engine. A nil lister uses gopsutil.
func NewEngine(l process.Lister) *Engine {
	if l == nil {
		l = process.NewPsLister()
	}
	return &Engine{lister: l, now: time.Now}
}

// WithClock overrides the clock used for process ages.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) snapshot(ctx context.Context) ([]process.Record, error) {
	recs, skipped, err := process.ReadAll(ctx, e.lister, e.now())
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		log.Debugw("process snapshot skipped processes", "skipped", skipped, "total", len(recs)+skipped)
	}
	return recs, nil
}

// Top returns at most n processes ordered by memory or CPU, descending.
// n is clamped to [1, MaxTopN]; any sortBy other than "cpu" sorts by memory.
func (e *Engine) Top(ctx context.Context, n int, sortBy string) ([]process.Record, error) {
	n = clamp(n, 1, MaxTopN)

	recs, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if sortBy == SortByCPU {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].CPUPercent > recs[j].CPUPercent })
	} else {
		sortByMemory(recs)
	}

	if len(recs) > n {
		recs = recs[:n]
	}
	return recs, nil
}

// Stale returns every process matching opts, ordered by memory descending.
func (e *Engine) Stale(ctx context.Context, opts StaleOptions) ([]process.Record, error) {
	states := opts.States
	if states == nil {
		states = DefaultStates()
	}
	stateSet := make(map[string]struct{}, len(states))
	for _, s := range states {
		stateSet[strings.ToLower(s)] = struct{}{}
	}

	var pattern *regexp.Regexp
	if opts.NamePattern != "" {
		re, err := regexp.Compile("(?i)" + opts.NamePattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
		}
		pattern = re
	}

	recs, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	matches := make([]process.Record, 0)
	for _, r := range recs {
		if r.AgeHours < opts.MinAgeHours {
			continue
		}
		if _, ok := stateSet[strings.ToLower(r.Status)]; !ok {
			continue
		}
		if r.MemoryMB < opts.MinMemoryMB {
			continue
		}
		if pattern != nil && !pattern.MatchString(r.Name) {
			continue
		}
		matches = append(matches, r)
	}

	sortByMemory(matches)
	return matches, nil
}

// Groups aggregates processes by exact name. Groups with fewer than
// minCount members are dropped; at most n groups (clamped to [1, MaxGroupN])
// are returned, largest total memory first.
func (e *Engine) Groups(ctx context.Context, n, minCount int) ([]Group, error) {
	n = clamp(n, 1, MaxGroupN)

	recs, err := e.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int)
	groups := make([]Group, 0)
	for _, r := range recs {
		i, ok := index[r.Name]
		if !ok {
			i = len(groups)
			index[r.Name] = i
			groups = append(groups, Group{Name: r.Name, PIDs: []int32{}})
		}
		g := &groups[i]
		g.Count++
		g.TotalMemoryMB += r.MemoryMB
		g.TotalMemoryPercent += r.MemoryPercent
		g.PIDs = append(g.PIDs, r.PID)
	}

	kept := groups[:0]
	for _, g := range groups {
		if g.Count < minCount {
			continue
		}
		g.TotalMemoryMB = process.Round(g.TotalMemoryMB, 2)
		g.TotalMemoryPercent = process.Round(g.TotalMemoryPercent, 2)
		kept = append(kept, g)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].TotalMemoryMB > kept[j].TotalMemoryMB })

	if len(kept) > n {
		kept = kept[:n]
	}
	return kept, nil
}

func sortByMemory(recs []process.Record) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].MemoryMB > recs[j].MemoryMB })
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package tools exposes the memory, query and kill operations as named
// tools taking a JSON-style payload and returning a CommandResult.
package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/paolino/mcp-memory-server/internal/killgate"
	"github.com/paolino/mcp-memory-server/internal/logging"
	"github.com/paolino/mcp-memory-server/internal/memory"
	"github.com/paolino/mcp-memory-server/internal/query"
)

var log = logging.L("tools")

// Handler runs one tool.
type Handler func(ctx context.Context, tb *Toolbox, payload map[string]any) CommandResult

// handlerRegistry maps tool names to their handlers. It is read-only after
// package init.
var handlerRegistry = map[string]Handler{
	CmdListMemoryUsage:   handleMemoryUsage,
	CmdListTopProcesses:  handleTopProcesses,
	CmdListProcessGroups: handleProcessGroups,
	CmdFindStale:         handleStaleProcesses,
	CmdKillProcesses:     handleKillProcesses,
}

// Toolbox holds the collaborators the handlers call into.
type Toolbox struct {
	memory *memory.Summarizer
	engine *query.Engine
	gate   *killgate.Gate
}

// NewToolbox wires handlers to their collaborators. Nil arguments fall back
// to live-system implementations.
func NewToolbox(s *memory.Summarizer, e *query.Engine, g *killgate.Gate) *Toolbox {
	if s == nil {
		s = memory.NewSummarizer(nil)
	}
	if e == nil {
		e = query.NewEngine(nil)
	}
	if g == nil {
		g = killgate.New()
	}
	return &Toolbox{memory: s, engine: e, gate: g}
}

// Names returns the registered tool names, sorted.
func Names() []string {
	names := make([]string, 0, len(handlerRegistry))
	for name := range handlerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a tool is registered.
func Has(name string) bool {
	_, ok := handlerRegistry[name]
	return ok
}

// Dispatch runs the named tool and fills in DurationMs when the handler did
// not. It returns false for an unknown tool.
func (tb *Toolbox) Dispatch(ctx context.Context, name string, payload map[string]any) (CommandResult, bool) {
	handler, ok := handlerRegistry[name]
	if !ok {
		log.Warnw("no handler registered for tool", logging.KeyTool, name)
		return CommandResult{}, false
	}
	if payload == nil {
		payload = map[string]any{}
	}

	start := time.Now()
	result := handler(ctx, tb, payload)
	if result.DurationMs <= 0 {
		result.DurationMs = time.Since(start).Milliseconds()
	}

	l := logging.FromContext(ctx).With(logging.KeyTool, name, logging.KeyDurationMs, result.DurationMs)
	if result.Failed() {
		l.Warnw("tool call failed", logging.KeyError, result.Error)
	} else {
		l.Debugw("tool call completed")
	}
	return result, true
}

func handleMemoryUsage(ctx context.Context, tb *Toolbox, _ map[string]any) CommandResult {
	start := time.Now()
	snap, err := tb.memory.Summary(ctx)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(snap, time.Since(start).Milliseconds())
}

func handleTopProcesses(ctx context.Context, tb *Toolbox, payload map[string]any) CommandResult {
	start := time.Now()
	n, err := GetPayloadInt(payload, "n", query.DefaultTopN)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	sortBy, err := GetPayloadString(payload, "sort_by", query.SortByMemory)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	recs, err := tb.engine.Top(ctx, n, sortBy)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(recs, time.Since(start).Milliseconds())
}

func handleProcessGroups(ctx context.Context, tb *Toolbox, payload map[string]any) CommandResult {
	start := time.Now()
	n, err := GetPayloadInt(payload, "n", query.DefaultGroupN)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	minCount, err := GetPayloadInt(payload, "min_count", query.DefaultMinCount)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	groups, err := tb.engine.Groups(ctx, n, minCount)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(groups, time.Since(start).Milliseconds())
}

func handleStaleProcesses(ctx context.Context, tb *Toolbox, payload map[string]any) CommandResult {
	start := time.Now()
	opts, err := staleOptions(payload)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}

	recs, err := tb.engine.Stale(ctx, opts)
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	return NewSuccessResult(recs, time.Since(start).Milliseconds())
}

// staleOptions leaves States nil when "states" is absent so the engine
// applies its default; an explicit empty list stays empty.
func staleOptions(payload map[string]any) (query.StaleOptions, error) {
	var (
		opts query.StaleOptions
		err  error
	)
	if opts.MinAgeHours, err = GetPayloadFloat(payload, "min_age_hours", query.DefaultMinAgeHrs); err != nil {
		return opts, err
	}
	if opts.States, err = GetPayloadStringSlice(payload, "states"); err != nil {
		return opts, err
	}
	if opts.NamePattern, err = GetPayloadString(payload, "name_pattern", ""); err != nil {
		return opts, err
	}
	if opts.MinMemoryMB, err = GetPayloadFloat(payload, "min_memory_mb", 0); err != nil {
		return opts, err
	}
	return opts, nil
}

func handleKillProcesses(ctx context.Context, tb *Toolbox, payload map[string]any) CommandResult {
	start := time.Now()
	pids, err := GetPayloadIntSlice(payload, "pids")
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	confirm, err := GetPayloadIntStringMap(payload, "confirm_names")
	if err != nil {
		return NewErrorResult(err, time.Since(start).Milliseconds())
	}
	signalName, err := GetPayloadString(payload, "signal_name", killgate.DefaultSignalName)
	if err != nil {
		// The gate refuses the whole batch for anything it cannot parse.
		signalName = fmt.Sprint(payload["signal_name"])
	}

	report := tb.gate.Kill(ctx, pids, signalName, confirm)
	return NewSuccessResult(report, time.Since(start).Milliseconds())
}

package process

import (
	"context"
	"math"
	"strings"
	"time"
)

// Read captures one snapshot from h relative to now. The boolean is false
// when the process vanished, was inaccessible, or any attribute failed.
func Read(ctx context.Context, h Handle, now time.Time) (Record, bool) {
	name, err := h.Name(ctx)
	if err != nil {
		return Record{}, false
	}
	username, err := h.Username(ctx)
	if err != nil {
		return Record{}, false
	}
	rss, err := h.RSS(ctx)
	if err != nil {
		return Record{}, false
	}
	memPct, err := h.MemoryPercent(ctx)
	if err != nil {
		return Record{}, false
	}
	cpuPct, err := h.CPUPercent(ctx)
	if err != nil {
		return Record{}, false
	}
	status, err := h.Status(ctx)
	if err != nil {
		return Record{}, false
	}
	createMs, err := h.CreateTime(ctx)
	if err != nil {
		return Record{}, false
	}
	cmdline, err := h.Cmdline(ctx)
	if err != nil {
		return Record{}, false
	}

	created := time.UnixMilli(createMs)
	ageHours := now.Sub(created).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	return Record{
		PID:           h.PID(),
		Name:          name,
		Username:      username,
		MemoryMB:      Round(float64(rss)/(1024*1024), 2),
		MemoryPercent: Round(memPct, 2),
		CPUPercent:    Round(cpuPct, 1),
		Status:        status,
		CreateTime:    float64(createMs) / 1000,
		AgeHours:      Round(ageHours, 2),
		Age:           FormatAge(ageHours),
		Started:       FormatStartTime(created),
		Cmdline:       JoinCmdline(cmdline),
	}, true
}

// ReadAll enumerates the process table and returns every readable snapshot
// in enumeration order, plus the number of processes skipped as absent.
func ReadAll(ctx context.Context, l Lister, now time.Time) ([]Record, int, error) {
	handles, err := l.Processes(ctx)
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(handles))
	skipped := 0
	for _, h := range handles {
		rec, ok := Read(ctx, h, now)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

// JoinCmdline joins argv with single spaces and keeps the first CmdlineLimit characters.
func JoinCmdline(args []string) string {
	joined := strings.Join(args, " ")
	runes := []rune(joined)
	if len(runes) > CmdlineLimit {
		return string(runes[:CmdlineLimit])
	}
	return joined
}

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

package tools

import (
	"github.com/paolino/mcp-memory-server/internal/killgate"
	"github.com/paolino/mcp-memory-server/internal/query"
)

// Definition describes a tool to clients.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func object(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Definitions returns the tool list in presentation order.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        CmdListMemoryUsage,
			Description: "Show total, available and used RAM and swap in GB, with warnings when memory or swap usage is high.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        CmdListTopProcesses,
			Description: "List the processes using the most memory or CPU.",
			InputSchema: object(map[string]any{
				"n": map[string]any{
					"type":        "integer",
					"description": "Number of processes to return (1-100)",
					"default":     query.DefaultTopN,
					"minimum":     1,
					"maximum":     query.MaxTopN,
				},
				"sort_by": map[string]any{
					"type":        "string",
					"description": "Sort by memory or cpu",
					"enum":        []string{query.SortByMemory, query.SortByCPU},
					"default":     query.SortByMemory,
				},
			}),
		},
		{
			Name:        CmdListProcessGroups,
			Description: "Group processes by name and show their combined memory, largest first.",
			InputSchema: object(map[string]any{
				"n": map[string]any{
					"type":        "integer",
					"description": "Number of groups to return (1-50)",
					"default":     query.DefaultGroupN,
					"minimum":     1,
					"maximum":     query.MaxGroupN,
				},
				"min_count": map[string]any{
					"type":        "integer",
					"description": "Only include groups with at least this many processes",
					"default":     query.DefaultMinCount,
				},
			}),
		},
		{
			Name:        CmdFindStale,
			Description: "Find old, idle processes that may be safe to clean up, largest memory first.",
			InputSchema: object(map[string]any{
				"min_age_hours": map[string]any{
					"type":        "number",
					"description": "Minimum process age in hours",
					"default":     query.DefaultMinAgeHrs,
				},
				"states": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Process states to include, e.g. sleeping, stopped, zombie",
					"default":     query.DefaultStates(),
				},
				"name_pattern": map[string]any{
					"type":        "string",
					"description": "Case-insensitive regular expression matched anywhere in the process name",
				},
				"min_memory_mb": map[string]any{
					"type":        "number",
					"description": "Minimum resident memory in MB",
					"default":     0,
				},
			}),
		},
		{
			Name: CmdKillProcesses,
			Description: "Send SIGTERM or SIGKILL to processes. PIDs 0 and 1 and root-owned processes " +
				"(unless running as root) are refused. Pass confirm_names to refuse PIDs whose name changed.",
			InputSchema: object(map[string]any{
				"pids": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "Process IDs to signal",
				},
				"signal_name": map[string]any{
					"type":        "string",
					"description": "SIGTERM or SIGKILL",
					"enum":        []string{"SIGTERM", "SIGKILL"},
					"default":     killgate.DefaultSignalName,
				},
				"confirm_names": map[string]any{
					"type":                 "object",
					"description":          "Map of PID to the exact process name it must still have",
					"additionalProperties": map[string]any{"type": "string"},
				},
			}, "pids"),
		},
	}
}

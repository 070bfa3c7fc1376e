package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Tool names
const (
	CmdListMemoryUsage   = "list_memory_usage"
	CmdListTopProcesses  = "list_top_processes"
	CmdListProcessGroups = "list_process_groups"
	CmdFindStale         = "find_stale_processes"
	CmdKillProcesses     = "kill_processes"
)

// Result statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrInvalidParam marks a tool argument with the wrong shape.
var ErrInvalidParam = errors.New("invalid parameter")

// CommandResult represents the result of a tool call
type CommandResult struct {
	Status     string `json:"status"` // completed, failed
	Stdout     string `json:"stdout,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`

	// Data is the value Stdout was rendered from.
	Data any `json:"-"`
}

// Failed reports whether the call did not complete.
func (r CommandResult) Failed() bool {
	return r.Status != StatusCompleted
}

// NewSuccessResult creates a successful result with data rendered as JSON
func NewSuccessResult(data any, durationMs int64) CommandResult {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return CommandResult{
			Status:     StatusFailed,
			Error:      fmt.Sprintf("failed to marshal result: %v", err),
			DurationMs: durationMs,
		}
	}
	return CommandResult{
		Status:     StatusCompleted,
		Stdout:     string(jsonData),
		DurationMs: durationMs,
		Data:       data,
	}
}

// NewErrorResult creates a failed result
func NewErrorResult(err error, durationMs int64) CommandResult {
	return CommandResult{
		Status:     StatusFailed,
		Error:      err.Error(),
		DurationMs: durationMs,
	}
}

// Payload helpers. A key that is absent or null yields the default; a
// value of the wrong type is reported as ErrInvalidParam.
func GetPayloadString(payload map[string]any, key string, defaultVal string) (string, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	s, ok := v.(string)
	if !ok {
		return defaultVal, fmt.Errorf("%w: %s must be a string, got %v", ErrInvalidParam, key, v)
	}
	return s, nil
}

func GetPayloadInt(payload map[string]any, key string, defaultVal int) (int, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	n, ok := toInt(v)
	if !ok {
		return defaultVal, fmt.Errorf("%w: %s must be an integer, got %v", ErrInvalidParam, key, v)
	}
	return n, nil
}

func GetPayloadFloat(payload map[string]any, key string, defaultVal float64) (float64, error) {
	v, ok := payload[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f, nil
		}
	}
	return defaultVal, fmt.Errorf("%w: %s must be a number, got %v", ErrInvalidParam, key, v)
}

// GetPayloadStringSlice returns nil when key is absent or null and a
// non-nil slice, possibly empty, when it is a list of strings.
func GetPayloadStringSlice(payload map[string]any, key string) ([]string, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch slice := raw.(type) {
	case []string:
		return append([]string{}, slice...), nil
	case []any:
		result := make([]string, 0, len(slice))
		for i, v := range slice {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is not a string: %v", ErrInvalidParam, key, i, v)
			}
			result = append(result, s)
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list of strings", ErrInvalidParam, key)
}

// GetPayloadIntSlice requires key to be a list of integers.
func GetPayloadIntSlice(payload map[string]any, key string) ([]int, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("%w: %s is required", ErrInvalidParam, key)
	}
	switch slice := raw.(type) {
	case []int:
		return append([]int(nil), slice...), nil
	case []any:
		result := make([]int, 0, len(slice))
		for i, v := range slice {
			n, ok := toInt(v)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is not an integer: %v", ErrInvalidParam, key, i, v)
			}
			result = append(result, n)
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: %s must be a list of integers", ErrInvalidParam, key)
}

// GetPayloadIntStringMap reads an object whose keys are integers, such as
// {"1234": "python3"}. A missing or null key yields a nil map.
func GetPayloadIntStringMap(payload map[string]any, key string) (map[int]string, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, nil
	}
	switch m := raw.(type) {
	case map[int]string:
		return m, nil
	case map[string]any:
		result := make(map[int]string, len(m))
		for k, v := range m {
			n, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("%w: %s key %q is not an integer", ErrInvalidParam, key, k)
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%s] must be a string", ErrInvalidParam, key, k)
			}
			result[n] = s
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: %s must be an object of pid to name", ErrInvalidParam, key)
}

// toInt accepts whole JSON numbers only.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	}
	return 0, false
}

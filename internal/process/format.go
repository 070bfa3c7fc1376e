package process

import (
	"fmt"
	"math"
	"time"
)

// StartTimeLayout renders creation instants as e.g. "Mar 07 09:05".
const StartTimeLayout = "Jan 02 15:04"

// FormatAge renders an age in hours as "42m", "3h 5m", "3h", "2d 4h" or "2d".
func FormatAge(hours float64) string {
	if hours < 0 {
		hours = 0
	}
	switch {
	case hours < 1:
		return fmt.Sprintf("%dm", int(math.Floor(hours*60)))
	case hours < 24:
		h := int(math.Floor(hours))
		m := int(math.Floor((hours - float64(h)) * 60))
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	default:
		d := int(math.Floor(hours / 24))
		h := int(math.Floor(math.Mod(hours, 24)))
		if h == 0 {
			return fmt.Sprintf("%dd", d)
		}
		return fmt.Sprintf("%dd %dh", d, h)
	}
}

// FormatStartTime renders t in local time using StartTimeLayout.
func FormatStartTime(t time.Time) string {
	return t.Local().Format(StartTimeLayout)
}

package ui

import (
	"fmt"
	"strings"
	"time"
)

func humanizeDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// compactCount renders large counters as 1.2k / 3.4m.
func compactCount(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1_000_000:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1000)) + "k"
	default:
		return trimZero(fmt.Sprintf("%.1f", float64(n)/1_000_000)) + "m"
	}
}

func trimZero(s string) string {
	return strings.TrimSuffix(s, ".0")
}

// truncate shortens value to limit runes, ending with an ellipsis.
func truncate(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit == 1 {
		return "…"
	}
	return string(runes[:limit-1]) + "…"
}

func singleLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func padRight(value string, width int) string {
	n := len([]rune(value))
	if n >= width {
		return value
	}
	return value + strings.Repeat(" ", width-n)
}

func padLeft(value string, width int) string {
	n := len([]rune(value))
	if n >= width {
		return value
	}
	return strings.Repeat(" ", width-n) + value
}

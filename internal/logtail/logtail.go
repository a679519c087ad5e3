package logtail

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Tail returns the last n lines of the file at path, oldest first. With
// n <= 0 every line is returned. A missing file has no lines.
func Tail(path string, n int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if n <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	// Ring of the last n lines; next is the slot the following line overwrites.
	ring := make([]string, n)
	count, next := 0, 0
	for scanner.Scan() {
		ring[next] = scanner.Text()
		next = (next + 1) % n
		count = min(count+1, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%n]
	}
	return lines, nil
}

// Filter keeps events at or above minLevel. Lines that are not JSON events,
// or carry no level, are kept.
func Filter(lines []string, minLevel zerolog.Level) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		level, ok := eventLevel(line)
		if ok && level < minLevel {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Render writes lines to w, formatting JSON events the way zerolog's console
// writer does. Other lines are copied through.
func Render(w io.Writer, lines []string, color bool) error {
	console := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !color,
		TimeFormat: time.DateTime,
	}
	for _, line := range lines {
		if isEvent(line) {
			if _, err := console.Write([]byte(line)); err == nil {
				continue
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func isEvent(line string) bool {
	trimmed := bytes.TrimSpace([]byte(line))
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}

func eventLevel(line string) (zerolog.Level, bool) {
	if !isEvent(line) {
		return zerolog.NoLevel, false
	}
	var event struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal([]byte(line), &event); err != nil || event.Level == "" {
		return zerolog.NoLevel, false
	}
	level, err := zerolog.ParseLevel(event.Level)
	if err != nil {
		return zerolog.NoLevel, false
	}
	return level, true
}

package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns every line. A missing file yields no lines.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Entry is a console log line split into its fields.
type Entry struct {
	Time      string
	Level     string
	Component string
	Message   string
	Raw       string
}

const separator = " | "

// Parse splits a console-encoded line ("time | LEVEL | component | caller |
// message | fields"). Lines that do not match keep only Raw and Message.
func Parse(line string) Entry {
	e := Entry{Raw: line, Message: line}
	parts := strings.Split(line, separator)
	if len(parts) < 3 || !isLevel(parts[1]) {
		return e
	}
	e.Time = parts[0]
	e.Level = parts[1]
	rest := parts[2:]
	// The component field is absent for unnamed loggers; a caller always
	// contains a colon and a file suffix.
	if len(rest) > 1 && !isCaller(rest[0]) {
		e.Component = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 1 && isCaller(rest[0]) {
		rest = rest[1:]
	}
	e.Message = strings.Join(rest, separator)
	return e
}

func isLevel(s string) bool {
	switch s {
	case "DEBUG", "INFO", "WARN", "ERROR", "DPANIC", "PANIC", "FATAL":
		return true
	}
	return false
}

func isCaller(s string) bool {
	return strings.Contains(s, ".go:")
}

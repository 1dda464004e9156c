// Package logging writes bracket-format lines, "[timestamp] [level]
// [scope] message", mirrored to a daily-rotating file and to stderr, with
// retention-based cleanup of old daily files.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is one of the four log levels this package writes.
type Level string

const (
	INFO    Level = "INFO"
	ERROR   Level = "ERROR"
	DEBUG   Level = "DEBUG"
	CAPTCHA Level = "CAPTCHA"
)

const dateLayout = "2006-01-02"

// Logger owns the current day's file handle and rotates it when the wall
// clock crosses midnight relative to the file it has open.
type Logger struct {
	dir           string
	retentionDays int
	mirror        io.Writer

	mu       sync.Mutex
	day      string
	file     *os.File
	now      func() time.Time
}

// New creates the log directory if needed and opens today's file.
func New(dir string, retentionDays int) (*Logger, error) {
	return newWithClock(dir, retentionDays, os.Stderr, time.Now)
}

func newWithClock(dir string, retentionDays int, mirror io.Writer, now func() time.Time) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: create dir: %w", err)
	}
	l := &Logger{dir: dir, retentionDays: retentionDays, mirror: mirror, now: now}
	if err := l.rotateLocked(now()); err != nil {
		return nil, err
	}
	l.cleanup(now())
	return l, nil
}

func (l *Logger) pathFor(day string) string {
	return filepath.Join(l.dir, fmt.Sprintf("search_%s.log", day))
}

func (l *Logger) rotateLocked(t time.Time) error {
	day := t.Format(dateLayout)
	if l.file != nil && l.day == day {
		return nil
	}
	f, err := os.OpenFile(l.pathFor(day), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", l.pathFor(day), err)
	}
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.day = day
	return nil
}

// Write emits one formatted line to the file and to stderr. Failures to
// write the file are swallowed (logging must never break the pipeline);
// the stderr mirror still happens.
func (l *Logger) Write(level Level, scope, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	now := l.now()
	line := fmt.Sprintf("[%s] [%s] [%s] %s\n", now.Format("2006-01-02 15:04:05"), level, scope, msg)

	l.mu.Lock()
	if err := l.rotateLocked(now); err == nil && l.file != nil {
		l.file.WriteString(line)
	}
	l.mu.Unlock()

	if l.mirror != nil {
		io.WriteString(l.mirror, line)
	}
}

func (l *Logger) Info(scope, format string, args ...any)    { l.Write(INFO, scope, format, args...) }
func (l *Logger) Error(scope, format string, args ...any)   { l.Write(ERROR, scope, format, args...) }
func (l *Logger) Debug(scope, format string, args ...any)   { l.Write(DEBUG, scope, format, args...) }
func (l *Logger) Captcha(scope, format string, args ...any) { l.Write(CAPTCHA, scope, format, args...) }

// Close releases today's file handle.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// cleanup deletes daily files older than retentionDays, counting from now.
func (l *Logger) cleanup(now time.Time) {
	if l.retentionDays <= 0 {
		return
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -l.retentionDays)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "search_") || !strings.HasSuffix(name, ".log") {
			continue
		}
		dayStr := strings.TrimSuffix(strings.TrimPrefix(name, "search_"), ".log")
		day, err := time.Parse(dateLayout, dayStr)
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			os.Remove(filepath.Join(l.dir, name))
		}
	}
}

// Retained lists the daily log files currently on disk, oldest first. Used
// by tests.
func (l *Logger) Retained() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "search_") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// CurrentPath returns the path of the file currently being written to.
func (l *Logger) CurrentPath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pathFor(l.day)
}

// Package scanlog writes the per-run log file and the console progress lines.
package scanlog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents logging severity.
type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Logger mirrors every message to the console with a "[*]"/"[!]" marker and to
// a timestamped log file. A nil *Logger discards everything.
type Logger struct {
	mu      sync.Mutex
	console io.Writer
	file    *log.Logger
	closer  io.Closer
	level   Level
	path    string
}

// FileName returns the log file name for a run started at t.
func FileName(t time.Time) string {
	return fmt.Sprintf("scan_%s.log", t.Format("20060102_150405"))
}

// Open creates dir if needed and starts a log file named after startedAt.
func Open(dir string, startedAt time.Time, console io.Writer) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	path := filepath.Join(dir, FileName(startedAt))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := New(console, f)
	l.closer = f
	l.path = path
	return l, nil
}

// New builds a Logger over arbitrary writers. Either may be nil.
func New(console, file io.Writer) *Logger {
	l := &Logger{console: console}
	if file != nil {
		l.file = log.New(file, "", log.LstdFlags)
	}
	return l
}

// Path is the log file location, empty when not file-backed.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// SetLevel drops messages below lvl.
func (l *Logger) SetLevel(lvl Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = lvl
	l.mu.Unlock()
}

// Infof logs progress.
func (l *Logger) Infof(format string, args ...any) { l.write(LevelInfo, "[*]", "INFO", format, args...) }

// Successf logs a completed step at info level.
func (l *Logger) Successf(format string, args ...any) {
	l.write(LevelInfo, "[+]", "INFO", format, args...)
}

// Warnf logs a non-fatal problem.
func (l *Logger) Warnf(format string, args ...any) { l.write(LevelWarn, "[!]", "WARN", format, args...) }

// Errorf logs a failure.
func (l *Logger) Errorf(format string, args ...any) {
	l.write(LevelError, "[!]", "ERROR", format, args...)
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func (l *Logger) write(lvl Level, marker, tag, format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl < l.level {
		return
	}
	if l.console != nil {
		fmt.Fprintf(l.console, "%s %s\n", marker, msg)
	}
	if l.file != nil {
		l.file.Printf("%s - %s", tag, msg)
	}
}

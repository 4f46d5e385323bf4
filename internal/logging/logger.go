package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger appends timestamped, levelled lines to a file or writer. It is safe
// for concurrent use and satisfies the one-method Printf interface the engine
// and HTTP server accept.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	closer io.Closer
	path   string
	clock  func() time.Time
	recent []string
}

const tailCapacity = 64

// New opens path for appending, creating parent directories. An empty path
// logs to stderr.
func New(path string) (*Logger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return NewWriter(os.Stderr), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{out: f, closer: f, path: path, clock: time.Now}, nil
}

// NewWriter wraps w. Close does not close w.
func NewWriter(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{out: w, clock: time.Now}
}

// Path returns the backing file, or "" for writer loggers.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.closer.Close()
	l.closer = nil
	l.out = io.Discard
	return err
}

// Append writes a single entry.
func (l *Logger) Append(level Level, message string) {
	if l == nil || l.out == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	line := fmt.Sprintf("%s %-5s %s\n",
		l.clock().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimRight(strings.TrimSpace(message), "\n"),
	)
	_, _ = io.WriteString(l.out, line)
	l.recent = append(l.recent, strings.TrimSuffix(line, "\n"))
	if len(l.recent) > tailCapacity {
		l.recent = l.recent[len(l.recent)-tailCapacity:]
	}
}

// Tail returns up to n of the most recent lines written by this process.
func (l *Logger) Tail(n int) []string {
	if l == nil || n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.recent) {
		n = len(l.recent)
	}
	out := make([]string, n)
	copy(out, l.recent[len(l.recent)-n:])
	return out
}

// Printf writes an informational entry.
func (l *Logger) Printf(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Info appends an informational entry.
func (l *Logger) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logger) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logger) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}

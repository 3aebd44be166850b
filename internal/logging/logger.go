// Package logging provides config-driven, categorized file-based logging for
// Beadloom. Each subsystem logs to its own file under
// <config-dir>/logs/<category>.log; logging is a no-op unless debug_mode is
// enabled (read once at process start via Configure).
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category identifies which subsystem a log line belongs to.
type Category string

const (
	CategoryStore   Category = "store"
	CategoryGraph   Category = "graph"
	CategoryDocs    Category = "docs"
	CategoryCode    Category = "code"
	CategoryImport  Category = "import"
	CategoryReindex Category = "reindex"
	CategorySync    Category = "sync"
	CategoryRules   Category = "rules"
	CategoryContext Category = "context"
	CategoryCache   Category = "cache"
)

// StructuredLogEntry is the JSON shape written when JSONFormat is enabled.
type StructuredLogEntry struct {
	Timestamp int64          `json:"ts"`
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var (
	mu         sync.Mutex
	debugMode  bool
	jsonFormat bool
	logDir     string
	loggers    = make(map[Category]*Logger)
)

// Configure sets the global logging behavior. The cmd entry point calls it
// once at start-up (internal/store.Open does not); a later call replaces the
// settings and drops the cached loggers.
func Configure(dir string, debug, jsonOut bool) {
	mu.Lock()
	defer mu.Unlock()
	logDir = dir
	debugMode = debug
	jsonFormat = jsonOut
	loggers = make(map[Category]*Logger)
}

// Logger wraps a standard logger scoped to one category.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Get returns (creating if necessary) the logger for category. If logging is
// disabled (no Configure call, or debug=false), the returned Logger discards
// everything.
func Get(category Category) *Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := &Logger{category: category}
	if debugMode && logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err == nil {
			path := filepath.Join(logDir, string(category)+".log")
			if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
				l.file = f
				l.logger = log.New(f, "", 0)
			}
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level, format string, args ...any) {
	if l.logger == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if jsonFormat {
		entry := StructuredLogEntry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     level,
			Message:   msg,
		}
		b, err := json.Marshal(entry)
		if err == nil {
			l.logger.Println(string(b))
			return
		}
	}
	l.logger.Printf("[%s] %s: %s", level, l.category, msg)
}

// Info writes an info-level line.
func (l *Logger) Info(format string, args ...any) { l.write("info", format, args...) }

// Debug writes a debug-level line.
func (l *Logger) Debug(format string, args ...any) { l.write("debug", format, args...) }

// Warn writes a warn-level line.
func (l *Logger) Warn(format string, args ...any) { l.write("warn", format, args...) }

// Error writes an error-level line.
func (l *Logger) Error(format string, args ...any) { l.write("error", format, args...) }

// Close releases the underlying file handle, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Category-scoped package-level helpers.

func Store(format string, args ...any)      { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...any) { Get(CategoryStore).Debug(format, args...) }
func Graph(format string, args ...any)      { Get(CategoryGraph).Info(format, args...) }
func Docs(format string, args ...any)       { Get(CategoryDocs).Info(format, args...) }
func Code(format string, args ...any)       { Get(CategoryCode).Info(format, args...) }
func Import(format string, args ...any)     { Get(CategoryImport).Info(format, args...) }
func Reindex(format string, args ...any)    { Get(CategoryReindex).Info(format, args...) }
func Sync(format string, args ...any)       { Get(CategorySync).Info(format, args...) }
func Rules(format string, args ...any)      { Get(CategoryRules).Info(format, args...) }
func Context(format string, args ...any)    { Get(CategoryContext).Info(format, args...) }
func Cache(format string, args ...any)      { Get(CategoryCache).Info(format, args...) }

// Timer measures and logs the duration of an operation on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing op within category; call Stop when done.
func StartTimer(category Category, op string) *Timer {
	return &Timer{category: category, op: op, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() {
	Get(t.category).Debug("%s took %s", t.op, time.Since(t.start))
}

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Format selects how entries are rendered.
type Format int

const (
	// FormatPlain prints the bare message, the way a terminal user expects
	// runner progress to look.
	FormatPlain Format = iota
	// FormatText prefixes timestamp and level.
	FormatText
	// FormatJSON emits one JSON object per line.
	FormatJSON
)

// ParseFormat parses "plain", "text"/"full" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "plain":
		return FormatPlain, nil
	case "text", "full":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatPlain, fmt.Errorf("unknown log format %q", s)
	}
}

// sink is shared by a logger and all loggers derived from it.
type sink struct {
	mu      sync.Mutex
	output  io.Writer
	logFile *os.File
}

// Logger provides leveled, structured logging
type Logger struct {
	level  Level
	format Format
	fields map[string]interface{}
	sink   *sink
	exit   func(int)
}

// NewLogger creates a new logger writing to os.Stdout
func NewLogger(level Level, format Format) *Logger {
	return &Logger{
		level:  level,
		format: format,
		fields: make(map[string]interface{}),
		sink:   &sink{output: os.Stdout},
		exit:   os.Exit,
	}
}

// SetOutput sets the output writer
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.output = w
}

// SetLevel changes the minimum level.
func (l *Logger) SetLevel(level Level) {
	l.level = level
}

// Level returns the minimum level.
func (l *Logger) Level() Level {
	return l.level
}

// TeeToFile additionally writes every entry, in text format regardless of
// the console format, to path. The directory is created if needed.
func (l *Logger) TeeToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.logFile != nil {
		l.sink.logFile.Close()
	}
	l.sink.logFile = f
	return nil
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// log writes a log entry
func (l *Logger) log(level Level, message string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	// Merge logger fields and call fields
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	now := time.Now()

	l.sink.mu.Lock()
	fmt.Fprintln(l.sink.output, render(l.format, now, level, message, merged))
	if l.sink.logFile != nil {
		fmt.Fprintln(l.sink.logFile, render(FormatText, now, level, message, merged))
	}
	l.sink.mu.Unlock()

	if level == FATAL {
		l.exit(1)
	}
}

func render(format Format, now time.Time, level Level, message string, fields map[string]interface{}) string {
	switch format {
	case FormatJSON:
		entry := LogEntry{
			Timestamp: now.Format(time.RFC3339),
			Level:     level.String(),
			Message:   message,
			Fields:    fields,
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Sprintf(`{"level":"ERROR","message":"failed to marshal log entry: %v"}`, err)
		}
		return string(data)

	case FormatText:
		line := fmt.Sprintf("[%s] %s: %s", now.Format("2006-01-02 15:04:05"), level.String(), message)
		if len(fields) > 0 {
			line += " " + formatFields(fields)
		}
		return line

	default:
		return message
	}
}

// formatFields renders fields as sorted key=value pairs.
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}

func firstFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(message string, fields ...map[string]interface{}) {
	l.log(DEBUG, message, firstFields(fields))
}

// Info logs an info message
func (l *Logger) Info(message string, fields ...map[string]interface{}) {
	l.log(INFO, message, firstFields(fields))
}

// Warn logs a warning message
func (l *Logger) Warn(message string, fields ...map[string]interface{}) {
	l.log(WARN, message, firstFields(fields))
}

// Error logs an error message
func (l *Logger) Error(message string, fields ...map[string]interface{}) {
	l.log(ERROR, message, firstFields(fields))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(message string, fields ...map[string]interface{}) {
	l.log(FATAL, message, firstFields(fields))
}

// Debugf logs a formatted debug message
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...), nil)
}

// Infof logs a formatted info message
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...), nil)
}

// Warnf logs a formatted warning message
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...), nil)
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	// Copy fields to avoid mutation
	newFields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &Logger{
		level:  l.level,
		format: l.format,
		fields: newFields,
		sink:   l.sink,
		exit:   l.exit,
	}
}

// ParseLevel parses a log level string
func ParseLevel(level string) Level {
	switch level {
	case "DEBUG", "debug":
		return DEBUG
	case "INFO", "info":
		return INFO
	case "WARN", "warn", "WARNING", "warning":
		return WARN
	case "ERROR", "error":
		return ERROR
	case "FATAL", "fatal":
		return FATAL
	default:
		return INFO
	}
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.logFile != nil {
		err := l.sink.logFile.Close()
		l.sink.logFile = nil
		return err
	}
	return nil
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *Logger {
	l := NewLogger(FATAL+1, FormatPlain)
	l.SetOutput(io.Discard)
	l.exit = func(int) {}
	return l
}

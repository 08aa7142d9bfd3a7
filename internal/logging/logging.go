// Package logging provides structured leveled logging for the Guido
// application.
//
// The package favors explicit, boring Go over clever abstractions. Each
// component obtains a named logger and emits printf-style or structured
// messages:
//
//	logger := logging.GetLogger("pipeline")
//	logger.Info("turn complete for call %s", callID)
//	logger.InfoWithFields("turn complete",
//	    logging.Field("call_id", callID),
//	    logging.Field("duration_ms", elapsed.Milliseconds()),
//	)
//
// Logger instances are immutable; WithField returns a child logger carrying
// persistent fields, which makes loggers safe to share across goroutines.
//
// DEBUG/INFO/WARN go to stdout, ERROR/FATAL to stderr. The minimum level is
// set once via Initialize; per-package overrides (exact names or "pkg.*"
// wildcard patterns) allow targeted debugging of a single component.
package logging

import (
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	// DEBUG level for detailed debugging information.
	DEBUG LogLevel = iota
	// INFO level for informational messages.
	INFO
	// WARN level for warning messages.
	WARN
	// ERROR level for error messages.
	ERROR
	// FATAL level for fatal messages; logging at this level exits the process.
	FATAL
)

// LogField is a structured logging field.
type LogField struct {
	Key   string
	Value interface{}
}

// Field creates a structured logging field.
func Field(key string, value interface{}) LogField {
	return LogField{Key: key, Value: value}
}

// Logger emits leveled log messages for a named component.
type Logger struct {
	level  LogLevel
	name   string
	fields map[string]interface{}
}

var (
	defaultLevel  = INFO
	packageLevels = make(map[string]LogLevel)
	mu            sync.RWMutex

	// exitFunc is called by Fatal. Overridable for tests.
	exitFunc = os.Exit
)

// Initialize sets the default log level and optional per-package overrides.
// Level names are case-insensitive. Package overrides accept exact names
// ("pipeline") or wildcard patterns ("agent.*").
func Initialize(levelStr string, overrides ...map[string]string) error {
	level, err := parseLevel(levelStr)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	defaultLevel = level
	packageLevels = make(map[string]LogLevel)
	if len(overrides) > 0 {
		for pkg, s := range overrides[0] {
			lvl, err := parseLevel(s)
			if err != nil {
				return fmt.Errorf("invalid log level for package %q: %w", pkg, err)
			}
			packageLevels[pkg] = lvl
		}
	}
	return nil
}

// GetLogger returns a logger for the named component.
func GetLogger(name string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{level: defaultLevel, name: name}
}

// WithField returns a child logger with an additional persistent field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{level: l.level, name: l.name, fields: fields}
}

// effectiveLevel resolves the package override for this logger's name,
// preferring exact matches, then the longest matching wildcard pattern.
func (l *Logger) effectiveLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()

	if lvl, ok := packageLevels[l.name]; ok {
		return lvl
	}
	var matches []string
	for pattern := range packageLevels {
		if strings.HasSuffix(pattern, ".*") &&
			strings.HasPrefix(l.name, strings.TrimSuffix(pattern, "*")) {
			matches = append(matches, pattern)
		}
	}
	if len(matches) > 0 {
		sort.Slice(matches, func(i, j int) bool { return len(matches[i]) > len(matches[j]) })
		return packageLevels[matches[0]]
	}
	return defaultLevel
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...interface{}) { l.logf(DEBUG, msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...interface{}) { l.logf(INFO, msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...interface{}) { l.logf(WARN, msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...interface{}) { l.logf(ERROR, msg, args...) }

// Fatal logs a fatal message and terminates the process with exit code 1.
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.logf(FATAL, msg, args...)
	exitFunc(1)
}

// DebugWithFields logs a debug message with structured fields.
func (l *Logger) DebugWithFields(msg string, fields ...LogField) { l.logFields(DEBUG, msg, fields) }

// InfoWithFields logs an info message with structured fields.
func (l *Logger) InfoWithFields(msg string, fields ...LogField) { l.logFields(INFO, msg, fields) }

// WarnWithFields logs a warning message with structured fields.
func (l *Logger) WarnWithFields(msg string, fields ...LogField) { l.logFields(WARN, msg, fields) }

// ErrorWithFields logs an error message with structured fields.
func (l *Logger) ErrorWithFields(msg string, fields ...LogField) { l.logFields(ERROR, msg, fields) }

// ErrorWithErr logs an error message with the error appended as a field.
func (l *Logger) ErrorWithErr(msg string, err error) {
	l.logFields(ERROR, msg, []LogField{Field("error", err)})
}

func (l *Logger) logf(level LogLevel, msg string, args ...interface{}) {
	if level < l.effectiveLevel() {
		return
	}
	l.write(level, fmt.Sprintf(msg, args...), nil)
}

func (l *Logger) logFields(level LogLevel, msg string, fields []LogField) {
	if level < l.effectiveLevel() {
		return
	}
	l.write(level, msg, fields)
}

func (l *Logger) write(level LogLevel, msg string, fields []LogField) {
	line := fmt.Sprintf("[%s] [%s] %s: %s", timestamp(), levelName(level), l.name, msg)
	if len(l.fields) > 0 || len(fields) > 0 {
		line += " |"
		// Persistent fields first, call-site fields override visually last.
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, l.fields[k])
		}
		for _, f := range fields {
			line += fmt.Sprintf(" %s=%v", f.Key, f.Value)
		}
	}

	if level >= ERROR {
		fmt.Fprintf(os.Stderr, "%s\n", line)
	} else {
		log.Println(line)
	}
}

// timestamp returns an RFC3339 timestamp. The LOG_TIMESTAMP env var
// overrides it for deterministic test output.
func timestamp() string {
	if override := os.Getenv("LOG_TIMESTAMP"); override != "" {
		return override
	}
	return time.Now().Format(time.RFC3339)
}

func levelName(level LogLevel) string {
	switch level {
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
	}
	return "UNKNOWN"
}

func parseLevel(s string) (LogLevel, error) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "FATAL":
		return FATAL, nil
	default:
		return INFO, fmt.Errorf("invalid level: %s (must be DEBUG, INFO, WARN, ERROR, or FATAL)", s)
	}
}

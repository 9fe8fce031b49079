package core

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

var loggerInstance Logger = *NewDevelopmentLogger() // default to development logger

// SetLogger sets the global logger instance
func SetLogger(logger Logger) {
	loggerInstance = logger
}

// GetLogger retrieves the global logger instance
func GetLogger() *Logger {
	return &loggerInstance
}

// levelRank orders the levels understood by Logger. Unknown levels rank as INFO.
var levelRank = map[string]int{
	"TRACE": 0,
	"DEBUG": 1,
	"INFO":  2,
	"WARN":  3,
	"ERROR": 4,
	"FATAL": 5,
	"PANIC": 6,
}

// ParseLevel normalises a level name ("debug", "Warn", ...) to the upper-case
// form used by Logger. It returns an error for names it does not know.
func ParseLevel(name string) (string, error) {
	level := strings.ToUpper(strings.TrimSpace(name))
	if level == "" {
		return "INFO", nil
	}
	if level == "WARNING" {
		level = "WARN"
	}
	if _, ok := levelRank[level]; !ok {
		return "", fmt.Errorf("logger: unknown level %q", name)
	}
	return level, nil
}

type Logger struct {
	handlerFunc func(level string, msg string, attrs map[string]interface{})
	attrs       map[string]interface{}
	minRank     int
}

func NewLogger(handler func(level string, msg string, attrs map[string]interface{})) *Logger {
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]interface{}),
	}
}

// NewDevelopmentLogger creates a new development logger with pretty console output
func NewDevelopmentLogger() *Logger {
	return NewConsoleLogger(os.Stdout, "TRACE")
}

// NewConsoleLogger writes one line per entry to w, dropping entries below
// minLevel. Attributes are printed in key order so lines are stable.
func NewConsoleLogger(w io.Writer, minLevel string) *Logger {
	handler := func(level string, msg string, attrs map[string]interface{}) {
		timestamp := time.Now().Format(time.RFC3339)
		var attrStr strings.Builder
		if len(attrs) > 0 {
			keys := make([]string, 0, len(attrs))
			for k := range attrs {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			attrStr.WriteString(" |")
			for _, k := range keys {
				fmt.Fprintf(&attrStr, " %s=%v", k, attrs[k])
			}
		}
		logLine := fmt.Sprintf("%s [%s] %s%s\n", timestamp, level, msg, attrStr.String())
		switch level {
		case "FATAL":
			fmt.Fprint(os.Stderr, logLine)
			os.Exit(1)
		case "PANIC":
			fmt.Fprint(os.Stderr, logLine)
			panic(msg)
		default:
			fmt.Fprint(w, logLine)
		}
	}

	l := NewLogger(handler)
	return l.WithMinLevel(minLevel)
}

// WithMinLevel returns a copy of the logger that drops entries below level.
func (l *Logger) WithMinLevel(level string) *Logger {
	parsed, err := ParseLevel(level)
	if err != nil {
		parsed = "INFO"
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       l.attrs,
		minRank:     levelRank[parsed],
	}
}

func (l *Logger) log(level string, msg string, args ...interface{}) {
	if l.handlerFunc == nil || levelRank[level] < l.minRank {
		return
	}
	if len(args) > 0 {
		// slog-style key-value pairs become attributes, anything else is printf.
		if isKeyValuePairs(args) {
			attrs := make(map[string]interface{}, len(l.attrs)+len(args)/2)
			for k, v := range l.attrs {
				attrs[k] = v
			}
			for i := 0; i < len(args)-1; i += 2 {
				key, _ := args[i].(string)
				attrs[key] = args[i+1]
			}
			l.handlerFunc(level, msg, attrs)
			return
		}
		msg = fmt.Sprintf(msg, args...)
	}
	l.handlerFunc(level, msg, l.attrs)
}

func (l *Logger) logf(level string, format string, args ...interface{}) {
	if l.handlerFunc == nil || levelRank[level] < l.minRank {
		return
	}
	l.handlerFunc(level, fmt.Sprintf(format, args...), l.attrs)
}

// isKeyValuePairs returns true if args look like slog-style key-value pairs:
// even count and every key (even index) is a string.
func isKeyValuePairs(args []interface{}) bool {
	if len(args)%2 != 0 {
		return false
	}
	for i := 0; i < len(args); i += 2 {
		if _, ok := args[i].(string); !ok {
			return false
		}
	}
	return true
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.log("DEBUG", msg, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logf("DEBUG", format, args...)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.log("INFO", msg, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.logf("INFO", format, args...)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.log("WARN", msg, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logf("WARN", format, args...)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.log("ERROR", msg, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logf("ERROR", format, args...)
}

func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args...)
}

func (l *Logger) Trace(msg string, args ...interface{}) {
	l.log("TRACE", msg, args...)
}

func (l *Logger) With(attrs map[string]interface{}) *Logger {
	combinedAttrs := make(map[string]interface{}, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combinedAttrs[k] = v
	}
	for k, v := range attrs {
		combinedAttrs[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combinedAttrs,
		minRank:     l.minRank,
	}
}

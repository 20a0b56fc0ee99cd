// Package logging writes structured JSON log lines in the same shape as the
// event log: {"ts","level","event","msg","fields"}.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warning"
	case LevelError:
		return "error"
	}
	return "unknown"
}

// ParseLevel parses a level name as written in config files.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level: %s", s)
}

// Line is a single JSON log line.
type Line struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes JSON lines to an io.Writer. A nil *Logger discards everything.
type Logger struct {
	mu     *sync.Mutex
	out    io.Writer
	min    Level
	fields map[string]interface{}
	now    func() time.Time
}

// New creates a logger writing lines at or above min.
func New(out io.Writer, min Level) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{
		mu:  &sync.Mutex{},
		out: out,
		min: min,
		now: time.Now,
	}
}

// Nop returns a logger that discards all output.
func Nop() *Logger {
	return nil
}

// With returns a child logger that adds fields to every line.
// Fields passed at the call site win over base fields.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = merged
	return &child
}

// Enabled reports whether lines at lvl are written.
func (l *Logger) Enabled(lvl Level) bool {
	return l != nil && lvl >= l.min
}

func (l *Logger) Debug(event, msg string, fields map[string]interface{}) {
	l.log(LevelDebug, event, msg, fields)
}

func (l *Logger) Info(event, msg string, fields map[string]interface{}) {
	l.log(LevelInfo, event, msg, fields)
}

func (l *Logger) Warn(event, msg string, fields map[string]interface{}) {
	l.log(LevelWarn, event, msg, fields)
}

func (l *Logger) Error(event, msg string, fields map[string]interface{}) {
	l.log(LevelError, event, msg, fields)
}

func (l *Logger) log(lvl Level, event, msg string, fields map[string]interface{}) {
	if !l.Enabled(lvl) {
		return
	}

	var all map[string]interface{}
	if len(l.fields) > 0 || len(fields) > 0 {
		all = make(map[string]interface{}, len(l.fields)+len(fields))
		for k, v := range l.fields {
			all[k] = v
		}
		for k, v := range fields {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			all[k] = v
		}
	}

	line := Line{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Level:     lvl.String(),
		Event:     event,
		Message:   msg,
		Fields:    all,
	}
	b, err := json.Marshal(line)
	if err != nil {
		// Unencodable field values; keep the line, drop the fields.
		line.Fields = map[string]interface{}{"marshal_error": err.Error()}
		b, _ = json.Marshal(line)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

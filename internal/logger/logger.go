package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// Fields is attached to every line written through an Entry.
type Fields = logrus.Fields

var (
	currentLevel = LevelInfo
	mu           sync.Mutex
	base         = newBase(os.Stderr)
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006/01/02 15:04:05",
	})
	l.SetLevel(logrus.DebugLevel)
	return l
}

// ParseLevel maps a config string to a Level. Unknown values fall back to info.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error", "err":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
}

// SetLevel sets the global log level.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = l
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel >= l
}

// Setup initializes the logger output.
func Setup(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// Debug logs verbose protocol traces.
func Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		base.Debugf(format, v...)
	}
}

// Info logs informative messages if the level allows.
func Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		base.Infof(format, v...)
	}
}

// Warn logs recoverable problems.
func Warn(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		base.Warnf(format, v...)
	}
}

// Error logs error messages.
func Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		base.Errorf(format, v...)
	}
}

// Fatal logs independent of error level and exits.
func Fatal(format string, v ...interface{}) {
	base.Errorf(format, v...)
	os.Exit(1)
}

// Entry is a logger bound to a fixed set of fields, e.g. one connection.
type Entry struct {
	e *logrus.Entry
}

// WithFields returns an Entry that prefixes every line with fields.
func WithFields(f Fields) *Entry {
	return &Entry{e: base.WithFields(f)}
}

func (en *Entry) WithField(key string, value interface{}) *Entry {
	return &Entry{e: en.e.WithField(key, value)}
}

func (en *Entry) Debug(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		en.e.Debugf(format, v...)
	}
}

func (en *Entry) Info(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		en.e.Infof(format, v...)
	}
}

func (en *Entry) Warn(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		en.e.Warnf(format, v...)
	}
}

func (en *Entry) Error(format string, v ...interface{}) {
	if enabled(LevelError) {
		en.e.Errorf(format, v...)
	}
}

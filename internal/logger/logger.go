package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	DebugLogger *log.Logger
	InfoLogger  *log.Logger
	WarnLogger  *log.Logger
	ErrorLogger *log.Logger

	mu      sync.Mutex
	level   = LevelInfo
	logFile *os.File
)

func init() {
	setOutput(os.Stderr)
}

func setOutput(w io.Writer) {
	flags := log.Ldate | log.Ltime
	DebugLogger = log.New(w, "DEBUG: ", flags)
	InfoLogger = log.New(w, "INFO: ", flags)
	WarnLogger = log.New(w, "WARN: ", flags)
	ErrorLogger = log.New(w, "ERROR: ", flags)
}

// Init initializes the loggers and creates/opens the log file. An empty path
// keeps logging on stderr.
func Init(logFilePath string) error {
	if logFilePath == "" {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	setOutput(logFile)
	return nil
}

// SetOutput redirects all loggers, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	setOutput(w)
}

// RotateLog clears the current log file to start fresh
func RotateLog(logFilePath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
	}

	var err error
	logFile, err = os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	setOutput(logFile)
	return nil
}

// Cleanup closes the log file when the application is done using it
func Cleanup() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
		setOutput(os.Stderr)
	}
}

// SetLevel sets the minimum level from a config string (debug, info, warn, error).
func SetLevel(s string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(s) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

func enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l >= level
}

// format renders msg followed by key=value pairs.
func format(msg string, kv []interface{}) string {
	if len(kv) == 0 {
		return msg
	}
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}

// Debug logs a debug message with optional key/value pairs
func Debug(msg string, kv ...interface{}) {
	if enabled(LevelDebug) {
		DebugLogger.Output(2, format(msg, kv))
	}
}

// Info logs an informational message with optional key/value pairs
func Info(msg string, kv ...interface{}) {
	if enabled(LevelInfo) {
		InfoLogger.Output(2, format(msg, kv))
	}
}

// Warn logs a warning
func Warn(msg string, kv ...interface{}) {
	if enabled(LevelWarn) {
		WarnLogger.Output(2, format(msg, kv))
	}
}

// Error logs an error message with optional key/value pairs
func Error(msg string, kv ...interface{}) {
	if enabled(LevelError) {
		ErrorLogger.Output(2, format(msg, kv))
	}
}

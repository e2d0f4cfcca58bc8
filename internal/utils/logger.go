package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Logger is a small leveled logger. The client writes it to a file under the
// state dir so soft failures (reverse geocoding, best-effort logout) leave a
// trace without cluttering command output.
type Logger struct {
	file   *os.File
	logger *log.Logger
}

// NewLogger creates a logger appending to the file at filePath, creating
// parent directories as needed.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// NewStderrLogger creates a logger writing to stderr. Used by the devserver
// and as a fallback when the state dir is not writable.
func NewStderrLogger() *Logger {
	return &Logger{logger: log.New(os.Stderr, "", log.LstdFlags)}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return &Logger{logger: log.New(io.Discard, "", 0)}
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.SetPrefix("INFO: ")
	l.logger.Println(msg)
}

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.SetPrefix("WARN: ")
	l.logger.Println(msg)
}

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

// Error logs an error message.
func (l *Logger) Error(msg string) {
	l.logger.SetPrefix("ERROR: ")
	l.logger.Println(msg)
}

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Close closes the log file, if any.
func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}

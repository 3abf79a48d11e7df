// logger.go - Structured logging for the obsidian daemon
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog logger writing to console and an optional log file,
// plus a separate audit trail for ledger-mutating events.
type Logger struct {
	log     zerolog.Logger
	file    *os.File
	audit   zerolog.Logger
	auditOn bool
	auditFd *os.File
}

// NewLogger creates a new logger instance
func NewLogger(level string, logFile string, auditFile string) (*Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}
	writers := []io.Writer{console}

	logger := &Logger{}
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.file = f
		writers = append(writers, f)
	}
	logger.log = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Logger()

	if auditFile != "" {
		f, err := os.OpenFile(auditFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit file: %w", err)
		}
		logger.auditFd = f
		logger.audit = zerolog.New(f).With().Timestamp().Logger()
		logger.auditOn = true
	}

	return logger, nil
}

// Close closes the logger and its files
func (l *Logger) Close() error {
	if l.auditFd != nil {
		l.auditFd.Close()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log.Debug().Msgf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.log.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log.Warn().Msgf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.log.Error().Msgf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log.Fatal().Msgf(format, args...)
}

// Audit records a ledger-mutating event on the audit trail.
func (l *Logger) Audit(event string, details map[string]interface{}) {
	if !l.auditOn {
		return
	}
	l.audit.Info().Fields(details).Str("event", event).Msg("audit")
}

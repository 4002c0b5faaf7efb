// Package vmlog is the VM's ambient diagnostic logger: a thin wrapper over
// the standard library's log.Logger with a quiet flag. internal/vm creates
// one per VM instance.
//
// Grounded on patbaumgartner-memory-calculator's internal/logger/logger.go
// (Create, quiet-gated Info/Infof/Debug/Debugf) in shape; no structured
// logging library appears anywhere in the retrieval pack, so this stays
// stdlib rather than reaching for slog/zap/zerolog.
package vmlog

import (
	"log"
	"os"
)

// Logger gates Info/Debug output behind a quiet flag; Warn always prints,
// since a silenced VM should still surface things the embedder needs to
// act on.
type Logger struct {
	logger *log.Logger
	quiet  bool
}

// New creates a logger writing to stderr with standard timestamp flags.
func New(quiet bool) *Logger {
	return &Logger{logger: log.New(os.Stderr, "", log.LstdFlags), quiet: quiet}
}

func (l *Logger) Info(v ...any) {
	if !l.quiet {
		l.logger.Print(v...)
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if !l.quiet {
		l.logger.Printf(format, v...)
	}
}

func (l *Logger) Debug(v ...any) {
	if !l.quiet {
		l.logger.Print(v...)
	}
}

func (l *Logger) Debugf(format string, v ...any) {
	if !l.quiet {
		l.logger.Printf(format, v...)
	}
}

func (l *Logger) Warn(v ...any) {
	l.logger.Print(append([]any{"WARN: "}, v...)...)
}

func (l *Logger) Warnf(format string, v ...any) {
	l.logger.Printf("WARN: "+format, v...)
}

// Package logging builds the phuslu/log logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/phuslu/log"

	"github.com/campusdesk/cli/internal/config"
)

var (
	globalLogger *log.Logger
	loggerMutex  sync.RWMutex
)

// New builds a logger from cfg. The returned closer releases the log file,
// if one was opened.
func New(cfg config.LogConfig) (*log.Logger, io.Closer, error) {
	logger := &log.Logger{
		Level:      log.ParseLevel(strings.ToLower(cfg.Level)),
		TimeFormat: "15:04:05",
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		fw := &log.FileWriter{
			Filename:   cfg.File,
			MaxSize:    10 << 20,
			MaxBackups: 3,
		}
		logger.Writer = fw
		return logger, fw, nil
	}

	switch cfg.Format {
	case "json":
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	default:
		logger.Writer = &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: true,
		}
	}
	return logger, nopCloser{}, nil
}

// Nop returns a logger that discards everything.
func Nop() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: &log.IOWriter{Writer: io.Discard},
	}
}

// Init installs the global logger used by the CLI commands
func Init(cfg config.LogConfig) (io.Closer, error) {
	logger, closer, err := New(cfg)
	if err != nil {
		return nil, err
	}

	loggerMutex.Lock()
	globalLogger = logger
	loggerMutex.Unlock()
	return closer, nil
}

// Get returns the global logger instance
func Get() *log.Logger {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()
	if globalLogger == nil {
		return Nop()
	}
	return globalLogger
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

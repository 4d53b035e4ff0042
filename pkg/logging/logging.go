// Package logging builds the loggers handed to the converter, the devices
// and the server.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/james-see/qybridge/pkg/config"
)

// Prefix starts every log line.
const Prefix = "[qybridge] "

// New returns a logger writing to w.
func New(w io.Writer) *log.Logger {
	return log.New(w, Prefix, log.LstdFlags)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard, Prefix, 0)
}

// Setup returns a logger writing to stderr and, when a log directory is
// configured, to a rotating file named name.log in it. The returned closer
// releases the file.
func Setup(cfg config.Logs, name string) (*log.Logger, io.Closer, error) {
	if cfg.Directory == "" {
		return New(os.Stderr), io.NopCloser(nil), nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, name+".log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	logger := log.New(io.MultiWriter(os.Stderr, rotator), Prefix, log.LstdFlags|log.Lmicroseconds)
	return logger, rotator, nil
}

package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term" //nolint:depguard // Required for TTY detection

	"github.com/joe/server-sync/internal/config"
)

// logFileName lives in the server's log directory.
const logFileName = "server-sync.log"

// newLogger logs to stderr, or to a file under the log directory while the
// terminal UI owns the screen.
func newLogger(cfg *config.Config, interactive bool) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	if !interactive {
		handler := tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
		})

		return slog.New(handler), func() {}, nil
	}

	if err := os.MkdirAll(cfg.LogDir(), 0o755); err != nil { //nolint:mnd // standard directory mode
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(cfg.LogDir(), logFileName),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:mnd // standard file mode
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := tint.NewHandler(file, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    true,
	})

	return slog.New(handler), func() { _ = file.Close() }, nil
}

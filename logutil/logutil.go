// Package logutil builds the slog logger the engine and its hosts share.
package logutil

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/envconfig"
)

// Level returns the log level selected by ADE_DEBUG.
func Level() slog.Level {
	if envconfig.Debug {
		return slog.LevelDebug
	}

	return slog.LevelInfo
}

// NewLogger returns a text logger that trims source file paths to their
// base name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}

// Setup installs the engine logger as the process default.
func Setup(w io.Writer) *slog.Logger {
	logger := NewLogger(w, Level())
	slog.SetDefault(logger)
	return logger
}

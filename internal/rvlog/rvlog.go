// Package rvlog wraps log/slog with the dual stderr-plus-file handler the
// rest of the toolchain expects: every rv16 subcommand logs through the
// same handler so `--log-level`/`--log-file` behave identically everywhere.
package rvlog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Handler writes formatted records to an optional file and, above a
// configurable threshold, to stderr as well, guarded by a single mutex so
// concurrent goroutines (e.g. a running CPU and its host) never interleave
// partial lines.
type Handler struct {
	mu        *sync.Mutex
	file      io.Writer
	inner     slog.Handler
	mirrorLvl slog.Level
}

// NewHandler builds a Handler that always writes to file (may be nil) and
// mirrors records at or above mirrorLvl to os.Stderr.
func NewHandler(file io.Writer, level slog.Leveler, mirrorLvl slog.Level) *Handler {
	return &Handler{
		mu:        &sync.Mutex{},
		file:      file,
		inner:     slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: level}),
		mirrorLvl: mirrorLvl,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{mu: h.mu, file: h.file, inner: h.inner.WithAttrs(attrs), mirrorLvl: h.mirrorLvl}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{mu: h.mu, file: h.file, inner: h.inner.WithGroup(name), mirrorLvl: h.mirrorLvl}
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Time.Format("2006-01-02 15:04:05"))
	sb.WriteString(" ")
	sb.WriteString(r.Level.String())
	sb.WriteString(": ")
	sb.WriteString(r.Message)
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" ")
		sb.WriteString(a.Key)
		sb.WriteString("=")
		sb.WriteString(a.Value.String())
		return true
	})
	sb.WriteString("\n")
	line := []byte(sb.String())

	h.mu.Lock()
	defer h.mu.Unlock()

	var err error
	if h.file != nil {
		_, err = h.file.Write(line)
	}
	if r.Level >= h.mirrorLvl {
		_, werr := os.Stderr.Write(line)
		if err == nil {
			err = werr
		}
	}
	return err
}

// New constructs a ready-to-use *slog.Logger. level gates what is recorded
// at all; mirrorLvl gates what also goes to stderr (set above
// slog.LevelError+1 to never mirror).
func New(file io.Writer, level slog.Leveler, mirrorLvl slog.Level) *slog.Logger {
	return slog.New(NewHandler(file, level, mirrorLvl))
}

// ParseLevel maps the CLI's --log-level flag values to slog levels, case
// insensitively, defaulting to Info for anything unrecognized.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"vj-go/internal/vj"
)

// LogFile is the name of the log file inside the log directory.
const LogFile = "vj.log"

// vjHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// Sync tasks log concurrently, so each record is written with a single Write
// under a mutex shared by all handlers derived from the same root.
type vjHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level slog.Leveler
	runID string
	attrs []slog.Attr
}

func newHandler(w io.Writer, runID string, level slog.Leveler) *vjHandler {
	return &vjHandler{mu: &sync.Mutex{}, w: w, level: level, runID: runID}
}

func (h *vjHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == nil {
		return true
	}
	return level >= h.level.Level()
}

func (h *vjHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.runID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *vjHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &vjHandler{
		mu:    h.mu,
		w:     h.w,
		level: h.level,
		runID: h.runID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *vjHandler) WithGroup(string) slog.Handler { return h }

// newLogger creates a structured logger that writes to logDir/vj.log and to
// stderr. The file is rotated by size. The returned closer releases the file.
func newLogger(logDir, runID string, level slog.Leveler, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFile),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     90, // days
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	w := io.MultiWriter(file, stderr)
	return slog.New(newHandler(w, runID, level)), file, nil
}

// slogAdapter wraps *slog.Logger to satisfy the vj.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

var _ vj.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a *slogAdapter) With(args ...any) vj.Logger { return &slogAdapter{l: a.l.With(args...)} }

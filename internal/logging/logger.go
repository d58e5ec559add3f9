package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/gantry-ci/gantry/pkg/secrets"
)

// New creates a configured application logger.
// It writes to Stderr (to separate from Stdout job output).
// It standardizes common keys (e.g., "error" -> "err").
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Standardize 'error' key to 'err'
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithRedaction wraps a logger so that every string attribute is passed
// through the secret store before being written. Secret values must never
// reach a durable log, whatever the call site does.
func WithRedaction(logger *slog.Logger, store *secrets.Store) *slog.Logger {
	if store == nil {
		return logger
	}
	return slog.New(&redactingHandler{inner: logger.Handler(), store: store})
}

type redactingHandler struct {
	inner slog.Handler
	store *secrets.Store
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, rec slog.Record) error {
	clean := slog.NewRecord(rec.Time, rec.Level, h.store.Redact(rec.Message), rec.PC)
	rec.Attrs(func(a slog.Attr) bool {
		clean.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, clean)
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.store.Redact(a.Value.String()))
	}
	return a
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(clean), store: h.store}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), store: h.store}
}

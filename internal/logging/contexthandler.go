package logging

import (
	"context"
	"log/slog"
)

// ContextProvider returns attributes evaluated at log time, such as the
// number of live representations.
type ContextProvider func() []slog.Attr

// SessionContext provides the session name and, when live is set, the current
// number of live representations. An empty name is left out.
func SessionContext(name string, live func() int64) ContextProvider {
	return func() []slog.Attr {
		attrs := make([]slog.Attr, 0, 2)
		if name != "" {
			attrs = append(attrs, slog.String("session", name))
		}
		if live != nil {
			attrs = append(attrs, slog.Int64("live", live()))
		}
		return attrs
	}
}

// ContextHandler adds the provider's attributes to every record before
// passing it on.
type ContextHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func NewContextHandler(inner slog.Handler, provider ContextProvider) *ContextHandler {
	return &ContextHandler{inner: inner, provider: provider}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &ContextHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}

package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the session operation carried by the
// context, if any.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if op, ok := ctx.Value(operationKey{}).(*Operation); ok {
		r.AddAttrs(slog.Group("op",
			slog.String("kind", op.Kind),
			slog.String("session", op.Session),
			slog.String("player", op.Player),
		))
	}

	if sd, ok := ctx.Value(backendKey{}).(*Backend); ok {
		r.AddAttrs(slog.Group("backend",
			slog.String("name", sd.Name),
			slog.String("session_id", sd.SessionID),
		))
	}

	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type operationKey struct{}

// Operation describes the provider request a piece of work belongs to.
type Operation struct {
	Kind    string
	Session string
	Player  string
}

func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

type backendKey struct{}

// Backend identifies the backend record a piece of work touches.
type Backend struct {
	Name      string
	SessionID string
}

func WithBackend(ctx context.Context, b *Backend) context.Context {
	return context.WithValue(ctx, backendKey{}, b)
}

// Package logctx carries per-connection, per-frame and per-tool attributes
// through context so every log line emitted while handling a frame is tagged
// without threading loggers by hand.
package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with the attribute groups found in ctx.
type Handler struct {
	slog.Handler
}

// Wrap returns a logger whose handler is decorated by Handler.
func Wrap(l *slog.Logger) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	if _, ok := l.Handler().(Handler); ok {
		return l
	}
	return slog.New(Handler{Handler: l.Handler()})
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("user_agent", rd.UserAgent),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}

	if cd, ok := ctx.Value(connDataKey{}).(*ConnData); ok {
		r.AddAttrs(slog.Group("conn",
			slog.String("id", cd.ConnectionID),
			slog.String("user_id", cd.UserID),
		))
	}

	if fd, ok := ctx.Value(frameDataKey{}).(*FrameData); ok {
		r.AddAttrs(slog.Group("frame",
			slog.String("type", fd.Type),
			slog.String("request_id", fd.RequestID),
		))
	}

	if td, ok := ctx.Value(toolCallDataKey{}).(*ToolCallData); ok {
		r.AddAttrs(slog.Group("tool",
			slog.String("name", td.ToolName),
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

type requestDataKey struct{}

// RequestData describes the HTTP upgrade request.
type RequestData struct {
	UserAgent  string
	RemoteAddr string
	Path       string
}

func WithRequestData(ctx context.Context, data *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, data)
}

type connDataKey struct{}

// ConnData identifies the live connection.
type ConnData struct {
	ConnectionID string
	UserID       string
}

func WithConnData(ctx context.Context, data *ConnData) context.Context {
	return context.WithValue(ctx, connDataKey{}, data)
}

type frameDataKey struct{}

// FrameData describes the inbound frame being handled.
type FrameData struct {
	Type      string
	RequestID string
}

func WithFrameData(ctx context.Context, data *FrameData) context.Context {
	return context.WithValue(ctx, frameDataKey{}, data)
}

type toolCallDataKey struct{}

type ToolCallData struct {
	ToolName string
}

func WithToolCallData(ctx context.Context, data *ToolCallData) context.Context {
	return context.WithValue(ctx, toolCallDataKey{}, data)
}

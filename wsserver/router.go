package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/toolwire/dispatch"
	"github.com/ggoodman/toolwire/internal/logctx"
	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/sessions"
)

func (h *Handler) handleFrame(ctx context.Context, c *sessions.Connection, data []byte) {
	env, err := protocol.Parse(data)
	if err != nil {
		var pe *protocol.ParseError
		var id *protocol.RequestID
		msg := "Invalid message"
		toolCall := false
		if errors.As(err, &pe) {
			id = pe.RequestID
			msg = "Invalid message: " + pe.Reason
			toolCall = pe.ToolCall()
		}
		h.log.InfoContext(ctx, "frame.parse.fail", slog.String("err", err.Error()), slog.Bool("tool_call", toolCall))
		if toolCall {
			h.reply(ctx, c, protocol.NewToolFailure(id, msg))
			return
		}
		h.reply(ctx, c, protocol.NewError(id, msg))
		return
	}

	ctx = logctx.WithFrameData(ctx, &logctx.FrameData{Type: string(env.Type), RequestID: env.RequestID.String()})

	switch protocol.Classify(env) {
	case protocol.KindControl:
		h.handleControl(ctx, c, env)
	case protocol.KindToolCall:
		h.handleToolCall(ctx, c, env)
	default:
		h.log.InfoContext(ctx, "frame.type.unknown")
		h.reply(ctx, c, protocol.NewError(env.RequestID, fmt.Sprintf("Unknown message type: %s", env.Type)))
	}
}

func (h *Handler) handleControl(ctx context.Context, c *sessions.Connection, env *protocol.Envelope) {
	p := c.Principal()
	switch env.Type {
	case protocol.TypePing:
		h.reply(ctx, c, protocol.NewPong(time.Now()))
	case protocol.TypeGetCapabilities:
		h.reply(ctx, c, h.capabilities())
	case protocol.TypeTypingStart, protocol.TypeTypingStop:
		if env.TargetUserID == "" {
			h.reply(ctx, c, protocol.NewError(env.RequestID, "Missing target_user_id"))
			return
		}
		var n int
		if env.Type == protocol.TypeTypingStart {
			n = h.typing.Start(ctx, p, env.TargetUserID)
		} else {
			n = h.typing.Stop(ctx, p, env.TargetUserID)
		}
		h.log.DebugContext(ctx, "typing.relay.ok", slog.Int("delivered", n))
	case protocol.TypePresenceUpdate:
		if env.Status == "" {
			h.reply(ctx, c, protocol.NewError(env.RequestID, "Missing status"))
			return
		}
		if h.presence == nil {
			h.log.DebugContext(ctx, "presence.update.disabled")
			return
		}
		n := h.presence.Update(ctx, p, env.Status)
		h.log.DebugContext(ctx, "presence.update.ok", slog.String("status", env.Status), slog.Int("delivered", n))
	}
}

// handleToolCall runs the call on its own goroutine so a slow handler does
// not stall the read loop. The call outlives the socket; its response is
// dropped if the connection is gone by then.
func (h *Handler) handleToolCall(ctx context.Context, c *sessions.Connection, env *protocol.Envelope) {
	call := dispatch.CallFromEnvelope(env)
	if !h.beginCall() {
		h.log.InfoContext(ctx, "tool.call.reject", slog.String("reason", "shutdown"))
		h.reply(ctx, c, protocol.NewToolFailure(call.RequestID, ShutdownMessage))
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer h.calls.Done()
		err := h.dispatcher.Handle(ctx, c.Principal(), c.ID(), call, func(resp protocol.ToolResponse) error {
			return h.manager.Send(ctx, c, resp)
		})
		if err != nil {
			h.log.InfoContext(ctx, "tool.response.fail", slog.String("err", err.Error()))
		}
	}()
}

// beginCall registers an in-flight call unless Shutdown has started.
func (h *Handler) beginCall() bool {
	h.callsMu.Lock()
	defer h.callsMu.Unlock()
	if h.closing {
		return false
	}
	h.calls.Add(1)
	return true
}

func (h *Handler) reply(ctx context.Context, c *sessions.Connection, v any) {
	if err := h.manager.Send(ctx, c, v); err != nil {
		h.log.InfoContext(ctx, "frame.reply.fail", slog.String("err", err.Error()))
	}
}

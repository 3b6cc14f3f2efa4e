// Package dispatch validates tool calls, runs their handlers and produces the
// correlated tool_response. Successful calls are handed to the fan-out engine
// only after the response has been written.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/fanout"
	"github.com/ggoodman/toolwire/internal/logctx"
	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/tools"
)

// InternalErrorMessage is the only detail clients see for internal failures.
const InternalErrorMessage = "Internal error"

// Call is one inbound tool invocation.
type Call struct {
	Tool      string
	Args      json.RawMessage
	RequestID *protocol.RequestID
}

// CallFromEnvelope extracts a Call from a tool_call envelope.
func CallFromEnvelope(env *protocol.Envelope) Call {
	return Call{Tool: env.Tool, Args: env.Args, RequestID: env.RequestID}
}

// Fanout receives completions of successful calls.
type Fanout interface {
	Dispatch(ctx context.Context, c fanout.Completion)
}

// Result is the outcome of Dispatch. Response must be delivered before
// AfterResponse is called.
type Result struct {
	Response   protocol.ToolResponse
	completion *fanout.Completion
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithObserver sets the metrics/tracing observer. Nil disables observation.
func WithObserver(o *Observer) Option {
	return func(d *Dispatcher) { d.observer = o }
}

// Dispatcher routes tool calls to registered handlers.
type Dispatcher struct {
	registry *tools.Registry
	fanout   Fanout
	log      *slog.Logger
	observer *Observer
}

// NewDispatcher builds a Dispatcher. fo may be nil to disable fan-out.
func NewDispatcher(registry *tools.Registry, fo Fanout, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatch: nil registry")
	}
	d := &Dispatcher{
		registry: registry,
		fanout:   fo,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		observer: DefaultObserver(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Registry returns the tool registry.
func (d *Dispatcher) Registry() *tools.Registry { return d.registry }

// Dispatch produces exactly one response for call. Handler failures and
// panics are logged in full and reported to the client as InternalErrorMessage.
func (d *Dispatcher) Dispatch(ctx context.Context, p auth.Principal, connID string, call Call) Result {
	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: call.Tool})
	ctx, finish := d.observer.start(ctx, call.Tool)

	tool, ok := d.registry.Lookup(tools.Name(call.Tool))
	if !ok {
		finish(OutcomeUnknownTool)
		d.log.InfoContext(ctx, "dispatch.tool.unknown", slog.String("tool", call.Tool))
		return Result{Response: protocol.NewToolFailure(call.RequestID, "Unknown tool: "+call.Tool)}
	}

	args, err := tools.ParseArgs(call.Args)
	if err == nil {
		err = tools.Validate(tool.Schema, args)
	}
	if err != nil {
		finish(OutcomeInvalidArgs)
		d.log.InfoContext(ctx, "dispatch.args.invalid", slog.String("err", err.Error()))
		return Result{Response: protocol.NewToolFailure(call.RequestID, err.Error())}
	}

	out, err := d.invoke(ctx, tool, p, args)
	if err != nil {
		finish(OutcomeInternal)
		d.log.ErrorContext(ctx, "dispatch.handler.fail", slog.String("err", err.Error()))
		return Result{Response: protocol.NewToolFailure(call.RequestID, InternalErrorMessage)}
	}
	if out.Err != nil {
		finish(OutcomeInternal)
		d.log.ErrorContext(ctx, "dispatch.handler.fail", slog.String("err", out.Err.Error()))
		return Result{Response: protocol.NewToolFailure(call.RequestID, InternalErrorMessage)}
	}
	if !out.Success {
		finish(OutcomeFailed)
		msg := out.Error
		if msg == "" {
			msg = "Tool call failed"
		}
		d.log.InfoContext(ctx, "dispatch.handler.rejected", slog.String("reason", msg))
		return Result{Response: protocol.NewToolFailure(call.RequestID, msg)}
	}

	finish(OutcomeOK)
	d.log.DebugContext(ctx, "dispatch.handler.ok")
	return Result{
		Response: protocol.NewToolSuccess(call.RequestID, out.Data),
		completion: &fanout.Completion{
			Tool:         tool.Name,
			Args:         args,
			Result:       out.Data,
			Principal:    p,
			ConnectionID: connID,
		},
	}
}

func (d *Dispatcher) invoke(ctx context.Context, tool tools.Tool, p auth.Principal, args tools.Args) (out tools.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "dispatch.handler.panic",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return tool.Handler(ctx, p, args), nil
}

// AfterResponse hands a successful call to the fan-out engine. It must be
// called after the response has been delivered; it never blocks on delivery.
func (d *Dispatcher) AfterResponse(ctx context.Context, res Result) {
	if res.completion == nil || d.fanout == nil {
		return
	}
	d.fanout.Dispatch(ctx, *res.completion)
}

// Handle dispatches call, passes the response to send and then triggers
// fan-out. The send error is returned.
func (d *Dispatcher) Handle(ctx context.Context, p auth.Principal, connID string, call Call, send func(protocol.ToolResponse) error) error {
	res := d.Dispatch(ctx, p, connID, call)
	err := send(res.Response)
	d.AfterResponse(ctx, res)
	return err
}

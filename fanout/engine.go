package fanout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/socialgraph"
	"github.com/ggoodman/toolwire/tools"
)

// Sender delivers frames to live sessions. *sessions.Manager satisfies it.
type Sender interface {
	SendToUser(ctx context.Context, userID string, v any) int
	SendToUserExcept(ctx context.Context, userID, exceptConnID string, v any) int
}

// RouteReport summarizes one route's evaluation.
type RouteReport struct {
	Event      EventType
	Skipped    bool
	Recipients int
	Delivered  int
	Dropped    int
}

// Report summarizes every route evaluated for a completion.
type Report struct {
	Routes []RouteReport
}

// Delivered returns the total number of frames accepted by transports.
func (r Report) Delivered() int {
	n := 0
	for _, rr := range r.Routes {
		n += rr.Delivered
	}
	return n
}

// Dropped returns the total number of recipients without a live connection.
func (r Report) Dropped() int {
	n := 0
	for _, rr := range r.Routes {
		n += rr.Dropped
	}
	return n
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's log sink.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithKnownTools rejects routes naming tools outside names.
func WithKnownTools(names ...tools.Name) Option {
	return func(e *Engine) {
		e.known = make(map[tools.Name]struct{}, len(names))
		for _, n := range names {
			e.known[n] = struct{}{}
		}
	}
}

// Engine evaluates routes for completed tool calls.
type Engine struct {
	sender Sender
	graph  socialgraph.Graph
	log    *slog.Logger
	known  map[tools.Name]struct{}

	byTool map[tools.Name][]Route
	events []EventType

	wg sync.WaitGroup
}

// NewEngine validates routes and builds an engine. graph may be nil when no
// route selects followers.
func NewEngine(sender Sender, graph socialgraph.Graph, routes []Route, opts ...Option) (*Engine, error) {
	if sender == nil {
		return nil, errors.New("fanout: nil sender")
	}
	e := &Engine{
		sender: sender,
		graph:  graph,
		log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		byTool: make(map[tools.Name][]Route),
	}
	for _, opt := range opts {
		opt(e)
	}

	var errs []error
	seenEvent := map[EventType]struct{}{}
	for _, r := range routes {
		if err := r.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if e.known != nil {
			if _, ok := e.known[r.Tool]; !ok {
				errs = append(errs, fmt.Errorf("fanout: route for unknown tool %q", r.Tool))
				continue
			}
		}
		if r.Selector.needsGraph() && graph == nil {
			errs = append(errs, fmt.Errorf("fanout: route %s -> %s selects followers but no graph is configured", r.Tool, r.Event))
			continue
		}
		e.byTool[r.Tool] = append(e.byTool[r.Tool], r)
		if _, ok := seenEvent[r.Event]; !ok {
			seenEvent[r.Event] = struct{}{}
			e.events = append(e.events, r.Event)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return e, nil
}

// Events lists the event types the engine can emit, in route order.
func (e *Engine) Events() []EventType {
	return append([]EventType(nil), e.events...)
}

// Routes returns the routes registered for tool.
func (e *Engine) Routes(tool tools.Name) []Route {
	return append([]Route(nil), e.byTool[tool]...)
}

// Dispatch evaluates c on a detached goroutine. It returns immediately.
func (e *Engine) Dispatch(ctx context.Context, c Completion) {
	if len(e.byTool[c.Tool]) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.log.ErrorContext(ctx, "fanout.dispatch.panic",
					slog.String("tool", string(c.Tool)),
					slog.Any("panic", r),
				)
			}
		}()
		rep, err := e.Evaluate(ctx, c)
		if err != nil {
			e.log.ErrorContext(ctx, "fanout.dispatch.fail",
				slog.String("tool", string(c.Tool)),
				slog.String("err", err.Error()),
			)
		}
		e.log.DebugContext(ctx, "fanout.dispatch.ok",
			slog.String("tool", string(c.Tool)),
			slog.Int("delivered", rep.Delivered()),
			slog.Int("dropped", rep.Dropped()),
		)
	}()
}

// Wait blocks until every detached dispatch has finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Evaluate runs every route for c synchronously. Routes are independent: a
// failing route does not prevent the others from delivering.
func (e *Engine) Evaluate(ctx context.Context, c Completion) (Report, error) {
	var rep Report
	var errs []error
	for _, r := range e.byTool[c.Tool] {
		rr, err := e.evaluateRoute(ctx, r, c)
		rep.Routes = append(rep.Routes, rr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Event, err))
		}
	}
	return rep, errors.Join(errs...)
}

func (e *Engine) evaluateRoute(ctx context.Context, r Route, c Completion) (rr RouteReport, err error) {
	rr.Event = r.Event
	if r.When != nil && !r.When(c) {
		rr.Skipped = true
		return rr, nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("route panicked: %v", rec)
		}
	}()

	actor := c.Principal.ID
	var users []string
	switch r.Selector.kind {
	case selectTarget:
		if id := r.Selector.target(c); id != "" && id != actor {
			users = append(users, id)
		}
	case selectFollowers, selectFollowersAndSelf:
		followers, gerr := e.graph.Followers(ctx, actor)
		if gerr != nil {
			return rr, fmt.Errorf("load followers of %s: %w", actor, gerr)
		}
		seen := make(map[string]struct{}, len(followers))
		for _, f := range followers {
			if _, dup := seen[f]; dup || f == actor {
				continue
			}
			seen[f] = struct{}{}
			users = append(users, f)
		}
	}

	ev := protocol.NewEvent(protocol.Type(r.Event), r.Build(c))
	for _, u := range users {
		rr.Recipients++
		n := e.sender.SendToUser(ctx, u, ev)
		if n == 0 {
			rr.Dropped++
			e.log.DebugContext(ctx, "fanout.recipient.offline",
				slog.String("event", string(r.Event)),
				slog.String("user_id", u),
			)
			continue
		}
		rr.Delivered += n
	}
	if r.Selector.includesSelf() && actor != "" {
		rr.Delivered += e.sender.SendToUserExcept(ctx, actor, c.ConnectionID, ev)
	}
	return rr, nil
}

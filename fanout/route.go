package fanout

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/tools"
)

// EventType names a push event.
type EventType string

// Completion describes a successful tool call.
type Completion struct {
	Tool         tools.Name
	Args         tools.Args
	Result       any
	Principal    auth.Principal
	ConnectionID string
}

// ResultMap returns a copy of the completion's result as a map. Results that
// are not maps are converted through their JSON form; anything that is not a
// JSON object yields an empty map.
func (c Completion) ResultMap() map[string]any {
	out := map[string]any{}
	switch r := c.Result.(type) {
	case nil:
		return out
	case map[string]any:
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	b, err := json.Marshal(c.Result)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil || m == nil {
		return out
	}
	return m
}

// ResultField returns a top-level field of the completion's result.
func (c Completion) ResultField(key string) (any, bool) {
	if m, ok := c.Result.(map[string]any); ok {
		v, ok := m[key]
		return v, ok
	}
	v, ok := c.ResultMap()[key]
	return v, ok
}

// ResultString returns a string field of the result or "".
func (c Completion) ResultString(key string) string {
	v, _ := c.ResultField(key)
	s, _ := v.(string)
	return s
}

// Predicate gates a route.
type Predicate func(Completion) bool

// StatusIs matches completions whose result status equals status.
func StatusIs(status string) Predicate {
	return func(c Completion) bool { return c.ResultString("status") == status }
}

type selectorKind int

const (
	selectSelf selectorKind = iota + 1
	selectTarget
	selectFollowers
	selectFollowersAndSelf
)

// Selector chooses the recipients of a route.
type Selector struct {
	kind   selectorKind
	target func(Completion) string
}

// Self selects the acting user's other sessions. The connection that made the
// call is excluded.
func Self() Selector { return Selector{kind: selectSelf} }

// TargetUser selects the user returned by fn. An empty id or the acting user
// selects nobody.
func TargetUser(fn func(Completion) string) Selector {
	return Selector{kind: selectTarget, target: fn}
}

// ResultUser selects the user whose id is the named string field of the result.
func ResultUser(field string) Selector {
	return TargetUser(func(c Completion) string { return c.ResultString(field) })
}

// Followers selects every follower of the acting user.
func Followers() Selector { return Selector{kind: selectFollowers} }

// FollowersAndSelf selects followers plus the acting user's other sessions.
func FollowersAndSelf() Selector { return Selector{kind: selectFollowersAndSelf} }

func (s Selector) String() string {
	switch s.kind {
	case selectSelf:
		return "self"
	case selectTarget:
		return "target_user"
	case selectFollowers:
		return "followers"
	case selectFollowersAndSelf:
		return "followers_and_self"
	default:
		return "invalid"
	}
}

func (s Selector) needsGraph() bool {
	return s.kind == selectFollowers || s.kind == selectFollowersAndSelf
}

func (s Selector) includesSelf() bool {
	return s.kind == selectSelf || s.kind == selectFollowersAndSelf
}

// Route maps a tool's successful completion to one event.
type Route struct {
	Tool     tools.Name
	Event    EventType
	Selector Selector
	When     Predicate
	Build    func(Completion) any
}

func (r Route) validate() error {
	var errs []error
	if r.Tool == "" {
		errs = append(errs, errors.New("missing tool"))
	}
	if r.Event == "" {
		errs = append(errs, errors.New("missing event"))
	}
	if r.Build == nil {
		errs = append(errs, errors.New("missing payload builder"))
	}
	switch r.Selector.kind {
	case selectSelf, selectFollowers, selectFollowersAndSelf:
	case selectTarget:
		if r.Selector.target == nil {
			errs = append(errs, errors.New("target selector without function"))
		}
	default:
		errs = append(errs, errors.New("missing selector"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("fanout: route %s -> %s: %w", r.Tool, r.Event, err)
	}
	return nil
}

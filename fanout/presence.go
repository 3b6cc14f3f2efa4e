package fanout

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/socialgraph"
)

const (
	EventUserOnline      EventType = "user_online"
	EventUserOffline     EventType = "user_offline"
	EventPresenceChanged EventType = "presence_changed"
	EventTypingStart     EventType = "typing_start"
	EventTypingStop      EventType = "typing_stop"
)

// PresencePayload is the data of presence events.
type PresencePayload struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
	Status      string `json:"status"`
	Timestamp   int64  `json:"timestamp"`
}

// Presence announces presence transitions to a user's followers. It
// satisfies sessions.PresenceAnnouncer.
type Presence struct {
	sender Sender
	graph  socialgraph.Graph
	log    *slog.Logger
	now    func() time.Time
}

// NewPresence builds a Presence announcer.
func NewPresence(sender Sender, graph socialgraph.Graph, log *slog.Logger) *Presence {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Presence{sender: sender, graph: graph, log: log, now: time.Now}
}

func (p *Presence) AnnounceOnline(ctx context.Context, who auth.Principal) {
	p.announce(ctx, who, EventUserOnline, "online")
}

func (p *Presence) AnnounceOffline(ctx context.Context, who auth.Principal) {
	p.announce(ctx, who, EventUserOffline, "offline")
}

// Update broadcasts a client-declared status (for example "away") to the
// user's followers and returns the number of frames delivered.
func (p *Presence) Update(ctx context.Context, who auth.Principal, status string) int {
	return p.announce(ctx, who, EventPresenceChanged, status)
}

func (p *Presence) announce(ctx context.Context, who auth.Principal, ev EventType, status string) int {
	if p.graph == nil {
		return 0
	}
	followers, err := p.graph.Followers(ctx, who.ID)
	if err != nil {
		p.log.ErrorContext(ctx, "presence.followers.fail",
			slog.String("user_id", who.ID),
			slog.String("err", err.Error()),
		)
		return 0
	}
	msg := protocol.NewEvent(protocol.Type(ev), PresencePayload{
		UserID:      who.ID,
		Username:    who.Username,
		DisplayName: who.DisplayName,
		Status:      status,
		Timestamp:   p.now().UnixMilli(),
	})
	n := 0
	for _, f := range followers {
		if f == who.ID {
			continue
		}
		n += p.sender.SendToUser(ctx, f, msg)
	}
	p.log.DebugContext(ctx, "presence.announce",
		slog.String("event", string(ev)),
		slog.String("user_id", who.ID),
		slog.Int("delivered", n),
	)
	return n
}

// TypingPayload is the data of typing events.
type TypingPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Typing relays typing indicators to a single target user.
type Typing struct {
	sender Sender
}

func NewTyping(sender Sender) *Typing {
	return &Typing{sender: sender}
}

// Start notifies target that who started typing.
func (t *Typing) Start(ctx context.Context, who auth.Principal, target string) int {
	return t.send(ctx, who, target, EventTypingStart)
}

// Stop notifies target that who stopped typing.
func (t *Typing) Stop(ctx context.Context, who auth.Principal, target string) int {
	return t.send(ctx, who, target, EventTypingStop)
}

func (t *Typing) send(ctx context.Context, who auth.Principal, target string, ev EventType) int {
	if target == "" || target == who.ID {
		return 0
	}
	return t.sender.SendToUser(ctx, target, protocol.NewEvent(protocol.Type(ev), TypingPayload{
		UserID:   who.ID,
		Username: who.Username,
	}))
}

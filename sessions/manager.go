package sessions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/protocol"
)

var (
	// ErrConnectionClosed is returned when sending to a connection that is not open.
	ErrConnectionClosed = errors.New("sessions: connection closed")
	// ErrTransportWrite is returned when the transport rejected a frame. The
	// connection has been retired by the time the caller sees it.
	ErrTransportWrite = errors.New("sessions: transport write failed")
	// ErrManagerClosed is returned by Register after Shutdown.
	ErrManagerClosed = errors.New("sessions: manager closed")
)

// PresenceAnnouncer is notified when a user comes online or goes offline.
// Calls happen on detached goroutines and must not block indefinitely.
type PresenceAnnouncer interface {
	AnnounceOnline(ctx context.Context, p auth.Principal)
	AnnounceOffline(ctx context.Context, p auth.Principal)
}

// Manager is the registry of live connections.
type Manager struct {
	log *slog.Logger
	now func() time.Time

	version  string
	features []string
	tools    []protocol.ToolSummary

	presence        PresenceAnnouncer
	announceOffline bool

	heartbeatInterval time.Duration
	staleAfter        time.Duration
	cleanupInterval   time.Duration

	mu     sync.RWMutex
	conns  map[string]*Connection
	byUser map[string]map[string]*Connection
	closed bool

	tasks sync.WaitGroup
}

// NewManager constructs an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:               time.Now,
		announceOffline:   true,
		heartbeatInterval: DefaultHeartbeatInterval,
		staleAfter:        DefaultStaleAfter,
		cleanupInterval:   DefaultCleanupInterval,
		conns:             make(map[string]*Connection),
		byUser:            make(map[string]map[string]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the heartbeat and stale cleanup loops until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	var heartbeat, cleanup <-chan time.Time
	if m.heartbeatInterval > 0 {
		t := time.NewTicker(m.heartbeatInterval)
		defer t.Stop()
		heartbeat = t.C
	}
	if m.cleanupInterval > 0 && m.staleAfter > 0 {
		t := time.NewTicker(m.cleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat:
			n := m.Heartbeat()
			m.log.DebugContext(ctx, "session.heartbeat", slog.Int("delivered", n))
		case <-cleanup:
			if n := m.CleanupStaleConnections(m.staleAfter); n > 0 {
				m.log.InfoContext(ctx, "session.cleanup.evicted", slog.Int("count", n))
			}
		}
	}
}

// Shutdown closes every connection and waits for detached presence tasks or
// for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	all := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		all = append(all, c)
	}
	m.mu.Unlock()

	for _, c := range all {
		m.retire(ctx, c, "shutdown")
	}

	done := make(chan struct{})
	go func() {
		m.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetPresence replaces the presence announcer. Connections registered
// earlier are not announced retroactively.
func (m *Manager) SetPresence(p PresenceAnnouncer) {
	m.mu.Lock()
	m.presence = p
	m.mu.Unlock()
}

// Register adds a connection for p, sends the welcome frame and announces
// presence if this is the user's first connection.
func (m *Manager) Register(ctx context.Context, t Transport, p auth.Principal) (*Connection, error) {
	if t == nil {
		return nil, fmt.Errorf("sessions: nil transport")
	}
	if p.ID == "" {
		return nil, fmt.Errorf("sessions: principal has no id")
	}
	now := m.now()
	c := &Connection{
		id:            uuid.NewString(),
		principal:     p,
		establishedAt: now,
		lastActivity:  now,
		transport:     t,
		state:         StateConnecting,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	set, ok := m.byUser[p.ID]
	first := !ok || len(set) == 0
	if !ok {
		set = make(map[string]*Connection)
		m.byUser[p.ID] = set
	}
	set[c.id] = c
	m.conns[c.id] = c
	c.setOpen()
	pres := m.presence
	m.mu.Unlock()

	m.log.InfoContext(ctx, "session.register.ok",
		slog.String("conn_id", c.id),
		slog.String("user_id", p.ID),
		slog.Bool("first", first),
	)

	if err := m.Send(ctx, c, m.welcomeFor(c)); err != nil {
		m.log.ErrorContext(ctx, "session.welcome.fail", slog.String("conn_id", c.id), slog.String("err", err.Error()))
		return nil, err
	}

	if first && pres != nil {
		m.spawn(ctx, func(ctx context.Context) { pres.AnnounceOnline(ctx, p) })
	}
	return c, nil
}

func (m *Manager) welcomeFor(c *Connection) protocol.Welcome {
	p := c.principal
	tools := m.tools
	if tools == nil {
		tools = []protocol.ToolSummary{}
	}
	features := m.features
	if features == nil {
		features = []string{}
	}
	return protocol.Welcome{
		Type:         protocol.TypeWelcome,
		Message:      fmt.Sprintf("Welcome, %s", p.Name()),
		User:         protocol.UserSummary{ID: p.ID, Username: p.Username, DisplayName: p.Name()},
		ConnectionID: c.id,
		Tools:        tools,
		Version:      m.version,
		Features:     features,
	}
}

// Unregister removes c from the registry. It is safe to call more than once.
func (m *Manager) Unregister(ctx context.Context, c *Connection) {
	if c == nil {
		return
	}
	c.markClosed()

	m.mu.Lock()
	if _, ok := m.conns[c.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.conns, c.id)
	last := false
	if set, ok := m.byUser[c.principal.ID]; ok {
		delete(set, c.id)
		if len(set) == 0 {
			delete(m.byUser, c.principal.ID)
			last = true
		}
	}
	shuttingDown := m.closed
	pres := m.presence
	m.mu.Unlock()

	m.log.InfoContext(ctx, "session.unregister.ok",
		slog.String("conn_id", c.id),
		slog.String("user_id", c.principal.ID),
		slog.Bool("last", last),
	)

	if last && m.announceOffline && !shuttingDown && pres != nil {
		p := c.principal
		m.spawn(ctx, func(ctx context.Context) { pres.AnnounceOffline(ctx, p) })
	}
}

// retire closes the transport and unregisters the connection.
func (m *Manager) retire(ctx context.Context, c *Connection, reason string) {
	if err := c.transport.Close(); err != nil {
		m.log.DebugContext(ctx, "session.close.fail", slog.String("conn_id", c.id), slog.String("err", err.Error()))
	}
	m.log.InfoContext(ctx, "session.retire", slog.String("conn_id", c.id), slog.String("reason", reason))
	m.Unregister(ctx, c)
}

// spawn runs fn detached from ctx's cancellation. Once Shutdown has begun no
// new task is started, so tasks.Add never races tasks.Wait.
func (m *Manager) spawn(ctx context.Context, fn func(ctx context.Context)) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.log.DebugContext(ctx, "session.presence.skip", slog.String("reason", "shutdown"))
		return false
	}
	m.tasks.Add(1)
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer m.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				m.log.ErrorContext(ctx, "session.presence.panic", slog.Any("panic", r))
			}
		}()
		fn(ctx)
	}()
	return true
}

// Send serializes v and writes it to c. A write failure retires c and yields
// ErrTransportWrite. A successful send counts as activity.
func (m *Manager) Send(ctx context.Context, c *Connection, v any) error {
	data, err := protocol.Marshal(v)
	if err != nil {
		return fmt.Errorf("sessions: marshal: %w", err)
	}
	return m.write(ctx, c, data, true)
}

func (m *Manager) write(ctx context.Context, c *Connection, data []byte, bump bool) error {
	if c.State() != StateOpen {
		return ErrConnectionClosed
	}
	c.writeMu.Lock()
	err := c.transport.WriteMessage(data)
	c.writeMu.Unlock()
	if err != nil {
		m.log.WarnContext(ctx, "session.send.fail", slog.String("conn_id", c.id), slog.String("err", err.Error()))
		m.retire(ctx, c, "write_failed")
		return fmt.Errorf("%w: %v", ErrTransportWrite, err)
	}
	if bump {
		c.touch(m.now())
	}
	return nil
}

// SendToUser delivers v to every open connection of userID and returns the
// number of connections that accepted the frame.
func (m *Manager) SendToUser(ctx context.Context, userID string, v any) int {
	return m.SendToUsers(ctx, []string{userID}, v)
}

// SendToUsers delivers v to every open connection of each listed user. Users
// listed more than once receive the frame once.
func (m *Manager) SendToUsers(ctx context.Context, userIDs []string, v any) int {
	data, err := protocol.Marshal(v)
	if err != nil {
		m.log.ErrorContext(ctx, "session.send.marshal.fail", slog.String("err", err.Error()))
		return 0
	}
	seen := make(map[string]struct{}, len(userIDs))
	var targets []*Connection
	m.mu.RLock()
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for _, c := range m.byUser[id] {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	return m.deliver(ctx, targets, data, true)
}

// Broadcast delivers v to every open connection except those owned by
// excludeUserID. An empty excludeUserID excludes nobody.
func (m *Manager) Broadcast(ctx context.Context, v any, excludeUserID string) int {
	data, err := protocol.Marshal(v)
	if err != nil {
		m.log.ErrorContext(ctx, "session.broadcast.marshal.fail", slog.String("err", err.Error()))
		return 0
	}
	return m.deliver(ctx, m.snapshot(excludeUserID), data, true)
}

// SendToUserExcept delivers v to every open connection of userID other than
// the connection identified by exceptConnID.
func (m *Manager) SendToUserExcept(ctx context.Context, userID, exceptConnID string, v any) int {
	data, err := protocol.Marshal(v)
	if err != nil {
		m.log.ErrorContext(ctx, "session.send.marshal.fail", slog.String("err", err.Error()))
		return 0
	}
	var targets []*Connection
	m.mu.RLock()
	for id, c := range m.byUser[userID] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()
	return m.deliver(ctx, targets, data, true)
}

// Heartbeat broadcasts one heartbeat frame to every open connection. Heartbeats
// do not count as activity, so a silent peer still ages toward eviction.
func (m *Manager) Heartbeat() int {
	ctx := context.Background()
	data, err := protocol.Marshal(protocol.NewHeartbeat(m.now()))
	if err != nil {
		return 0
	}
	return m.deliver(ctx, m.snapshot(""), data, false)
}

func (m *Manager) deliver(ctx context.Context, targets []*Connection, data []byte, bump bool) int {
	n := 0
	for _, c := range targets {
		if err := m.write(ctx, c, data, bump); err == nil {
			n++
		}
	}
	return n
}

func (m *Manager) snapshot(excludeUserID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		if excludeUserID != "" && c.principal.ID == excludeUserID {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Touch records inbound activity on c.
func (m *Manager) Touch(c *Connection) {
	c.touch(m.now())
}

// OnlineUsers returns the ids of users with at least one open connection, sorted.
func (m *Manager) OnlineUsers() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.byUser))
	for id := range m.byUser {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// IsUserOnline reports whether userID has at least one open connection.
func (m *Manager) IsUserOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUser[userID]) > 0
}

// ConnectionCount returns the number of registered connections.
func (m *Manager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// UserConnections returns the open connections of userID.
func (m *Manager) UserConnections(userID string) []*Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := m.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Lookup returns the registered connection with the given id.
func (m *Manager) Lookup(connID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[connID]
	return c, ok
}

// CleanupStaleConnections closes every connection idle for longer than
// threshold and returns how many were evicted.
func (m *Manager) CleanupStaleConnections(threshold time.Duration) int {
	ctx := context.Background()
	now := m.now()
	var stale []*Connection
	m.mu.RLock()
	for _, c := range m.conns {
		if c.idleSince(now) > threshold {
			stale = append(stale, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range stale {
		m.retire(ctx, c, "stale")
	}
	return len(stale)
}

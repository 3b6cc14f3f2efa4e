package sessions

import (
	"log/slog"
	"time"

	"github.com/ggoodman/toolwire/protocol"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultStaleAfter        = 5 * time.Minute
	DefaultCleanupInterval   = time.Minute
)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithWelcome sets the server version, feature flags and tool catalog
// advertised in the welcome frame.
func WithWelcome(version string, features []string, tools []protocol.ToolSummary) Option {
	return func(m *Manager) {
		m.version = version
		m.features = append([]string(nil), features...)
		m.tools = append([]protocol.ToolSummary(nil), tools...)
	}
}

// WithPresence sets the announcer invoked on presence transitions.
func WithPresence(p PresenceAnnouncer) Option {
	return func(m *Manager) { m.presence = p }
}

// WithHeartbeat sets the interval between heartbeat broadcasts. Zero
// disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// WithStaleAfter sets the idle threshold used by the periodic cleanup.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) { m.staleAfter = d }
}

// WithCleanupInterval sets how often stale connections are swept. Zero
// disables the sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(m *Manager) { m.cleanupInterval = d }
}

// WithAnnounceOffline controls whether an offline announcement is made when a
// user's last connection unregisters. Enabled by default.
func WithAnnounceOffline(enabled bool) Option {
	return func(m *Manager) { m.announceOffline = enabled }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

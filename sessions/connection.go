package sessions

import (
	"sync"
	"time"

	"github.com/ggoodman/toolwire/auth"
)

// State is the lifecycle state of a Connection.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Transport is the write side of one live socket. WriteMessage must deliver a
// single complete frame; the Manager serializes calls per connection.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// Connection is one registered socket bound to an authenticated principal.
type Connection struct {
	id            string
	principal     auth.Principal
	establishedAt time.Time
	transport     Transport

	// writeMu serializes writes to transport.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	lastActivity time.Time
}

func (c *Connection) ID() string                { return c.id }
func (c *Connection) Principal() auth.Principal { return c.principal }
func (c *Connection) UserID() string            { return c.principal.ID }
func (c *Connection) EstablishedAt() time.Time  { return c.establishedAt }

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) touch(now time.Time) {
	c.mu.Lock()
	if c.state != StateClosed && now.After(c.lastActivity) {
		c.lastActivity = now
	}
	c.mu.Unlock()
}

func (c *Connection) setOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateOpen
	return true
}

// markClosed transitions to closed and reports whether this call did so.
func (c *Connection) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.state = StateClosed
	return true
}

func (c *Connection) idleSince(now time.Time) time.Duration {
	return now.Sub(c.LastActivity())
}

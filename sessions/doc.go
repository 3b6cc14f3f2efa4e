// Package sessions owns the lifecycle of live connections. A Manager is the
// connection registry: it indexes every open Connection by connection id and
// by user id, sends the welcome frame, broadcasts heartbeats, evicts stale
// connections and announces presence transitions.
//
// Layers & Roles
//
//	Transport  -> writes serialized frames to one socket
//	Connection -> per-socket identity, state and activity bookkeeping
//	Manager    -> registry, delivery (Send, SendToUser, Broadcast), liveness
//
// # Lifecycle
//
// Connections move through connecting, open and closed. Closed is terminal:
// a connection is never reopened and its id is never reused. A failed write
// retires the connection immediately; callers do not retry.
//
// A Manager is an explicit value. Run drives the heartbeat and stale cleanup
// loops until its context ends, and Shutdown closes every connection and
// waits for outstanding presence announcements.
//
// # Presence
//
// When a user's first connection registers, the configured PresenceAnnouncer
// is invoked on a detached goroutine. When the last connection goes away an
// offline announcement is made the same way unless disabled with
// WithAnnounceOffline(false).
package sessions

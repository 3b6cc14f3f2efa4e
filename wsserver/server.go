// Package wsserver exposes the session layer over WebSocket.
//
// A Handler authenticates the upgrade request, registers the socket with the
// session manager and routes every inbound frame: control frames are answered
// inline, tool calls go to the dispatcher, everything else earns an error
// frame. A plain GET asking for JSON receives the capability document.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/gorilla/websocket"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/dispatch"
	"github.com/ggoodman/toolwire/fanout"
	"github.com/ggoodman/toolwire/internal/logctx"
	"github.com/ggoodman/toolwire/protocol"
	"github.com/ggoodman/toolwire/sessions"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10

	// DefaultReadLimit bounds a single inbound frame.
	DefaultReadLimit = 64 << 10

	// ShutdownMessage answers tool calls read after Shutdown has begun.
	ShutdownMessage = "Server shutting down"
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithAllowedOrigins restricts browser origins allowed to upgrade. An empty
// list or "*" allows any origin. Requests without an Origin header are
// always allowed.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Handler) { h.origins = origins }
}

// WithReadLimit sets the maximum inbound frame size in bytes.
func WithReadLimit(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.readLimit = n
		}
	}
}

// WithCookieName sets the cookie consulted for the bearer token.
func WithCookieName(name string) Option {
	return func(h *Handler) { h.extract.CookieName = strings.TrimSpace(name) }
}

// WithQueryParam sets the query parameter consulted for the bearer token.
func WithQueryParam(name string) Option {
	return func(h *Handler) { h.extract.QueryParam = strings.TrimSpace(name) }
}

// WithRealm sets the realm advertised in WWW-Authenticate challenges.
func WithRealm(realm string) Option {
	return func(h *Handler) { h.realm = strings.TrimSpace(realm) }
}

// WithTyping overrides the typing indicator relay.
func WithTyping(t *fanout.Typing) Option {
	return func(h *Handler) { h.typing = t }
}

// WithPresence enables presence_update frames.
func WithPresence(p *fanout.Presence) Option {
	return func(h *Handler) { h.presence = p }
}

// WithCapabilities sets the resource and event lists advertised alongside
// the tool catalog.
func WithCapabilities(resources, events []string) Option {
	return func(h *Handler) {
		h.resources = append([]string(nil), resources...)
		h.events = append([]string(nil), events...)
	}
}

// Handler is an http.Handler serving the WebSocket endpoint.
type Handler struct {
	authn      auth.Authenticator
	manager    *sessions.Manager
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger

	upgrader  websocket.Upgrader
	origins   []string
	readLimit int64
	extract   auth.ExtractOptions
	realm     string

	typing    *fanout.Typing
	presence  *fanout.Presence
	resources []string
	events    []string

	callsMu sync.Mutex
	closing bool
	calls   sync.WaitGroup
}

// New builds a Handler.
func New(authn auth.Authenticator, manager *sessions.Manager, dispatcher *dispatch.Dispatcher, opts ...Option) (*Handler, error) {
	if authn == nil {
		return nil, errors.New("wsserver: nil authenticator")
	}
	if manager == nil {
		return nil, errors.New("wsserver: nil session manager")
	}
	if dispatcher == nil {
		return nil, errors.New("wsserver: nil dispatcher")
	}
	h := &Handler{
		authn:      authn,
		manager:    manager,
		dispatcher: dispatcher,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		readLimit:  DefaultReadLimit,
		resources:  []string{},
		events:     []string{},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.typing == nil {
		h.typing = fanout.NewTyping(manager)
	}
	h.log = logctx.Wrap(h.log)
	h.upgrader = makeUpgrader(h.origins)
	return h, nil
}

func makeUpgrader(allowed []string) websocket.Upgrader {
	allowAll := len(allowed) == 0 || (len(allowed) == 1 && allowed[0] == "*")
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return set[origin]
		},
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
		UserAgent:  r.UserAgent(),
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})
	r = r.WithContext(ctx)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if !websocket.IsWebSocketUpgrade(r) {
		if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil || r.Header.Get("Accept") == "" {
			w.Header().Set("Upgrade", "websocket")
			writeJSONError(w, http.StatusUpgradeRequired, "websocket upgrade required")
			h.log.InfoContext(ctx, "http.upgrade.required")
			return
		}
		h.serveCapabilities(w, r)
		return
	}

	start := time.Now()
	p, err := h.authenticate(r)
	if err != nil {
		w.Header().Set(auth.WWWAuthenticateHeader, auth.Challenge(h.realm, err))
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		h.log.InfoContext(ctx, "handshake.auth.fail", slog.String("reason", auth.Reason(err)))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		h.log.WarnContext(ctx, "handshake.upgrade.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "handshake.ok", slog.String("user_id", p.ID), slog.Duration("dur", time.Since(start)))

	h.serveConn(ctx, conn, p)
}

func (h *Handler) authenticate(r *http.Request) (auth.Principal, error) {
	tok, err := auth.ExtractToken(r, h.extract)
	if err != nil {
		return auth.Principal{}, err
	}
	return h.authn.CheckAuthentication(r.Context(), tok)
}

func (h *Handler) capabilities() protocol.Capabilities {
	return protocol.Capabilities{
		Type:      protocol.TypeCapabilities,
		Tools:     h.dispatcher.Registry().Summaries(),
		Resources: h.resources,
		Events:    h.events,
	}
}

func (h *Handler) serveCapabilities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.capabilities()); err != nil {
		h.log.ErrorContext(r.Context(), "capabilities.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(r.Context(), "capabilities.ok")
}

// serveConn owns conn until the peer goes away.
func (h *Handler) serveConn(ctx context.Context, conn *websocket.Conn, p auth.Principal) {
	c, err := h.manager.Register(ctx, &transport{conn: conn}, p)
	if err != nil {
		h.log.WarnContext(ctx, "session.register.fail", slog.String("err", err.Error()))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "unavailable"),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnectionID: c.ID(), UserID: p.ID})

	done := make(chan struct{})
	defer func() {
		close(done)
		_ = conn.Close()
		h.manager.Unregister(ctx, c)
	}()
	go keepalive(conn, done)

	conn.SetReadLimit(h.readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				h.log.WarnContext(ctx, "conn.read.fail", slog.String("err", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		h.manager.Touch(c)
		h.handleFrame(ctx, c, data)
	}
}

// keepalive pings the peer until done is closed or a ping fails.
func keepalive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// Shutdown stops accepting tool calls and waits for in-flight ones or for
// ctx to end. Calls read after this point are answered with ShutdownMessage.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.callsMu.Lock()
	h.closing = true
	h.callsMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.calls.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

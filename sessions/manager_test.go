package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/toolwire/auth"
	"github.com/ggoodman/toolwire/protocol"
)

// fakeTransport records frames written to it.
type fakeTransport struct {
	mu       sync.Mutex
	frames   [][]byte
	closed   bool
	failNext bool
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	if f.failNext {
		return errors.New("broken pipe")
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(fr, &env); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		out = append(out, env.Type)
	}
	return out
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type recordingPresence struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (r *recordingPresence) AnnounceOnline(_ context.Context, p auth.Principal) {
	r.mu.Lock()
	r.online = append(r.online, p.ID)
	r.mu.Unlock()
}

func (r *recordingPresence) AnnounceOffline(_ context.Context, p auth.Principal) {
	r.mu.Lock()
	r.offline = append(r.offline, p.ID)
	r.mu.Unlock()
}

func user(id string) auth.Principal {
	return auth.Principal{ID: id, Username: id}
}

func mustRegister(t *testing.T, m *Manager, p auth.Principal) (*Connection, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	c, err := m.Register(context.Background(), tr, p)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return c, tr
}

func TestRegister_SendsWelcome(t *testing.T) {
	m := NewManager(WithWelcome("1.2.3", []string{"tools"}, []protocol.ToolSummary{{Name: "follow_user"}}))
	c, tr := mustRegister(t, m, auth.Principal{ID: "u1", Username: "alice", DisplayName: "Alice"})

	if c.State() != StateOpen {
		t.Fatalf("expected open state, got %s", c.State())
	}
	if tr.count() != 1 {
		t.Fatalf("expected one welcome frame, got %d", tr.count())
	}
	var w protocol.Welcome
	if err := json.Unmarshal(tr.frames[0], &w); err != nil {
		t.Fatalf("unmarshal welcome: %v", err)
	}
	if w.Type != protocol.TypeWelcome || w.ConnectionID != c.ID() || w.User.Username != "alice" || w.Version != "1.2.3" {
		t.Fatalf("unexpected welcome: %+v", w)
	}
	if len(w.Tools) != 1 || w.Tools[0].Name != "follow_user" {
		t.Fatalf("unexpected tools: %+v", w.Tools)
	}
}

func TestRegisterUnregister_NoResidualEntries(t *testing.T) {
	m := NewManager()
	const n = 25
	conns := make([]*Connection, 0, n)
	for i := 0; i < n; i++ {
		c, _ := mustRegister(t, m, user("alice"))
		conns = append(conns, c)
	}
	if got := len(m.UserConnections("alice")); got != n {
		t.Fatalf("expected %d connections, got %d", n, got)
	}
	for _, c := range conns {
		m.Unregister(context.Background(), c)
	}
	if m.ConnectionCount() != 0 {
		t.Fatalf("expected empty registry, got %d", m.ConnectionCount())
	}
	m.mu.RLock()
	_, present := m.byUser["alice"]
	m.mu.RUnlock()
	if present {
		t.Fatalf("expected per-user entry to be deleted")
	}
	if m.IsUserOnline("alice") {
		t.Fatalf("expected alice offline")
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	pres := &recordingPresence{}
	m := NewManager(WithPresence(pres))
	c, _ := mustRegister(t, m, user("alice"))

	m.Unregister(context.Background(), c)
	m.Unregister(context.Background(), c)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if c.State() != StateClosed {
		t.Fatalf("expected closed, got %s", c.State())
	}
	pres.mu.Lock()
	defer pres.mu.Unlock()
	if len(pres.offline) != 1 {
		t.Fatalf("expected exactly one offline announcement, got %v", pres.offline)
	}
}

func TestSendToUser_NoConnections(t *testing.T) {
	m := NewManager()
	if n := m.SendToUser(context.Background(), "ghost", protocol.NewEvent("user_followed", nil)); n != 0 {
		t.Fatalf("expected 0 delivered, got %d", n)
	}
}

func TestSendToUser_SurvivesClosingSibling(t *testing.T) {
	m := NewManager()
	c1, _ := mustRegister(t, m, user("alice"))
	_, tr2 := mustRegister(t, m, user("alice"))

	m.Unregister(context.Background(), c1)

	if n := m.SendToUser(context.Background(), "alice", protocol.NewEvent("article_liked", nil)); n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	types := tr2.types(t)
	if types[len(types)-1] != "article_liked" {
		t.Fatalf("expected event on remaining connection, got %v", types)
	}
}

func TestSendToUsers_CountsConnections(t *testing.T) {
	m := NewManager()
	mustRegister(t, m, user("a"))
	mustRegister(t, m, user("a"))
	mustRegister(t, m, user("b"))
	n := m.SendToUsers(context.Background(), []string{"a", "b", "a", "c"}, protocol.NewEvent("x", nil))
	if n != 3 {
		t.Fatalf("expected 3 delivered, got %d", n)
	}
}

func TestBroadcast_ExcludesUser(t *testing.T) {
	m := NewManager()
	_, a1 := mustRegister(t, m, user("alice"))
	_, a2 := mustRegister(t, m, user("alice"))
	_, b := mustRegister(t, m, user("bob"))
	_, c := mustRegister(t, m, user("carol"))

	n := m.Broadcast(context.Background(), protocol.NewEvent("announcement", nil), "alice")
	if n != 2 {
		t.Fatalf("expected 2 delivered, got %d", n)
	}
	for _, tr := range []*fakeTransport{a1, a2} {
		if tr.count() != 1 {
			t.Fatalf("excluded user received broadcast: %v", tr.types(t))
		}
	}
	for _, tr := range []*fakeTransport{b, c} {
		if tr.count() != 2 {
			t.Fatalf("expected welcome + broadcast, got %v", tr.types(t))
		}
	}
}

func TestSend_WriteFailureRetiresConnection(t *testing.T) {
	m := NewManager()
	c, tr := mustRegister(t, m, user("alice"))
	tr.mu.Lock()
	tr.failNext = true
	tr.mu.Unlock()

	err := m.Send(context.Background(), c, protocol.NewPong(time.Now()))
	if !errors.Is(err, ErrTransportWrite) {
		t.Fatalf("expected ErrTransportWrite, got %v", err)
	}
	if c.State() != StateClosed {
		t.Fatalf("expected retired connection, got %s", c.State())
	}
	if m.IsUserOnline("alice") {
		t.Fatalf("expected alice offline after retirement")
	}
	if err := m.Send(context.Background(), c, protocol.NewPong(time.Now())); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed on retired connection, got %v", err)
	}
}

func TestCleanupStaleConnections(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}

	m := NewManager(WithClock(clock))
	idle, idleTr := mustRegister(t, m, user("alice"))
	busy, _ := mustRegister(t, m, user("bob"))

	advance(3 * time.Minute)
	m.Touch(busy)
	advance(3 * time.Minute)

	if n := m.CleanupStaleConnections(5 * time.Minute); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if idle.State() != StateClosed {
		t.Fatalf("expected idle connection closed")
	}
	idleTr.mu.Lock()
	closed := idleTr.closed
	idleTr.mu.Unlock()
	if !closed {
		t.Fatalf("expected idle transport closed")
	}
	if busy.State() != StateOpen {
		t.Fatalf("expected busy connection to survive")
	}
}

func TestHeartbeat_DoesNotCountAsActivity(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	m := NewManager(WithClock(func() time.Time { return now }))
	c, tr := mustRegister(t, m, user("alice"))

	now = start.Add(time.Minute)
	if n := m.Heartbeat(); n != 1 {
		t.Fatalf("expected heartbeat delivered once, got %d", n)
	}
	if got := tr.types(t); got[len(got)-1] != "heartbeat" {
		t.Fatalf("expected heartbeat frame, got %v", got)
	}
	if !c.LastActivity().Equal(start) {
		t.Fatalf("heartbeat bumped last activity to %v", c.LastActivity())
	}
}

func TestPresence_FirstAndLastConnection(t *testing.T) {
	pres := &recordingPresence{}
	m := NewManager(WithPresence(pres))
	c1, _ := mustRegister(t, m, user("alice"))
	c2, _ := mustRegister(t, m, user("alice"))
	m.Unregister(context.Background(), c1)
	m.Unregister(context.Background(), c2)
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	pres.mu.Lock()
	defer pres.mu.Unlock()
	if len(pres.online) != 1 || len(pres.offline) != 1 {
		t.Fatalf("expected one online and one offline, got online=%v offline=%v", pres.online, pres.offline)
	}
}

func TestPresence_OfflineDisabled(t *testing.T) {
	pres := &recordingPresence{}
	m := NewManager(WithPresence(pres), WithAnnounceOffline(false))
	c, _ := mustRegister(t, m, user("alice"))
	m.Unregister(context.Background(), c)
	_ = m.Shutdown(context.Background())

	pres.mu.Lock()
	defer pres.mu.Unlock()
	if len(pres.offline) != 0 {
		t.Fatalf("expected no offline announcement, got %v", pres.offline)
	}
}

func TestShutdown_ClosesAndRejects(t *testing.T) {
	m := NewManager()
	c, _ := mustRegister(t, m, user("alice"))
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if c.State() != StateClosed || m.ConnectionCount() != 0 {
		t.Fatalf("expected all connections closed")
	}
	if _, err := m.Register(context.Background(), &fakeTransport{}, user("bob")); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("expected ErrManagerClosed, got %v", err)
	}
}

func TestSpawn_RefusedAfterShutdown(t *testing.T) {
	m := NewManager()
	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	ran := make(chan struct{}, 1)
	if m.spawn(context.Background(), func(context.Context) { ran <- struct{}{} }) {
		t.Fatalf("spawn accepted a task after shutdown")
	}
	select {
	case <-ran:
		t.Fatalf("task ran after shutdown")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestSpawn_ConcurrentWithShutdown(t *testing.T) {
	m := NewManager()
	var started sync.WaitGroup
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		started.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			started.Done()
			m.spawn(context.Background(), func(context.Context) { time.Sleep(time.Millisecond) })
		}()
	}
	started.Wait()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	wg.Wait()
	if m.spawn(context.Background(), func(context.Context) {}) {
		t.Fatalf("spawn accepted a task after shutdown")
	}
}

func TestConcurrentRegisterSend(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := m.Register(context.Background(), &fakeTransport{}, user("alice"))
			if err != nil {
				t.Errorf("Register: %v", err)
				return
			}
			m.SendToUser(context.Background(), "alice", protocol.NewEvent("x", nil))
			m.Unregister(context.Background(), c)
		}()
	}
	wg.Wait()
	if m.ConnectionCount() != 0 || len(m.OnlineUsers()) != 0 {
		t.Fatalf("expected empty registry after concurrent churn")
	}
}

func TestSendToUserExcept_SkipsOrigin(t *testing.T) {
	m := NewManager()
	origin, originTr := mustRegister(t, m, user("alice"))
	_, otherTr := mustRegister(t, m, user("alice"))

	if n := m.SendToUserExcept(context.Background(), "alice", origin.ID(), protocol.NewEvent("profile_updated", nil)); n != 1 {
		t.Fatalf("expected 1 delivered, got %d", n)
	}
	if originTr.count() != 1 {
		t.Fatalf("origin connection received the event: %v", originTr.types(t))
	}
	if otherTr.count() != 2 {
		t.Fatalf("expected sibling to receive the event: %v", otherTr.types(t))
	}
}

func TestSetPresence_AppliesToLaterRegistrations(t *testing.T) {
	pres := &recordingPresence{}
	m := NewManager()
	mustRegister(t, m, user("early"))
	m.SetPresence(pres)
	mustRegister(t, m, user("late"))
	_ = m.Shutdown(context.Background())

	pres.mu.Lock()
	defer pres.mu.Unlock()
	if len(pres.online) != 1 || pres.online[0] != "late" {
		t.Fatalf("expected only the later user announced, got %v", pres.online)
	}
}

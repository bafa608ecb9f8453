package room

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/providers/providertest"
	"github.com/nextlevelbuilder/roomclaw/internal/sessions"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/store/sqlite"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	if d <= 0 {
		go f()
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	keep := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped:
		case !t.at.After(c.now):
			t.stopped = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	c.timers = keep
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

// recConn records every frame sent to it.
type recConn struct {
	id string

	mu     sync.Mutex
	att    sessions.Session
	frames [][]byte
	fail   bool
}

func newRecConn(id, userID string) *recConn {
	return &recConn{id: id, att: sessions.Session{UserID: userID, OrganizationID: "org"}}
}

func (c *recConn) ID() string { return c.id }

func (c *recConn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("connection closed")
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *recConn) Attachment() sessions.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.att
}

func (c *recConn) SetAttachment(s sessions.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.att = s
}

func (c *recConn) events(t *testing.T) []protocol.Outbound {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Outbound
	for _, f := range c.frames {
		ev, err := protocol.DecodeOutbound(f)
		if err != nil {
			t.Fatalf("decode frame %s: %v", f, err)
		}
		out = append(out, ev)
	}
	return out
}

func (c *recConn) errors(t *testing.T) []protocol.ErrorFrame {
	var out []protocol.ErrorFrame
	for _, ev := range c.events(t) {
		if e, ok := ev.(protocol.ErrorFrame); ok {
			out = append(out, e)
		}
	}
	return out
}

var testEpoch = time.Date(2026, 1, 5, 10, 1, 0, 0, time.UTC)

type harness struct {
	t     *testing.T
	a     *Actor
	clock *fakeClock
	prov  *providertest.Provider
	room  *store.Room

	dbPath string
	wrap   func(store.ActorStore) store.ActorStore
}

const (
	testUser  = "user-1"
	testAgent = "agent-1"
)

type harnessOption func(*harness)

// withStore wraps the actor's store, e.g. to inject failures.
func withStore(wrap func(store.ActorStore) store.ActorStore) harnessOption {
	return func(h *harness) { h.wrap = wrap }
}

// newHarness starts an actor with one room holding testUser and testAgent.
func newHarness(t *testing.T, prov *providertest.Provider, opts ...harnessOption) *harness {
	t.Helper()
	if prov == nil {
		prov = providertest.New()
	}
	h := &harness{
		t:      t,
		clock:  newFakeClock(testEpoch),
		prov:   prov,
		dbPath: filepath.Join(t.TempDir(), "org.db"),
	}
	for _, o := range opts {
		o(h)
	}
	h.start()

	ctx := context.Background()
	if _, err := h.a.CreateAgent(ctx, store.Agent{ID: testAgent, Name: "Ada", Email: "ada@agents.local"}); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	room, err := h.a.CreateChatRoom(ctx, "general", []store.Member{
		{ID: testUser, Type: store.MemberTypeUser, Name: "Uma", Email: "uma@example.com"},
		{ID: testAgent, Type: store.MemberTypeAgent},
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	h.room = room
	return h
}

// start opens the harness database and runs a new actor on it.
func (h *harness) start(conns ...sessions.Conn) {
	h.t.Helper()
	st, err := sqlite.Open(context.Background(), h.dbPath)
	if err != nil {
		h.t.Fatalf("open store: %v", err)
	}
	var as store.ActorStore = st
	if h.wrap != nil {
		as = h.wrap(st)
	}
	a, err := New(Deps{
		OrgID:    "org",
		Store:    as,
		Runner:   agent.NewRunner(agent.RunnerConfig{Provider: h.prov}),
		Selector: agent.NewSelector(h.prov, ""),
		Clock:    h.clock,
		Settings: Settings{DebounceWindow: func() time.Duration { return 3 * time.Second }},
		Conns:    conns,
	})
	if err != nil {
		h.t.Fatalf("new actor: %v", err)
	}
	h.t.Cleanup(a.Stop)
	h.a = a
}

// restart stops the actor and starts a fresh one on the same database, as
// the hub does after a crash or an idle eviction.
func (h *harness) restart(conns ...sessions.Conn) {
	h.t.Helper()
	h.a.Stop()
	h.start(conns...)
}

// do runs fn on the actor loop.
func (h *harness) do(fn func()) {
	h.t.Helper()
	if _, err := call(context.Background(), h.a, func() (struct{}, error) {
		fn()
		return struct{}{}, nil
	}); err != nil {
		h.t.Fatalf("actor call: %v", err)
	}
}

// connect attaches a connection for userID and opens the harness room.
func (h *harness) connect(id, userID string) *recConn {
	h.t.Helper()
	c := newRecConn(id, userID)
	h.a.Attach(c)
	h.a.Handle(c, protocol.ChatRoomInitRequest{RoomID: h.room.ID})
	h.do(func() {})
	return c
}

func (h *harness) say(c *recConn, text string, opts ...func(*protocol.SendMessage)) {
	h.t.Helper()
	msg := protocol.SendMessage{Parts: []store.Part{store.TextPart(text)}}
	for _, o := range opts {
		o(&msg)
	}
	h.a.Handle(c, protocol.ChatRoomMessageSend{RoomID: h.room.ID, Message: msg})
	h.do(func() {})
}

func mentioning(id, name string) func(*protocol.SendMessage) {
	return func(m *protocol.SendMessage) { m.Mentions = append(m.Mentions, store.Mention{ID: id, Name: name}) }
}

func optimistic(id string) func(*protocol.SendMessage) {
	return func(m *protocol.SendMessage) { m.ID = id }
}

func inThread(id int64) func(*protocol.SendMessage) {
	return func(m *protocol.SendMessage) { m.ThreadID = &id }
}

func (h *harness) messages(threadID *int64) []store.Message {
	h.t.Helper()
	var out []store.Message
	var err error
	h.do(func() {
		out, err = h.a.store.Query(h.a.ctx, store.MessageQuery{RoomID: h.room.ID, ThreadID: threadID})
	})
	if err != nil {
		h.t.Fatalf("query messages: %v", err)
	}
	return out
}

// waitFor polls cond on the actor loop.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ok := false
		h.do(func() { ok = cond() })
		if ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.t.Fatalf("timed out waiting for %s", what)
}

// idle waits until no turn or routing call is in flight.
func (h *harness) idle() {
	h.t.Helper()
	h.waitFor("turns to finish", func() bool { return h.a.turns == 0 })
}

func agentMessages(msgs []store.Message) []store.Message {
	var out []store.Message
	for _, m := range msgs {
		if m.MemberID == testAgent {
			out = append(out, m)
		}
	}
	return out
}

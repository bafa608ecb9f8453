package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/providers/providertest"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
)

var errDiskFull = errors.New("database or disk is full")

// failingStore fails a number of upcoming turn writes: content updates and
// thread child appends.
type failingStore struct {
	store.ActorStore

	mu      sync.Mutex
	updates int
	forks   int
}

func (s *failingStore) Update(ctx context.Context, id int64, u store.MessageUpdate) (*store.Message, error) {
	s.mu.Lock()
	fail := u.Parts != nil && s.updates > 0
	if fail {
		s.updates--
	}
	s.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return s.ActorStore.Update(ctx, id, u)
}

func (s *failingStore) Append(ctx context.Context, nm store.NewMessage) (*store.Message, error) {
	s.mu.Lock()
	fail := nm.ThreadID != nil && nm.Status == store.StatusPending && s.forks > 0
	if fail {
		s.forks--
	}
	s.mu.Unlock()
	if fail {
		return nil, errDiskFull
	}
	return s.ActorStore.Append(ctx, nm)
}

func (h *harness) pending() []store.Message {
	h.t.Helper()
	var out []store.Message
	var err error
	h.do(func() { out, err = h.a.store.ListPending(h.a.ctx) })
	if err != nil {
		h.t.Fatalf("list pending: %v", err)
	}
	return out
}

func TestFailedWriteMarksReplyError(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"partial ", "answer"}})
	fs := &failingStore{updates: 1}
	h := newHarness(t, prov, withStore(func(st store.ActorStore) store.ActorStore {
		fs.ActorStore = st
		return fs
	}))
	c := h.connect("c1", testUser)

	h.say(c, "hello", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	replies := agentMessages(h.messages(nil))
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	if replies[0].Status != store.StatusError {
		t.Errorf("status = %s, want error", replies[0].Status)
	}
	statuses := broadcastStatuses(t, c, replies[0].ID)
	if len(statuses) == 0 || statuses[len(statuses)-1] != store.StatusError {
		t.Errorf("broadcast statuses = %v, want ending in error", statuses)
	}
	if p := h.pending(); len(p) != 0 {
		t.Errorf("pending messages left: %+v", p)
	}
}

func TestFailedForkLeavesNothingPending(t *testing.T) {
	prov := providertest.New(
		providertest.Turn{
			Chunks:    []string{"Let me open a thread."},
			ToolCalls: []providers.ToolCall{{ID: "call-1", Name: tools.NameCreateMessageThread, Arguments: map[string]any{}}},
		},
		providertest.Turn{Chunks: []string{"Here are the details."}},
	)
	fs := &failingStore{forks: 1}
	h := newHarness(t, prov, withStore(func(st store.ActorStore) store.ActorStore {
		fs.ActorStore = st
		return fs
	}))
	c := h.connect("c1", testUser)

	h.say(c, "plan the offsite", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	top := agentMessages(h.messages(nil))
	if len(top) != 1 {
		t.Fatalf("top-level agent messages = %d, want 1", len(top))
	}
	if !top[0].Status.Terminal() {
		t.Errorf("root status = %s", top[0].Status)
	}
	if children := h.messages(&top[0].ID); len(children) != 0 {
		t.Errorf("thread messages = %d, want none", len(children))
	}
	if p := h.pending(); len(p) != 0 {
		t.Errorf("pending messages left: %+v", p)
	}
}

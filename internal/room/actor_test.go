package room

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/providers/providertest"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

func TestMessageSendRequiresActiveRoom(t *testing.T) {
	h := newHarness(t, nil)
	c := newRecConn("c1", testUser)
	h.a.Attach(c)
	h.say(c, "hello")

	errs := c.errors(t)
	if len(errs) != 1 || errs[0].Code != string(apperr.KindAuthorization) || errs[0].RequestType != protocol.TypeChatRoomMessageSend {
		t.Fatalf("errors = %+v", errs)
	}
	if got := h.messages(nil); len(got) != 0 {
		t.Errorf("message was stored: %+v", got)
	}
}

func TestChatRoomInitRequiresMembership(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("c1", "stranger")

	errs := c.errors(t)
	if len(errs) != 1 || errs[0].Code != string(apperr.KindAuthorization) {
		t.Fatalf("errors = %+v", errs)
	}
	if c.Attachment().ActiveRoomID != "" {
		t.Errorf("active room set for non-member: %q", c.Attachment().ActiveRoomID)
	}
}

func TestMessageBroadcastToActiveRoom(t *testing.T) {
	h := newHarness(t, nil)
	sender := h.connect("c1", testUser)
	elsewhere := newRecConn("c2", testUser)
	h.a.Attach(elsewhere)

	h.say(sender, "hello")

	var got []protocol.ChatRoomMessageBroadcast
	for _, ev := range sender.events(t) {
		if b, ok := ev.(protocol.ChatRoomMessageBroadcast); ok {
			got = append(got, b)
		}
	}
	if len(got) != 1 || got[0].Message.Text() != "hello" || got[0].Message.Status != store.StatusCompleted {
		t.Fatalf("broadcasts = %+v", got)
	}
	for _, ev := range elsewhere.events(t) {
		if _, ok := ev.(protocol.ChatRoomMessageBroadcast); ok {
			t.Errorf("session without active room received %T", ev)
		}
	}
}

func TestOptimisticMessageIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("c1", testUser)

	h.say(c, "draft", optimistic("opt-1"))
	h.say(c, "final", optimistic("opt-1"))

	msgs := h.messages(nil)
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Text() != "final" {
		t.Errorf("text = %q, want replayed content", msgs[0].Text())
	}
	if od := msgs[0].Metadata.OptimisticData; od == nil || od.ID != "opt-1" {
		t.Errorf("optimistic data = %+v", od)
	}
}

func TestBroadcastFailureRemovesConnection(t *testing.T) {
	h := newHarness(t, nil)
	good := h.connect("good", testUser)
	bad := h.connect("bad", testUser)
	bad.mu.Lock()
	bad.fail = true
	bad.mu.Unlock()

	h.say(good, "hello")

	var n int
	h.do(func() { n = h.a.registry.Len() })
	if n != 1 {
		t.Fatalf("registry len = %d, want 1", n)
	}
	if len(good.errors(t)) != 0 {
		t.Errorf("sender saw errors: %+v", good.errors(t))
	}
}

func TestThreadInitAfterRemovalClearsActiveRoom(t *testing.T) {
	h := newHarness(t, nil)
	c := h.connect("c1", testUser)
	h.say(c, "root")
	root := h.messages(nil)[0]

	if err := h.a.DeleteChatRoomMember(t.Context(), h.room.ID, testUser); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	h.a.Handle(c, protocol.ChatRoomThreadInitRequest{RoomID: h.room.ID, ThreadID: root.ID})
	h.do(func() {})

	errs := c.errors(t)
	if len(errs) != 1 || errs[0].Code != string(apperr.KindAuthorization) {
		t.Fatalf("errors = %+v", errs)
	}
	if got := c.Attachment().ActiveRoomID; got != "" {
		t.Errorf("active room = %q, want cleared", got)
	}
}

func TestThreadInitSetsActiveRoom(t *testing.T) {
	h := newHarness(t, nil)
	opener := h.connect("c1", testUser)
	h.say(opener, "root")
	root := h.messages(nil)[0]

	// A session that opens a thread directly can reply in it.
	c := newRecConn("c2", testUser)
	h.a.Attach(c)
	h.a.Handle(c, protocol.ChatRoomThreadInitRequest{RoomID: h.room.ID, ThreadID: root.ID})
	h.do(func() {})

	if got := c.Attachment().ActiveRoomID; got != h.room.ID {
		t.Fatalf("active room = %q, want %q", got, h.room.ID)
	}
	h.say(c, "reply", inThread(root.ID))
	if errs := c.errors(t); len(errs) != 0 {
		t.Fatalf("errors = %+v", errs)
	}
	if thread := h.messages(&root.ID); len(thread) != 1 || thread[0].Text() != "reply" {
		t.Errorf("thread = %+v", thread)
	}
}

func TestDebounceCollapsesBurstIntoOneTurn(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"Hi ", "there"}})
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "one", mentioning(testAgent, "Ada"))
	h.clock.Advance(time.Second)
	h.say(c, "two")
	h.clock.Advance(time.Second)
	h.say(c, "three")

	if prov.Calls() != 0 {
		t.Fatalf("provider called before the window closed")
	}
	h.clock.Advance(time.Second)
	h.idle()

	if prov.Calls() != 1 {
		t.Fatalf("provider calls = %d, want 1", prov.Calls())
	}
	replies := agentMessages(h.messages(nil))
	if len(replies) != 1 {
		t.Fatalf("agent replies = %d, want 1", len(replies))
	}
	if replies[0].Status != store.StatusCompleted || replies[0].Text() != "Hi there" {
		t.Errorf("reply = %q (%s)", replies[0].Text(), replies[0].Status)
	}

	// The whole burst reached the model as new messages.
	req := prov.Requests[0]
	var newCount int
	for _, m := range req.Messages {
		if m.Role == "user" && strings.Contains(m.Content, `is-new-message="true"`) {
			newCount++
		}
	}
	if newCount != 3 {
		t.Errorf("new messages in prompt = %d, want 3", newCount)
	}

	var m *marker
	h.do(func() { m = h.a.markers[markerKey{roomID: h.room.ID}] })
	if m.processing || m.NextWakeAt != 0 || m.Watermark < replies[0].ID {
		t.Errorf("marker after pass = %+v", *m)
	}
}

func TestLLMRouterPicksAgentWithoutMention(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"On it."}}).
		WithReplies(`{"agentId":"` + testAgent + `"}`)
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "can someone help?")
	h.clock.Advance(3 * time.Second)
	h.idle()

	if prov.Calls() != 2 {
		t.Fatalf("provider calls = %d, want route + turn", prov.Calls())
	}
	replies := agentMessages(h.messages(nil))
	if len(replies) != 1 || replies[0].Text() != "On it." {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestRouterNoneLeavesRoomQuiet(t *testing.T) {
	prov := providertest.New()
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "just thinking out loud")
	h.clock.Advance(3 * time.Second)
	h.idle()

	if got := agentMessages(h.messages(nil)); len(got) != 0 {
		t.Errorf("agent replied: %+v", got)
	}
	var armed time.Time
	h.do(func() { armed = h.a.armedAt })
	if !armed.IsZero() {
		t.Errorf("alarm still armed at %v", armed)
	}
}

func TestGenerationErrorMarksMessage(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"partial"}, Err: errors.New("upstream reset")})
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "hello", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	replies := agentMessages(h.messages(nil))
	if len(replies) != 1 {
		t.Fatalf("replies = %d", len(replies))
	}
	if replies[0].Status != store.StatusError {
		t.Errorf("status = %s, want error", replies[0].Status)
	}
	if replies[0].Text() != "partial" {
		t.Errorf("text = %q, want partial output kept", replies[0].Text())
	}
}

func TestThreadCreationForksResponse(t *testing.T) {
	prov := providertest.New(
		providertest.Turn{
			Chunks:    []string{"Let me open a thread."},
			ToolCalls: []providers.ToolCall{{ID: "call-1", Name: tools.NameCreateMessageThread, Arguments: map[string]any{}}},
		},
		providertest.Turn{Chunks: []string{"Here are the details."}},
	)
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "plan the offsite", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	top := agentMessages(h.messages(nil))
	if len(top) != 1 {
		t.Fatalf("top-level agent messages = %d, want 1", len(top))
	}
	root := top[0]
	if root.Status != store.StatusCompleted || len(root.Parts) != 3 {
		t.Fatalf("root = %s with %d parts", root.Status, len(root.Parts))
	}
	if last := root.Parts[2]; last.Type != store.PartToolResult || last.ToolName != tools.NameCreateMessageThread {
		t.Errorf("root does not end with the thread tool result: %+v", last)
	}
	if root.ThreadMetadata == nil || root.ThreadMetadata.MessageCount != 1 {
		t.Errorf("thread metadata = %+v", root.ThreadMetadata)
	}

	children := h.messages(&root.ID)
	if len(children) != 1 {
		t.Fatalf("thread messages = %d, want 1", len(children))
	}
	child := children[0]
	if child.MemberID != testAgent || child.Status != store.StatusCompleted || child.Text() != "Here are the details." {
		t.Errorf("child = %q by %s (%s)", child.Text(), child.MemberID, child.Status)
	}
	if child.ID <= root.ID {
		t.Errorf("child id %d not after root %d", child.ID, root.ID)
	}
}

func TestThreadCallEndingTurnOpensNoEmptyChild(t *testing.T) {
	prov := providertest.New(
		providertest.Turn{
			Chunks:    []string{"Opening a thread."},
			ToolCalls: []providers.ToolCall{{ID: "call-1", Name: tools.NameCreateMessageThread, Arguments: map[string]any{}}},
		},
		providertest.Turn{},
	)
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "plan the offsite", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	top := agentMessages(h.messages(nil))
	if len(top) != 1 {
		t.Fatalf("top-level agent messages = %d, want 1", len(top))
	}
	root := top[0]
	if root.Status != store.StatusCompleted || len(root.Parts) != 3 {
		t.Fatalf("root = %s with %d parts", root.Status, len(root.Parts))
	}
	if children := h.messages(&root.ID); len(children) != 0 {
		t.Errorf("thread messages = %d, want none: %+v", len(children), children)
	}
}

func TestThreadReplyContinuesWithThreadAgent(t *testing.T) {
	prov := providertest.New(
		providertest.Turn{Chunks: []string{"First answer."}},
		providertest.Turn{Chunks: []string{"In-thread answer."}},
		providertest.Turn{Chunks: []string{"Follow-up answer."}},
	)
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "question", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()
	question := h.messages(nil)[0]

	h.say(c, "in thread", inThread(question.ID), mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.idle()

	// No mention: the agent that already spoke in the thread answers
	// without a routing call.
	h.say(c, "more please", inThread(question.ID))
	h.clock.Advance(3 * time.Second)
	h.idle()

	thread := agentMessages(h.messages(&question.ID))
	if len(thread) != 2 {
		t.Fatalf("thread agent messages = %d, want 2", len(thread))
	}
	if thread[1].Text() != "Follow-up answer." {
		t.Errorf("follow-up = %q", thread[1].Text())
	}
	if prov.Calls() != 3 {
		t.Errorf("provider calls = %d, want 3 streamed turns", prov.Calls())
	}
}

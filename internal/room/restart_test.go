package room

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/providers/providertest"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

// broadcastStatuses returns the statuses broadcast to c for message id, in order.
func broadcastStatuses(t *testing.T, c *recConn, id int64) []store.MessageStatus {
	t.Helper()
	var out []store.MessageStatus
	for _, ev := range c.events(t) {
		if b, ok := ev.(protocol.ChatRoomMessageBroadcast); ok && b.Message != nil && b.Message.ID == id {
			out = append(out, b.Message.Status)
		}
	}
	return out
}

func completedReplies(msgs []store.Message) int {
	n := 0
	for _, m := range agentMessages(msgs) {
		if m.Status == store.StatusCompleted {
			n++
		}
	}
	return n
}

func TestRestartMidTurnFailsPendingAndAnswersAgain(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	prov := providertest.New(
		providertest.Turn{Chunks: []string{"thinking"}, Gate: gate},
		providertest.Turn{Chunks: []string{"Back online."}},
	)
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "status report?", mentioning(testAgent, "Ada"))
	h.clock.Advance(3 * time.Second)
	h.waitFor("turn to reach the model", func() bool { return prov.Calls() == 1 })

	var stranded int64
	h.do(func() {
		msgs, _ := h.a.store.Query(h.a.ctx, store.MessageQuery{RoomID: h.room.ID})
		if replies := agentMessages(msgs); len(replies) == 1 {
			stranded = replies[0].ID
		}
	})
	if stranded == 0 {
		t.Fatal("no pending reply while the turn is in flight")
	}

	h.restart(c)
	h.waitFor("the batch to be answered again", func() bool {
		msgs, err := h.a.store.Query(h.a.ctx, store.MessageQuery{RoomID: h.room.ID})
		return err == nil && completedReplies(msgs) == 1 && h.a.turns == 0
	})

	replies := agentMessages(h.messages(nil))
	if len(replies) != 2 {
		t.Fatalf("agent messages = %d, want 2", len(replies))
	}
	if replies[0].ID != stranded || replies[0].Status != store.StatusError {
		t.Errorf("stranded reply %d = %s, want error", replies[0].ID, replies[0].Status)
	}
	if replies[1].Text() != "Back online." {
		t.Errorf("new reply = %q", replies[1].Text())
	}
	statuses := broadcastStatuses(t, c, stranded)
	if len(statuses) == 0 || statuses[len(statuses)-1] != store.StatusError {
		t.Errorf("broadcast statuses of stranded reply = %v, want ending in error", statuses)
	}
}

func TestRestartKeepsArmedMarker(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"Good morning."}})
	h := newHarness(t, prov)
	c := h.connect("c1", testUser)

	h.say(c, "morning", mentioning(testAgent, "Ada"))
	h.restart(c)

	var armed time.Time
	h.do(func() { armed = h.a.armedAt })
	if want := testEpoch.Add(3 * time.Second); !armed.Equal(want) {
		t.Fatalf("alarm armed at %v, want %v", armed, want)
	}
	if prov.Calls() != 0 {
		t.Fatalf("model called before the debounce elapsed")
	}

	h.clock.Advance(3 * time.Second)
	h.idle()

	replies := agentMessages(h.messages(nil))
	if len(replies) != 1 || replies[0].Text() != "Good morning." || replies[0].Status != store.StatusCompleted {
		t.Fatalf("replies = %+v", replies)
	}
}

func TestRestartKeepsActiveWorkflow(t *testing.T) {
	prov := providertest.New(providertest.Turn{Chunks: []string{"Report posted."}})
	h := newHarness(t, prov)

	wf, err := h.createWorkflow("*/5 * * * *")
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
	h.restart()

	firstRun := time.Date(2026, 1, 5, 10, 5, 0, 0, time.UTC)
	var armed time.Time
	h.do(func() { armed = h.a.armedAt })
	if !armed.Equal(firstRun) {
		t.Fatalf("alarm armed at %v, want %v", armed, firstRun)
	}

	h.clock.Advance(4 * time.Minute)
	h.idle()

	top := agentMessages(h.messages(nil))
	if len(top) != 1 {
		t.Fatalf("workflow roots = %d, want 1", len(top))
	}
	thread := h.messages(&top[0].ID)
	if len(thread) != 1 || thread[0].Text() != "Report posted." {
		t.Fatalf("thread = %+v", thread)
	}

	var got *store.Workflow
	h.do(func() { got, err = h.a.store.GetWorkflow(h.a.ctx, wf.ID) })
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.LastExecutionTime == nil || *got.LastExecutionTime != firstRun.UnixMilli() {
		t.Errorf("last execution = %v", got.LastExecutionTime)
	}
}

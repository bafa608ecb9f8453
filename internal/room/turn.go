package room

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
	"github.com/nextlevelbuilder/roomclaw/pkg/protocol"
)

type turnPlan struct {
	ctx      context.Context
	agent    *store.Agent
	roomID   string
	threadID *int64
	system   string
	messages []providers.Message
	// exclude lists built-in tools not offered in this turn.
	exclude []string
	fork    bool
	// done runs on the loop when the turn ends, with the id of the turn's
	// first message.
	done func(first int64, err error)
}

// turn is one in-flight agent generation. Fields other than the snapshot
// slot are owned by the loop.
type turn struct {
	a       *Actor
	plan    turnPlan
	state   *streamState
	first   int64
	current *store.Message

	mu        sync.Mutex
	latest    []store.Part
	scheduled bool
}

// startChatTurn runs agentID's reply to a batch in the batch's thread.
func (a *Actor) startChatTurn(k markerKey, agentID string, history, batch []store.Message, done func(int64, error)) {
	ag, err := a.store.GetAgent(a.ctx, agentID)
	if err != nil {
		done(0, err)
		return
	}
	threadID := k.threadPtr()
	plan := turnPlan{
		ctx:      a.ctx,
		agent:    ag,
		roomID:   k.roomID,
		threadID: threadID,
		system:   agent.SystemPrompt(ag, k.roomID, threadID, a.clock.Now()),
		messages: agent.ToModelMessages(history, batch, ag.ID),
		fork:     threadID == nil,
		done:     done,
	}
	if threadID != nil {
		plan.exclude = []string{tools.NameCreateMessageThread}
	}
	a.startTurn(plan)
}

// startTurn places the pending message and runs the generation off the loop.
func (a *Actor) startTurn(plan turnPlan) {
	m, err := a.store.Append(a.ctx, store.NewMessage{
		RoomID:   plan.roomID,
		MemberID: plan.agent.ID,
		Parts:    []store.Part{},
		ThreadID: plan.threadID,
		Status:   store.StatusPending,
	})
	if err != nil {
		plan.done(0, err)
		return
	}
	a.publishAppended(m)

	servers, err := a.store.ListServers(a.ctx)
	if err != nil {
		slog.Warn("turn.mcp.list_failed", "org", a.orgID, "error", err)
	}

	t := &turn{a: a, plan: plan, state: newStreamState(plan.fork), first: m.ID, current: m}
	a.turns++
	slog.Info("turn.started", "org", a.orgID, "room", plan.roomID, "agent", plan.agent.ID, "message", m.ID)
	go t.run(servers)
}

// publishAppended broadcasts a new message and, for a thread reply, the
// root whose count changed.
func (a *Actor) publishAppended(m *store.Message) {
	a.publishMessage(m)
	if m.ThreadID != nil && !m.Status.Terminal() {
		a.publishRoot(m.RoomID, *m.ThreadID)
	}
}

func (t *turn) run(servers []store.MCPServerData) {
	ctx := t.plan.ctx
	registry := t.a.turnTools(t.plan.exclude)

	if t.a.mcp != nil && len(t.plan.agent.MCPSelection) > 0 {
		sess, err := t.a.mcp.Open(ctx, servers, t.plan.agent.MCPSelection)
		if err != nil {
			slog.Warn("turn.mcp.open_failed", "org", t.a.orgID, "agent", t.plan.agent.ID, "error", err)
		}
		defer sess.Close()
		for _, tool := range sess.Tools() {
			if registry.Has(tool.Name()) {
				continue
			}
			registry.Register(tool)
		}
	}

	parts, err := t.a.runner.Run(ctx, agent.Turn{
		Agent:    t.plan.agent,
		RoomID:   t.plan.roomID,
		ThreadID: t.plan.threadID,
		System:   t.plan.system,
		Messages: t.plan.messages,
		Tools:    registry,
	}, t.offer)

	t.a.post(func() { t.finish(parts, err) })
}

// offer stores the latest snapshot and schedules one flush; snapshots that
// arrive before the flush runs replace each other.
func (t *turn) offer(parts []store.Part) {
	t.mu.Lock()
	t.latest = parts
	pending := t.scheduled
	t.scheduled = true
	t.mu.Unlock()
	if !pending {
		t.a.post(t.flush)
	}
}

func (t *turn) flush() {
	t.mu.Lock()
	parts := t.latest
	t.latest = nil
	t.scheduled = false
	t.mu.Unlock()
	if parts == nil {
		return
	}
	t.apply(t.state.next(parts))
}

func (t *turn) finish(parts []store.Part, err error) {
	t.a.turns--
	if err != nil {
		slog.Warn("turn.failed", "org", t.a.orgID, "room", t.plan.roomID, "agent", t.plan.agent.ID, "error", err)
	} else {
		slog.Info("turn.completed", "org", t.a.orgID, "room", t.plan.roomID, "agent", t.plan.agent.ID, "parts", len(parts))
	}
	t.apply(t.state.close(parts, err != nil))
	t.plan.done(t.first, err)
}

func (t *turn) apply(ops []streamOp) {
	a := t.a
	for _, op := range ops {
		updated, err := a.store.Update(a.ctx, t.current.ID, store.MessageUpdate{Parts: op.parts, Status: op.status})
		if err != nil {
			slog.Error("turn.message.update_failed", "org", a.orgID, "message", t.current.ID, "error", err)
			t.abort()
			return
		}
		t.current = updated
		a.publishMessage(updated)

		if op.kind != opFork {
			continue
		}
		rootID := updated.ID
		child, err := a.store.Append(a.ctx, store.NewMessage{
			RoomID:   t.plan.roomID,
			MemberID: t.plan.agent.ID,
			Parts:    orEmpty(op.child),
			ThreadID: &rootID,
			Status:   store.StatusPending,
		})
		if err != nil {
			slog.Error("turn.thread.fork_failed", "org", a.orgID, "root", rootID, "error", err)
			t.abort()
			return
		}
		slog.Info("turn.thread.forked", "org", a.orgID, "root", rootID, "message", child.ID)
		t.current = child
		a.publishAppended(child)
	}
}

// abort stops reducing further snapshots and, if the open message is still
// pending, marks it failed so it does not stay pending forever.
func (t *turn) abort() {
	t.state.abort()
	if t.current.Status.Terminal() {
		return
	}
	a := t.a
	failed, err := a.store.Update(a.ctx, t.current.ID, store.MessageUpdate{Status: store.StatusError})
	if err != nil {
		slog.Error("turn.message.fail_failed", "org", a.orgID, "message", t.current.ID, "error", err)
		return
	}
	t.current = failed
	a.publishMessage(failed)
}

// turnTools builds the built-in tool set of a turn.
func (a *Actor) turnTools(exclude []string) *tools.Registry {
	host := toolHost{a: a}
	return tools.NewRegistry(
		tools.NewCreateThreadTool(),
		tools.NewCreateDocumentTool(host),
		tools.NewScheduleWorkflowTool(host),
	).Without(exclude...)
}

// toolHost runs tool side effects on the loop from a turn goroutine.
type toolHost struct{ a *Actor }

func (h toolHost) CreateAgentDocument(ctx context.Context, roomID, agentID, title, content string) (*store.Document, error) {
	return call(ctx, h.a, func() (*store.Document, error) {
		return h.a.createDocument(roomID, agentID, store.MemberTypeAgent, title, content)
	})
}

func (h toolHost) CreateWorkflow(ctx context.Context, req tools.WorkflowRequest) (*store.Workflow, error) {
	return call(ctx, h.a, func() (*store.Workflow, error) {
		return h.a.createWorkflow(req)
	})
}

func (a *Actor) createDocument(roomID, memberID string, memberType store.MemberType, title, content string) (*store.Document, error) {
	d := &store.Document{
		ID:                  store.GenNewID(),
		RoomID:              roomID,
		Title:               title,
		Content:             content,
		CreatedAt:           a.clock.Now().UnixMilli(),
		CreatedByMemberID:   memberID,
		CreatedByMemberType: memberType,
	}
	if err := a.store.CreateDocument(a.ctx, d); err != nil {
		return nil, err
	}
	slog.Info("room.document.created", "org", a.orgID, "room", roomID, "document", d.ID)
	a.publishDocuments(roomID)
	return d, nil
}

func (a *Actor) publishDocuments(roomID string) {
	docs, err := a.store.ListDocumentsForRoom(a.ctx, roomID)
	if err != nil {
		slog.Warn("room.documents.load_failed", "org", a.orgID, "room", roomID, "error", err)
		return
	}
	a.toRoom(roomID, protocol.ChatRoomDocumentsUpdate{RoomID: roomID, Documents: orEmpty(docs)})
}

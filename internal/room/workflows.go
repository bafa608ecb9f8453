package room

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nextlevelbuilder/roomclaw/internal/agent"
	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/providers"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
	"github.com/nextlevelbuilder/roomclaw/internal/tools"
	"github.com/nextlevelbuilder/roomclaw/internal/tracing"
	"github.com/nextlevelbuilder/roomclaw/internal/workflow"
)

// createWorkflow validates and persists a workflow and arms its first run.
func (a *Actor) createWorkflow(req tools.WorkflowRequest) (*store.Workflow, error) {
	now := a.clock.Now()
	sched, err := workflow.Parse(req.ScheduleExpression, now)
	if err != nil {
		return nil, err
	}
	steps, err := workflow.ValidateSteps(req.Steps)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.GetRoom(a.ctx, req.RoomID); err != nil {
		return nil, err
	}

	wf := &store.Workflow{
		ID:                 store.GenNewID(),
		AgentID:            req.AgentID,
		ChatRoomID:         req.RoomID,
		Goal:               req.Goal,
		Steps:              steps,
		ScheduleExpression: sched.Expression,
		IsRecurring:        sched.Recurring,
		NextExecutionTime:  sched.Next.UnixMilli(),
		IsActive:           true,
		CreatedAt:          now.UnixMilli(),
		UpdatedAt:          now.UnixMilli(),
	}
	if err := a.store.CreateWorkflow(a.ctx, wf); err != nil {
		return nil, err
	}
	a.alarm.set(workflowObligation(wf.ID), sched.Next)
	a.rearm()
	slog.Info("workflow.scheduled", "org", a.orgID, "workflow", wf.ID, "room", wf.ChatRoomID, "schedule", sched.Describe())
	return wf, nil
}

// fireWorkflow commits the workflow's next state, then runs it. The commit
// comes first so a slow turn can never fire the same occurrence twice.
func (a *Actor) fireWorkflow(id string) {
	wf, err := a.store.GetWorkflow(a.ctx, id)
	if err != nil {
		slog.Warn("workflow.load_failed", "org", a.orgID, "workflow", id, "error", err)
		return
	}
	if !wf.IsActive {
		return
	}

	now := a.clock.Now()
	next, active := wf.NextExecutionTime, false
	if wf.IsRecurring {
		at, err := workflow.NextAfter(wf.ScheduleExpression, now)
		if err != nil {
			slog.Error("workflow.reschedule_failed", "org", a.orgID, "workflow", id, "error", err)
		} else {
			next, active = at.UnixMilli(), true
		}
	}
	if err := a.store.RecordWorkflowRun(a.ctx, id, now.UnixMilli(), next, active); err != nil {
		slog.Error("workflow.commit_failed", "org", a.orgID, "workflow", id, "error", err)
		return
	}
	if active {
		a.alarm.set(workflowObligation(id), time.UnixMilli(next))
	}

	ctx, span := tracing.Start(a.ctx, "workflow.fire",
		attribute.String("workflow.id", id),
		attribute.String("room.id", wf.ChatRoomID),
		attribute.String("agent.id", wf.AgentID),
	)
	slog.Info("workflow.fired", "org", a.orgID, "workflow", id, "room", wf.ChatRoomID, "recurring", wf.IsRecurring)
	if err := a.runWorkflow(ctx, wf, func(_ int64, err error) {
		tracing.End(span, err)
		if err != nil {
			slog.Warn("workflow.run_failed", "org", a.orgID, "workflow", id, "error", err)
		}
	}); err != nil {
		tracing.End(span, err)
		slog.Error("workflow.fire_failed", "org", a.orgID, "workflow", id, "error", err)
	}
}

// runWorkflow routes the workflow goal to its agent, opens the workflow
// thread and starts the turn inside it.
func (a *Actor) runWorkflow(ctx context.Context, wf *store.Workflow, done func(int64, error)) error {
	members, err := a.store.ListMembers(a.ctx, wf.ChatRoomID)
	if err != nil {
		return err
	}
	goal := store.Message{
		RoomID:   wf.ChatRoomID,
		Parts:    []store.Part{store.TextPart(wf.Goal)},
		Mentions: []store.Mention{{ID: wf.AgentID}},
	}
	agentID, ok := resolveLocal([]store.Message{goal}, nil, agentMembers(members), false)
	if !ok {
		return apperr.NotFound("agent %s is not a member of room %s", wf.AgentID, wf.ChatRoomID)
	}
	ag, err := a.store.GetAgent(a.ctx, agentID)
	if err != nil {
		return err
	}

	callID := "call_" + store.GenNewID()
	root, err := a.store.Append(a.ctx, store.NewMessage{
		RoomID:   wf.ChatRoomID,
		MemberID: ag.ID,
		Parts: []store.Part{
			store.TextPart(agent.WorkflowRootText(wf.Goal)),
			{Type: store.PartToolCall, ToolCallID: callID, ToolName: tools.NameCreateMessageThread, Input: json.RawMessage(`{}`)},
			{Type: store.PartToolResult, ToolCallID: callID, ToolName: tools.NameCreateMessageThread, Output: json.RawMessage(`{"success":true}`)},
		},
		Status: store.StatusCompleted,
	})
	if err != nil {
		return err
	}
	a.publishMessage(root)

	threadID := root.ID
	a.startTurn(turnPlan{
		ctx:      ctx,
		agent:    ag,
		roomID:   wf.ChatRoomID,
		threadID: &threadID,
		system:   agent.WorkflowSystemPrompt(ag, wf.ChatRoomID, threadID, a.clock.Now()),
		messages: []providers.Message{{Role: "user", Content: agent.WorkflowUserPrompt(wf)}},
		exclude:  []string{tools.NameCreateMessageThread, tools.NameScheduleWorkflow},
		done:     done,
	})
	return nil
}

package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/roomclaw/internal/apperr"
	"github.com/nextlevelbuilder/roomclaw/internal/store"
)

// WorkflowRequest is a validated-by-the-host scheduling request.
type WorkflowRequest struct {
	RoomID             string
	AgentID            string
	Goal               string
	ScheduleExpression string
	Steps              []store.WorkflowStep
}

// WorkflowCreator validates, persists and arms a workflow.
type WorkflowCreator interface {
	CreateWorkflow(ctx context.Context, req WorkflowRequest) (*store.Workflow, error)
}

type ScheduleWorkflowTool struct {
	workflows WorkflowCreator
}

func NewScheduleWorkflowTool(workflows WorkflowCreator) *ScheduleWorkflowTool {
	return &ScheduleWorkflowTool{workflows: workflows}
}

func (t *ScheduleWorkflowTool) Name() string { return NameScheduleWorkflow }

func (t *ScheduleWorkflowTool) Description() string {
	return "Schedule a multi-step workflow to run at a specific time or on a recurring schedule. " +
		"Use an ISO 8601 time (UTC) for a one-off run or a cron string like '0 9 * * 1' (UTC) for a recurring one."
}

func (t *ScheduleWorkflowTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scheduleExpression": map[string]any{
				"type":        "string",
				"description": "ISO 8601 time for a one-off run, or a cron expression for a recurring run.",
			},
			"goal": map[string]any{
				"type":        "string",
				"description": "The goal of the workflow.",
			},
			"steps": map[string]any{
				"type":        "array",
				"description": "Ordered steps to carry out.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"order":       map[string]any{"type": "integer"},
						"instruction": map[string]any{"type": "string"},
						"toolName":    map[string]any{"type": "string"},
					},
					"required": []string{"order", "instruction"},
				},
			},
		},
		"required": []string{"scheduleExpression", "goal", "steps"},
	}
}

func (t *ScheduleWorkflowTool) Execute(ctx context.Context, args map[string]any) *Result {
	var steps []store.WorkflowStep
	if raw, ok := args["steps"]; ok {
		data, _ := json.Marshal(raw)
		if err := json.Unmarshal(data, &steps); err != nil {
			return t.fail(apperr.Invalid("steps must be a list of {order, instruction, toolName?}"))
		}
	}

	wf, err := t.workflows.CreateWorkflow(ctx, WorkflowRequest{
		RoomID:             ToolRoomIDFromCtx(ctx),
		AgentID:            ToolAgentIDFromCtx(ctx),
		Goal:               stringArg(args, "goal"),
		ScheduleExpression: stringArg(args, "scheduleExpression"),
		Steps:              steps,
	})
	if err != nil {
		return t.fail(err)
	}
	return JSONResult(map[string]any{
		"success":    true,
		"workflowId": wf.ID,
		"nextRun":    time.UnixMilli(wf.NextExecutionTime).UTC().Format(time.RFC3339),
	})
}

func (t *ScheduleWorkflowTool) fail(err error) *Result {
	r := JSONResult(map[string]any{"success": false, "error": apperr.MessageOf(err), "code": string(apperr.KindOf(err))})
	r.IsError = true
	return r.WithError(err)
}

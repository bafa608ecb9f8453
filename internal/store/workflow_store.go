package store

import "context"

const (
	WorkflowStepsVersion = 1
	WorkflowStepsType    = "workflowSteps"
)

// WorkflowStep is one instruction of a workflow plan.
type WorkflowStep struct {
	Order       int    `json:"order"`
	Instruction string `json:"instruction"`
	ToolName    string `json:"toolName,omitempty"`
}

// WorkflowSteps is the versioned step list persisted with a workflow.
type WorkflowSteps struct {
	Version int            `json:"version"`
	Type    string         `json:"type"`
	Steps   []WorkflowStep `json:"steps"`
}

// Workflow is a scheduled task run by an agent inside its own thread.
type Workflow struct {
	ID                 string        `json:"id"`
	AgentID            string        `json:"agentId"`
	ChatRoomID         string        `json:"chatRoomId"`
	Goal               string        `json:"goal"`
	Steps              WorkflowSteps `json:"steps"`
	ScheduleExpression string        `json:"scheduleExpression"`
	IsRecurring        bool          `json:"isRecurring"`
	NextExecutionTime  int64         `json:"nextExecutionTime"`
	LastExecutionTime  *int64        `json:"lastExecutionTime"`
	IsActive           bool          `json:"isActive"`
	CreatedAt          int64         `json:"createdAt"`
	UpdatedAt          int64         `json:"updatedAt"`
}

// WorkflowStore persists workflows.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, w *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflowsForRoom(ctx context.Context, roomID string) ([]Workflow, error)
	ListActiveWorkflows(ctx context.Context) ([]Workflow, error)
	// RecordWorkflowRun stamps lastExecutionTime and stores the next schedule state.
	RecordWorkflowRun(ctx context.Context, id string, ranAt, next int64, active bool) error
	DeleteWorkflow(ctx context.Context, id string) error
}

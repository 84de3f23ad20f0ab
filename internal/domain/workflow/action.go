package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ActionType discriminates the operations a caller can apply to an instance.
type ActionType string

const (
	ActionStartWorkflow       ActionType = "start_workflow"
	ActionStartStep           ActionType = "start_step"
	ActionCompleteStep        ActionType = "complete_step"
	ActionOverrideCurrentStep ActionType = "override_current_step"
)

// Action is one operation against a workflow instance. StepID names an
// instance step and is required for every type except start_workflow.
type Action struct {
	Type   ActionType `json:"type"`
	StepID *uuid.UUID `json:"step_id,omitempty"`
}

func (a Action) String() string {
	if a.StepID == nil {
		return string(a.Type)
	}
	return fmt.Sprintf("%s(%s)", a.Type, a.StepID)
}

// Equal reports whether two actions name the same operation on the same step.
func (a Action) Equal(other Action) bool {
	if a.Type != other.Type {
		return false
	}
	if (a.StepID == nil) != (other.StepID == nil) {
		return false
	}
	return a.StepID == nil || *a.StepID == *other.StepID
}

// ErrOverrideNotSupported is returned for every override_current_step action.
// The operation is reserved for manual overrides and must fail loudly rather
// than silently succeed.
var ErrOverrideNotSupported = errors.New("workflow: override_current_step is not implemented")

// InvalidWorkflowActionError reports an action that is not legal in the
// instance's current state, along with the actions that were legal when the
// attempt was made. A stale concurrent writer sees its action missing from
// the available set.
type InvalidWorkflowActionError struct {
	Attempted Action
	Available []Action
}

func (e *InvalidWorkflowActionError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("workflow: action %s is not available (no actions are currently legal)", e.Attempted)
	}
	legal := make([]string, 0, len(e.Available))
	for _, a := range e.Available {
		legal = append(legal, a.String())
	}
	return fmt.Sprintf("workflow: action %s is not available (legal actions: %s)",
		e.Attempted, strings.Join(legal, ", "))
}

// EventType enumerates the replayable workflow event records.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventStepStarted       EventType = "step_started"
	EventStepCompleted     EventType = "step_completed"
	EventStepTransition    EventType = "step_transition"
)

// Event is one ordered record of a status or step-pointer transition.
// StepID is set for step_started/step_completed; FromStepID and ToStepID
// describe step_transition edges (nil means no step, i.e. workflow start or
// end). Timestamp is omitted when the runner is configured not to record
// them.
type Event struct {
	Type       EventType  `json:"type"`
	StepID     *uuid.UUID `json:"step_id,omitempty"`
	FromStepID *uuid.UUID `json:"from_step_id,omitempty"`
	ToStepID   *uuid.UUID `json:"to_step_id,omitempty"`
	Timestamp  *int64     `json:"timestamp,omitempty"`
}

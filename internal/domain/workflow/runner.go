package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Planner derives the set of actions legal against an instance in its
// current state. It is a pure read; querying it never mutates anything.
type Planner struct{}

// AvailableActions returns exactly the actions that Apply would accept next,
// in a stable order. The list is empty once the instance is terminal.
func (Planner) AvailableActions(v *View) []Action {
	switch v.Instance.Status {
	case InstanceCompleted, InstanceCancelled:
		return nil
	case InstancePending:
		if v.Instance.CurrentStepID == nil {
			return []Action{{Type: ActionStartWorkflow}}
		}
		return nil
	case InstanceActive:
		cur := v.CurrentStep()
		if cur == nil {
			return nil
		}
		switch cur.Status {
		case StepActive:
			id := cur.ID
			return []Action{{Type: ActionCompleteStep, StepID: &id}}
		case StepPending:
			id := cur.ID
			return []Action{{Type: ActionStartStep, StepID: &id}}
		case StepCompleted:
			// Branch resolution stalled after this step completed; the
			// caller picks the next step among its pending branch targets.
			var actions []Action
			for _, target := range v.BranchTargets(cur) {
				if target.Status == StepPending {
					id := target.ID
					actions = append(actions, Action{Type: ActionStartStep, StepID: &id})
				}
			}
			return actions
		}
	}
	return nil
}

// Runner applies actions to a workflow instance. It owns every mutation of
// instance status, the current-step pointer, and step statuses, and appends
// one ordered event per transition to the invocation's event log. A Runner
// holds no per-instance state; construct one per call or share freely.
type Runner struct {
	planner   Planner
	evaluator RuleEvaluator
	clock     func() time.Time

	// recordTimestamps controls whether emitted events carry timestamps;
	// disable for deterministic event comparison in tests.
	recordTimestamps bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock substitutes the time source.
func WithClock(clock func() time.Time) RunnerOption {
	return func(r *Runner) { r.clock = clock }
}

// WithoutEventTimestamps emits events with no timestamp field.
func WithoutEventTimestamps() RunnerOption {
	return func(r *Runner) { r.recordTimestamps = false }
}

func NewRunner(evaluator RuleEvaluator, opts ...RunnerOption) *Runner {
	r := &Runner{
		evaluator:        evaluator,
		clock:            time.Now,
		recordTimestamps: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Apply validates an action against the currently available set and applies
// it, mutating the view's instance and returning the ordered events the
// transition produced. An action outside the available set fails with
// *InvalidWorkflowActionError and leaves the instance untouched.
// override_current_step always fails with ErrOverrideNotSupported.
func (r *Runner) Apply(ctx context.Context, v *View, action Action) ([]Event, error) {
	if action.Type == ActionOverrideCurrentStep {
		return nil, ErrOverrideNotSupported
	}

	available := r.planner.AvailableActions(v)
	if !actionAvailable(available, action) {
		return nil, &InvalidWorkflowActionError{Attempted: action, Available: available}
	}

	switch action.Type {
	case ActionStartWorkflow:
		return r.startWorkflow(v), nil
	case ActionStartStep:
		return r.startStep(v, *action.StepID), nil
	case ActionCompleteStep:
		return r.completeStep(ctx, v, *action.StepID), nil
	default:
		return nil, &InvalidWorkflowActionError{Attempted: action, Available: available}
	}
}

// AvailableActions exposes the planner through the runner.
func (r *Runner) AvailableActions(v *View) []Action {
	return r.planner.AvailableActions(v)
}

// Cancel terminates a non-terminal instance. Cancellation is not part of the
// action vocabulary and emits no events; it exists so that the runner remains
// the only writer of instance status.
func (r *Runner) Cancel(v *View) error {
	if v.Instance.Status.Terminal() {
		return &InvalidWorkflowActionError{
			Attempted: Action{Type: "cancel_workflow"},
			Available: r.planner.AvailableActions(v),
		}
	}
	v.Instance.Status = InstanceCancelled
	v.Instance.LastEdited = r.clock()
	return nil
}

func actionAvailable(available []Action, action Action) bool {
	for _, a := range available {
		if a.Equal(action) {
			return true
		}
	}
	return false
}

func (r *Runner) startWorkflow(v *View) []Event {
	now := r.clock()
	in := v.Instance

	in.Status = InstanceActive
	in.StartDate = &now
	in.LastEdited = now
	events := []Event{{Type: EventWorkflowStarted, Timestamp: r.stamp(now)}}

	start := in.StepForTemplateStep(*v.Template.StartingStepID)
	in.CurrentStepID = &start.ID
	events = append(events, Event{
		Type:      EventStepTransition,
		ToStepID:  &start.ID,
		Timestamp: r.stamp(now),
	})

	start.Status = StepActive
	start.StartDate = &now
	events = append(events, Event{Type: EventStepStarted, StepID: &start.ID, Timestamp: r.stamp(now)})

	return events
}

func (r *Runner) startStep(v *View, stepID uuid.UUID) []Event {
	now := r.clock()
	in := v.Instance
	step := in.StepByID(stepID)

	in.CurrentStepID = &step.ID
	in.LastEdited = now
	step.Status = StepActive
	step.StartDate = &now

	return []Event{{Type: EventStepStarted, StepID: &step.ID, Timestamp: r.stamp(now)}}
}

func (r *Runner) completeStep(ctx context.Context, v *View, stepID uuid.UUID) []Event {
	now := r.clock()
	in := v.Instance
	step := in.StepByID(stepID)

	step.Status = StepCompleted
	step.CompletionDate = &now
	in.LastEdited = now
	events := []Event{{Type: EventStepCompleted, StepID: &step.ID, Timestamp: r.stamp(now)}}

	ts := v.TemplateStepFor(step)
	if len(ts.Branches) == 0 {
		// A step with no outgoing branches ends the workflow.
		return append(events, r.finish(v, step, now)...)
	}

	res := EvaluateBranches(ctx, r.evaluator, in.PatientID, ts.Branches)
	if res.Status != BranchMatched {
		// Not decidable yet (or no branch held). With steps still pending
		// the instance stays on the completed step and the planner
		// surfaces the pending branch targets as manual start_step
		// actions. With every step completed there is nothing left to
		// start, so the workflow finishes here instead of stranding an
		// Active instance with no legal actions.
		if in.AllStepsCompleted() {
			return append(events, r.finish(v, step, now)...)
		}
		return events
	}

	if res.Branch.TargetStepID == nil {
		return append(events, r.finish(v, step, now)...)
	}

	next := in.StepForTemplateStep(*res.Branch.TargetStepID)
	in.CurrentStepID = &next.ID
	events = append(events, Event{
		Type:       EventStepTransition,
		FromStepID: &step.ID,
		ToStepID:   &next.ID,
		Timestamp:  r.stamp(now),
	})

	if next.Status == StepPending {
		next.Status = StepActive
		next.StartDate = &now
		events = append(events, Event{Type: EventStepStarted, StepID: &next.ID, Timestamp: r.stamp(now)})
	}

	if in.AllStepsCompleted() {
		events = append(events, r.finish(v, next, now)...)
	}
	return events
}

// finish closes out the workflow: clears the step pointer and marks the
// instance Completed.
func (r *Runner) finish(v *View, from *InstanceStep, now time.Time) []Event {
	in := v.Instance
	in.CurrentStepID = nil
	events := []Event{{
		Type:       EventStepTransition,
		FromStepID: &from.ID,
		Timestamp:  r.stamp(now),
	}}

	in.Status = InstanceCompleted
	in.CompletionDate = &now
	events = append(events, Event{Type: EventWorkflowCompleted, Timestamp: r.stamp(now)})
	return events
}

func (r *Runner) stamp(now time.Time) *int64 {
	if !r.recordTimestamps {
		return nil
	}
	ts := now.Unix()
	return &ts
}

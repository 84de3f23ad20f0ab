package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/drbfraser/CRADLE-Platform-sub001/internal/platform/rules"
)

// cannedEvaluator returns a fixed status per rule string.
type cannedEvaluator struct {
	statuses map[string]rules.RuleStatus
	missing  map[string][]string
	calls    []string
}

func (e *cannedEvaluator) EvaluateRule(_ context.Context, rule string, _ rules.RecordContext) (rules.RuleStatus, []rules.VariableResolution) {
	e.calls = append(e.calls, rule)
	status, ok := e.statuses[rule]
	if !ok {
		status = rules.RuleStatusTrue
	}
	var resolutions []rules.VariableResolution
	for _, v := range e.missing[rule] {
		resolutions = append(resolutions, rules.VariableResolution{
			Variable: v,
			Status:   rules.ResolutionObjectNotFound,
		})
	}
	return status, resolutions
}

// threeStepTemplate builds triage -> (assessment | follow-up) -> end, where
// the triage step branches on two conditions and both downstream steps end
// the workflow.
func threeStepTemplate() *Template {
	triageID := uuid.New()
	assessID := uuid.New()
	followID := uuid.New()
	tmplID := uuid.New()

	t := &Template{
		ID:             tmplID,
		Name:           "hypertension triage",
		StartingStepID: &triageID,
		Version:        "1",
		Steps: []TemplateStep{
			{
				ID: triageID, TemplateID: tmplID, Name: "triage",
				Branches: []TemplateStepBranch{
					{ID: uuid.New(), StepID: triageID, TargetStepID: &assessID,
						Condition: &RuleGroup{ID: uuid.New(), Rule: `rule-high`}},
					{ID: uuid.New(), StepID: triageID, TargetStepID: &followID,
						Condition: &RuleGroup{ID: uuid.New(), Rule: `rule-low`}},
				},
			},
			{
				ID: assessID, TemplateID: tmplID, Name: "assessment",
				Branches: []TemplateStepBranch{
					{ID: uuid.New(), StepID: assessID, TargetStepID: nil},
				},
			},
			{
				ID: followID, TemplateID: tmplID, Name: "follow-up",
				Branches: []TemplateStepBranch{
					{ID: uuid.New(), StepID: followID, TargetStepID: nil},
				},
			},
		},
	}
	return t
}

func newTestView(t *testing.T, tmpl *Template) *View {
	t.Helper()
	in := NewInstanceFromTemplate(tmpl, uuid.New(), time.Unix(1000, 0))
	v, err := NewView(tmpl, in)
	if err != nil {
		t.Fatalf("NewView: %v", err)
	}
	return v
}

func fixedClock(sec int64) func() time.Time {
	return func() time.Time { return time.Unix(sec, 0) }
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func sameEventTypes(got []Event, want ...EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i, e := range got {
		if e.Type != want[i] {
			return false
		}
	}
	return true
}

func TestInstantiationIsPendingWithPendingSteps(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	in := v.Instance

	if in.Status != InstancePending {
		t.Errorf("expected Pending, got %s", in.Status)
	}
	if in.CurrentStepID != nil {
		t.Error("fresh instance should have no current step")
	}
	if len(in.Steps) != len(tmpl.Steps) {
		t.Fatalf("expected %d steps, got %d", len(tmpl.Steps), len(in.Steps))
	}
	for _, s := range in.Steps {
		if s.Status != StepPending {
			t.Errorf("step %q should be Pending, got %s", s.Name, s.Status)
		}
		if s.StartDate != nil || s.CompletionDate != nil {
			t.Errorf("step %q should have no timestamps yet", s.Name)
		}
	}
}

func TestAvailableActionsPendingInstance(t *testing.T) {
	v := newTestView(t, threeStepTemplate())
	r := NewRunner(&cannedEvaluator{})

	actions := r.AvailableActions(v)
	if len(actions) != 1 || actions[0].Type != ActionStartWorkflow {
		t.Fatalf("expected [start_workflow], got %v", actions)
	}

	// Planning twice must not change the instance or the answer.
	again := r.AvailableActions(v)
	if len(again) != 1 || !again[0].Equal(actions[0]) {
		t.Errorf("available actions are not stable: %v then %v", actions, again)
	}
	if v.Instance.Status != InstancePending {
		t.Error("planning mutated the instance")
	}
}

func TestStartWorkflowEventOrder(t *testing.T) {
	v := newTestView(t, threeStepTemplate())
	r := NewRunner(&cannedEvaluator{}, WithClock(fixedClock(2000)))

	events, err := r.Apply(context.Background(), v, Action{Type: ActionStartWorkflow})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !sameEventTypes(events, EventWorkflowStarted, EventStepTransition, EventStepStarted) {
		t.Fatalf("unexpected event order: %v", eventTypes(events))
	}

	in := v.Instance
	if in.Status != InstanceActive {
		t.Errorf("expected Active, got %s", in.Status)
	}
	start := v.CurrentStep()
	if start == nil || start.Name != "triage" {
		t.Fatalf("current step should be triage, got %v", start)
	}
	if start.Status != StepActive {
		t.Errorf("starting step should be Active, got %s", start.Status)
	}
	if start.StartDate == nil || !start.StartDate.Equal(time.Unix(2000, 0)) {
		t.Errorf("starting step start date not stamped: %v", start.StartDate)
	}

	// The transition edge enters the starting step from nowhere.
	tr := events[1]
	if tr.FromStepID != nil {
		t.Error("initial transition should have no from step")
	}
	if tr.ToStepID == nil || *tr.ToStepID != start.ID {
		t.Error("initial transition should point at the starting step")
	}
	if events[2].StepID == nil || *events[2].StepID != start.ID {
		t.Error("step_started should name the starting step")
	}
}

func TestCompleteStepAdvancesAlongMatchedBranch(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	eval := &cannedEvaluator{statuses: map[string]rules.RuleStatus{
		"rule-high": rules.RuleStatusFalse,
		"rule-low":  rules.RuleStatusTrue,
	}}
	r := NewRunner(eval, WithClock(fixedClock(3000)))
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cur := v.CurrentStep()
	events, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !sameEventTypes(events, EventStepCompleted, EventStepTransition, EventStepStarted) {
		t.Fatalf("unexpected event order: %v", eventTypes(events))
	}

	// Both branch rules ran, in declaration order.
	if len(eval.calls) != 2 || eval.calls[0] != "rule-high" || eval.calls[1] != "rule-low" {
		t.Fatalf("unexpected rule evaluation order: %v", eval.calls)
	}

	next := v.CurrentStep()
	if next == nil || next.Name != "follow-up" {
		t.Fatalf("expected follow-up as current step, got %v", next)
	}
	if next.Status != StepActive {
		t.Errorf("next step should be Active, got %s", next.Status)
	}
	if cur.Status != StepCompleted || cur.CompletionDate == nil {
		t.Error("completed step not closed out")
	}

	tr := events[1]
	if tr.FromStepID == nil || *tr.FromStepID != cur.ID {
		t.Error("transition should leave the completed step")
	}
	if tr.ToStepID == nil || *tr.ToStepID != next.ID {
		t.Error("transition should enter the matched branch target")
	}
}

func TestFirstMatchingBranchWinsWithoutEvaluatingLater(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	eval := &cannedEvaluator{statuses: map[string]rules.RuleStatus{
		"rule-high": rules.RuleStatusTrue,
		"rule-low":  rules.RuleStatusTrue,
	}}
	r := NewRunner(eval)
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cur := v.CurrentStep()
	if _, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if len(eval.calls) != 1 || eval.calls[0] != "rule-high" {
		t.Fatalf("later branches should not be evaluated after a match: %v", eval.calls)
	}
	if next := v.CurrentStep(); next == nil || next.Name != "assessment" {
		t.Errorf("expected the first branch's target, got %v", next)
	}
}

func TestCompleteFinalStepCompletesWorkflow(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	eval := &cannedEvaluator{statuses: map[string]rules.RuleStatus{
		"rule-high": rules.RuleStatusTrue,
	}}
	r := NewRunner(eval, WithClock(fixedClock(4000)))
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cur := v.CurrentStep()
	if _, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID}); err != nil {
		t.Fatalf("complete triage: %v", err)
	}

	// The assessment step's only branch ends the workflow.
	cur = v.CurrentStep()
	events, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID})
	if err != nil {
		t.Fatalf("complete assessment: %v", err)
	}
	if !sameEventTypes(events, EventStepCompleted, EventStepTransition, EventWorkflowCompleted) {
		t.Fatalf("unexpected event order: %v", eventTypes(events))
	}

	in := v.Instance
	if in.Status != InstanceCompleted {
		t.Errorf("expected Completed, got %s", in.Status)
	}
	if in.CurrentStepID != nil {
		t.Error("completed workflow should have no current step")
	}
	if in.CompletionDate == nil || !in.CompletionDate.Equal(time.Unix(4000, 0)) {
		t.Errorf("completion date not stamped: %v", in.CompletionDate)
	}

	tr := events[1]
	if tr.FromStepID == nil || *tr.FromStepID != cur.ID {
		t.Error("final transition should leave the last step")
	}
	if tr.ToStepID != nil {
		t.Error("final transition should point at no step")
	}

	if got := r.AvailableActions(v); len(got) != 0 {
		t.Errorf("no actions should be available on a completed workflow, got %v", got)
	}
}

func TestBranchGapStallsOnCompletedStep(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	eval := &cannedEvaluator{
		statuses: map[string]rules.RuleStatus{
			"rule-high": rules.RuleStatusNotEnoughData,
			"rule-low":  rules.RuleStatusFalse,
		},
		missing: map[string][]string{
			"rule-high": {"reading[latest].systolic"},
		},
	}
	r := NewRunner(eval)
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cur := v.CurrentStep()
	events, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Only step_completed: no transition can be made yet.
	if !sameEventTypes(events, EventStepCompleted) {
		t.Fatalf("unexpected events while stalled: %v", eventTypes(events))
	}
	if v.Instance.Status != InstanceActive {
		t.Errorf("stalled workflow should stay Active, got %s", v.Instance.Status)
	}
	if v.Instance.CurrentStepID == nil || *v.Instance.CurrentStepID != cur.ID {
		t.Error("current step pointer should stay on the completed step")
	}

	// The caller may now start any pending branch target manually.
	actions := r.AvailableActions(v)
	if len(actions) != 2 {
		t.Fatalf("expected a start_step offer per branch target, got %v", actions)
	}
	for _, a := range actions {
		if a.Type != ActionStartStep {
			t.Errorf("expected start_step, got %s", a.Type)
		}
	}

	events, err = r.Apply(ctx, v, actions[1])
	if err != nil {
		t.Fatalf("manual start: %v", err)
	}
	if !sameEventTypes(events, EventStepStarted) {
		t.Fatalf("unexpected events for manual start: %v", eventTypes(events))
	}
	if next := v.CurrentStep(); next == nil || next.ID != *actions[1].StepID {
		t.Error("manual start should move the current step pointer")
	}
}

func TestIllegalActionLeavesInstanceUntouched(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	r := NewRunner(&cannedEvaluator{})

	// complete_step is not legal before the workflow starts.
	stepID := v.Instance.Steps[0].ID
	before := *v.Instance
	_, err := r.Apply(context.Background(), v, Action{Type: ActionCompleteStep, StepID: &stepID})

	var invalid *InvalidWorkflowActionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidWorkflowActionError, got %v", err)
	}
	if invalid.Attempted.Type != ActionCompleteStep {
		t.Errorf("error should carry the attempted action, got %s", invalid.Attempted.Type)
	}
	if len(invalid.Available) != 1 || invalid.Available[0].Type != ActionStartWorkflow {
		t.Errorf("error should list the legal actions, got %v", invalid.Available)
	}
	if !strings.Contains(invalid.Error(), "start_workflow") {
		t.Errorf("error text should name the legal actions: %s", invalid.Error())
	}

	if v.Instance.Status != before.Status || v.Instance.CurrentStepID != before.CurrentStepID {
		t.Error("failed action must not mutate the instance")
	}
	for _, s := range v.Instance.Steps {
		if s.Status != StepPending {
			t.Errorf("failed action must not touch step %q", s.Name)
		}
	}
}

func TestOverrideAlwaysFails(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	r := NewRunner(&cannedEvaluator{})
	ctx := context.Background()

	stepID := v.Instance.Steps[1].ID
	override := Action{Type: ActionOverrideCurrentStep, StepID: &stepID}

	if _, err := r.Apply(ctx, v, override); !errors.Is(err, ErrOverrideNotSupported) {
		t.Errorf("override on pending instance: expected ErrOverrideNotSupported, got %v", err)
	}

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := r.Apply(ctx, v, override); !errors.Is(err, ErrOverrideNotSupported) {
		t.Errorf("override on active instance: expected ErrOverrideNotSupported, got %v", err)
	}
}

func TestCancelInstance(t *testing.T) {
	tmpl := threeStepTemplate()
	v := newTestView(t, tmpl)
	r := NewRunner(&cannedEvaluator{})
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := r.Cancel(v); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if v.Instance.Status != InstanceCancelled {
		t.Errorf("expected Cancelled, got %s", v.Instance.Status)
	}
	if got := r.AvailableActions(v); len(got) != 0 {
		t.Errorf("no actions should be available after cancellation, got %v", got)
	}
	if err := r.Cancel(v); err == nil {
		t.Error("cancelling a terminal instance should fail")
	}
}

func TestEventTimestampsOptional(t *testing.T) {
	v := newTestView(t, threeStepTemplate())
	r := NewRunner(&cannedEvaluator{}, WithoutEventTimestamps())

	events, err := r.Apply(context.Background(), v, Action{Type: ActionStartWorkflow})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, e := range events {
		if e.Timestamp != nil {
			t.Errorf("event %s should carry no timestamp", e.Type)
		}
	}

	v2 := newTestView(t, threeStepTemplate())
	r2 := NewRunner(&cannedEvaluator{}, WithClock(fixedClock(5000)))
	events, err = r2.Apply(context.Background(), v2, Action{Type: ActionStartWorkflow})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, e := range events {
		if e.Timestamp == nil || *e.Timestamp != 5000 {
			t.Errorf("event %s should be stamped at 5000, got %v", e.Type, e.Timestamp)
		}
	}
}

func TestTemplateValidate(t *testing.T) {
	tmpl := threeStepTemplate()
	if err := tmpl.Validate(); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}

	bad := threeStepTemplate()
	orphan := uuid.New()
	bad.Steps[0].Branches[0].TargetStepID = &orphan
	if err := bad.Validate(); err == nil {
		t.Error("branch target outside the template should be rejected")
	}

	bad = threeStepTemplate()
	bad.StartingStepID = nil
	if err := bad.Validate(); err == nil {
		t.Error("missing starting step should be rejected")
	}

	bad = threeStepTemplate()
	bad.Steps[1].ID = bad.Steps[0].ID
	if err := bad.Validate(); err == nil {
		t.Error("duplicate step ids should be rejected")
	}
}

// twoStepLoopTemplate builds intake -> review where review's only branch is a
// conditional back-edge to intake, so a FALSE evaluation leaves no branch
// matched after the last remaining step completes.
func twoStepLoopTemplate() *Template {
	intakeID := uuid.New()
	reviewID := uuid.New()
	tmplID := uuid.New()

	return &Template{
		ID:             tmplID,
		Name:           "intake review loop",
		StartingStepID: &intakeID,
		Version:        "1",
		Steps: []TemplateStep{
			{
				ID: intakeID, TemplateID: tmplID, Name: "intake",
				Branches: []TemplateStepBranch{
					{ID: uuid.New(), StepID: intakeID, TargetStepID: &reviewID},
				},
			},
			{
				ID: reviewID, TemplateID: tmplID, Name: "review",
				Branches: []TemplateStepBranch{
					{ID: uuid.New(), StepID: reviewID, TargetStepID: &intakeID,
						Condition: &RuleGroup{ID: uuid.New(), Rule: `rule-retake`}},
				},
			},
		},
	}
}

func TestNoMatchOnFinalStepCompletesWorkflow(t *testing.T) {
	tmpl := twoStepLoopTemplate()
	v := newTestView(t, tmpl)
	eval := &cannedEvaluator{
		statuses: map[string]rules.RuleStatus{
			"rule-retake": rules.RuleStatusFalse,
		},
	}
	r := NewRunner(eval)
	ctx := context.Background()

	if _, err := r.Apply(ctx, v, Action{Type: ActionStartWorkflow}); err != nil {
		t.Fatalf("start: %v", err)
	}
	cur := v.CurrentStep()
	if _, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID}); err != nil {
		t.Fatalf("complete intake: %v", err)
	}

	// Completing review leaves no step pending; the unmatched back-edge
	// must not strand the instance as Active with nothing left to do.
	cur = v.CurrentStep()
	events, err := r.Apply(ctx, v, Action{Type: ActionCompleteStep, StepID: &cur.ID})
	if err != nil {
		t.Fatalf("complete review: %v", err)
	}
	if !sameEventTypes(events, EventStepCompleted, EventStepTransition, EventWorkflowCompleted) {
		t.Fatalf("unexpected events: %v", eventTypes(events))
	}
	if v.Instance.Status != InstanceCompleted {
		t.Errorf("expected Completed, got %s", v.Instance.Status)
	}
	if v.Instance.CurrentStepID != nil {
		t.Error("completed workflow should have no current step")
	}
	if v.Instance.CompletionDate == nil {
		t.Error("completion date should be set")
	}
	if actions := r.AvailableActions(v); len(actions) != 0 {
		t.Errorf("completed workflow should offer no actions, got %v", actions)
	}
}

func TestViewRequiresResolvableStartingStep(t *testing.T) {
	tmpl := threeStepTemplate()
	in := NewInstanceFromTemplate(tmpl, uuid.New(), time.Unix(1000, 0))

	tmpl.StartingStepID = nil
	if _, err := NewView(tmpl, in); err == nil {
		t.Error("template without a starting step should be rejected")
	}

	dangling := uuid.New()
	tmpl.StartingStepID = &dangling
	if _, err := NewView(tmpl, in); err == nil {
		t.Error("template with a dangling starting step should be rejected")
	}
}

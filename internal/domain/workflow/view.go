package workflow

import "fmt"

// View pairs a template with one of its instances for a single planning or
// action application. It is cheap to construct per call; lookups delegate to
// the underlying aggregates so that mutations through the view stay visible.
type View struct {
	Template *Template
	Instance *Instance
}

// NewView validates that the instance was generated from the template, that
// the template's starting step exists, and that every instance step maps
// onto a template step. A view that constructs successfully is safe to hand
// to the runner; no later dereference of the pair can fail.
func NewView(t *Template, in *Instance) (*View, error) {
	if t == nil || in == nil {
		return nil, fmt.Errorf("workflow: view requires a template and an instance")
	}
	if in.TemplateID != t.ID {
		return nil, fmt.Errorf("workflow: instance %s belongs to template %s, not %s", in.ID, in.TemplateID, t.ID)
	}
	if t.StartingStepID == nil {
		return nil, fmt.Errorf("workflow: template %s has no starting step", t.ID)
	}
	if t.StepByID(*t.StartingStepID) == nil {
		return nil, fmt.Errorf("workflow: template %s starting step %s does not exist", t.ID, *t.StartingStepID)
	}
	for i := range in.Steps {
		if t.StepByID(in.Steps[i].TemplateStepID) == nil {
			return nil, fmt.Errorf("workflow: instance step %s references unknown template step %s",
				in.Steps[i].ID, in.Steps[i].TemplateStepID)
		}
	}
	return &View{Template: t, Instance: in}, nil
}

// CurrentStep returns the instance step the current-step pointer names, or
// nil when the workflow has not started or has finished.
func (v *View) CurrentStep() *InstanceStep {
	if v.Instance.CurrentStepID == nil {
		return nil
	}
	return v.Instance.StepByID(*v.Instance.CurrentStepID)
}

// TemplateStepFor returns the template step an instance step was generated
// from.
func (v *View) TemplateStepFor(step *InstanceStep) *TemplateStep {
	if step == nil {
		return nil
	}
	return v.Template.StepByID(step.TemplateStepID)
}

// BranchTargets returns, in branch declaration order, the instance steps
// reachable from the given instance step via its template step's branches.
// Branches that end the workflow contribute nothing.
func (v *View) BranchTargets(step *InstanceStep) []*InstanceStep {
	ts := v.TemplateStepFor(step)
	if ts == nil {
		return nil
	}
	var out []*InstanceStep
	seen := make(map[string]bool)
	for _, b := range ts.Branches {
		if b.TargetStepID == nil {
			continue
		}
		target := v.Instance.StepForTemplateStep(*b.TargetStepID)
		if target == nil || seen[target.ID.String()] {
			continue
		}
		seen[target.ID.String()] = true
		out = append(out, target)
	}
	return out
}

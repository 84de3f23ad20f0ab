package workflow

import (
	"context"

	"github.com/google/uuid"

	"github.com/drbfraser/CRADLE-Platform-sub001/internal/platform/rules"
)

// RuleEvaluator is the slice of the rule pipeline the workflow engine needs.
// *rules.Evaluator satisfies it; tests substitute canned evaluators.
type RuleEvaluator interface {
	EvaluateRule(ctx context.Context, rule string, rc rules.RecordContext) (rules.RuleStatus, []rules.VariableResolution)
}

// BranchStatus is the outcome of resolving a step's branch list.
type BranchStatus string

const (
	// BranchMatched means a branch's condition held; Branch carries it.
	BranchMatched BranchStatus = "MATCHED"
	// BranchNotEnoughData means no branch matched and at least one could
	// not be decided; MissingVariables itemizes what is needed.
	BranchNotEnoughData BranchStatus = "NOT_ENOUGH_DATA"
	// BranchNoMatch means every branch evaluated cleanly and none held.
	BranchNoMatch BranchStatus = "NO_MATCH"
)

// BranchResolution is the result of evaluating a step's branches for a
// patient.
type BranchResolution struct {
	Status           BranchStatus        `json:"status"`
	Branch           *TemplateStepBranch `json:"branch,omitempty"`
	MissingVariables []string            `json:"missing_variables,omitempty"`
}

// EvaluateBranches resolves a branch list for a patient in declaration
// order and returns the first branch whose condition holds. This is
// first-match selection, the shape of a priority-ordered if/else chain:
// branches after the match are never evaluated. A branch that cannot be
// decided contributes its missing variables and evaluation moves on, since a
// later branch may still match outright.
func EvaluateBranches(ctx context.Context, eval RuleEvaluator, patientID uuid.UUID, branches []TemplateStepBranch) BranchResolution {
	rc := rules.RecordContext{PatientID: patientID}

	var missing []string
	seen := make(map[string]bool)
	sawGap := false

	for i := range branches {
		b := &branches[i]
		rule := ""
		if b.Condition != nil {
			rule = b.Condition.Rule
		}
		status, resolutions := eval.EvaluateRule(ctx, rule, rc)
		switch status {
		case rules.RuleStatusTrue:
			return BranchResolution{Status: BranchMatched, Branch: b}
		case rules.RuleStatusNotEnoughData:
			sawGap = true
			for _, res := range resolutions {
				if res.Status == rules.ResolutionObjectNotFound && !seen[res.Variable] {
					seen[res.Variable] = true
					missing = append(missing, res.Variable)
				}
			}
		}
	}

	if sawGap {
		return BranchResolution{Status: BranchNotEnoughData, MissingVariables: missing}
	}
	return BranchResolution{Status: BranchNoMatch}
}

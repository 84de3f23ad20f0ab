package rules

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// RuleStatus is the outcome of evaluating one rule against a record context.
type RuleStatus string

const (
	RuleStatusTrue          RuleStatus = "TRUE"
	RuleStatusFalse         RuleStatus = "FALSE"
	RuleStatusNotEnoughData RuleStatus = "NOT_ENOUGH_DATA"
)

// ResolutionStatus reports how one variable resolution ended.
type ResolutionStatus string

const (
	ResolutionResolved       ResolutionStatus = "RESOLVED"
	ResolutionObjectNotFound ResolutionStatus = "OBJECT_NOT_FOUND"
)

// VariableResolution is the itemized result of resolving one variable.
// Status is RESOLVED exactly when Value is non-nil.
type VariableResolution struct {
	Variable string           `json:"variable"`
	Value    any              `json:"value"`
	Status   ResolutionStatus `json:"status"`
}

// ExtractRuleVariables statically extracts every variable reference string a
// rule depends on, deduplicated in first-seen order, without evaluating it.
// Malformed rule JSON returns an error.
func ExtractRuleVariables(rule string) ([]string, error) {
	node, err := ParseRule(rule)
	if err != nil {
		return nil, err
	}
	return node.Variables(), nil
}

// Evaluator runs the full rule pipeline: extract the variables a rule
// references, resolve them through the catalogue, and evaluate the rule
// against the resolved values. Data gaps and rule failures surface as
// NOT_ENOUGH_DATA, never as errors; a single malformed rule must not be able
// to halt workflow progression.
type Evaluator struct {
	resolver *Resolver
	log      zerolog.Logger
}

func NewEvaluator(cat *Catalogue, log zerolog.Logger) *Evaluator {
	return &Evaluator{resolver: NewResolver(cat), log: log}
}

// EvaluateRule evaluates a rule for a record context.
//
// An empty rule is vacuously TRUE: unconditional branches carry no condition.
// If any referenced variable resolves to nil the rule is not evaluated and
// the status is NOT_ENOUGH_DATA, with every variable itemized as RESOLVED or
// OBJECT_NOT_FOUND. Unparseable variable references are dropped; rule parse
// or evaluation failures are logged and reported as NOT_ENOUGH_DATA.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule string, rc RecordContext) (RuleStatus, []VariableResolution) {
	if strings.TrimSpace(rule) == "" {
		return RuleStatusTrue, []VariableResolution{}
	}

	node, err := ParseRule(rule)
	if err != nil {
		e.log.Error().Err(err).Str("rule", rule).Msg("rule parse failed, treating as not enough data")
		return RuleStatusNotEnoughData, []VariableResolution{}
	}

	var vars []*DatasourceVariable
	for _, ref := range node.Variables() {
		v := NewDatasourceVariable(ref)
		if v == nil {
			e.log.Debug().Str("variable", ref).Msg("dropping unparseable variable reference")
			continue
		}
		vars = append(vars, v)
	}

	values, err := e.resolver.ResolveVariables(ctx, rc, vars)
	if err != nil {
		e.log.Error().Err(err).Str("rule", rule).Msg("variable resolution failed, treating as not enough data")
		return RuleStatusNotEnoughData, []VariableResolution{}
	}

	resolutions := make([]VariableResolution, 0, len(vars))
	// The AST references variables by their raw strings, which may differ
	// from the canonical form (e.g. an uppercase [LATEST] index).
	evalValues := make(map[string]any, len(vars))
	complete := true
	for _, v := range vars {
		res := VariableResolution{Variable: v.Path.Key(), Value: values[v.Path.Key()]}
		if res.Value == nil {
			res.Status = ResolutionObjectNotFound
			complete = false
		} else {
			res.Status = ResolutionResolved
		}
		resolutions = append(resolutions, res)
		evalValues[v.Raw] = res.Value
	}
	if !complete {
		return RuleStatusNotEnoughData, resolutions
	}

	result, err := node.EvalBool(evalValues)
	if err != nil {
		e.log.Error().Err(err).Str("rule", rule).Msg("rule evaluation failed, treating as not enough data")
		return RuleStatusNotEnoughData, []VariableResolution{}
	}
	if result {
		return RuleStatusTrue, resolutions
	}
	return RuleStatusFalse, resolutions
}

package rules

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// A rule is a JSON document in the JsonLogic convention: operator nodes are
// single-key objects {"op": [operands...]} and data references are
// {"var": "<variable path>"} leaves. ParseRule builds a small tagged-variant
// AST once; the same tree serves both static variable extraction and
// evaluation, so the JSON is never re-parsed.

type nodeKind int

const (
	nodeLiteral nodeKind = iota
	nodeVar
	nodeOp
)

// RuleNode is one node of a parsed rule: an operator with ordered operands,
// a variable reference leaf, or a literal value leaf.
type RuleNode struct {
	kind   nodeKind
	lit    any
	varRef string
	op     string
	args   []*RuleNode
}

// ParseRule parses a rule string into its AST. Malformed JSON or a malformed
// node shape returns an error for the caller to handle.
func ParseRule(rule string) (*RuleNode, error) {
	var doc any
	if err := json.Unmarshal([]byte(rule), &doc); err != nil {
		return nil, fmt.Errorf("parse rule: %w", err)
	}
	return buildNode(doc)
}

func buildNode(doc any) (*RuleNode, error) {
	m, ok := doc.(map[string]any)
	if !ok {
		// Scalars and arrays are literals.
		return &RuleNode{kind: nodeLiteral, lit: doc}, nil
	}
	if len(m) != 1 {
		return nil, fmt.Errorf("parse rule: operator node must have exactly one key, got %d", len(m))
	}

	var op string
	var raw any
	for k, v := range m {
		op, raw = k, v
	}

	if op == "var" {
		ref, err := varOperand(raw)
		if err != nil {
			return nil, err
		}
		return &RuleNode{kind: nodeVar, varRef: ref}, nil
	}

	operands, ok := raw.([]any)
	if !ok {
		operands = []any{raw}
	}
	n := &RuleNode{kind: nodeOp, op: op, args: make([]*RuleNode, 0, len(operands))}
	for _, operand := range operands {
		child, err := buildNode(operand)
		if err != nil {
			return nil, err
		}
		n.args = append(n.args, child)
	}
	return n, nil
}

func varOperand(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []any:
		if len(v) > 0 {
			if s, ok := v[0].(string); ok {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("parse rule: var operand must be a string, got %T", raw)
}

// Variables returns every variable path string referenced by the rule,
// deduplicated, in first-seen order. It never evaluates anything.
func (n *RuleNode) Variables() []string {
	var out []string
	seen := make(map[string]struct{})
	n.collectVariables(&out, seen)
	return out
}

func (n *RuleNode) collectVariables(out *[]string, seen map[string]struct{}) {
	switch n.kind {
	case nodeVar:
		if _, dup := seen[n.varRef]; !dup {
			seen[n.varRef] = struct{}{}
			*out = append(*out, n.varRef)
		}
	case nodeOp:
		for _, arg := range n.args {
			arg.collectVariables(out, seen)
		}
	}
}

// EvalBool evaluates the rule against resolved variable values and reports
// the truthiness of the result.
func (n *RuleNode) EvalBool(values map[string]any) (bool, error) {
	v, err := n.eval(values)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (n *RuleNode) eval(values map[string]any) (any, error) {
	switch n.kind {
	case nodeLiteral:
		return n.lit, nil
	case nodeVar:
		return values[n.varRef], nil
	}

	switch n.op {
	case "and":
		for _, arg := range n.args {
			v, err := arg.eval(values)
			if err != nil {
				return nil, err
			}
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "or":
		for _, arg := range n.args {
			v, err := arg.eval(values)
			if err != nil {
				return nil, err
			}
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	case "!", "not":
		if len(n.args) != 1 {
			return nil, fmt.Errorf("eval rule: %s takes one operand", n.op)
		}
		v, err := n.args[0].eval(values)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	case "==", "!=", ">", ">=", "<", "<=":
		return n.evalComparison(values)
	case "in":
		return n.evalIn(values)
	default:
		return nil, fmt.Errorf("eval rule: unknown operator %q", n.op)
	}
}

func (n *RuleNode) evalComparison(values map[string]any) (any, error) {
	if len(n.args) != 2 {
		return nil, fmt.Errorf("eval rule: %s takes two operands", n.op)
	}
	left, err := n.args[0].eval(values)
	if err != nil {
		return nil, err
	}
	right, err := n.args[1].eval(values)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	}

	cmp, err := compare(left, right)
	if err != nil {
		return nil, fmt.Errorf("eval rule: %s: %w", n.op, err)
	}
	switch n.op {
	case ">":
		return cmp > 0, nil
	case ">=":
		return cmp >= 0, nil
	case "<":
		return cmp < 0, nil
	default:
		return cmp <= 0, nil
	}
}

func (n *RuleNode) evalIn(values map[string]any) (any, error) {
	if len(n.args) != 2 {
		return nil, fmt.Errorf("eval rule: in takes two operands")
	}
	needle, err := n.args[0].eval(values)
	if err != nil {
		return nil, err
	}
	haystack, err := n.args[1].eval(values)
	if err != nil {
		return nil, err
	}
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if looseEqual(needle, item) {
				return true, nil
			}
		}
		return false, nil
	case string:
		s, ok := needle.(string)
		if !ok {
			return false, nil
		}
		return strings.Contains(h, s), nil
	default:
		return nil, fmt.Errorf("eval rule: in: second operand must be a list or string, got %T", haystack)
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	default:
		if f, ok := asNumber(v); ok {
			return f != 0
		}
		return true
	}
}

// looseEqual compares values with cross-type numeric equality (2 == 2.0) and
// deep equality for everything else.
func looseEqual(a, b any) bool {
	if fa, ok := asNumber(a); ok {
		if fb, ok := asNumber(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers or two strings: -1, 0, or 1.
func compare(a, b any) (int, error) {
	if fa, ok := asNumber(a); ok {
		fb, ok := asNumber(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare %T with %T", a, b)
		}
		switch {
		case fa < fb:
			return -1, nil
		case fa > fb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	sa, okA := a.(string)
	sb, okB := b.(string)
	if okA && okB {
		return strings.Compare(sa, sb), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

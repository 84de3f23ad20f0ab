package rules

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestEvaluator(src RecordSource) *Evaluator {
	return NewEvaluator(NewCatalogue(src), zerolog.Nop())
}

func TestEvaluateRuleVacuousTruth(t *testing.T) {
	e := newTestEvaluator(newFakeRecordSource())
	for _, rule := range []string{"", "   "} {
		status, resolutions := e.EvaluateRule(context.Background(), rule, testContext())
		if status != RuleStatusTrue {
			t.Errorf("empty rule %q: expected TRUE, got %s", rule, status)
		}
		if len(resolutions) != 0 {
			t.Errorf("empty rule %q: expected no resolutions, got %d", rule, len(resolutions))
		}
	}
}

func TestEvaluateRuleTrue(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{
		{"systolic": 165, "date_taken": time.Now()},
	}
	e := newTestEvaluator(src)

	status, resolutions := e.EvaluateRule(context.Background(),
		`{">": [{"var": "reading[latest].systolic"}, 140]}`, testContext())
	if status != RuleStatusTrue {
		t.Fatalf("expected TRUE, got %s", status)
	}
	if len(resolutions) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(resolutions))
	}
	if resolutions[0].Status != ResolutionResolved {
		t.Errorf("expected RESOLVED, got %s", resolutions[0].Status)
	}
	if resolutions[0].Variable != "reading[latest].systolic" {
		t.Errorf("unexpected variable name %q", resolutions[0].Variable)
	}
}

func TestEvaluateRuleFalse(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{
		{"systolic": 110, "date_taken": time.Now()},
	}
	e := newTestEvaluator(src)

	status, _ := e.EvaluateRule(context.Background(),
		`{">": [{"var": "reading[latest].systolic"}, 140]}`, testContext())
	if status != RuleStatusFalse {
		t.Errorf("expected FALSE, got %s", status)
	}
}

func TestEvaluateRuleMissingDataShortCircuits(t *testing.T) {
	e := newTestEvaluator(newFakeRecordSource())

	// If the boolean engine ran with a nil value this comparison would
	// evaluate (nil == null is loosely true); NOT_ENOUGH_DATA proves the
	// engine was never invoked.
	status, resolutions := e.EvaluateRule(context.Background(),
		`{"==": [{"var": "reading[latest].systolic"}, null]}`, testContext())
	if status != RuleStatusNotEnoughData {
		t.Fatalf("expected NOT_ENOUGH_DATA, got %s", status)
	}
	if len(resolutions) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(resolutions))
	}
	if resolutions[0].Status != ResolutionObjectNotFound {
		t.Errorf("expected OBJECT_NOT_FOUND, got %s", resolutions[0].Status)
	}
}

func TestEvaluateRulePartialDataStillNotEnough(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{"date_of_birth": time.Now().AddDate(-50, 0, -1)}
	e := newTestEvaluator(src)

	status, resolutions := e.EvaluateRule(context.Background(),
		`{"and": [
			{">": [{"var": "patient.age"}, 18]},
			{">": [{"var": "reading[latest].systolic"}, 140]}
		]}`, testContext())
	if status != RuleStatusNotEnoughData {
		t.Fatalf("expected NOT_ENOUGH_DATA, got %s", status)
	}
	if len(resolutions) != 2 {
		t.Fatalf("expected 2 resolutions, got %d", len(resolutions))
	}
	byVar := make(map[string]ResolutionStatus)
	for _, r := range resolutions {
		byVar[r.Variable] = r.Status
	}
	if byVar["patient.age"] != ResolutionResolved {
		t.Error("resolved variable should be itemized as RESOLVED")
	}
	if byVar["reading[latest].systolic"] != ResolutionObjectNotFound {
		t.Error("missing variable should be itemized as OBJECT_NOT_FOUND")
	}
}

func TestEvaluateRuleMalformedRule(t *testing.T) {
	e := newTestEvaluator(newFakeRecordSource())
	status, resolutions := e.EvaluateRule(context.Background(), `{"and": [`, testContext())
	if status != RuleStatusNotEnoughData {
		t.Errorf("expected NOT_ENOUGH_DATA for malformed rule, got %s", status)
	}
	if len(resolutions) != 0 {
		t.Errorf("expected empty resolutions, got %d", len(resolutions))
	}
}

func TestEvaluateRuleEngineFailureDowngraded(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{"village": "1001"}
	e := newTestEvaluator(src)

	// Comparing a string with a number is an engine error; it must be
	// swallowed and downgraded, never propagated.
	status, _ := e.EvaluateRule(context.Background(),
		`{">": [{"var": "patient.village"}, 5]}`, testContext())
	if status != RuleStatusNotEnoughData {
		t.Errorf("expected NOT_ENOUGH_DATA, got %s", status)
	}
}

func TestEvaluateRuleDropsUnparseableVariables(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{"date_of_birth": time.Now().AddDate(-40, 0, -1)}
	e := newTestEvaluator(src)

	// The bare-namespace reference is unparseable and dropped; the rest of
	// the rule still resolves and evaluates.
	status, resolutions := e.EvaluateRule(context.Background(),
		`{"or": [
			{">": [{"var": "patient.age"}, 18]},
			{"==": [{"var": "patient"}, true]}
		]}`, testContext())
	if status != RuleStatusTrue {
		t.Fatalf("expected TRUE, got %s", status)
	}
	if len(resolutions) != 1 {
		t.Errorf("expected the dropped variable to be absent, got %d resolutions", len(resolutions))
	}
}

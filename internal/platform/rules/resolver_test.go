package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

// fakeRecordSource serves canned records and counts reads so tests can assert
// on fetch grouping.
type fakeRecordSource struct {
	singles     map[Namespace]Record
	collections map[Namespace][]Record
	readOnes    int
	readManys   int
}

func newFakeRecordSource() *fakeRecordSource {
	return &fakeRecordSource{
		singles:     make(map[Namespace]Record),
		collections: make(map[Namespace][]Record),
	}
}

func (f *fakeRecordSource) ReadOne(_ context.Context, ns Namespace, _ RecordContext) (Record, error) {
	f.readOnes++
	return f.singles[ns], nil
}

func (f *fakeRecordSource) ReadMany(_ context.Context, ns Namespace, _ RecordContext) ([]Record, error) {
	f.readManys++
	return f.collections[ns], nil
}

func testContext() RecordContext {
	return RecordContext{PatientID: uuid.New()}
}

func vars(refs ...string) []*DatasourceVariable {
	var out []*DatasourceVariable
	for _, r := range refs {
		if v := NewDatasourceVariable(r); v != nil {
			out = append(out, v)
		}
	}
	return out
}

func TestResolveSingleRecordField(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{"name": "AA", "village": "1001"}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("patient.village"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["patient.village"] != "1001" {
		t.Errorf("expected village 1001, got %v", values["patient.village"])
	}
}

func TestResolveNestedField(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{
		"medical_history": map[string]any{"smoking": true},
	}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("patient.medical_history.smoking"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["patient.medical_history.smoking"] != true {
		t.Error("expected nested field to resolve")
	}
}

func TestResolveDerivedAge(t *testing.T) {
	src := newFakeRecordSource()
	src.singles[NamespacePatient] = Record{
		"date_of_birth": time.Now().AddDate(-30, 0, -1),
	}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("patient.age"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["patient.age"] != 30 {
		t.Errorf("expected age 30, got %v", values["patient.age"])
	}
}

func TestResolveLatestUsesOrderingField(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{
		{"systolic": 120, "date_taken": time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"systolic": 160, "date_taken": time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"systolic": 130, "date_taken": time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("reading[latest].systolic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["reading[latest].systolic"] != 160 {
		t.Errorf("expected latest systolic 160, got %v", values["reading[latest].systolic"])
	}
}

func TestResolvePositionalIndices(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{
		{"systolic": 100}, {"systolic": 110}, {"systolic": 120},
	}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(),
		vars("reading[0].systolic", "reading[-1].systolic", "reading[5].systolic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["reading[0].systolic"] != 100 {
		t.Errorf("expected first systolic 100, got %v", values["reading[0].systolic"])
	}
	if values["reading[-1].systolic"] != 120 {
		t.Errorf("expected last systolic 120, got %v", values["reading[-1].systolic"])
	}
	if values["reading[5].systolic"] != nil {
		t.Error("expected out-of-range index to resolve to nil")
	}
}

func TestResolveCollectionSize(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{{}, {}, {}}
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("reading.size"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["reading.size"] != 3 {
		t.Errorf("expected size 3, got %v", values["reading.size"])
	}
}

func TestResolveGroupsFetchesByNamespace(t *testing.T) {
	src := newFakeRecordSource()
	src.collections[NamespaceReading] = []Record{
		{"systolic": 120, "diastolic": 80, "date_taken": time.Now()},
	}
	r := NewResolver(NewCatalogue(src))

	_, err := r.ResolveVariables(context.Background(), testContext(),
		vars("reading[latest].systolic", "reading[latest].diastolic", "reading[0].systolic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.readManys != 1 {
		t.Errorf("expected a single collection fetch, got %d", src.readManys)
	}
}

func TestResolveMissingRecordAndField(t *testing.T) {
	src := newFakeRecordSource()
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(),
		vars("patient.age", "reading[latest].systolic"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["patient.age"] != nil {
		t.Error("expected nil for missing patient record")
	}
	if values["reading[latest].systolic"] != nil {
		t.Error("expected nil for empty reading collection")
	}
}

func TestResolveUnknownNamespace(t *testing.T) {
	src := newFakeRecordSource()
	r := NewResolver(NewCatalogue(src))

	values, err := r.ResolveVariables(context.Background(), testContext(), vars("telescope.lens"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if values["telescope.lens"] != nil {
		t.Error("expected nil for unknown namespace")
	}
	if src.readOnes != 0 || src.readManys != 0 {
		t.Error("unknown namespace must not reach the record source")
	}
}

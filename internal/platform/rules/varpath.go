package rules

import (
	"strconv"
	"strings"
)

// Namespace identifies a top-level data source a variable can reference.
// The set of known namespaces is closed; the Catalogue only serves entries
// registered at construction, and an unknown namespace resolves every
// variable under it to nil rather than failing the evaluation.
type Namespace string

const (
	NamespacePatient    Namespace = "patient"
	NamespacePregnancy  Namespace = "pregnancy"
	NamespaceReading    Namespace = "reading"
	NamespaceAssessment Namespace = "assessment"
	NamespaceReferral   Namespace = "referral"
)

// IndexKind discriminates the collection index forms a variable path can carry.
type IndexKind int

const (
	// IndexNone means the namespace resolves to a single record, or to the
	// whole collection for collection-level fields such as size.
	IndexNone IndexKind = iota
	// IndexLatest selects the most recent element by the namespace's
	// declared ordering field.
	IndexLatest
	// IndexPosition selects an element by zero-based position; negative
	// positions count from the end.
	IndexPosition
)

// CollectionIndex is the optional [..] selector on a variable's namespace.
type CollectionIndex struct {
	Kind     IndexKind
	Position int
}

func (ci CollectionIndex) String() string {
	switch ci.Kind {
	case IndexLatest:
		return "latest"
	case IndexPosition:
		return strconv.Itoa(ci.Position)
	default:
		return ""
	}
}

// VariablePath is a parsed variable reference such as "reading[latest].systolic":
// a namespace, an optional collection index, and a sequence of nested field
// names. It round-trips losslessly through String.
type VariablePath struct {
	Namespace Namespace
	Index     CollectionIndex
	FieldPath []string
}

// ParseVariablePath parses a dotted/bracketed variable reference. It returns
// ok=false for malformed input instead of an error so callers can skip bad
// references individually: empty or whitespace strings, a bare namespace with
// no index and no fields, an empty field segment, or a bracket index that is
// neither "latest" nor a base-10 integer.
func ParseVariablePath(s string) (VariablePath, bool) {
	if s == "" || strings.TrimSpace(s) != s {
		return VariablePath{}, false
	}

	parts := strings.Split(s, ".")
	head := parts[0]

	var vp VariablePath
	if open := strings.IndexByte(head, '['); open >= 0 {
		if !strings.HasSuffix(head, "]") {
			return VariablePath{}, false
		}
		idx, ok := parseIndex(head[open+1 : len(head)-1])
		if !ok {
			return VariablePath{}, false
		}
		vp.Index = idx
		head = head[:open]
	}
	if head == "" || strings.ContainsAny(head, "[] \t") {
		return VariablePath{}, false
	}
	vp.Namespace = Namespace(head)

	// A bare namespace with no collection index names nothing resolvable.
	if len(parts) == 1 && vp.Index.Kind == IndexNone {
		return VariablePath{}, false
	}

	for _, seg := range parts[1:] {
		if seg == "" || strings.ContainsAny(seg, "[] \t") {
			return VariablePath{}, false
		}
		vp.FieldPath = append(vp.FieldPath, seg)
	}
	return vp, true
}

func parseIndex(s string) (CollectionIndex, bool) {
	if strings.EqualFold(s, "latest") {
		return CollectionIndex{Kind: IndexLatest}, true
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return CollectionIndex{}, false
	}
	return CollectionIndex{Kind: IndexPosition, Position: n}, true
}

// String reconstructs the canonical form: namespace[index].a.b, namespace.a.b,
// or namespace[index].
func (vp VariablePath) String() string {
	var b strings.Builder
	b.WriteString(string(vp.Namespace))
	if vp.Index.Kind != IndexNone {
		b.WriteByte('[')
		b.WriteString(vp.Index.String())
		b.WriteByte(']')
	}
	for _, seg := range vp.FieldPath {
		b.WriteByte('.')
		b.WriteString(seg)
	}
	return b.String()
}

// Key returns the canonical string form, usable as a map key for
// deduplication. Two paths parsed from the same string share a key.
func (vp VariablePath) Key() string { return vp.String() }

// Equal reports structural equality of namespace, index and field path.
func (vp VariablePath) Equal(other VariablePath) bool {
	if vp.Namespace != other.Namespace || vp.Index != other.Index {
		return false
	}
	if len(vp.FieldPath) != len(other.FieldPath) {
		return false
	}
	for i, seg := range vp.FieldPath {
		if other.FieldPath[i] != seg {
			return false
		}
	}
	return true
}

// DatasourceVariable wraps a parsed VariablePath together with the raw
// reference string it came from.
type DatasourceVariable struct {
	Path VariablePath
	Raw  string
}

// NewDatasourceVariable parses a raw variable reference. It returns nil on
// unparseable input; callers filter nil entries out of variable lists.
func NewDatasourceVariable(raw string) *DatasourceVariable {
	vp, ok := ParseVariablePath(raw)
	if !ok {
		return nil
	}
	return &DatasourceVariable{Path: vp, Raw: raw}
}

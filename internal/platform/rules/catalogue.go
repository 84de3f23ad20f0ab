package rules

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record is a JSON-compatible view of one backing record. Values keep their
// native types (bool, int, float64, string, time.Time, nested maps/slices);
// the resolver performs no coercion.
type Record map[string]any

// RecordContext scopes which records back a variable resolution. PatientID is
// always required; the auxiliary ids narrow collection namespaces to a
// specific record instead of the patient's full history.
type RecordContext struct {
	PatientID    uuid.UUID
	AssessmentID *uuid.UUID
	PregnancyID  *uuid.UUID
}

// RecordSource is the only interface the rule pipeline requires from the
// persistence layer. Both methods are read-only and must report "not found"
// as (nil, nil) rather than an error.
type RecordSource interface {
	ReadOne(ctx context.Context, ns Namespace, rc RecordContext) (Record, error)
	ReadMany(ctx context.Context, ns Namespace, rc RecordContext) ([]Record, error)
}

// catalogueEntry describes how one namespace resolves: whether it is
// collection-valued, which field orders the collection for [latest], and any
// derived fields computed on demand from the fetched record.
type catalogueEntry struct {
	collection bool
	orderField string
	derived    map[string]func(Record) any
}

// Catalogue maps namespaces to their resolution descriptors. It is immutable
// after construction and safe for concurrent use; build it once at
// application start and pass it into the Resolver.
type Catalogue struct {
	src     RecordSource
	entries map[Namespace]catalogueEntry
}

// NewCatalogue builds the registry of known namespaces over the given record
// source.
func NewCatalogue(src RecordSource) *Catalogue {
	return &Catalogue{
		src: src,
		entries: map[Namespace]catalogueEntry{
			NamespacePatient: {
				derived: map[string]func(Record) any{
					"age": patientAge,
				},
			},
			NamespacePregnancy:  {collection: true, orderField: "start_date"},
			NamespaceReading:    {collection: true, orderField: "date_taken"},
			NamespaceAssessment: {collection: true, orderField: "date_assessed"},
			NamespaceReferral:   {collection: true, orderField: "date_referred"},
		},
	}
}

// Known reports whether the namespace has a registered descriptor.
func (c *Catalogue) Known(ns Namespace) bool {
	_, ok := c.entries[ns]
	return ok
}

// Collection reports whether the namespace is collection-valued.
func (c *Catalogue) Collection(ns Namespace) bool {
	return c.entries[ns].collection
}

// FetchOne fetches the single backing record for a non-collection namespace.
// Unknown namespaces fetch nothing.
func (c *Catalogue) FetchOne(ctx context.Context, ns Namespace, rc RecordContext) (Record, error) {
	if e, ok := c.entries[ns]; !ok || e.collection {
		return nil, nil
	}
	return c.src.ReadOne(ctx, ns, rc)
}

// FetchMany fetches the backing collection for a collection namespace.
func (c *Catalogue) FetchMany(ctx context.Context, ns Namespace, rc RecordContext) ([]Record, error) {
	if e, ok := c.entries[ns]; !ok || !e.collection {
		return nil, nil
	}
	return c.src.ReadMany(ctx, ns, rc)
}

// Select picks one element from a fetched collection by index. Latest means
// the element with the greatest ordering-field value; positions are
// zero-based, negative from the end. Out-of-range or empty selects nil.
func (c *Catalogue) Select(ns Namespace, records []Record, idx CollectionIndex) Record {
	if len(records) == 0 {
		return nil
	}
	switch idx.Kind {
	case IndexLatest:
		return latestRecord(records, c.entries[ns].orderField)
	case IndexPosition:
		pos := idx.Position
		if pos < 0 {
			pos += len(records)
		}
		if pos < 0 || pos >= len(records) {
			return nil
		}
		return records[pos]
	default:
		return nil
	}
}

// Project extracts a nested field value from a record. An empty field path
// yields the record itself; a derived field registered for the namespace is
// computed from the record on demand. A missing or non-traversable field
// yields nil, never an error.
func (c *Catalogue) Project(ns Namespace, rec Record, fieldPath []string) any {
	if rec == nil {
		return nil
	}
	if len(fieldPath) == 0 {
		return map[string]any(rec)
	}
	if fn, ok := c.entries[ns].derived[fieldPath[0]]; ok && len(fieldPath) == 1 {
		return fn(rec)
	}

	var cur any = map[string]any(rec)
	for _, seg := range fieldPath {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		v, ok := m[seg]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}

func latestRecord(records []Record, orderField string) Record {
	var best Record
	var bestAt time.Time
	for _, r := range records {
		at, ok := recordTime(r[orderField])
		if !ok {
			continue
		}
		if best == nil || at.After(bestAt) {
			best, bestAt = r, at
		}
	}
	return best
}

// recordTime reads an ordering-field value as a point in time. Records built
// from domain models carry time.Time; records decoded from JSON carry
// RFC 3339 or date strings.
func recordTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// patientAge derives the patient's age in complete years from date_of_birth.
func patientAge(rec Record) any {
	born, ok := recordTime(rec["date_of_birth"])
	if !ok {
		return nil
	}
	now := time.Now()
	age := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		age--
	}
	return age
}

package rules

import "context"

// Resolver resolves parsed variables against a record context through the
// catalogue. One Resolver can serve many concurrent resolutions; all state
// lives in the per-call fetch cache.
type Resolver struct {
	cat *Catalogue
}

func NewResolver(cat *Catalogue) *Resolver {
	return &Resolver{cat: cat}
}

// fetchCache memoizes record fetches for one resolution pass so that
// variables sharing a namespace share a single read.
type fetchCache struct {
	singles     map[Namespace]Record
	collections map[Namespace][]Record
}

func newFetchCache() *fetchCache {
	return &fetchCache{
		singles:     make(map[Namespace]Record),
		collections: make(map[Namespace][]Record),
	}
}

// ResolveVariables resolves each variable to its value, keyed by the
// variable's canonical path string. A missing record or field resolves to
// nil; only record-source failures return an error.
func (r *Resolver) ResolveVariables(ctx context.Context, rc RecordContext, vars []*DatasourceVariable) (map[string]any, error) {
	values := make(map[string]any, len(vars))
	cache := newFetchCache()
	for _, v := range vars {
		if v == nil {
			continue
		}
		val, err := r.resolve(ctx, rc, v.Path, cache)
		if err != nil {
			return nil, err
		}
		values[v.Path.Key()] = val
	}
	return values, nil
}

// ResolveVariable resolves a single variable to its value or nil.
func (r *Resolver) ResolveVariable(ctx context.Context, rc RecordContext, v *DatasourceVariable) (any, error) {
	if v == nil {
		return nil, nil
	}
	return r.resolve(ctx, rc, v.Path, newFetchCache())
}

func (r *Resolver) resolve(ctx context.Context, rc RecordContext, vp VariablePath, cache *fetchCache) (any, error) {
	ns := vp.Namespace
	if !r.cat.Known(ns) {
		return nil, nil
	}

	if !r.cat.Collection(ns) {
		rec, ok := cache.singles[ns]
		if !ok {
			var err error
			rec, err = r.cat.FetchOne(ctx, ns, rc)
			if err != nil {
				return nil, err
			}
			cache.singles[ns] = rec
		}
		return r.cat.Project(ns, rec, vp.FieldPath), nil
	}

	records, ok := cache.collections[ns]
	if !ok {
		var err error
		records, err = r.cat.FetchMany(ctx, ns, rc)
		if err != nil {
			return nil, err
		}
		cache.collections[ns] = records
	}

	// No index on a collection namespace only supports collection-level
	// fields; size is the count of backing records.
	if vp.Index.Kind == IndexNone {
		if len(vp.FieldPath) == 1 && vp.FieldPath[0] == "size" {
			return len(records), nil
		}
		return nil, nil
	}

	rec := r.cat.Select(ns, records, vp.Index)
	if rec == nil {
		return nil, nil
	}
	return r.cat.Project(ns, rec, vp.FieldPath), nil
}

// internal/domain/docstore/match.go

package docstore

import (
	"sort"
)

// Matches reports whether doc satisfies every filter. A document missing a
// filtered field never matches, including for !=.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(doc.Data, f) {
			return false
		}
	}
	return true
}

func matchFilter(data map[string]interface{}, f Filter) bool {
	v, exists := data[f.Field]
	if !exists {
		return false
	}

	switch f.Op {
	case OpEqual:
		return Equal(v, f.Value)
	case OpNotEqual:
		return !Equal(v, f.Value)
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		cmp, ok := Compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpLess:
			return cmp < 0
		case OpLessEqual:
			return cmp <= 0
		case OpGreater:
			return cmp > 0
		default:
			return cmp >= 0
		}
	case OpArrayContains:
		arr, ok := v.([]interface{})
		return ok && containsValue(arr, f.Value)
	case OpIn:
		candidates, ok := f.Value.([]interface{})
		return ok && containsValue(candidates, v)
	default:
		return false
	}
}

// Evaluate applies the query's filters, ordering and limit to docs and
// returns a new slice. Documents equal on every sort key are ordered by ID.
func Evaluate(docs []Document, q Query) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d, q.Filters) {
			out = append(out, d)
		}
	}

	SortDocuments(out, q.Orders)

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// SortDocuments sorts docs in place by orders, breaking ties by ID.
// Documents missing a sort field come first.
func SortDocuments(docs []Document, orders []Order) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, o := range orders {
			cmp := compareField(docs[i].Data, docs[j].Data, o.Field)
			if cmp == 0 {
				continue
			}
			if o.Direction == Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func compareField(a, b map[string]interface{}, field string) int {
	av, aok := a[field]
	bv, bok := b[field]
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	}
	if cmp, ok := Compare(av, bv); ok {
		return cmp
	}
	return compareOrdered(float64(typeRank(av)), float64(typeRank(bv)))
}

// typeRank orders values of different kinds relative to each other
func typeRank(v interface{}) int {
	switch Normalize(v).(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 4
	case []interface{}:
		return 5
	case map[string]interface{}:
		return 6
	default:
		return 3
	}
}

// Package identifier maps between the unified primary-key field callers
// see and a backend's native key representation. Every driver routes
// records through a Normalizer so that no native key type or field name
// leaks into caller-visible behavior.
package identifier

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

// Normalizer translates records and queries between the unified
// identifier field and one backend's native key field. The zero value is
// not usable; construct with New.
type Normalizer struct {
	native string
}

// New creates a normalizer for a backend whose native key field has the
// given name. An empty name means the backend already stores keys under
// the unified field.
func New(nativeField string) Normalizer {
	if nativeField == "" {
		nativeField = api.IDField
	}
	return Normalizer{native: nativeField}
}

// NativeField returns the backend's native key field name.
func (n Normalizer) NativeField() string {
	return n.native
}

// Normalize rewrites a backend record for callers: the native key moves
// to the unified field in canonical string form, and the native field is
// removed so it never appears unless it is the unified field itself.
// The input record is never modified.
func (n Normalizer) Normalize(rec api.Record) api.Record {
	if rec == nil {
		return nil
	}
	out := rec.Clone()
	if n.native == api.IDField {
		if v, ok := out[api.IDField]; ok {
			out[api.IDField] = CanonicalString(v)
		}
		return out
	}
	if v, ok := out[n.native]; ok {
		out[api.IDField] = CanonicalString(v)
		delete(out, n.native)
	}
	return out
}

// Denormalize rewrites caller-supplied data for the backend: the unified
// field moves to the native key field.
func (n Normalizer) Denormalize(data api.Record) api.Record {
	if data == nil || n.native == api.IDField {
		return data
	}
	out := data.Clone()
	if v, ok := out[api.IDField]; ok {
		out[n.native] = v
		delete(out, api.IDField)
	}
	return out
}

// EnsureID returns the record's unified identifier, generating and
// setting a fresh one when absent. The record is mutated in place.
func EnsureID(data api.Record) string {
	if id, ok := data.ID(); ok && id != "" {
		return id
	}
	id := Generate()
	data[api.IDField] = id
	return id
}

// Generate produces a new unique identifier in canonical string form.
func Generate() string {
	return uuid.NewString()
}

// CanonicalString surfaces a native key value as the canonical string
// callers see. Binary keys become hex; everything else uses its plain
// string form.
func CanonicalString(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return hex.EncodeToString(k)
	default:
		return fmt.Sprintf("%v", k)
	}
}

// RewriteField maps the unified key field name to the native one, so
// filtering and sorting on the unified key behave exactly like an
// ordinary field on every backend.
func (n Normalizer) RewriteField(field string) string {
	if field == api.IDField {
		return n.native
	}
	return field
}

// RewriteQuery returns a query whose filter and sort field references to
// the unified key are rewritten to the native key field. The input query
// is not modified.
func (n Normalizer) RewriteQuery(q *query.UnifiedQuery) *query.UnifiedQuery {
	if q == nil || n.native == api.IDField {
		return q
	}
	out := q.Clone()
	out.Filters = n.RewriteFilters(out.Filters)
	for i := range out.Sort {
		out.Sort[i].Field = n.RewriteField(out.Sort[i].Field)
	}
	for i := range out.GroupBy {
		out.GroupBy[i] = n.RewriteField(out.GroupBy[i])
	}
	return out
}

// RewriteFilters rewrites unified-key field references in a filter list.
func (n Normalizer) RewriteFilters(exprs []query.Expression) []query.Expression {
	if n.native == api.IDField {
		return exprs
	}
	out := make([]query.Expression, len(exprs))
	for i, expr := range exprs {
		out[i] = n.rewriteExpr(expr)
	}
	return out
}

func (n Normalizer) rewriteExpr(expr query.Expression) query.Expression {
	switch e := expr.(type) {
	case query.Criterion:
		if e.Field == api.IDField {
			return query.Criterion{Field: n.native, Operator: e.Operator, Value: e.Value}
		}
		return e
	case query.Group:
		return query.Group(n.RewriteFilters(e))
	default:
		return expr
	}
}

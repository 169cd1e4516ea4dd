package identifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

func TestNormalizeMovesNativeKey(t *testing.T) {
	n := New("_id")
	out := n.Normalize(api.Record{"_id": "u1", "name": "alice"})
	assert.Equal(t, "u1", out[api.IDField])
	_, present := out["_id"]
	assert.False(t, present)
}

func TestNormalizeBinaryKey(t *testing.T) {
	n := New("_id")
	out := n.Normalize(api.Record{"_id": []byte{0xde, 0xad}})
	assert.Equal(t, "dead", out[api.IDField])
}

func TestNormalizeNumericKey(t *testing.T) {
	n := New("pk")
	out := n.Normalize(api.Record{"pk": 42, "name": "alice"})
	assert.Equal(t, "42", out[api.IDField])
}

func TestNormalizeUnifiedFieldKeepsKey(t *testing.T) {
	n := New("")
	assert.Equal(t, api.IDField, n.NativeField())
	rec := api.Record{api.IDField: "u1", "name": "alice"}
	out := n.Normalize(rec)
	assert.Equal(t, "u1", out[api.IDField])
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	n := New("_id")
	rec := api.Record{"_id": "u1"}
	_ = n.Normalize(rec)
	assert.Equal(t, "u1", rec["_id"])
	_, present := rec[api.IDField]
	assert.False(t, present)
}

func TestNormalizeUnifiedFieldDoesNotMutateInput(t *testing.T) {
	n := New("")
	rec := api.Record{api.IDField: 42, "name": "alice"}
	out := n.Normalize(rec)
	assert.Equal(t, "42", out[api.IDField])
	assert.Equal(t, 42, rec[api.IDField])
}

func TestDenormalizeMovesUnifiedKey(t *testing.T) {
	n := New("_id")
	out := n.Denormalize(api.Record{api.IDField: "u1", "name": "alice"})
	assert.Equal(t, "u1", out["_id"])
	_, present := out[api.IDField]
	assert.False(t, present)
}

func TestRoundTrip(t *testing.T) {
	n := New("_id")
	rec := api.Record{api.IDField: "u1", "name": "alice"}
	out := n.Normalize(n.Denormalize(rec))
	assert.Equal(t, rec, out)
}

func TestEnsureID(t *testing.T) {
	rec := api.Record{"name": "alice"}
	id := EnsureID(rec)
	require.NotEmpty(t, id)
	assert.Equal(t, id, rec[api.IDField])

	// An existing identifier is kept.
	assert.Equal(t, "u1", EnsureID(api.Record{api.IDField: "u1"}))
}

func TestGenerateUnique(t *testing.T) {
	assert.NotEqual(t, Generate(), Generate())
}

func TestRewriteQuery(t *testing.T) {
	n := New("_id")
	q := &query.UnifiedQuery{
		Filters: []query.Expression{
			query.Where(api.IDField, query.OpEqual, "u1"),
			query.Group{
				query.Where(api.IDField, query.OpIn, []any{"u2"}),
				query.TokenOr,
				query.Where("name", query.OpEqual, "alice"),
			},
		},
		Sort:    []query.SortOption{{Field: api.IDField}},
		GroupBy: []string{api.IDField, "city"},
	}
	out := n.RewriteQuery(q)

	crit := out.Filters[0].(query.Criterion)
	assert.Equal(t, "_id", crit.Field)
	grp := out.Filters[1].(query.Group)
	assert.Equal(t, "_id", grp[0].(query.Criterion).Field)
	assert.Equal(t, "name", grp[2].(query.Criterion).Field)
	assert.Equal(t, "_id", out.Sort[0].Field)
	assert.Equal(t, []string{"_id", "city"}, out.GroupBy)

	// The input query is untouched.
	assert.Equal(t, api.IDField, q.Filters[0].(query.Criterion).Field)
	assert.Equal(t, api.IDField, q.Sort[0].Field)
}

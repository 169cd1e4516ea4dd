// Package drivertest is a conformance suite for driver implementations.
// Every backend must produce the same logical results as the in-memory
// reference driver for any dataset and query, so the suite seeds an
// identical fixture into the driver under test and the reference, runs a
// battery of queries through both, and requires equal output.
package drivertest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/driver/memory"
	"github.com/strata-dev/strata/pkg/query"
)

// Factory creates a fresh, empty driver for one subtest. Cleanup runs
// through t.Cleanup.
type Factory func(t *testing.T) driver.Driver

const entity = "users"

// fixture is the shared dataset. Numbers are float64 so every backend
// returns them bit-identical after a JSON round trip; city and score are
// deliberately missing on some records to pin the null semantics.
func fixture() []api.Record {
	return []api.Record{
		{"id": "u1", "name": "Alice", "age": float64(34), "active": true, "city": "Berlin", "score": float64(88)},
		{"id": "u2", "name": "Bob", "age": float64(28), "active": false, "city": "Paris", "score": float64(61)},
		{"id": "u3", "name": "Carol", "age": float64(41), "active": true, "city": "Berlin", "score": float64(75)},
		{"id": "u4", "name": "Dave", "age": float64(28), "active": true},
		{"id": "u5", "name": "Erin", "age": float64(52), "active": false, "city": "Lisbon", "score": float64(93)},
		{"id": "u6", "name": "frank", "active": true, "city": "berlin", "score": float64(42)},
	}
}

func seed(t *testing.T, d driver.Driver) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range fixture() {
		_, err := d.Create(ctx, entity, rec)
		require.NoError(t, err, "seeding fixture record %v", rec["id"])
	}
}

func reference(t *testing.T) driver.Driver {
	t.Helper()
	ref := memory.New()
	seed(t, ref)
	return ref
}

func ids(records []api.Record) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		id, _ := rec.ID()
		out = append(out, id)
	}
	return out
}

// Run executes the full conformance suite against the driver produced by
// the factory.
func Run(t *testing.T, factory Factory) {
	t.Run("QueryEquivalence", func(t *testing.T) { testQueryEquivalence(t, factory) })
	t.Run("Aggregation", func(t *testing.T) { testAggregation(t, factory) })
	t.Run("IdentifierRoundTrip", func(t *testing.T) { testIdentifierRoundTrip(t, factory) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, factory) })
	t.Run("FindOneMissing", func(t *testing.T) { testFindOneMissing(t, factory) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, factory) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Count", func(t *testing.T) { testCount(t, factory) })
	t.Run("InvalidListOperand", func(t *testing.T) { testInvalidListOperand(t, factory) })
}

// testQueryEquivalence runs the same queries through the driver under
// test and the reference driver and requires identical results,
// including record contents and order.
func testQueryEquivalence(t *testing.T, factory Factory) {
	ctx := context.Background()
	ref := reference(t)
	dut := factory(t)
	seed(t, dut)

	cases := []struct {
		name string
		q    *query.UnifiedQuery
	}{
		{name: "no filter natural order", q: &query.UnifiedQuery{}},
		{
			name: "equality on string",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpEqual, "Berlin")}},
		},
		{
			name: "equality on number",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpEqual, float64(28))}},
		},
		{
			name: "equality on bool",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("active", query.OpEqual, true)}},
		},
		{
			name: "inequality includes records missing the field",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpNotEqual, "Paris")}},
		},
		{
			name: "greater than",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpGreater, float64(30))}},
		},
		{
			name: "greater or equal",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpGreaterEqual, float64(28))}},
		},
		{
			name: "less than treats missing as below defined",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpLess, float64(30))}},
		},
		{
			name: "less or equal",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpLessEqual, float64(28))}},
		},
		{
			name: "contains is case-insensitive",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("name", query.OpContains, "AR")}},
		},
		{
			name: "starts_with is case-insensitive",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpStartsWith, "ber")}},
		},
		{
			name: "ends_with is case-insensitive",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("name", query.OpEndsWith, "E")}},
		},
		{
			name: "in list",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpIn, []any{"Paris", "Lisbon"})}},
		},
		{
			name: "in empty list matches nothing",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpIn, []any{})}},
		},
		{
			name: "not_in includes records missing the field",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpNotIn, []any{"Berlin"})}},
		},
		{
			name: "between is inclusive",
			q:    &query.UnifiedQuery{Filters: []query.Expression{query.Where("age", query.OpBetween, []any{float64(28), float64(41)})}},
		},
		{
			name: "implicit and across criteria",
			q: &query.UnifiedQuery{Filters: []query.Expression{
				query.Where("active", query.OpEqual, true),
				query.Where("age", query.OpGreater, float64(30)),
			}},
		},
		{
			name: "or combinator",
			q: &query.UnifiedQuery{Filters: []query.Expression{
				query.Where("city", query.OpEqual, "Paris"),
				query.TokenOr,
				query.Where("city", query.OpEqual, "Lisbon"),
			}},
		},
		{
			name: "mixed or then and evaluates left to right",
			q: &query.UnifiedQuery{Filters: []query.Expression{
				query.Where("city", query.OpEqual, "Berlin"),
				query.TokenOr,
				query.Where("city", query.OpEqual, "Paris"),
				query.TokenAnd,
				query.Where("active", query.OpEqual, true),
			}},
		},
		{
			name: "nested group",
			q: &query.UnifiedQuery{Filters: []query.Expression{
				query.Where("active", query.OpEqual, true),
				query.Group{
					query.Where("age", query.OpLess, float64(30)),
					query.TokenOr,
					query.Where("score", query.OpGreater, float64(80)),
				},
			}},
		},
		{
			name: "sort by field descending with id tiebreak",
			q:    &query.UnifiedQuery{Sort: []query.SortOption{{Field: "age", Direction: query.Descending}}},
		},
		{
			name: "sort multi-key",
			q: &query.UnifiedQuery{Sort: []query.SortOption{
				{Field: "active", Direction: query.Ascending},
				{Field: "age", Direction: query.Descending},
			}},
		},
		{
			name: "pagination",
			q: &query.UnifiedQuery{
				Sort:  []query.SortOption{{Field: "age", Direction: query.Ascending}},
				Skip:  1,
				Limit: 3,
			},
		},
		{
			name: "skip past end",
			q:    &query.UnifiedQuery{Skip: 100},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want, err := ref.Find(ctx, entity, tc.q)
			require.NoError(t, err, "reference driver failed")

			got, err := dut.Find(ctx, entity, tc.q)
			require.NoError(t, err)

			assert.Equal(t, ids(want), ids(got), "result order diverged from reference")
			require.Equal(t, len(want), len(got))
			for i := range want {
				assert.Equal(t, want[i], got[i], "record %d diverged from reference", i)
			}
		})
	}
}

// testAggregation compares groupBy/aggregate output to the reference
// driver, or asserts the capability is honestly reported absent.
func testAggregation(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	q := &query.UnifiedQuery{
		GroupBy: []string{"active"},
		Aggregate: []query.AggregateOption{
			{Function: query.AggCount},
			{Function: query.AggSum, Field: "age", Alias: "total_age"},
			{Function: query.AggMax, Field: "score"},
		},
		Sort: []query.SortOption{{Field: "count", Direction: query.Descending}},
	}

	if !dut.Capabilities().Aggregation {
		_, err := dut.Find(ctx, entity, q)
		require.Error(t, err)
		assert.Equal(t, api.ErrCodeDriverUnsupported, api.CodeOf(err))
		return
	}

	ref := reference(t)
	want, err := ref.Find(ctx, entity, q)
	require.NoError(t, err)

	got, err := dut.Find(ctx, entity, q)
	require.NoError(t, err)

	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i], got[i], "aggregate row %d diverged from reference", i)
	}
}

// testIdentifierRoundTrip pins that records surface the unified id field
// regardless of the backend's native key representation, and that a
// generated id is stable across reads.
func testIdentifierRoundTrip(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)

	created, err := dut.Create(ctx, entity, api.Record{"name": "Grace"})
	require.NoError(t, err)

	id, ok := created.ID()
	require.True(t, ok, "created record has no unified id")
	require.NotEmpty(t, id)

	fetched, err := dut.FindOne(ctx, entity, id)
	require.NoError(t, err)

	gotID, ok := fetched.ID()
	require.True(t, ok)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "Grace", fetched["name"])

	// The native key never leaks into the unified record shape.
	for k := range fetched {
		assert.NotEqual(t, "_id", k, "native key leaked into record")
	}
}

func testCreateDuplicate(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)

	_, err := dut.Create(ctx, entity, api.Record{"id": "dup-1", "name": "first"})
	require.NoError(t, err)

	_, err = dut.Create(ctx, entity, api.Record{"id": "dup-1", "name": "second"})
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeDuplicateRecord, api.CodeOf(err))
}

func testFindOneMissing(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	_, err := dut.FindOne(ctx, entity, "no-such-id")
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeNotFound, api.CodeOf(err))
}

func testUpdate(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	updated, err := dut.Update(ctx, entity, "u2", api.Record{"city": "Lyon", "score": float64(70)})
	require.NoError(t, err)
	assert.Equal(t, "Lyon", updated["city"])
	assert.Equal(t, float64(70), updated["score"])
	assert.Equal(t, "Bob", updated["name"], "untouched field lost on update")

	// The unified id is immutable.
	updated, err = dut.Update(ctx, entity, "u2", api.Record{"id": "u99", "name": "Bobby"})
	require.NoError(t, err)
	gotID, _ := updated.ID()
	assert.Equal(t, "u2", gotID)

	_, err = dut.FindOne(ctx, entity, "u2")
	require.NoError(t, err)

	_, err = dut.Update(ctx, entity, "no-such-id", api.Record{"name": "x"})
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeNotFound, api.CodeOf(err))
}

func testDelete(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	deleted, err := dut.Delete(ctx, entity, "u3")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = dut.Delete(ctx, entity, "u3")
	require.NoError(t, err)
	assert.False(t, deleted, "second delete reported a removal")

	_, err = dut.FindOne(ctx, entity, "u3")
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeNotFound, api.CodeOf(err))
}

func testCount(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	n, err := dut.Count(ctx, entity, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	n, err = dut.Count(ctx, entity, []query.Expression{query.Where("active", query.OpEqual, true)})
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = dut.Count(ctx, entity, []query.Expression{query.Where("city", query.OpEqual, "Nowhere")})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

// testInvalidListOperand pins that in/not_in with a non-list operand is
// a validation error on every backend, not a silent mismatch.
func testInvalidListOperand(t *testing.T, factory Factory) {
	ctx := context.Background()
	dut := factory(t)
	seed(t, dut)

	q := &query.UnifiedQuery{Filters: []query.Expression{query.Where("city", query.OpIn, "Berlin")}}
	_, err := dut.Find(ctx, entity, q)
	require.Error(t, err)
	assert.Equal(t, api.ErrCodeValidation, api.CodeOf(err))
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-dev/strata/pkg/api"
)

func sampleRecords() []api.Record {
	return []api.Record{
		{"id": "u1", "name": "alice", "city": "paris", "age": float64(34)},
		{"id": "u2", "name": "bob", "city": "lyon", "age": float64(28)},
		{"id": "u3", "name": "carol", "city": "paris", "age": float64(41)},
		{"id": "u4", "name": "dave", "city": "lyon"},
	}
}

func recordIDs(records []api.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i], _ = rec.ID()
	}
	return out
}

func TestFilterRecords(t *testing.T) {
	out, err := FilterRecords(sampleRecords(), []Expression{
		Where("city", OpEqual, "paris"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3"}, recordIDs(out))

	// An empty filter list passes everything through.
	all, err := FilterRecords(sampleRecords(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	_, err = FilterRecords(sampleRecords(), []Expression{Where("city", OpIn, "paris")})
	assert.Equal(t, api.ErrCodeValidation, api.CodeOf(err))
}

func TestSortRecords(t *testing.T) {
	records := sampleRecords()
	SortRecords(records, []SortOption{{Field: "age", Direction: Descending}})
	// The record missing the field sorts below every defined value.
	assert.Equal(t, []string{"u3", "u1", "u2", "u4"}, recordIDs(records))

	records = sampleRecords()
	SortRecords(records, []SortOption{
		{Field: "city", Direction: Ascending},
		{Field: "age", Direction: Descending},
	})
	assert.Equal(t, []string{"u2", "u4", "u3", "u1"}, recordIDs(records))
}

func TestSortRecordsStable(t *testing.T) {
	records := sampleRecords()
	SortRecords(records, []SortOption{{Field: "city", Direction: Ascending}})
	// Equal keys keep input order.
	assert.Equal(t, []string{"u2", "u4", "u1", "u3"}, recordIDs(records))
}

func TestPaginate(t *testing.T) {
	records := sampleRecords()
	assert.Equal(t, []string{"u2", "u3"}, recordIDs(Paginate(records, 1, 2)))
	assert.Equal(t, []string{"u4"}, recordIDs(Paginate(records, 3, 10)))
	assert.Empty(t, Paginate(records, 10, 2))
	// A limit of zero means no limit.
	assert.Len(t, Paginate(records, 0, 0), 4)
}

func TestAggregateRecords(t *testing.T) {
	out, err := AggregateRecords(sampleRecords(), []string{"city"}, []AggregateOption{
		{Function: AggCount},
		{Function: AggSum, Field: "age", Alias: "total_age"},
		{Function: AggMax, Field: "age"},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)

	byCity := make(map[string]api.Record)
	for _, row := range out {
		byCity[row["city"].(string)] = row
	}
	paris := byCity["paris"]
	assert.Equal(t, float64(2), paris["count"])
	assert.Equal(t, float64(75), paris["total_age"])
	assert.Equal(t, float64(41), paris["max_age"])

	// The record missing the field contributes to count but not sum.
	lyon := byCity["lyon"]
	assert.Equal(t, float64(2), lyon["count"])
	assert.Equal(t, float64(28), lyon["total_age"])
}

func TestAggregateRecordsAvgAndMin(t *testing.T) {
	out, err := AggregateRecords(sampleRecords(), nil, []AggregateOption{
		{Function: AggAvg, Field: "age"},
		{Function: AggMin, Field: "age"},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDelta(t, (34.0+28+41)/3, out[0]["avg_age"].(float64), 1e-9)
	assert.Equal(t, float64(28), out[0]["min_age"])
}

func TestAggregateRecordsDefaultsToCount(t *testing.T) {
	out, err := AggregateRecords(sampleRecords(), []string{"city"}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
	for _, row := range out {
		assert.Equal(t, float64(2), row["count"])
	}
}

func TestAggregateRecordsEmptyInput(t *testing.T) {
	// With no grouping, an empty input still yields one row.
	out, err := AggregateRecords(nil, nil, []AggregateOption{{Function: AggCount}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, float64(0), out[0]["count"])

	// With grouping there is nothing to group.
	out, err = AggregateRecords(nil, []string{"city"}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestAggregateRecordsInvalidFunction(t *testing.T) {
	_, err := AggregateRecords(sampleRecords(), nil, []AggregateOption{{Function: "median"}})
	assert.Equal(t, api.ErrCodeValidation, api.CodeOf(err))
}

package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/permission"
)

func TestIntersectFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, intersectFields(nil, []string{"a", "b"}))
	assert.Nil(t, intersectFields(nil, nil))
	assert.Equal(t, []string{"a"}, intersectFields([]string{"a"}, nil))
	assert.Equal(t, []string{"b", "a"}, intersectFields([]string{"a", "b"}, []string{"b", "c", "a"}))
	// The identifier survives intersection even when not granted.
	assert.Equal(t, []string{"id", "a"}, intersectFields([]string{"a"}, []string{"id", "a"}))
	// An empty non-nil grant intersects down to nothing.
	assert.Empty(t, intersectFields([]string{}, []string{"a"}))
}

func TestProjectRecords(t *testing.T) {
	records := []api.Record{{"id": "r1", "a": 1, "b": 2}}
	out := projectRecords(records, []string{"a"})
	assert.Equal(t, api.Record{"id": "r1", "a": 1}, out[0])

	// A nil field set means no projection.
	same := projectRecords(records, nil)
	assert.Equal(t, records[0], same[0])

	// An empty non-nil set keeps only the identifier.
	bare := projectRecords(records, []string{})
	assert.Equal(t, api.Record{"id": "r1"}, bare[0])
}

func TestStripForWrite(t *testing.T) {
	res := &permission.Resolution{
		Allowed:        true,
		Fields:         []string{"a", "b", "locked"},
		ReadonlyFields: []string{"locked"},
	}
	out := stripForWrite(api.Record{"id": "r1", "a": 1, "locked": 2, "hidden": 3}, res)
	assert.Equal(t, api.Record{"id": "r1", "a": 1}, out)
}

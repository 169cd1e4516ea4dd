// Package memory implements the driver contract over in-process maps.
// It evaluates filter trees natively with the reference evaluator, which
// makes it both the default development backend and the equivalence
// baseline the other backends are tested against.
package memory

import (
	"context"
	"sync"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/identifier"
	"github.com/strata-dev/strata/pkg/query"
)

// Driver is an in-memory backend. Safe for concurrent use.
type Driver struct {
	mu       sync.RWMutex
	entities map[string]map[string]api.Record
}

// New creates an empty in-memory driver.
func New() *Driver {
	return &Driver{entities: make(map[string]map[string]api.Record)}
}

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{Aggregation: true}
}

// Find implements driver.Driver.
func (d *Driver) Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error) {
	if q == nil {
		q = &query.UnifiedQuery{}
	}
	records := d.snapshot(entity)

	records, err := query.FilterRecords(records, q.Filters)
	if err != nil {
		return nil, err
	}
	if q.HasAggregation() {
		rows, err := query.AggregateRecords(records, q.GroupBy, q.Aggregate)
		if err != nil {
			return nil, err
		}
		query.SortRecords(rows, q.Sort)
		return query.Paginate(rows, q.Skip, q.Limit), nil
	}
	query.SortRecords(records, q.Sort)
	return query.Paginate(records, q.Skip, q.Limit), nil
}

// FindOne implements driver.Driver.
func (d *Driver) FindOne(ctx context.Context, entity, id string) (api.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.entities[entity][id]
	if !ok {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	return rec.Clone(), nil
}

// Create implements driver.Driver.
func (d *Driver) Create(ctx context.Context, entity string, data api.Record) (api.Record, error) {
	rec := data.Clone()
	if rec == nil {
		rec = api.Record{}
	}
	id := identifier.EnsureID(rec)

	d.mu.Lock()
	defer d.mu.Unlock()
	bucket, ok := d.entities[entity]
	if !ok {
		bucket = make(map[string]api.Record)
		d.entities[entity] = bucket
	}
	if _, exists := bucket[id]; exists {
		return nil, &api.Error{Code: api.ErrCodeDuplicateRecord, Entity: entity, Message: "record " + id + " already exists"}
	}
	bucket[id] = rec
	return rec.Clone(), nil
}

// Update implements driver.Driver. The unified identifier is immutable;
// an id key in the patch is ignored.
func (d *Driver) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	existing, ok := d.entities[entity][id]
	if !ok {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	updated := existing.Clone()
	for k, v := range data {
		if k == api.IDField {
			continue
		}
		updated[k] = v
	}
	d.entities[entity][id] = updated
	return updated.Clone(), nil
}

// Delete implements driver.Driver.
func (d *Driver) Delete(ctx context.Context, entity, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.entities[entity][id]; !ok {
		return false, nil
	}
	delete(d.entities[entity], id)
	return true, nil
}

// Count implements driver.Driver.
func (d *Driver) Count(ctx context.Context, entity string, filters []query.Expression) (int64, error) {
	records := d.snapshot(entity)
	matched, err := query.FilterRecords(records, filters)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	return nil
}

// Seed inserts records directly, generating identifiers where absent.
// Intended for fixtures and tests.
func (d *Driver) Seed(entity string, records ...api.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket, ok := d.entities[entity]
	if !ok {
		bucket = make(map[string]api.Record)
		d.entities[entity] = bucket
	}
	for _, rec := range records {
		r := rec.Clone()
		id := identifier.EnsureID(r)
		bucket[id] = r
	}
}

// snapshot copies out an entity's records in deterministic order: the
// natural order of every backend is ascending unified id, so results
// remain comparable across drivers when no sort is requested.
func (d *Driver) snapshot(entity string) []api.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	bucket := d.entities[entity]
	out := make([]api.Record, 0, len(bucket))
	for _, rec := range bucket {
		out = append(out, rec.Clone())
	}
	query.SortRecords(out, []query.SortOption{{Field: api.IDField, Direction: query.Ascending}})
	return out
}

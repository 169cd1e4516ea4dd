// Package driver defines the storage backend contract. Every backend
// adapter implements Driver; the repository orchestrator never
// special-cases a backend beyond consulting its capability flags.
package driver

import (
	"context"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/query"
)

// Capabilities describes what a backend can execute natively. The
// orchestrator consults these at dispatch time to fail fast with
// DRIVER_UNSUPPORTED_OPERATION instead of silently degrading.
type Capabilities struct {
	Transactions   bool `json:"transactions"`
	Joins          bool `json:"joins"`
	Aggregation    bool `json:"aggregation"`
	FullTextSearch bool `json:"full_text_search"`
	Bulk           bool `json:"bulk"`
}

// Driver is the contract every storage backend implements. Find and
// Count must be side-effect-free; Create, Update and Delete are the only
// operations permitted to mutate backend state. All records cross this
// boundary with the unified identifier field already normalized.
type Driver interface {
	// Find returns the records matching the query, filtered, sorted and
	// paginated. Aggregation queries return one record per group.
	Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error)

	// FindOne returns the record with the given unified identifier, or a
	// NOT_FOUND coded error.
	FindOne(ctx context.Context, entity, id string) (api.Record, error)

	// Create stores a new record and returns it with its identifier set.
	// An identifier collision yields a DUPLICATE_RECORD coded error.
	Create(ctx context.Context, entity string, data api.Record) (api.Record, error)

	// Update applies the given fields to an existing record and returns
	// the updated record.
	Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error)

	// Delete removes a record, reporting whether it existed.
	Delete(ctx context.Context, entity, id string) (bool, error)

	// Count returns the number of records matching the filter list.
	Count(ctx context.Context, entity string, filters []query.Expression) (int64, error)

	// Capabilities reports what this backend can execute natively.
	Capabilities() Capabilities

	// Close releases backend resources.
	Close() error
}

// BulkDriver is implemented by backends with native bulk operations.
type BulkDriver interface {
	BulkCreate(ctx context.Context, entity string, items []api.Record) ([]api.Record, error)
	BulkUpdate(ctx context.Context, entity string, updates map[string]api.Record) ([]api.Record, error)
	BulkDelete(ctx context.Context, entity string, ids []string) (int, error)
}

// BulkCreate uses the driver's native bulk path when present, falling
// back to sequential creates.
func BulkCreate(ctx context.Context, d Driver, entity string, items []api.Record) ([]api.Record, error) {
	if bd, ok := d.(BulkDriver); ok {
		return bd.BulkCreate(ctx, entity, items)
	}
	out := make([]api.Record, 0, len(items))
	for _, item := range items {
		rec, err := d.Create(ctx, entity, item)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// BulkUpdate uses the driver's native bulk path when present, falling
// back to sequential updates.
func BulkUpdate(ctx context.Context, d Driver, entity string, updates map[string]api.Record) ([]api.Record, error) {
	if bd, ok := d.(BulkDriver); ok {
		return bd.BulkUpdate(ctx, entity, updates)
	}
	out := make([]api.Record, 0, len(updates))
	for id, data := range updates {
		rec, err := d.Update(ctx, entity, id, data)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// BulkDelete uses the driver's native bulk path when present, falling
// back to sequential deletes.
func BulkDelete(ctx context.Context, d Driver, entity string, ids []string) (int, error) {
	if bd, ok := d.(BulkDriver); ok {
		return bd.BulkDelete(ctx, entity, ids)
	}
	deleted := 0
	for _, id := range ids {
		ok, err := d.Delete(ctx, entity, id)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

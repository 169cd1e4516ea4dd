package repository

import (
	"context"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/query"
)

// driverAdapter exposes a Repository through the driver contract so it
// can sit behind any driver-shaped surface, such as the remote HTTP
// handler. The caller context travels in ctx (api.WithCaller); requests
// without one carry an empty caller and resolve to a denial.
type driverAdapter struct {
	repo *Repository
}

// Driver returns a driver-contract view of the repository.
func (r *Repository) Driver() driver.Driver {
	return &driverAdapter{repo: r}
}

func (a *driverAdapter) Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error) {
	result, err := a.repo.Find(ctx, api.CallerFrom(ctx), entity, q)
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

func (a *driverAdapter) FindOne(ctx context.Context, entity, id string) (api.Record, error) {
	return a.repo.FindOne(ctx, api.CallerFrom(ctx), entity, id)
}

func (a *driverAdapter) Create(ctx context.Context, entity string, data api.Record) (api.Record, error) {
	return a.repo.Create(ctx, api.CallerFrom(ctx), entity, data)
}

func (a *driverAdapter) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	return a.repo.Update(ctx, api.CallerFrom(ctx), entity, id, data)
}

func (a *driverAdapter) Delete(ctx context.Context, entity, id string) (bool, error) {
	return a.repo.Delete(ctx, api.CallerFrom(ctx), entity, id)
}

func (a *driverAdapter) Count(ctx context.Context, entity string, filters []query.Expression) (int64, error) {
	return a.repo.Count(ctx, api.CallerFrom(ctx), entity, filters)
}

func (a *driverAdapter) BulkCreate(ctx context.Context, entity string, items []api.Record) ([]api.Record, error) {
	return a.repo.BulkCreate(ctx, api.CallerFrom(ctx), entity, items)
}

func (a *driverAdapter) BulkUpdate(ctx context.Context, entity string, updates map[string]api.Record) ([]api.Record, error) {
	return a.repo.BulkUpdate(ctx, api.CallerFrom(ctx), entity, updates)
}

func (a *driverAdapter) BulkDelete(ctx context.Context, entity string, ids []string) (int, error) {
	return a.repo.BulkDelete(ctx, api.CallerFrom(ctx), entity, ids)
}

// Capabilities reports everything enabled; the repository gates each
// request against the target entity's actual backend, so support varies
// per entity rather than per adapter.
func (a *driverAdapter) Capabilities() driver.Capabilities {
	return driver.Capabilities{
		Transactions:   true,
		Aggregation:    true,
		FullTextSearch: true,
		Bulk:           true,
	}
}

// Close closes every configured backend driver.
func (a *driverAdapter) Close() error {
	var firstErr error
	for _, d := range a.repo.drivers {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

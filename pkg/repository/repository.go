// Package repository orchestrates every data-access request: it is the
// only component that calls both the permission engine and a driver.
// Each operation resolves the caller's permission first, merges the
// returned row filter into the query, restricts the projected or
// writable fields, dispatches to the entity's declared backend, and
// reshapes the result.
//
// Permission denials are decided before any driver call, so a denied
// caller learns nothing about whether the target record exists.
package repository

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/permission"
	"github.com/strata-dev/strata/pkg/policy"
	"github.com/strata-dev/strata/pkg/query"
	"github.com/strata-dev/strata/pkg/schema"
)

// Repository dispatches unified queries and mutations to storage
// backends under the caller's resolved permissions.
type Repository struct {
	schema  *schema.Schema
	drivers map[string]driver.Driver
	perms   *permission.Engine
	log     *logrus.Logger
	metrics *Metrics
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(log *logrus.Logger) Option {
	return func(r *Repository) {
		if log != nil {
			r.log = log
		}
	}
}

// WithMetrics enables operation metrics.
func WithMetrics(m *Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// New creates a repository over the declared schema, the configured
// drivers keyed by backend name, and the permission engine.
func New(sch *schema.Schema, drivers map[string]driver.Driver, perms *permission.Engine, opts ...Option) *Repository {
	r := &Repository{
		schema:  sch,
		drivers: drivers,
		perms:   perms,
		log:     logrus.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Find executes a unified query under the caller's read permission.
func (r *Repository) Find(ctx context.Context, caller *api.CallerContext, entity string, q *query.UnifiedQuery) (*api.QueryResult, error) {
	start := time.Now()
	result, err := r.find(ctx, caller, entity, q)
	r.metrics.observe(entity, "find", start, err)
	return result, err
}

func (r *Repository) find(ctx context.Context, caller *api.CallerContext, entity string, q *query.UnifiedQuery) (*api.QueryResult, error) {
	if q == nil {
		q = &query.UnifiedQuery{}
	}
	if err := q.Validate(); err != nil {
		return nil, r.translate(entity, "find", err)
	}
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionRead)
	if err != nil {
		return nil, err
	}
	if q.HasAggregation() && !drv.Capabilities().Aggregation {
		return nil, &api.Error{
			Code:   api.ErrCodeDriverUnsupported,
			Entity: entity, Op: "find",
			Message: "backend " + ent.Backend + " does not support aggregation",
		}
	}

	merged, fields := r.applyPermission(q, res)
	records, err := drv.Find(ctx, entity, merged)
	if err != nil {
		return nil, r.translate(entity, "find", err)
	}
	if !q.HasAggregation() {
		records = projectRecords(records, fields)
	}

	result := &api.QueryResult{Data: records, Skip: q.Skip, Limit: q.Limit}
	if q.Skip == 0 && q.Limit == 0 {
		result.Total = int64(len(records))
	}
	if q.Limit > 0 && len(records) == q.Limit {
		result.HasMore = true
	}
	return result, nil
}

// FindOne loads one record by its unified identifier, under the
// caller's read permission and row filter.
func (r *Repository) FindOne(ctx context.Context, caller *api.CallerContext, entity, id string) (api.Record, error) {
	start := time.Now()
	rec, err := r.findOne(ctx, caller, entity, id)
	r.metrics.observe(entity, "findOne", start, err)
	return rec, err
}

func (r *Repository) findOne(ctx context.Context, caller *api.CallerContext, entity, id string) (api.Record, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionRead)
	if err != nil {
		return nil, err
	}

	// The lookup always goes through Find so the row filter applies; a
	// record outside the caller's filter is indistinguishable from an
	// absent one.
	q := &query.UnifiedQuery{
		Filters: []query.Expression{query.Where(api.IDField, query.OpEqual, id)},
		Limit:   1,
	}
	merged, fields := r.applyPermission(q, res)
	records, err := drv.Find(ctx, entity, merged)
	if err != nil {
		return nil, r.translate(entity, "findOne", err)
	}
	if len(records) == 0 {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Op: "findOne", Message: "record " + id + " not found"}
	}
	return projectRecords(records[:1], fields)[0], nil
}

// Create stores a new record under the caller's create permission,
// stripping fields the caller may not write.
func (r *Repository) Create(ctx context.Context, caller *api.CallerContext, entity string, data api.Record) (api.Record, error) {
	start := time.Now()
	rec, err := r.create(ctx, caller, entity, data)
	r.metrics.observe(entity, "create", start, err)
	return rec, err
}

func (r *Repository) create(ctx context.Context, caller *api.CallerContext, entity string, data api.Record) (api.Record, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionCreate)
	if err != nil {
		return nil, err
	}
	if err := r.checkDeclaredFields(ent, data); err != nil {
		return nil, err
	}

	rec, err := drv.Create(ctx, entity, stripForWrite(data, res))
	if err != nil {
		return nil, r.translate(entity, "create", err)
	}
	return projectRecords([]api.Record{rec}, res.Fields)[0], nil
}

// Update patches an existing record under the caller's update
// permission. When a row filter applies, a record outside it reads as
// not found.
func (r *Repository) Update(ctx context.Context, caller *api.CallerContext, entity, id string, data api.Record) (api.Record, error) {
	start := time.Now()
	rec, err := r.update(ctx, caller, entity, id, data)
	r.metrics.observe(entity, "update", start, err)
	return rec, err
}

func (r *Repository) update(ctx context.Context, caller *api.CallerContext, entity, id string, data api.Record) (api.Record, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := r.checkDeclaredFields(ent, data); err != nil {
		return nil, err
	}
	if err := r.guardRowFilter(ctx, drv, entity, "update", id, res); err != nil {
		return nil, err
	}

	rec, err := drv.Update(ctx, entity, id, stripForWrite(data, res))
	if err != nil {
		return nil, r.translate(entity, "update", err)
	}
	return projectRecords([]api.Record{rec}, res.Fields)[0], nil
}

// Delete removes a record under the caller's delete permission,
// reporting whether a visible record was removed.
func (r *Repository) Delete(ctx context.Context, caller *api.CallerContext, entity, id string) (bool, error) {
	start := time.Now()
	ok, err := r.delete(ctx, caller, entity, id)
	r.metrics.observe(entity, "delete", start, err)
	return ok, err
}

func (r *Repository) delete(ctx context.Context, caller *api.CallerContext, entity, id string) (bool, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return false, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionDelete)
	if err != nil {
		return false, err
	}
	if res.Filter() != nil {
		if err := r.guardRowFilter(ctx, drv, entity, "delete", id, res); err != nil {
			if api.IsCode(err, api.ErrCodeNotFound) {
				// Outside the caller's row filter: same outcome as an
				// absent record.
				return false, nil
			}
			return false, err
		}
	}

	deleted, err := drv.Delete(ctx, entity, id)
	if err != nil {
		return false, r.translate(entity, "delete", err)
	}
	return deleted, nil
}

// Count counts records matching the filters under the caller's read
// permission and row filter.
func (r *Repository) Count(ctx context.Context, caller *api.CallerContext, entity string, filters []query.Expression) (int64, error) {
	start := time.Now()
	n, err := r.count(ctx, caller, entity, filters)
	r.metrics.observe(entity, "count", start, err)
	return n, err
}

func (r *Repository) count(ctx context.Context, caller *api.CallerContext, entity string, filters []query.Expression) (int64, error) {
	if err := query.ValidateAll(filters); err != nil {
		return 0, r.translate(entity, "count", err)
	}
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return 0, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionRead)
	if err != nil {
		return 0, err
	}
	if f := res.Filter(); f != nil {
		filters = append([]query.Expression{f}, filters...)
	}
	n, err := drv.Count(ctx, entity, filters)
	if err != nil {
		return 0, r.translate(entity, "count", err)
	}
	return n, nil
}

// BulkCreate stores several records under one create resolution.
func (r *Repository) BulkCreate(ctx context.Context, caller *api.CallerContext, entity string, items []api.Record) ([]api.Record, error) {
	start := time.Now()
	records, err := r.bulkCreate(ctx, caller, entity, items)
	r.metrics.observe(entity, "bulkCreate", start, err)
	return records, err
}

func (r *Repository) bulkCreate(ctx context.Context, caller *api.CallerContext, entity string, items []api.Record) ([]api.Record, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionCreate)
	if err != nil {
		return nil, err
	}
	stripped := make([]api.Record, len(items))
	for i, item := range items {
		if err := r.checkDeclaredFields(ent, item); err != nil {
			return nil, err
		}
		stripped[i] = stripForWrite(item, res)
	}
	records, err := driver.BulkCreate(ctx, drv, entity, stripped)
	if err != nil {
		return records, r.translate(entity, "bulkCreate", err)
	}
	return projectRecords(records, res.Fields), nil
}

// BulkUpdate patches several records under one update resolution. When
// a row filter applies, only records visible under it are patched.
func (r *Repository) BulkUpdate(ctx context.Context, caller *api.CallerContext, entity string, updates map[string]api.Record) ([]api.Record, error) {
	start := time.Now()
	records, err := r.bulkUpdate(ctx, caller, entity, updates)
	r.metrics.observe(entity, "bulkUpdate", start, err)
	return records, err
}

func (r *Repository) bulkUpdate(ctx context.Context, caller *api.CallerContext, entity string, updates map[string]api.Record) ([]api.Record, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return nil, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionUpdate)
	if err != nil {
		return nil, err
	}
	visible, err := r.visibleIDs(ctx, drv, entity, "bulkUpdate", keysOf(updates), res)
	if err != nil {
		return nil, err
	}
	stripped := make(map[string]api.Record, len(updates))
	for id, data := range updates {
		if !visible[id] {
			continue
		}
		if err := r.checkDeclaredFields(ent, data); err != nil {
			return nil, err
		}
		stripped[id] = stripForWrite(data, res)
	}
	records, err := driver.BulkUpdate(ctx, drv, entity, stripped)
	if err != nil {
		return records, r.translate(entity, "bulkUpdate", err)
	}
	return projectRecords(records, res.Fields), nil
}

// BulkDelete removes several records under one delete resolution,
// returning how many visible records were removed.
func (r *Repository) BulkDelete(ctx context.Context, caller *api.CallerContext, entity string, ids []string) (int, error) {
	start := time.Now()
	n, err := r.bulkDelete(ctx, caller, entity, ids)
	r.metrics.observe(entity, "bulkDelete", start, err)
	return n, err
}

func (r *Repository) bulkDelete(ctx context.Context, caller *api.CallerContext, entity string, ids []string) (int, error) {
	ent, drv, err := r.dispatch(entity)
	if err != nil {
		return 0, err
	}
	res, err := r.resolve(caller, ent.Name, policy.ActionDelete)
	if err != nil {
		return 0, err
	}
	visible, err := r.visibleIDs(ctx, drv, entity, "bulkDelete", ids, res)
	if err != nil {
		return 0, err
	}
	kept := make([]string, 0, len(ids))
	for _, id := range ids {
		if visible[id] {
			kept = append(kept, id)
		}
	}
	n, err := driver.BulkDelete(ctx, drv, entity, kept)
	if err != nil {
		return n, r.translate(entity, "bulkDelete", err)
	}
	return n, nil
}

// resolve runs permission resolution and turns a denial into the coded
// error, before any driver work happens.
func (r *Repository) resolve(caller *api.CallerContext, entity string, action policy.Action) (*permission.Resolution, error) {
	res := r.perms.Resolve(caller, entity, action)
	if !res.Allowed {
		r.metrics.denied(entity, string(action))
		r.log.WithFields(logrus.Fields{
			"entity": entity,
			"action": action,
		}).Debug("permission denied")
		return nil, &api.Error{
			Code:   api.ErrCodePermissionDenied,
			Entity: entity, Op: string(action),
			Message: "not permitted",
		}
	}
	return res, nil
}

// applyPermission merges the resolved row filter ahead of the caller's
// filters (both must hold) and intersects the field sets.
func (r *Repository) applyPermission(q *query.UnifiedQuery, res *permission.Resolution) (*query.UnifiedQuery, []string) {
	merged := q.Clone()
	if f := res.Filter(); f != nil {
		merged.Filters = append([]query.Expression{f}, merged.Filters...)
	}
	fields := intersectFields(res.Fields, q.Fields)
	merged.Fields = fields
	return merged, fields
}

// guardRowFilter verifies the target record is visible under the
// caller's row filter before a mutation touches it.
func (r *Repository) guardRowFilter(ctx context.Context, drv driver.Driver, entity, op, id string, res *permission.Resolution) error {
	f := res.Filter()
	if f == nil {
		return nil
	}
	records, err := drv.Find(ctx, entity, &query.UnifiedQuery{
		Filters: []query.Expression{f, query.Where(api.IDField, query.OpEqual, id)},
		Limit:   1,
	})
	if err != nil {
		return r.translate(entity, op, err)
	}
	if len(records) == 0 {
		return &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Op: op, Message: "record " + id + " not found"}
	}
	return nil
}

// visibleIDs returns which of the given ids are visible under the
// caller's row filter. Without a filter every id is visible.
func (r *Repository) visibleIDs(ctx context.Context, drv driver.Driver, entity, op string, ids []string, res *permission.Resolution) (map[string]bool, error) {
	visible := make(map[string]bool, len(ids))
	f := res.Filter()
	if f == nil {
		for _, id := range ids {
			visible[id] = true
		}
		return visible, nil
	}
	idValues := make([]any, len(ids))
	for i, id := range ids {
		idValues[i] = id
	}
	records, err := drv.Find(ctx, entity, &query.UnifiedQuery{
		Filters: []query.Expression{f, query.Where(api.IDField, query.OpIn, idValues)},
		Fields:  []string{api.IDField},
	})
	if err != nil {
		return nil, r.translate(entity, op, err)
	}
	for _, rec := range records {
		if id, ok := rec.ID(); ok {
			visible[id] = true
		}
	}
	return visible, nil
}

// dispatch resolves the entity declaration and its configured driver.
func (r *Repository) dispatch(entity string) (*schema.Entity, driver.Driver, error) {
	ent, ok := r.schema.Entity(entity)
	if !ok {
		return nil, nil, api.NewError(api.ErrCodeValidation, "unknown entity %q", entity)
	}
	drv, ok := r.drivers[ent.Backend]
	if !ok {
		return nil, nil, api.NewError(api.ErrCodeValidation, "no driver configured for backend %q", ent.Backend)
	}
	return ent, drv, nil
}

// checkDeclaredFields rejects writes carrying keys outside the entity's
// declared fields. Entities without declared fields accept any key.
func (r *Repository) checkDeclaredFields(ent *schema.Entity, data api.Record) error {
	if len(ent.Fields) == 0 {
		return nil
	}
	for k := range data {
		if !ent.HasField(k) {
			return api.NewError(api.ErrCodeValidation, "undeclared field %q on entity %q", k, ent.Name)
		}
	}
	return nil
}

// translate is the single place a low-level failure becomes a
// caller-facing error: coded errors gain entity/operation context, and
// anything else wraps as a DRIVER_ERROR with the cause intact.
func (r *Repository) translate(entity, op string, err error) error {
	if err == nil {
		return nil
	}
	if coded, ok := err.(*api.Error); ok {
		return coded.WithContext(entity, op)
	}
	r.log.WithError(err).WithFields(logrus.Fields{
		"entity":    entity,
		"operation": op,
	}).Error("driver operation failed")
	return api.WrapDriver(entity, op, err)
}

func keysOf(m map[string]api.Record) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Package redis implements the driver contract on Redis as a document
// store: one JSON document per record plus a per-entity id index set.
// Records carry the store's native "_id" key internally; the identifier
// normalizer translates it at the driver boundary so callers only ever
// see the unified field. Filters are evaluated in-process with the
// reference evaluator, which keeps the logical result identical to every
// other backend.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/identifier"
	"github.com/strata-dev/strata/pkg/query"
)

const nativeKeyField = "_id"

// Driver is a Redis-backed document driver.
type Driver struct {
	client *redis.Client
	prefix string
	norm   identifier.Normalizer
}

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int

	// KeyPrefix namespaces all keys; defaults to "strata".
	KeyPrefix string
}

// New connects to Redis and verifies the connection.
func New(opts Options) (*Driver, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, opts.KeyPrefix), nil
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, prefix string) *Driver {
	if prefix == "" {
		prefix = "strata"
	}
	return &Driver{
		client: client,
		prefix: prefix,
		norm:   identifier.New(nativeKeyField),
	}
}

// Capabilities implements driver.Driver. Redis evaluates filters
// client-side and has no native grouping, so aggregation is not
// supported.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{}
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	return d.client.Close()
}

func (d *Driver) recordKey(entity, id string) string {
	return fmt.Sprintf("%s:%s:%s", d.prefix, entity, id)
}

func (d *Driver) indexKey(entity string) string {
	return fmt.Sprintf("%s:%s:ids", d.prefix, entity)
}

// Find implements driver.Driver.
func (d *Driver) Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error) {
	if q == nil {
		q = &query.UnifiedQuery{}
	}
	if q.HasAggregation() {
		return nil, &api.Error{Code: api.ErrCodeDriverUnsupported, Entity: entity, Message: "redis backend does not support aggregation"}
	}
	records, err := d.loadAll(ctx, entity)
	if err != nil {
		return nil, err
	}
	records, err = query.FilterRecords(records, q.Filters)
	if err != nil {
		return nil, err
	}
	query.SortRecords(records, q.Sort)
	return query.Paginate(records, q.Skip, q.Limit), nil
}

// FindOne implements driver.Driver.
func (d *Driver) FindOne(ctx context.Context, entity, id string) (api.Record, error) {
	data, err := d.client.Get(ctx, d.recordKey(entity, id)).Result()
	if err == redis.Nil {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return d.decode(data)
}

// Create implements driver.Driver.
func (d *Driver) Create(ctx context.Context, entity string, data api.Record) (api.Record, error) {
	rec := data.Clone()
	if rec == nil {
		rec = api.Record{}
	}
	id := identifier.EnsureID(rec)

	stored := d.norm.Denormalize(rec)
	body, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	ok, err := d.client.SetNX(ctx, d.recordKey(entity, id), body, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	if !ok {
		return nil, &api.Error{Code: api.ErrCodeDuplicateRecord, Entity: entity, Message: "record " + id + " already exists"}
	}
	if err := d.client.SAdd(ctx, d.indexKey(entity), id).Err(); err != nil {
		return nil, fmt.Errorf("failed to index record: %w", err)
	}
	return rec, nil
}

// Update implements driver.Driver.
func (d *Driver) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	key := d.recordKey(entity, id)
	existing, err := d.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	rec, err := d.decode(existing)
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == api.IDField {
			continue
		}
		rec[k] = v
	}
	body, err := json.Marshal(d.norm.Denormalize(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := d.client.Set(ctx, key, body, 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to store record: %w", err)
	}
	return rec, nil
}

// Delete implements driver.Driver.
func (d *Driver) Delete(ctx context.Context, entity, id string) (bool, error) {
	removed, err := d.client.Del(ctx, d.recordKey(entity, id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	if err := d.client.SRem(ctx, d.indexKey(entity), id).Err(); err != nil {
		return false, fmt.Errorf("failed to unindex record: %w", err)
	}
	return removed > 0, nil
}

// Count implements driver.Driver.
func (d *Driver) Count(ctx context.Context, entity string, filters []query.Expression) (int64, error) {
	records, err := d.loadAll(ctx, entity)
	if err != nil {
		return 0, err
	}
	matched, err := query.FilterRecords(records, filters)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

// loadAll fetches every record of an entity in ascending id order, the
// shared natural order of all backends.
func (d *Driver) loadAll(ctx context.Context, entity string) ([]api.Record, error) {
	ids, err := d.client.SMembers(ctx, d.indexKey(entity)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list record ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.recordKey(entity, id)
	}
	values, err := d.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	out := make([]api.Record, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry without a document, e.g. a concurrent delete.
			continue
		}
		rec, err := d.decode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (d *Driver) decode(data string) (api.Record, error) {
	var rec api.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return d.norm.Normalize(rec), nil
}

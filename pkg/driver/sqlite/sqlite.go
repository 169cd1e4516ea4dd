// Package sqlite implements the driver contract on SQLite. Each entity
// lives in its own table holding the unified identifier column plus the
// record body as a JSON document; filters translate to SQL over
// json_extract so the backend evaluates them natively.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/identifier"
	"github.com/strata-dev/strata/pkg/query"
)

// Driver is a SQLite-backed storage driver.
type Driver struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]bool
}

// New opens a SQLite database at the given DSN (a file path or
// ":memory:").
func New(dsn string) (*Driver, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB) *Driver {
	return &Driver{db: db, tables: make(map[string]bool)}
}

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{Transactions: true, Aggregation: true}
}

// Close implements driver.Driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

// Find implements driver.Driver.
func (d *Driver) Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error) {
	if q == nil {
		q = &query.UnifiedQuery{}
	}
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return nil, err
	}
	where, args, err := translateFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	if q.HasAggregation() {
		return d.findAggregated(ctx, table, q, where, args)
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "SELECT id, data FROM %s", table)
	if where != "" {
		fmt.Fprintf(sb, " WHERE %s", where)
	}
	fmt.Fprintf(sb, " ORDER BY %s", orderByClause(q.Sort))
	limit := q.Limit
	if limit == 0 {
		limit = -1
	}
	fmt.Fprintf(sb, " LIMIT %d OFFSET %d", limit, q.Skip)

	rows, err := d.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entity, err)
	}
	defer rows.Close()

	var out []api.Record
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", entity, err)
		}
		rec, err := decodeRecord(id, data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (d *Driver) findAggregated(ctx context.Context, table string, q *query.UnifiedQuery, where string, args []any) ([]api.Record, error) {
	aggs := q.Aggregate
	if len(aggs) == 0 {
		aggs = []query.AggregateOption{{Function: query.AggCount}}
	}

	selects := make([]string, 0, len(q.GroupBy)+len(aggs))
	var groupExprs []string
	for _, field := range q.GroupBy {
		expr, err := fieldExpr(field)
		if err != nil {
			return nil, err
		}
		selects = append(selects, expr)
		groupExprs = append(groupExprs, expr)
	}
	for _, agg := range aggs {
		expr, err := aggregateExpr(agg)
		if err != nil {
			return nil, err
		}
		selects = append(selects, expr)
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "SELECT %s FROM %s", strings.Join(selects, ", "), table)
	if where != "" {
		fmt.Fprintf(sb, " WHERE %s", where)
	}
	if len(groupExprs) > 0 {
		fmt.Fprintf(sb, " GROUP BY %s ORDER BY %s", strings.Join(groupExprs, ", "), strings.Join(groupExprs, ", "))
	}
	if q.Limit > 0 || q.Skip > 0 {
		limit := q.Limit
		if limit == 0 {
			limit = -1
		}
		fmt.Fprintf(sb, " LIMIT %d OFFSET %d", limit, q.Skip)
	}

	rows, err := d.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}
	defer rows.Close()

	var out []api.Record
	for rows.Next() {
		dest := make([]any, len(q.GroupBy)+len(aggs))
		ptrs := make([]any, len(dest))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		rec := api.Record{}
		for i, field := range q.GroupBy {
			rec[field] = normalizeValue(dest[i])
		}
		for i, agg := range aggs {
			rec[agg.ResultKey()] = normalizeValue(dest[len(q.GroupBy)+i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FindOne implements driver.Driver.
func (d *Driver) FindOne(ctx context.Context, entity, id string) (api.Record, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return nil, err
	}
	var data string
	err = d.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return decodeRecord(id, data)
}

// Create implements driver.Driver.
func (d *Driver) Create(ctx context.Context, entity string, data api.Record) (api.Record, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return nil, err
	}
	rec := data.Clone()
	if rec == nil {
		rec = api.Record{}
	}
	id := identifier.EnsureID(rec)
	body, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	_, err = d.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES (?, ?)", table), id, body)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, &api.Error{Code: api.ErrCodeDuplicateRecord, Entity: entity, Message: "record " + id + " already exists"}
		}
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return rec, nil
}

// Update implements driver.Driver. Runs read-modify-write inside a
// transaction so concurrent patches to one record do not interleave.
func (d *Driver) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return nil, err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var body string
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = ?", table), id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	rec, err := decodeRecord(id, body)
	if err != nil {
		return nil, err
	}
	for k, v := range data {
		if k == api.IDField {
			continue
		}
		rec[k] = v
	}
	updated, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET data = ? WHERE id = ?", table), updated, id); err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return rec, nil
}

// Delete implements driver.Driver.
func (d *Driver) Delete(ctx context.Context, entity, id string) (bool, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return false, err
	}
	res, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count implements driver.Driver.
func (d *Driver) Count(ctx context.Context, entity string, filters []query.Expression) (int64, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return 0, err
	}
	where, args, err := translateFilters(filters)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		stmt += " WHERE " + where
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

// ensureTable creates the entity's table on first use and returns its
// quoted name.
func (d *Driver) ensureTable(ctx context.Context, entity string) (string, error) {
	if err := validIdent(entity); err != nil {
		return "", err
	}
	table := fmt.Sprintf("%q", "records_"+entity)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tables[entity] {
		return table, nil
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data TEXT NOT NULL)", table)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("failed to create table for %s: %w", entity, err)
	}
	d.tables[entity] = true
	return table, nil
}

// encodeRecord stores the body without the identifier; the id column is
// authoritative so the two can never diverge.
func encodeRecord(rec api.Record) (string, error) {
	body := rec.Clone()
	delete(body, api.IDField)
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	return string(data), nil
}

func decodeRecord(id, data string) (api.Record, error) {
	var rec api.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if rec == nil {
		rec = api.Record{}
	}
	rec[api.IDField] = id
	return rec, nil
}

// normalizeValue maps scanned SQL values onto the JSON-compatible kinds
// the rest of the engine uses.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case int64:
		return float64(val)
	default:
		return v
	}
}

// Package postgres implements the driver contract on PostgreSQL. Each
// entity lives in its own table with the unified identifier column plus
// a JSONB document; filters translate to SQL over the document so the
// backend evaluates them natively. jsonb comparison keeps numbers
// ordered numerically without guessing field types.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/identifier"
	"github.com/strata-dev/strata/pkg/query"
)

const uniqueViolation = "23505"

// Driver is a PostgreSQL-backed storage driver.
type Driver struct {
	db *sql.DB

	mu     sync.Mutex
	tables map[string]bool
}

// New connects to PostgreSQL at the given URL.
func New(url string) (*Driver, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an existing database handle.
func NewWithDB(db *sql.DB) *Driver {
	return &Driver{db: db, tables: make(map[string]bool)}
}

// Capabilities implements driver.Driver.
func (d *Driver) Capabilities() driver.Capabilities {
	return driver.Capabilities{Transactions: true, Aggregation: true, FullTextSearch: true}
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
	tr := newTranslator()
	where, err := tr.filters(q.Filters)
	if err != nil {
		return nil, err
	}
	if q.HasAggregation() {
		return d.findAggregated(ctx, table, q, where, tr.args)
	}

	sb := &strings.Builder{}
	fmt.Fprintf(sb, "SELECT id, data FROM %s", table)
	if where != "" {
		fmt.Fprintf(sb, " WHERE %s", where)
	}
	fmt.Fprintf(sb, " ORDER BY %s", orderByClause(q.Sort))
	if q.Limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", q.Limit)
	}
	if q.Skip > 0 {
		fmt.Fprintf(sb, " OFFSET %d", q.Skip)
	}

	rows, err := d.db.QueryContext(ctx, sb.String(), tr.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entity, err)
	}
	defer rows.Close()

	var out []api.Record
	for rows.Next() {
		var id string
		var data []byte
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
		expr, err := textFieldExpr(field)
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
	if q.Limit > 0 {
		fmt.Fprintf(sb, " LIMIT %d", q.Limit)
	}
	if q.Skip > 0 {
		fmt.Fprintf(sb, " OFFSET %d", q.Skip)
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
	var data []byte
	err = d.db.QueryRowContext(ctx, fmt.Sprintf("SELECT data FROM %s WHERE id = $1", table), id).Scan(&data)
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
	_, err = d.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, data) VALUES ($1, $2)", table), id, body)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, &api.Error{Code: api.ErrCodeDuplicateRecord, Entity: entity, Message: "record " + id + " already exists"}
		}
		return nil, fmt.Errorf("failed to insert record: %w", err)
	}
	return rec, nil
}

// Update implements driver.Driver. The patch merges server-side with
// jsonb concatenation, so the read-modify-write is a single statement.
func (d *Driver) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return nil, err
	}
	patch := data.Clone()
	delete(patch, api.IDField)
	body, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal patch: %w", err)
	}
	var updated []byte
	err = d.db.QueryRowContext(ctx,
		fmt.Sprintf("UPDATE %s SET data = data || $2::jsonb WHERE id = $1 RETURNING data", table),
		id, body,
	).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, &api.Error{Code: api.ErrCodeNotFound, Entity: entity, Message: "record " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update record: %w", err)
	}
	return decodeRecord(id, updated)
}

// Delete implements driver.Driver.
func (d *Driver) Delete(ctx context.Context, entity, id string) (bool, error) {
	table, err := d.ensureTable(ctx, entity)
	if err != nil {
		return false, err
	}
	res, err := d.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
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
	tr := newTranslator()
	where, err := tr.filters(filters)
	if err != nil {
		return 0, err
	}
	stmt := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if where != "" {
		stmt += " WHERE " + where
	}
	var n int64
	if err := d.db.QueryRowContext(ctx, stmt, tr.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}

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
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, data JSONB NOT NULL)", table)
	if _, err := d.db.ExecContext(ctx, ddl); err != nil {
		return "", fmt.Errorf("failed to create table for %s: %w", entity, err)
	}
	d.tables[entity] = true
	return table, nil
}

func encodeRecord(rec api.Record) ([]byte, error) {
	body := rec.Clone()
	delete(body, api.IDField)
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func decodeRecord(id string, data []byte) (api.Record, error) {
	var rec api.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	if rec == nil {
		rec = api.Record{}
	}
	rec[api.IDField] = id
	return rec, nil
}

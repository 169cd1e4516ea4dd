package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/strata-dev/strata/pkg/api"
	"github.com/strata-dev/strata/pkg/driver"
	"github.com/strata-dev/strata/pkg/query"
)

// Client consumes a remote peer as a storage backend. It implements
// both Driver and BulkDriver.
type Client struct {
	baseURL string
	http    *http.Client

	capsOnce singleflight.Group
	capsMu   sync.RWMutex
	caps     *driver.Capabilities
}

// NewClient creates a client for a peer serving the remote driver
// surface at baseURL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httpClient,
	}
}

// Capabilities implements driver.Driver. The peer's capabilities are
// fetched once and cached; concurrent first calls share one request.
// An unreachable peer reports no capabilities rather than failing here;
// the actual operation will surface the transport error.
func (c *Client) Capabilities() driver.Capabilities {
	c.capsMu.RLock()
	cached := c.caps
	c.capsMu.RUnlock()
	if cached != nil {
		return *cached
	}

	v, err, _ := c.capsOnce.Do("capabilities", func() (any, error) {
		var caps driver.Capabilities
		if err := c.do(context.Background(), http.MethodGet, "/v1/capabilities", nil, &caps); err != nil {
			return nil, err
		}
		c.capsMu.Lock()
		c.caps = &caps
		c.capsMu.Unlock()
		return caps, nil
	})
	if err != nil {
		return driver.Capabilities{}
	}
	return v.(driver.Capabilities)
}

// Find implements driver.Driver.
func (c *Client) Find(ctx context.Context, entity string, q *query.UnifiedQuery) ([]api.Record, error) {
	if q == nil {
		q = &query.UnifiedQuery{}
	}
	var out struct {
		Data []api.Record `json:"data"`
	}
	path := fmt.Sprintf("/v1/entities/%s/query", entity)
	if err := c.do(ctx, http.MethodPost, path, q, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// FindOne implements driver.Driver.
func (c *Client) FindOne(ctx context.Context, entity, id string) (api.Record, error) {
	var rec api.Record
	path := fmt.Sprintf("/v1/entities/%s/records/%s", entity, id)
	if err := c.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Create implements driver.Driver.
func (c *Client) Create(ctx context.Context, entity string, data api.Record) (api.Record, error) {
	var rec api.Record
	path := fmt.Sprintf("/v1/entities/%s/records", entity)
	if err := c.do(ctx, http.MethodPost, path, data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update implements driver.Driver.
func (c *Client) Update(ctx context.Context, entity, id string, data api.Record) (api.Record, error) {
	var rec api.Record
	path := fmt.Sprintf("/v1/entities/%s/records/%s", entity, id)
	if err := c.do(ctx, http.MethodPatch, path, data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete implements driver.Driver.
func (c *Client) Delete(ctx context.Context, entity, id string) (bool, error) {
	var out struct {
		Deleted bool `json:"deleted"`
	}
	path := fmt.Sprintf("/v1/entities/%s/records/%s", entity, id)
	if err := c.do(ctx, http.MethodDelete, path, nil, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// Count implements driver.Driver.
func (c *Client) Count(ctx context.Context, entity string, filters []query.Expression) (int64, error) {
	body := map[string]any{"filters": query.EncodeList(filters)}
	var out struct {
		Count int64 `json:"count"`
	}
	path := fmt.Sprintf("/v1/entities/%s/count", entity)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// BulkCreate implements driver.BulkDriver.
func (c *Client) BulkCreate(ctx context.Context, entity string, items []api.Record) ([]api.Record, error) {
	var out struct {
		Data []api.Record `json:"data"`
	}
	path := fmt.Sprintf("/v1/entities/%s/bulk/create", entity)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"items": items}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// BulkUpdate implements driver.BulkDriver.
func (c *Client) BulkUpdate(ctx context.Context, entity string, updates map[string]api.Record) ([]api.Record, error) {
	var out struct {
		Data []api.Record `json:"data"`
	}
	path := fmt.Sprintf("/v1/entities/%s/bulk/update", entity)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"updates": updates}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// BulkDelete implements driver.BulkDriver.
func (c *Client) BulkDelete(ctx context.Context, entity string, ids []string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	path := fmt.Sprintf("/v1/entities/%s/bulk/delete", entity)
	if err := c.do(ctx, http.MethodPost, path, map[string]any{"ids": ids}, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Close implements driver.Driver.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do issues one request and decodes either the result or a coded error.
func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &api.Error{Code: api.ErrCodeDriver, Op: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Code == "" {
			return &api.Error{
				Code:    codeForStatus(resp.StatusCode),
				Op:      method + " " + path,
				Message: fmt.Sprintf("remote peer returned status %d", resp.StatusCode),
			}
		}
		return &api.Error{Code: eb.Code, Message: eb.Message}
	}
	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Package notion implements record.Store on top of the Notion REST API,
// the hosted database the WindTest entry form writes to.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/windtest/scoreentry/internal/model"
	"github.com/windtest/scoreentry/internal/record"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"
	pageSize       = 100
)

type Client struct {
	http    *http.Client
	baseURL string
	cfg     *model.Config
}

// New creates a client for the databases named in cfg.
func New(cfg *model.Config) *Client {
	base := cfg.NotionAPIURL
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: base,
		cfg:     cfg,
	}
}

// page is the subset of a Notion page object this client reads.
type page struct {
	ID             string         `json:"id"`
	LastEditedTime string         `json:"last_edited_time"`
	Properties     map[string]any `json:"properties"`
}

func (c *Client) CreateRecord(ctx context.Context, col model.Collection, fields map[string]any) (record.Record, error) {
	props, err := encodeProperties(col, fields)
	if err != nil {
		return record.Record{}, err
	}
	body := map[string]any{
		"parent":     map[string]any{"database_id": c.cfg.CollectionID(col)},
		"properties": props,
	}
	var pg page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", body, &pg); err != nil {
		return record.Record{}, err
	}
	return c.recordFromPage(col, pg), nil
}

// QueryRecords pages through the database query until has_more is false, so
// callers always see the complete match set. Results come back oldest first:
// the pipeline treats the oldest report record as canonical.
func (c *Client) QueryRecords(ctx context.Context, col model.Collection, filters ...record.Filter) ([]record.Record, error) {
	var clauses []map[string]any
	for _, f := range filters {
		clause, err := queryFilter(col, f)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	var out []record.Record
	var cursor string
	for {
		body := map[string]any{
			"page_size": pageSize,
			"sorts": []any{
				map[string]any{"timestamp": "created_time", "direction": "ascending"},
			},
		}
		switch len(clauses) {
		case 0:
		case 1:
			body["filter"] = clauses[0]
		default:
			body["filter"] = map[string]any{"and": clauses}
		}
		if cursor != "" {
			body["start_cursor"] = cursor
		}

		var resp struct {
			Results    []page  `json:"results"`
			HasMore    bool    `json:"has_more"`
			NextCursor *string `json:"next_cursor"`
		}
		path := fmt.Sprintf("/v1/databases/%s/query", c.cfg.CollectionID(col))
		if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
			return nil, err
		}
		for _, pg := range resp.Results {
			out = append(out, c.recordFromPage(col, pg))
		}
		if !resp.HasMore || resp.NextCursor == nil {
			return out, nil
		}
		cursor = *resp.NextCursor
	}
}

func (c *Client) GetRecord(ctx context.Context, col model.Collection, id string) (record.Record, error) {
	var pg page
	if err := c.do(ctx, http.MethodGet, "/v1/pages/"+id, nil, &pg); err != nil {
		return record.Record{}, err
	}
	return c.recordFromPage(col, pg), nil
}

// UpdateRecord patches a page's properties. Notion offers no conditional
// write, so a non-empty ifVersion is checked against last_edited_time with a
// read before the patch; that narrows the lost-update window to the gap
// between the two calls instead of eliminating it, which is why the pipeline
// recomputes aggregates from source records rather than incrementing them.
func (c *Client) UpdateRecord(ctx context.Context, col model.Collection, id string, fields map[string]any, ifVersion string) (record.Record, error) {
	if ifVersion != "" {
		current, err := c.GetRecord(ctx, col, id)
		if err != nil {
			return record.Record{}, err
		}
		if current.Version != ifVersion {
			return record.Record{}, record.ErrConflict
		}
	}

	props, err := encodeProperties(col, fields)
	if err != nil {
		return record.Record{}, err
	}
	var pg page
	if err := c.do(ctx, http.MethodPatch, "/v1/pages/"+id, map[string]any{"properties": props}, &pg); err != nil {
		return record.Record{}, err
	}
	return c.recordFromPage(col, pg), nil
}

// Notify posts a comment on the page mentioning the configured admin user,
// the original form's way of telling the office a report is ready.
func (c *Client) Notify(ctx context.Context, recordID, message string) error {
	body := map[string]any{
		"parent": map[string]any{"page_id": recordID},
		"rich_text": []any{
			map[string]any{"text": map[string]any{"content": message + " "}},
			map[string]any{"mention": map[string]any{"user": map[string]any{"id": c.cfg.AdminUserID}}},
		},
	}
	return c.do(ctx, http.MethodPost, "/v1/comments", body, nil)
}

func (c *Client) recordFromPage(col model.Collection, pg page) record.Record {
	return record.Record{
		ID:         pg.ID,
		Collection: col,
		Fields:     decodeProperties(col, pg.Properties),
		Version:    pg.LastEditedTime,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.NotionToken)
	req.Header.Set("Notion-Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return record.Unavailable(method+" "+path, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode/100 == 2:
	case res.StatusCode == http.StatusNotFound:
		return record.ErrNotFound
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode/100 == 5:
		return record.Unavailable(method+" "+path, fmt.Errorf("notion: %s", res.Status))
	default:
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return fmt.Errorf("notion: %s: %s", res.Status, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

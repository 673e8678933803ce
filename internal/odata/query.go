package odata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Query describes a read against the service. Key selects a single entity;
// without it the entity set is queried as a collection.
type Query struct {
	EntitySet string
	Key       string
	Expand    []string
	Select    []string
	Filter    string
	OrderBy   string
	Top       int
}

func (q Query) params() []queryParam {
	params := []queryParam{{"$format", "json"}}
	if len(q.Expand) > 0 {
		params = append(params, queryParam{"$expand", strings.Join(q.Expand, ",")})
	}
	if len(q.Select) > 0 {
		params = append(params, queryParam{"$select", strings.Join(q.Select, ",")})
	}
	if q.Filter != "" {
		params = append(params, queryParam{"$filter", q.Filter})
	}
	if q.OrderBy != "" {
		params = append(params, queryParam{"$orderby", q.OrderBy})
	}
	if q.Top > 0 {
		params = append(params, queryParam{"$top", strconv.Itoa(q.Top)})
	}
	return params
}

// URL renders the request URL for q.
func (c *Client) URL(q Query) string {
	return c.entityURL(q.EntitySet, q.Key) + "?" + encodeQuery(q.params())
}

// TestConnection reads the service root and expects 200.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.rootURL(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "test connection")
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return &StatusError{Op: "test connection", Status: resp.Status, Body: string(resp.Body)}
	}
	return nil
}

// Get executes q and returns the "d" envelope.
func (c *Client) Get(ctx context.Context, q Query) (map[string]any, error) {
	if q.EntitySet == "" {
		return nil, errors.New("odata: entity set is required")
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.URL(q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "query "+q.EntitySet)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, &StatusError{Op: "query " + q.EntitySet, Status: resp.Status, Body: string(resp.Body)}
	}
	return decodeEnvelope(resp.Body)
}

// Metadata downloads and parses the service $metadata document.
func (c *Client) Metadata(ctx context.Context) (*Metadata, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.serviceURL+"/$metadata", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req, "fetch metadata")
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, &StatusError{Op: "fetch metadata", Status: resp.Status, Body: snippet(resp.Body, 500)}
	}
	return ParseMetadata(resp.Body)
}

func decodeEnvelope(body []byte) (map[string]any, error) {
	var envelope struct {
		D map[string]any `json:"d"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("odata: decode response: %w", err)
	}
	if envelope.D == nil {
		return map[string]any{}, nil
	}
	return envelope.D, nil
}

// Results returns the "results" array of a collection payload or an
// expanded navigation property. Non-object rows are skipped.
func Results(v any) []map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["results"].([]any)
	if !ok {
		return nil
	}
	rows := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if row, ok := r.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// Navigation returns entity[nav].results.
func Navigation(entity map[string]any, nav string) []map[string]any {
	if entity == nil {
		return nil
	}
	return Results(entity[nav])
}

// String reads a field as text, with fallback for missing or empty values.
// Numbers arrive as JSON numbers or as strings depending on the EDM type.
func String(entity map[string]any, field, fallback string) string {
	v, ok := entity[field]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return fallback
		}
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// NormalizeOrderID strips an "SO" prefix and surrounding blanks ("SO4353" -> "4353").
func NormalizeOrderID(id string) string {
	return strings.TrimSpace(strings.ReplaceAll(id, "SO", ""))
}

// Literal quotes s as an OData string literal for $filter expressions.
func Literal(s string) string {
	return "'" + escapeKey(s) + "'"
}

func snippet(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

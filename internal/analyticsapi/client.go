// Package analyticsapi is the HTTP client for the remote analytics and
// metadata service.
package analyticsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/analytics-dashboard/internal/query"
	pkgerrors "github.com/angelmondragon/analytics-dashboard/pkg/errors"
)

const (
	defaultBaseURL             = "http://127.0.0.1:8000/api/v1"
	defaultTimeout             = 30 * time.Second
	errorBodyReadLimit   int64 = 1024
	analyticsPath              = "analytics"
	metricsPath                = "metadata/metrics"
	dimensionsPath             = "metadata/dimensions"
	statesPath                 = "metadata/states"
	citiesPath                 = "metadata/cities"
)

// Client talks to the analytics service over JSON/HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the overall timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// NewClient builds a client rooted at baseURL (e.g. http://host:8000/api/v1).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid analytics base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CatalogEntry describes one metric or dimension offered by the service.
type CatalogEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// ResponseMetadata echoes how the service executed a query.
type ResponseMetadata struct {
	Query           json.RawMessage `json:"query,omitempty"`
	ExecutionTimeMS float64         `json:"execution_time_ms"`
}

// QueryResponse is the decoded body of POST /analytics.
type QueryResponse struct {
	Rows     []query.Row
	Metadata ResponseMetadata
}

// ResponseError is the cause attached to application failures: the service
// answered, but with a failure status.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("analytics service responded %d", e.Status)
	}
	return fmt.Sprintf("analytics service responded %d: %s", e.Status, e.Body)
}

func (e *ResponseError) StatusCode() int {
	return e.Status
}

// PostAnalyticsQuery executes an effective query. Failures are typed:
// NETWORK_ERROR when no response arrived, APPLICATION_ERROR when the service
// answered with a failure, TRANSFORM_ERROR when data is not a list of rows.
func (c *Client) PostAnalyticsQuery(ctx context.Context, q query.Description) (*QueryResponse, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal analytics query")
	}

	var body struct {
		Data     json.RawMessage  `json:"data"`
		Metadata ResponseMetadata `json:"metadata"`
	}
	if err := c.do(ctx, http.MethodPost, analyticsPath, nil, payload, &body); err != nil {
		return nil, err
	}

	rows, err := query.DecodeRows(body.Data)
	if err != nil {
		return nil, err
	}
	return &QueryResponse{Rows: rows, Metadata: body.Metadata}, nil
}

// Fetch adapts PostAnalyticsQuery to the orchestrator's fetcher contract.
func (c *Client) Fetch(ctx context.Context, q query.Description) ([]query.Row, error) {
	resp, err := c.PostAnalyticsQuery(ctx, q)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (c *Client) FetchMetrics(ctx context.Context) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := c.do(ctx, http.MethodGet, metricsPath, nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) FetchDimensions(ctx context.Context) ([]CatalogEntry, error) {
	var entries []CatalogEntry
	if err := c.do(ctx, http.MethodGet, dimensionsPath, nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *Client) FetchStates(ctx context.Context) ([]string, error) {
	var states []string
	if err := c.do(ctx, http.MethodGet, statesPath, nil, nil, &states); err != nil {
		return nil, err
	}
	return states, nil
}

// FetchCities lists cities, narrowed to state when it is not empty.
func (c *Client) FetchCities(ctx context.Context, state string) ([]string, error) {
	var params url.Values
	if s := strings.TrimSpace(state); s != "" {
		params = url.Values{"state": []string{s}}
	}
	var cities []string
	if err := c.do(ctx, http.MethodGet, citiesPath, params, nil, &cities); err != nil {
		return nil, err
	}
	return cities, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, payload []byte, dest any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "analytics client not configured")
	}

	endpoint := c.buildURL(path, params)
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build analytics request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeNetwork, err, fmt.Sprintf("%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		cause := &ResponseError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		return pkgerrors.Wrap(pkgerrors.CodeApplication, cause, fmt.Sprintf("%s %s", method, path)).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil && !errors.Is(err, io.EOF) {
		return pkgerrors.Wrap(pkgerrors.CodeApplication, err, fmt.Sprintf("decode %s response", path))
	}
	return nil
}

func (c *Client) buildURL(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

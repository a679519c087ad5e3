// Package feed talks to the timeline HTTP API and turns its failures into
// user-facing messages.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PageFetcher fetches one page of a timeline.
// This interface is implemented by *Client and can be used for testing.
type PageFetcher interface {
	FetchPage(ctx context.Context, query PageQuery) (Page, error)
}

// Ensure Client implements PageFetcher at compile time.
var _ PageFetcher = (*Client)(nil)

// Client talks to the timeline HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultAPIBase   = "127.0.0.1:8080"
	defaultUserAgent = "feedline/0.1"
	requestTimeout   = 10 * time.Second
	maxPageSize      = 100
)

// NewClient builds a Client for the API at apiBase (host:port or URL).
func NewClient(apiBase string) (*Client, error) {
	base, err := parseBaseURL(apiBase)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		userAgent: defaultUserAgent,
	}, nil
}

// FetchPage retrieves one page of the timeline named in query.
func (c *Client) FetchPage(ctx context.Context, query PageQuery) (Page, error) {
	if c == nil {
		return Page{}, fmt.Errorf("client is nil")
	}
	timeline := strings.TrimSpace(query.Timeline)
	if timeline == "" {
		return Page{}, fmt.Errorf("timeline required")
	}
	values := url.Values{}
	if cursor := strings.TrimSpace(query.Cursor); cursor != "" {
		values.Set("cursor", cursor)
	}
	if query.Limit > 0 {
		values.Set("limit", strconv.Itoa(min(query.Limit, maxPageSize)))
	}
	rel := &url.URL{Path: "/api/timelines/" + timeline, RawQuery: values.Encode()}
	var payload Page
	if err := c.doURL(ctx, http.MethodGet, rel, &payload); err != nil {
		return Page{}, err
	}
	return payload, nil
}

func (c *Client) doURL(ctx context.Context, method string, rel *url.URL, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	op := method + " " + rel.Path
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return &TransportError{Op: op, StatusCode: resp.StatusCode}
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("%w: %w", errDecode, err)}
	}
	return nil
}

func parseBaseURL(apiBase string) (*url.URL, error) {
	trimmed := strings.TrimSpace(apiBase)
	if trimmed == "" {
		trimmed = defaultAPIBase
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api_base %q: %w", apiBase, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"iris/pkg/platform/sentinel"

	id "iris/pkg/domain"
)

// Client talks to the anchor gateway, the HTTP facade in front of the real
// ledger. Gateway errors map onto the same sentinels the in-memory fake
// returns, so the anchor service cannot tell the two apart.
type Client struct {
	base   string
	http   *http.Client
	apiKey string
}

// ClientOption configures the gateway client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithAPIKey sets the bearer token sent on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Ledger = (*Client)(nil)

type submitRequest struct {
	Digest string `json:"digest"`
}

type submitResponse struct {
	Ref string `json:"ref"`
}

type recordResponse struct {
	Digest        string `json:"digest"`
	Ref           string `json:"ref"`
	Submitter     string `json:"submitter"`
	Timestamp     string `json:"timestamp"`
	Confirmations int    `json:"confirmations"`
}

func (c *Client) Submit(ctx context.Context, digest id.Digest) (string, error) {
	if digest.IsZero() {
		return "", ErrZeroDigest
	}

	body, err := json.Marshal(submitRequest{Digest: digest.String()})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/anchors", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit digest %s: %w: %v", digest, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated, http.StatusOK:
		var out submitResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return "", fmt.Errorf("decode submit response: %w", err)
		}
		if out.Ref == "" {
			return "", fmt.Errorf("gateway returned empty ref: %w", sentinel.ErrUnavailable)
		}
		return out.Ref, nil
	case http.StatusConflict:
		return "", fmt.Errorf("digest %s already anchored: %w", digest, sentinel.ErrDuplicateKey)
	case http.StatusBadRequest:
		return "", fmt.Errorf("gateway rejected digest %s: %w", digest, ErrZeroDigest)
	default:
		return "", fmt.Errorf("submit digest %s: gateway status %d: %w",
			digest, resp.StatusCode, sentinel.ErrUnavailable)
	}
}

func (c *Client) Query(ctx context.Context, digest id.Digest) (Record, error) {
	return c.fetch(ctx, c.base+"/anchors/"+digest.String(), digest.String())
}

func (c *Client) QueryByRef(ctx context.Context, ref string) (Record, error) {
	return c.fetch(ctx, c.base+"/tx/"+url.PathEscape(ref), ref)
}

func (c *Client) fetch(ctx context.Context, endpoint, key string) (Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Record{}, fmt.Errorf("build query request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("query %s: %w: %v", key, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out recordResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return Record{}, fmt.Errorf("decode query response: %w", err)
		}
		return out.toRecord()
	case http.StatusNotFound:
		return Record{}, fmt.Errorf("query %s: %w", key, sentinel.ErrNotFound)
	default:
		return Record{}, fmt.Errorf("query %s: gateway status %d: %w",
			key, resp.StatusCode, sentinel.ErrUnavailable)
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (r recordResponse) toRecord() (Record, error) {
	digest, err := id.ParseDigest(r.Digest)
	if err != nil {
		return Record{}, fmt.Errorf("parse gateway digest: %w", err)
	}
	record := Record{
		Digest:        digest,
		Ref:           r.Ref,
		Submitter:     r.Submitter,
		Confirmations: r.Confirmations,
	}
	if r.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return Record{}, fmt.Errorf("parse gateway timestamp: %w", err)
		}
		record.Timestamp = ts
	}
	return record, nil
}

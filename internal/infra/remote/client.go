// Package remote is the HTTP client of the authoritative progression service.
//
//	GET /v1/users/{userID}/progression  → 200 RemoteRecord | 404
//	PUT /v1/users/{userID}/progression  → 204
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/biszaal/expenzez-sub007/internal/domain"
	"github.com/biszaal/expenzez-sub007/internal/infra/metrics"
)

// RequestIDHeader carries a per-request id for log correlation.
const RequestIDHeader = "X-Request-ID"

var _ domain.RemoteProgression = (*Client)(nil)

// Client implements domain.RemoteProgression over HTTP.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *Breaker
}

// NewClient creates a client for baseURL. timeout bounds every request.
// Get and Put run behind a breaker with DefaultBreakerConfig.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		breaker: NewBreaker(DefaultBreakerConfig()),
	}
}

// SetBreaker replaces the breaker configuration.
func (c *Client) SetBreaker(cfg BreakerConfig) {
	c.breaker = NewBreaker(cfg)
}

// Breaker exposes the breaker for status reporting.
func (c *Client) Breaker() *Breaker {
	return c.breaker
}

// Get fetches the record of userID. A missing record is
// domain.ErrProgressionNotFound; anything else is wrapped in
// domain.ErrRemoteUnavailable.
func (c *Client) Get(ctx context.Context, userID string) (domain.RemoteRecord, error) {
	defer observe("get", time.Now())

	req, err := c.newRequest(ctx, http.MethodGet, userID, nil)
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	resp, err := c.do(req)
	if err != nil {
		return domain.RemoteRecord{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return domain.RemoteRecord{}, domain.ErrProgressionNotFound
	default:
		return domain.RemoteRecord{}, statusError(resp)
	}

	var rec domain.RemoteRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return domain.RemoteRecord{}, fmt.Errorf("%w: decode record: %v", domain.ErrRemoteUnavailable, err)
	}
	return rec, nil
}

// Put replaces the record of userID.
func (c *Client) Put(ctx context.Context, userID string, rec domain.RemoteRecord) error {
	defer observe("put", time.Now())

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPut, userID, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// do sends req behind the breaker. Transport errors and 5xx answers count as
// outages; any other answer proves the service is up.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Failure()
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		c.breaker.Failure()
	} else {
		c.breaker.Success()
	}
	return resp, nil
}

// Ping checks that the service answers /health. It bypasses the breaker.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, userID string, body []byte) (*http.Request, error) {
	if userID == "" {
		return nil, fmt.Errorf("remote %s: empty user id", method)
	}
	u := c.baseURL + "/v1/users/" + url.PathEscape(userID) + "/progression"

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: HTTP %d: %s", domain.ErrRemoteUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
}

func observe(op string, start time.Time) {
	metrics.RemoteLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

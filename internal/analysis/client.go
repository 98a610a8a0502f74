// Package analysis uploads finished games to a lichess-compatible import endpoint.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// DefaultURL is the lichess game import API.
const DefaultURL = "https://lichess.org/api/import"

// ErrUpload wraps every upload failure.
var ErrUpload = errors.New("analysis upload failed")

type importResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Client struct {
	endpoint string
	http     *fasthttp.Client

	timeout  time.Duration
	retryMax int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithDial replaces the network dialer, e.g. with an in-memory listener.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) { c.http.Dial = dial }
}

func NewClient(endpoint string, opts ...Option) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultURL
	}
	c := &Client{
		endpoint: strings.TrimSpace(endpoint),
		http:     &fasthttp.Client{ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second, MaxConnsPerHost: 8},
		timeout:  15 * time.Second,
		retryMax: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload imports pgn and returns the analysis page URL.
func (c *Client) Upload(ctx context.Context, pgn string) (string, error) {
	if strings.TrimSpace(pgn) == "" {
		return "", fmt.Errorf("%w: empty pgn", ErrUpload)
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodPost)
	req.SetRequestURI(c.endpoint)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBodyString(url.Values{"pgn": {pgn}}.Encode())

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := c.http.DoDeadline(req, resp, c.deadline(ctx)); err != nil {
			lastErr = err
		} else if status := resp.StatusCode(); status < 200 || status >= 300 {
			lastErr = fmt.Errorf("status=%d body=%s", status, truncate(string(resp.Body()), 256))
			if !shouldRetryStatus(status) {
				break
			}
		} else {
			return c.decode(resp.Body())
		}
		if attempt == attempts {
			break
		}
		if err := sleepWithContext(ctx, backoffDuration(attempt)); err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return "", fmt.Errorf("%w: %v", ErrUpload, lastErr)
}

func (c *Client) decode(body []byte) (string, error) {
	var out importResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUpload, err)
	}
	if strings.TrimSpace(out.URL) != "" {
		return out.URL, nil
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", fmt.Errorf("%w: response without id", ErrUpload)
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpload, err)
	}
	return u.Scheme + "://" + u.Host + "/" + out.ID, nil
}

func (c *Client) deadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 5 {
		attempt = 5
	}
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

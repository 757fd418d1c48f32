// Package httpx provides the shared HTTP plumbing for the external service
// clients: base-URL validation and an explicit retry policy applied uniformly
// inside each call. The Python original mounted a urllib3 Retry adapter onto a
// requests.Session; here that becomes a typed policy a client applies itself,
// since net/http has no adapter-level retry hook.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RetryPolicy describes how a client should retry a failed request.
// MaxAttempts includes the initial attempt. A zero-value RetryPolicy performs
// no retries.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	Retryable   map[int]bool
}

// NoRetry is the policy used by clients that report the first failure
// without retrying.
var NoRetry = RetryPolicy{MaxAttempts: 1}

// KnowledgeGraphRetry is the three-attempt, exponential-backoff policy used
// only by the knowledge-graph client.
var KnowledgeGraphRetry = RetryPolicy{
	MaxAttempts: 3,
	BackoffBase: time.Second,
	Retryable: map[int]bool{
		429: true, 500: true, 502: true, 503: true, 504: true,
	},
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BackoffBase <= 0 {
		return 0
	}
	// attempt is 0-indexed: 1s, 2s, 4s for BackoffBase = 1s.
	d := p.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (p RetryPolicy) shouldRetryStatus(status int) bool {
	return p.Retryable[status]
}

// ValidateBaseURL verifies base is non-empty and absolute, returning a
// descriptive error rather than letting an empty string get silently
// stringified into a malformed request path later.
func ValidateBaseURL(base string) error {
	if base == "" {
		return fmt.Errorf("base URL is empty")
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("base URL %q is invalid: %w", base, err)
	}
	if !u.IsAbs() {
		return fmt.Errorf("base URL %q is not absolute", base)
	}
	return nil
}

// Client wraps an *http.Client with a fixed timeout and retry policy, and
// executes requests built by a caller-supplied factory so that each attempt
// gets a fresh io.Reader for the body.
type Client struct {
	HTTP   *http.Client
	Policy RetryPolicy
}

// New builds a Client with the given per-call timeout and retry policy.
func New(timeout time.Duration, policy RetryPolicy) *Client {
	return &Client{
		HTTP:   &http.Client{Timeout: timeout},
		Policy: policy,
	}
}

// Do executes newReq() up to the policy's MaxAttempts, retrying on the
// configured status codes and on request-level errors (connection failures,
// timeouts). It returns the last response or error once attempts run out.
// The caller is responsible for closing the returned response body.
func (c *Client) Do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.Policy.attempts(); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.Policy.backoff(attempt - 1)):
			}
		}

		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if c.Policy.shouldRetryStatus(resp.StatusCode) && attempt < c.Policy.attempts()-1 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			lastErr = fmt.Errorf("received retryable status %d", resp.StatusCode)
			continue
		}

		return resp, nil
	}
	return nil, lastErr
}

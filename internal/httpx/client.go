package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"time"

	clierr "github.com/ggonzalez94/wallet-cli/internal/errors"
)

const defaultUserAgent = "wallet-cli/1.0"

// Policy decides how many times a transient failure is resent and how long
// to wait in between. Only node reads and transaction building use retries;
// anything that asks a signer to act must run with NoRetry.
type Policy struct {
	Retries int
	Backoff func(attempt int) time.Duration
}

// NoRetry sends every request exactly once.
func NoRetry() Policy { return Policy{} }

// Retry resends transient failures up to n times with capped, jittered backoff.
func Retry(n int) Policy {
	if n < 0 {
		n = 0
	}
	return Policy{Retries: n, Backoff: backoff}
}

type Client struct {
	httpClient *http.Client
	policy     Policy
	userAgent  string
}

type Option func(*Client)

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func New(timeout time.Duration, retries int, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		policy:     Retry(retries),
		userAgent:  defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithPolicy returns a copy of c that shares its transport but resends
// according to p.
func (c *Client) WithPolicy(p Policy) *Client {
	cp := *c
	if p.Retries < 0 {
		p.Retries = 0
	}
	if p.Retries > 0 && p.Backoff == nil {
		p.Backoff = backoff
	}
	cp.policy = p
	return &cp
}

// Retries reports how many times a failed request is retried.
func (c *Client) Retries() int { return c.policy.Retries }

// outcome is the result of a single round trip.
type outcome struct {
	header    http.Header
	body      []byte
	err       error
	transient bool
}

func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var res outcome
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctx.Err())
			case <-time.After(c.policy.Backoff(attempt)):
			}
		}
		res = c.roundTrip(ctx, req)
		if res.err == nil || !res.transient || attempt >= c.policy.Retries || ctx.Err() != nil {
			break
		}
	}
	if res.err != nil {
		return res.header, res.err
	}

	if out == nil {
		return res.header, nil
	}
	if len(bytes.TrimSpace(res.body)) == 0 {
		return res.header, clierr.New(clierr.CodeUnavailable, "remote endpoint returned empty response")
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return res.header, clierr.Wrap(clierr.CodeUnavailable, "decode remote JSON", err)
	}
	return res.header, nil
}

func (c *Client) roundTrip(ctx context.Context, req *http.Request) outcome {
	attemptReq := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return outcome{err: clierr.Wrap(clierr.CodeInternal, "clone request body", err)}
		}
		attemptReq.Body = body
	}

	resp, err := c.httpClient.Do(attemptReq)
	if err != nil {
		return outcome{err: mapNetError(err), transient: true}
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return outcome{header: resp.Header, err: clierr.Wrap(clierr.CodeUnavailable, "read remote response", readErr)}
	}

	switch code := resp.StatusCode; {
	case code == http.StatusTooManyRequests:
		return outcome{header: resp.Header, err: clierr.New(clierr.CodeRateLimited, "remote endpoint rate limited request"), transient: true}
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return outcome{header: resp.Header, err: clierr.New(clierr.CodeAuth, "remote endpoint authentication failed")}
	case code >= http.StatusInternalServerError:
		return outcome{header: resp.Header, err: clierr.New(clierr.CodeUnavailable, fmt.Sprintf("remote endpoint unavailable (status %d)", code)), transient: true}
	case code < 200 || code >= 300:
		return outcome{header: resp.Header, err: clierr.New(clierr.CodeUnsupported, fmt.Sprintf("remote endpoint returned unexpected status %d", code))}
	}
	return outcome{header: resp.Header, body: buf}
}

func DoBodyJSON(ctx context.Context, c *Client, method, url string, body []byte, headers map[string]string, out any) (http.Header, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// PostJSON marshals in and posts it to url, decoding the response into out.
func PostJSON(ctx context.Context, c *Client, url string, in any, headers map[string]string, out any) (http.Header, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode request body", err)
	}
	return DoBodyJSON(ctx, c, http.MethodPost, url, body, headers, out)
}

func mapNetError(err error) error {
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "remote endpoint timeout", err)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "remote request failed", err)
}

func backoff(attempt int) time.Duration {
	d := 120 * time.Millisecond << uint(attempt-1)
	if d > 2*time.Second || d <= 0 {
		d = 2 * time.Second
	}
	return d + time.Duration(rand.Intn(75))*time.Millisecond
}

package httpclient

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/reshetovitsme/voice-of-light/internal/shared/errors"
	"github.com/samber/oops"
	gobreaker "github.com/sony/gobreaker/v2"
)

const maxBodySize = 4 << 20

// Options configures a source client.
type Options struct {
	Name             string
	Timeout          time.Duration
	UserAgent        string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Transport        http.RoundTripper
}

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the HTTP client shared by one source adapter. It classifies
// upstream failures and trips a circuit breaker on repeated transient ones,
// so a dead upstream is skipped fast instead of stalling every cycle.
type Client struct {
	name      string
	http      *http.Client
	userAgent string
	breaker   *gobreaker.CircuitBreaker[*Response]
}

// New creates a client for one upstream
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "voice-of-light/1.0"
	}

	settings := gobreaker.Settings{
		Name:        opts.Name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		// Only upstream trouble counts against the breaker; a 404 for a
		// deleted video is a normal answer.
		IsSuccessful: func(err error) bool {
			return err == nil || !stderrors.Is(err, errors.ErrUpstreamTransient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Upstream circuit breaker changed state", "upstream", name, "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		name:      opts.Name,
		http:      &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		userAgent: opts.UserAgent,
		breaker:   gobreaker.NewCircuitBreaker[*Response](settings),
	}
}

// Name returns the upstream name
func (c *Client) Name() string {
	return c.name
}

// Do sends req and returns the response if the status is 2xx. Anything else
// is an error wrapping ErrUpstreamTransient, ErrNotFound or
// ErrUpstreamRejected.
func (c *Client) Do(req *http.Request) (*Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*Response, error) {
		return c.roundTrip(req)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, oops.With("upstream", c.name).Wrapf(errors.ErrUpstreamTransient, "circuit open: %v", err)
	}
	return resp, err
}

func (c *Client) roundTrip(req *http.Request) (*Response, error) {
	target := redact(req.URL)

	httpResp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, oops.With("upstream", c.name, "url", target).Wrapf(errors.ErrUpstreamTransient, "request failed: %v", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		return nil, oops.With("upstream", c.name, "url", target).Wrapf(errors.ErrUpstreamTransient, "read body: %v", err)
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: body}
	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return resp, nil
	}

	builder := oops.Code("upstream_status").With("upstream", c.name, "url", target, "status", httpResp.StatusCode)
	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return resp, builder.Wrapf(errors.ErrUpstreamTransient, "status %d", httpResp.StatusCode)
	case httpResp.StatusCode == http.StatusNotFound:
		return resp, builder.Wrapf(errors.ErrNotFound, "status %d", httpResp.StatusCode)
	default:
		return resp, builder.Wrapf(errors.ErrUpstreamRejected, "status %d: %s", httpResp.StatusCode, snippet(body))
	}
}

// GetJSON fetches rawURL and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return oops.With("upstream", c.name).Wrap(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return oops.With("upstream", c.name, "url", redact(req.URL)).Wrapf(errors.ErrUpstreamRejected, "decode response: %v", err)
	}
	return nil
}

// PostForm sends a form-encoded POST and returns the response.
func (c *Client) PostForm(ctx context.Context, rawURL string, form url.Values, header http.Header) (*Response, error) {
	h := http.Header{}
	for k, vs := range header {
		h[k] = vs
	}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Post(ctx, rawURL, []byte(form.Encode()), h)
}

// Post sends body with the given headers and returns the response.
func (c *Client) Post(ctx context.Context, rawURL string, body []byte, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, oops.With("upstream", c.name).Wrap(err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.Do(req)
}

// Get issues a plain GET and returns the response.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, oops.With("upstream", c.name).Wrap(err)
	}
	return c.Do(req)
}

// redact drops credentials from the query string before logging.
func redact(u *url.URL) string {
	q := u.Query()
	for _, k := range []string{"key", "access_token", "client_secret"} {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.String()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

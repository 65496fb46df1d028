// Package nyt is a client for the New York Times Books API.
package nyt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL     = "https://api.nytimes.com/svc/books/v3"
	HistoryPath        = "/lists/best-sellers/history.json"
	DefaultTimeout     = 10 * time.Second
	DefaultAttempts    = 3
	DefaultRetryDelay  = 100 * time.Millisecond
	maxBodyBytes       = 8 << 20
	maxLoggedBodyBytes = 2 << 10
)

// Client issues GET requests against the Books API. A Client is safe for
// concurrent use.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	apiKey  string

	timeout  time.Duration
	attempts uint
	delay    time.Duration
	limiter  *rate.Limiter // optional; nil means unlimited
	log      zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

// WithTimeout sets the deadline applied to each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetry sets the total number of attempts and the fixed pause between
// them. Only connectivity failures are retried.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) { c.attempts, c.delay = attempts, delay }
}

// WithRateLimit paces outgoing requests to perMinute. Zero disables pacing.
func WithRateLimit(perMinute int) Option {
	return func(c *Client) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("apiKey required")
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:     http.DefaultClient,
		baseURL:  u,
		apiKey:   apiKey,
		timeout:  DefaultTimeout,
		attempts: DefaultAttempts,
		delay:    DefaultRetryDelay,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.attempts == 0 {
		c.attempts = 1
	}
	return c, nil
}

// requestURL returns the URL to call and a copy without the api key for logs.
func (c *Client) requestURL(p string, params map[string]string) (string, string) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	logURL := u.String()

	q.Set("api-key", c.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), logURL
}

// Fetch GETs p with params and returns the response body untouched. Every
// failure is an *Error and is logged before it is returned.
func (c *Client) Fetch(ctx context.Context, p string, params map[string]string) (json.RawMessage, error) {
	target, logURL := c.requestURL(p, params)

	var (
		body    json.RawMessage
		attempt uint
	)
	err := retry.Do(
		func() error {
			attempt++
			b, err := c.do(ctx, target, logURL)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(IsConnectivity),
		retry.OnRetry(func(n uint, err error) {
			// retry-go also reports the final failed attempt here.
			if n+1 >= c.attempts {
				return
			}
			c.log.Warn().
				Err(err).
				Uint("attempt", n+1).
				Str("url", logURL).
				Msg("retrying request to NYT API")
		}),
	)
	if err == nil {
		return body, nil
	}

	var e *Error
	if !errors.As(err, &e) {
		// retry-go hands back the bare context error when ctx ends between attempts.
		e = NewConnectivityError(err)
	}
	c.logFailure(e, attempt, logURL)
	return nil, e
}

// do performs one attempt. logURL replaces target in transport errors so the
// api key never reaches an error message.
func (c *Client) do(ctx context.Context, target, logURL string) (json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewConnectivityError(fmt.Errorf("rate limit wait: %w", err))
		}
	}

	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, target, nil)
	if err != nil {
		return nil, NewUnexpectedError(redactURL(err, logURL))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, NewConnectivityError(redactURL(err, logURL))
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, NewConnectivityError(fmt.Errorf("read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, NewRejectedError(resp.StatusCode, b)
	}
	if !json.Valid(b) {
		return nil, &Error{
			Kind: KindUnexpected,
			Body: b,
			Err:  fmt.Errorf("response body is not valid JSON (%d bytes)", len(b)),
		}
	}
	return json.RawMessage(b), nil
}

func redactURL(err error, logURL string) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = logURL
	}
	return err
}

func (c *Client) logFailure(e *Error, attempts uint, logURL string) {
	ev := c.log.Error().
		Str("kind", e.Kind.String()).
		Uint("attempts", attempts).
		Str("url", logURL)
	if e.StatusCode != 0 {
		ev = ev.Int("status", e.StatusCode)
	}
	if len(e.Body) > 0 {
		ev = ev.Str("response", truncate(e.Body, maxLoggedBodyBytes))
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg("request to NYT API failed")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

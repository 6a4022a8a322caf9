// internal/common/http/client.go
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"medkit-workers/internal/common/config"
	"medkit-workers/internal/common/metrics"
)

const (
	DefaultMaxAttempts  = 4
	DefaultBackoffBase  = 500 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 2 << 20

	maxRetryAfter = 30 * time.Second
)

// Logger is the subset of logger.Logger the transport writes to.
type Logger interface {
	Warn(msg string, fields map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Warn(string, map[string]interface{}) {}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Response is a fully read, size-bounded HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Request describes one logical call; it is replayed on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Timeout overrides the transport's attempt timeout when positive.
	Timeout time.Duration
}

// Transport is the process-wide outbound HTTP client. It owns one connection
// pool, sets a fixed User-Agent and retries transient failures with
// exponential backoff. Safe for concurrent use.
type Transport struct {
	client         *http.Client
	userAgent      string
	maxAttempts    int
	backoffBase    time.Duration
	attemptTimeout time.Duration
	maxBodyBytes   int64
	limiter        *rate.Limiter
	sleep          Sleeper
	logger         Logger
}

// Option configures the Transport.
type Option func(*Transport)

func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithMaxAttempts sets the total number of attempts, including the first.
func WithMaxAttempts(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func WithBackoffBase(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.backoffBase = d
		}
	}
}

// WithAttemptTimeout bounds every single attempt, body read included.
func WithAttemptTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.attemptTimeout = d
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxBodyBytes = n
		}
	}
}

// WithRateLimit limits outbound attempts. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(t *Transport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSleeper replaces the backoff wait. Tests use it to observe delays.
func WithSleeper(s Sleeper) Option {
	return func(t *Transport) {
		if s != nil {
			t.sleep = s
		}
	}
}

func WithLogger(l Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

func NewTransport(opts ...Option) *Transport {
	t := &Transport{
		userAgent:      config.DefaultUserAgent,
		maxAttempts:    DefaultMaxAttempts,
		backoffBase:    DefaultBackoffBase,
		attemptTimeout: DefaultTimeout,
		maxBodyBytes:   DefaultMaxBodyBytes,
		sleep:          contextSleep,
		logger:         nopLogger{},
	}
	for _, o := range opts {
		o(t)
	}
	if t.client == nil {
		t.client = &http.Client{Transport: newPooledTransport(32)}
	}
	return t
}

// NewTransportFromConfig builds the shared transport from the transport section.
func NewTransportFromConfig(cfg config.TransportConfig, opts ...Option) *Transport {
	base := []Option{
		WithHTTPClient(&http.Client{Transport: newPooledTransport(cfg.MaxIdleConns)}),
		WithUserAgent(cfg.UserAgent),
		WithMaxAttempts(cfg.MaxAttempts),
		WithBackoffBase(config.GetDuration(cfg.BackoffBase)),
		WithAttemptTimeout(config.GetDuration(cfg.Timeout)),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	}
	return NewTransport(append(base, opts...)...)
}

func newPooledTransport(maxIdle int) *http.Transport {
	if maxIdle <= 0 {
		maxIdle = 32
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConns = maxIdle
	tr.MaxIdleConnsPerHost = maxIdle
	tr.IdleConnTimeout = 90 * time.Second
	return tr
}

// Fetch performs a GET with the retry policy.
func (t *Transport) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	return t.Do(ctx, &Request{Method: http.MethodGet, URL: rawURL})
}

// Post performs a POST with the retry policy. body is resent on every attempt.
func (t *Transport) Post(ctx context.Context, rawURL, contentType string, body []byte) (*Response, error) {
	h := http.Header{}
	h.Set("Content-Type", contentType)
	return t.Do(ctx, &Request{Method: http.MethodPost, URL: rawURL, Header: h, Body: body})
}

// Do runs req until it succeeds, hits a non-retryable outcome or exhausts
// the attempt budget. Every failure is a *TransportError.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	host := hostOf(req.URL)
	var (
		last *TransportError
		prev time.Duration
	)

	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.backoff(attempt-1, last, prev)
			prev = delay
			if err := t.sleep(ctx, delay); err != nil {
				return nil, t.canceled(req.URL, attempt-1, err)
			}
		}

		if t.limiter != nil {
			if err := t.limiter.Wait(ctx); err != nil {
				return nil, t.canceled(req.URL, attempt-1, err)
			}
		}

		resp, terr := t.attempt(ctx, req, attempt)
		if terr == nil {
			metrics.TransportAttempts.WithLabelValues(host, "ok").Inc()
			return resp, nil
		}
		if terr.Kind == KindCanceled || !terr.retryable {
			metrics.TransportAttempts.WithLabelValues(host, string(terr.Kind)).Inc()
			return nil, terr
		}

		metrics.TransportAttempts.WithLabelValues(host, "retry").Inc()
		t.logger.Warn("transient upstream failure", map[string]interface{}{
			"url":        req.URL,
			"attempt":    attempt,
			"statusCode": terr.StatusCode,
			"error":      terr.Error(),
		})
		last = terr
	}

	return nil, &TransportError{
		URL:        req.URL,
		Attempts:   t.maxAttempts,
		StatusCode: last.StatusCode,
		Kind:       KindExhausted,
		Err:        last,
	}
}

func (t *Transport) attempt(ctx context.Context, req *Request, attempt int) (*Response, *TransportError) {
	timeout := t.attemptTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(actx, req.Method, req.URL, body)
	if err != nil {
		return nil, &TransportError{URL: req.URL, Attempts: attempt, Kind: KindInvalid, Err: err}
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, t.canceled(req.URL, attempt, ctx.Err())
		}
		return nil, &TransportError{URL: req.URL, Attempts: attempt, Kind: KindNetwork, Err: err, retryable: true}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, t.canceled(req.URL, attempt, ctx.Err())
		}
		return nil, &TransportError{URL: req.URL, Attempts: attempt, StatusCode: resp.StatusCode, Kind: KindNetwork, Err: err, retryable: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			URL:        req.URL,
			Attempts:   attempt,
			StatusCode: resp.StatusCode,
			Kind:       KindStatus,
			retryable:  IsRetryableStatus(resp.StatusCode),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// backoff returns the wait after the n-th failed attempt: base * 2^(n-1),
// or the server's Retry-After when that is longer. It always exceeds prev,
// the previous wait, so an early Retry-After never shortens later delays.
func (t *Transport) backoff(n int, last *TransportError, prev time.Duration) time.Duration {
	d := t.backoffBase * time.Duration(1<<(n-1))
	if last != nil && last.retryAfter > d {
		d = last.retryAfter
	}
	if d <= prev {
		d = prev + t.backoffBase
	}
	return d
}

func (t *Transport) canceled(rawURL string, attempts int, err error) *TransportError {
	return &TransportError{URL: rawURL, Attempts: attempts, Kind: KindCanceled, Err: err}
}

// IsRetryableStatus reports whether a status code is worth another attempt.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		d := time.Duration(secs) * time.Second
		if d > maxRetryAfter {
			d = maxRetryAfter
		}
		return d
	}
	return 0
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// ErrorKind classifies a TransportError.
type ErrorKind string

const (
	KindExhausted ErrorKind = "exhausted"
	KindStatus    ErrorKind = "status"
	KindNetwork   ErrorKind = "network"
	KindCanceled  ErrorKind = "canceled"
	KindInvalid   ErrorKind = "invalid"
)

// TransportError is the only error type returned by Transport.
type TransportError struct {
	URL        string
	Attempts   int
	StatusCode int
	Kind       ErrorKind
	Err        error

	retryable  bool
	retryAfter time.Duration
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("transport %s after %d attempt(s): %s: status %d: %v", e.Kind, e.Attempts, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport %s after %d attempt(s): %s: status %d", e.Kind, e.Attempts, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("transport %s after %d attempt(s): %s: %v", e.Kind, e.Attempts, e.URL, e.Err)
	}
	return fmt.Sprintf("transport %s after %d attempt(s): %s", e.Kind, e.Attempts, e.URL)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AsTransportError extracts a *TransportError from err.
func AsTransportError(err error) (*TransportError, bool) {
	var te *TransportError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

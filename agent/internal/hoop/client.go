package hoop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	apiPrefix   = "/webhdfs/v1"
	contentType = "application/octet-stream"

	// readTimeout bounds every wait for response data, headers and body.
	readTimeout = 5 * time.Second
	dialTimeout = 10 * time.Second

	// maxRetries is the number of extra attempts after a 500.
	maxRetries   = 3
	retryBackoff = 300 * time.Millisecond

	// maxMessage caps how much of a response body is kept for logs and errors.
	maxMessage = 4 << 10
)

// Request kinds, as reported to the Observer.
const (
	OpAppend = "append"
	OpCreate = "create"
)

var (
	// ErrUnauthorized marks a 401 from the store.
	ErrUnauthorized = errors.New("hoop: unauthorized")

	// ErrServerError marks a 500 that persisted through every retry.
	ErrServerError = errors.New("hoop: internal server error")
)

// StatusError is returned by Deliver for the responses that fail a delivery.
// It unwraps to ErrUnauthorized or ErrServerError.
type StatusError struct {
	Path     string
	Code     int
	Message  string
	Attempts int
	err      error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: path %s, code %d after %d attempt(s): %s",
		e.err, e.Path, e.Code, e.Attempts, e.Message)
}

func (e *StatusError) Unwrap() error { return e.err }

// Endpoint is the remote store address and the fixed request headers.
// It is read-only once a Client is built.
type Endpoint struct {
	Host string
	Port int

	// Header is added to every request. Content-Type is always
	// application/octet-stream.
	Header http.Header

	// Username is sent as the user.name parameter (pseudo authentication)
	// when non-empty.
	Username string
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Response is the outcome of a Deliver call that did not fail.
type Response struct {
	Path       string
	StatusCode int
	Status     string
	Message    string

	// Created is set when the append returned 404 and the file was created.
	Created bool

	// Attempts counts append-or-create rounds, 1 when no retry happened.
	Attempts int
}

// Delivered reports whether the store accepted the data.
func (r *Response) Delivered() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Observer receives per-request accounting. metrics.Registry implements it.
type Observer interface {
	ObserveRequest(op string, code int)
	ObserveRetry()
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, int) {}
func (nopObserver) ObserveRetry()              {}

// Client delivers chunks to one Endpoint. It holds no per-delivery state and
// is safe for concurrent use; every Deliver call opens its own connection.
type Client struct {
	ep      Endpoint
	log     *slog.Logger
	obs     Observer
	dial    dialFunc // injectable for tests
	backoff time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver sets the request accounting sink.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		if o != nil {
			c.obs = o
		}
	}
}

// New returns a Client for ep.
func New(ep Endpoint, opts ...Option) *Client {
	c := &Client{
		ep:      ep,
		log:     slog.Default(),
		obs:     nopObserver{},
		dial:    defaultDial,
		backoff: retryBackoff,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the endpoint the client writes to.
func (c *Client) Endpoint() Endpoint { return c.ep }

// Deliver appends body to path, creating the file if it does not exist.
func (c *Client) Deliver(ctx context.Context, path string, body []byte) (*Response, error) {
	cn := c.dial(c.ep)
	defer cn.Close()

	for attempt := 1; ; attempt++ {
		res, err := c.appendOrCreate(ctx, cn, path, body)
		if err != nil {
			return nil, err
		}
		res.Attempts = attempt

		switch {
		case res.StatusCode == http.StatusInternalServerError:
			if attempt > maxRetries {
				c.log.Error("hoop: giving up after repeated server errors",
					"path", path, "attempts", attempt, "message", res.Message)
				return nil, c.statusError(res, ErrServerError)
			}
			c.obs.ObserveRetry()
			c.log.Warn("hoop: server error, will retry",
				"path", path, "attempt", attempt, "retry_in", c.backoff)
			if err := sleep(ctx, c.backoff); err != nil {
				return nil, fmt.Errorf("hoop: retry %s: %w", path, err)
			}
			continue

		case res.StatusCode == http.StatusUnauthorized:
			return nil, c.statusError(res, ErrUnauthorized)

		case !res.Delivered():
			c.log.Warn("hoop: failed to write data",
				"path", path, "code", res.StatusCode, "status", res.Status, "message", res.Message)
		}
		return res, nil
	}
}

// appendOrCreate runs one attempt: append, then create when the file is missing.
func (c *Client) appendOrCreate(ctx context.Context, cn conn, path string, body []byte) (*Response, error) {
	res, err := c.send(ctx, cn, OpAppend, path, body)
	if err != nil {
		return nil, err
	}
	switch res.StatusCode {
	case http.StatusUnauthorized:
		c.log.Error("hoop: failed to append",
			"path", path, "code", res.StatusCode, "message", res.Message)
		return res, nil
	case http.StatusNotFound:
	default:
		return res, nil
	}

	res, err = c.send(ctx, cn, OpCreate, path, body)
	if err != nil {
		return nil, err
	}
	res.Created = true
	return res, nil
}

func (c *Client) send(ctx context.Context, cn conn, op, path string, body []byte) (*Response, error) {
	method, q := http.MethodPut, url.Values{"op": {OpAppend}}
	if op == OpCreate {
		method, q = http.MethodPost, url.Values{"op": {OpCreate}, "overwrite": {"false"}}
	}
	if c.ep.Username != "" {
		q.Set("user.name", c.ep.Username)
	}
	u := url.URL{
		Scheme:   "http",
		Host:     c.ep.Addr(),
		Path:     apiPrefix + path,
		RawQuery: q.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hoop: build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := cn.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hoop: %s %s: %w", op, path, err)
	}
	defer resp.Body.Close()

	msg, err := io.ReadAll(io.LimitReader(resp.Body, maxMessage))
	if err == nil {
		// Drain the rest so the connection can carry the next request.
		_, err = io.Copy(io.Discard, resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("hoop: %s %s: read response: %w", op, path, err)
	}

	c.obs.ObserveRequest(op, resp.StatusCode)
	return &Response{
		Path:       path,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    string(bytes.TrimSpace(msg)),
	}, nil
}

func (c *Client) statusError(res *Response, kind error) *StatusError {
	return &StatusError{
		Path:     res.Path,
		Code:     res.StatusCode,
		Message:  res.Message,
		Attempts: res.Attempts,
		err:      kind,
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

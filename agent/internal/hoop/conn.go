package hoop

import (
	"context"
	"net"
	"net/http"
	"time"
)

// conn is the connection a single Deliver call owns. Close releases it.
type conn interface {
	Do(req *http.Request) (*http.Response, error)
	Close()
}

// dialFunc opens a connection to ep. Abstracted so tests can count releases.
type dialFunc func(ep Endpoint) conn

// headerRoundTripper adds the endpoint's fixed headers to every request.
type headerRoundTripper struct {
	base   http.RoundTripper
	header http.Header
}

func (t *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.header) == 0 {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, vs := range t.header {
		if http.CanonicalHeaderKey(k) == "Content-Type" {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// httpConn keeps at most one idle connection, reused by the append, create
// and retry requests of a single delivery.
type httpConn struct {
	client    *http.Client
	transport *http.Transport
}

func defaultDial(ep Endpoint) conn {
	return dialWithTimeout(ep, readTimeout)
}

// dialWithTimeout builds a connection whose every socket read fails after
// read without data, covering both response headers and body.
func dialWithTimeout(ep Endpoint, read time.Duration) conn {
	d := &net.Dialer{Timeout: dialTimeout}
	tr := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			c, err := d.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: c, timeout: read}, nil
		},
		ResponseHeaderTimeout: read,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		DisableCompression:    true,
	}
	return &httpConn{
		client: &http.Client{
			Transport: &headerRoundTripper{base: tr, header: ep.Header},
		},
		transport: tr,
	}
}

func (c *httpConn) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

func (c *httpConn) Close() {
	c.transport.CloseIdleConnections()
}

// deadlineConn arms a read deadline before each Read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

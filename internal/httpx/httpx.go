// Package httpx wraps net/http with sane transport defaults, per-client rate
// limiting, and network-activity logging for the diagnostics sink.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"stockwatch/internal/netlog"
)

// Doer is the minimal HTTP client surface, satisfied by *http.Client and by
// test doubles.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportError is a network failure, timeout, or non-2xx status. All three
// are equivalent for fallback purposes.
type TransportError struct {
	URL     string
	Status  int // 0 when the request never completed
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("request timeout: %s", e.URL)
	case e.Status != 0:
		return fmt.Sprintf("http status %d: %s", e.Status, e.URL)
	default:
		return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is a small wrapper around an HTTP client with rate limiting and
// structured request logging.
type Client struct {
	HTTP      Doer
	Limiter   *rate.Limiter
	UserAgent string
	Headers   map[string]string
	Log       netlog.Sink
}

// New builds a Client with a tuned transport and per-request timeout.
func New(timeout time.Duration, sink netlog.Sink) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   50,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if sink == nil {
		sink = netlog.Nop{}
	}
	return &Client{
		HTTP:      &http.Client{Timeout: timeout, Transport: transport},
		UserAgent: "stockwatch/1.0",
		Log:       sink,
	}
}

// Get fetches url and returns the response body. Every attempt emits netlog
// entries for its lifecycle; failures of any kind come back as
// *TransportError.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, &TransportError{URL: url, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	started := time.Now()
	c.Log.Emit(netlog.Entry{Phase: netlog.PhaseOpen, Method: http.MethodGet, URL: url, Timestamp: started})

	resp, err := c.HTTP.Do(req)
	if err != nil {
		terr := &TransportError{URL: url, Err: err, Timeout: isTimeout(ctx, err)}
		phase := netlog.PhaseError
		if terr.Timeout {
			phase = netlog.PhaseTimeout
		}
		c.Log.Emit(netlog.Entry{
			Phase: phase, Method: http.MethodGet, URL: url,
			Duration: time.Since(started), Timestamp: time.Now(),
		})
		return nil, terr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.Log.Emit(netlog.Entry{
			Phase: netlog.PhaseError, Method: http.MethodGet, URL: url,
			Status: resp.StatusCode, Duration: time.Since(started), Timestamp: time.Now(),
		})
		return nil, &TransportError{URL: url, Status: resp.StatusCode, Err: err}
	}

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.Log.Emit(netlog.Entry{
		Phase: netlog.PhaseLoad, Method: http.MethodGet, URL: url,
		Status: resp.StatusCode, OK: ok,
		Duration: time.Since(started), Size: int64(len(body)), Timestamp: time.Now(),
	})
	if !ok {
		return nil, &TransportError{URL: url, Status: resp.StatusCode}
	}
	return body, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

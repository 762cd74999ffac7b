// ABOUTME: Transport boundary for executing one HTTP call against Flickr
// ABOUTME: HTTPTransport sends GET params in the query string and POST params as a form body

package flickr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is everything the transport needs for one call.
type Request struct {
	Verb   string
	Scheme string
	Host   string
	Path   string
	Params url.Values
}

// URL renders the request as a URL. For POST the params are not included.
func (r *Request) URL() string {
	u := url.URL{Scheme: r.Scheme, Host: r.Host, Path: r.Path}
	if r.Verb != http.MethodPost {
		u.RawQuery = r.Params.Encode()
	}
	return u.String()
}

// Transport executes a request and returns the raw response body.
type Transport interface {
	Execute(ctx context.Context, req *Request) ([]byte, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) ([]byte, error)

func (f TransportFunc) Execute(ctx context.Context, req *Request) ([]byte, error) {
	return f(ctx, req)
}

// HTTPTransport is a Transport over net/http.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport returns a transport with the given per-call timeout.
// A zero timeout means no limit.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: timeout}}
}

// NewHTTPTransportWithClient wraps an existing client.
func NewHTTPTransportWithClient(c *http.Client) *HTTPTransport {
	return &HTTPTransport{client: c}
}

func (t *HTTPTransport) Execute(ctx context.Context, r *Request) ([]byte, error) {
	var body io.Reader
	if r.Verb == http.MethodPost {
		body = strings.NewReader(r.Params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.Verb, r.URL(), body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if r.Verb == http.MethodPost {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", "flickr-gateway")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return data, nil
}

package resthttp

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Opts describes a single request: the path to join against the Client's
// root URL, and any query parameters.
type Opts struct {
	Path       string
	Parameters url.Values
}

// Client issues GET requests against a fixed root URL (a directory
// endpoint's "http://host:port/" base), using an *http.Client configured
// with a bounded per-request timeout rather than relying on context
// cancellation alone, matching fs/fshttp's habit of setting both.
type Client struct {
	http    *http.Client
	rootURL *url.URL
}

// NewClient creates a Client rooted at rootURL, with requests bounded by
// timeout.
func NewClient(rootURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		rootURL: u,
	}, nil
}

// Call issues a GET request built from opts and returns the raw response.
// The caller is responsible for closing resp.Body.
func (c *Client) Call(ctx context.Context, opts Opts) (*http.Response, error) {
	target, err := URLJoin(c.rootURL, opts.Path)
	if err != nil {
		return nil, err
	}
	if len(opts.Parameters) > 0 {
		target.RawQuery = opts.Parameters.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// CallBytes issues opts and returns the fully-read response body along
// with the response's status code. It always closes the response body.
func (c *Client) CallBytes(ctx context.Context, opts Opts) ([]byte, int, error) {
	resp, err := c.Call(ctx, opts)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

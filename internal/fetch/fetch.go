// Package fetch is a thin HTTP client that never panics or returns a
// transport error to the caller: every outcome, including a dial failure,
// comes back as a Response with Ok=false.
package fetch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// Response is the uniform envelope returned by Do, whatever happened on
// the wire.
type Response struct {
	Data       any
	Raw        []byte
	Ok         bool
	Status     int
	StatusText string
	Header     http.Header
}

// Client wraps an *http.Client plus a fixed User-Agent.
type Client struct {
	HTTP      *http.Client
	UserAgent string
}

// New returns a Client. If httpClient is nil, http.DefaultClient is used.
func New(httpClient *http.Client, userAgent string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{HTTP: httpClient, UserAgent: userAgent}
}

// Do performs the request. Context cancellation surfaces as Ok=false with
// Status=http.StatusBadRequest and StatusText set to the context error,
// matching the "never throws" contract of the fetch wrapper.
func (c *Client) Do(ctx context.Context, method, rawURL string, body io.Reader, headers http.Header) *Response {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return &Response{Ok: false, Status: http.StatusBadRequest, StatusText: err.Error()}
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return &Response{Ok: false, Status: http.StatusBadRequest, StatusText: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Response{Ok: false, Status: http.StatusBadRequest, StatusText: err.Error()}
	}

	out := &Response{
		Raw:        raw,
		Ok:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Header:     resp.Header,
	}

	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") && len(raw) > 0 {
		var decoded any
		if jsonErr := json.Unmarshal(raw, &decoded); jsonErr == nil {
			out.Data = decoded
		} else {
			out.Data = string(raw)
		}
	} else {
		out.Data = string(raw)
	}
	return out
}

// OpenStream performs the request and returns the live response for the
// caller to stream-read, without buffering the body. Used by the watch
// engine's NDJSON reader. The caller owns resp.Body and must close it.
func (c *Client) OpenStream(ctx context.Context, method, rawURL string, headers http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return c.HTTP.Do(req)
}

package urlguard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agentpay/payflow/types"
)

const (
	// MaxRedirects bounds the number of redirect hops followed per fetch.
	MaxRedirects = 5

	// DefaultTimeout is the upper bound on any single outbound exchange.
	DefaultTimeout = 30 * time.Second

	// maxBodyBytes caps the response body captured for the caller.
	maxBodyBytes = 4 << 20
)

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// FinalURL is the URL that produced the response, after redirects.
	FinalURL string
}

// Request describes one outbound exchange. Headers must already be
// sanitized by the caller.
type Request struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
}

// Fetcher performs guarded HTTP exchanges. Client is the production
// implementation.
type Fetcher interface {
	SafeFetch(ctx context.Context, req Request) (*Response, error)
}

// Client performs SSRF-guarded HTTP exchanges. Redirects are never followed
// by the underlying transport; every hop re-runs ValidateURL before the
// next request is issued.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// NewClient builds a guarded client. A zero timeout selects DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 || timeout > DefaultTimeout {
		timeout = DefaultTimeout
	}
	return &Client{
		http: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: timeout,
	}
}

// SafeFetch validates the target, performs the request, and follows up to
// MaxRedirects hops manually, re-validating each Location before the next
// request. The caller's context, if it cancels first, takes precedence
// over the per-exchange timeout.
func (c *Client) SafeFetch(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateURL(req.URL); err != nil {
		return nil, err
	}

	current := req.URL
	for hop := 0; hop <= MaxRedirects; hop++ {
		resp, err := c.do(ctx, req.Method, current, req.Body, req.Header)
		if err != nil {
			return nil, types.NewEngineError(types.ErrNetworkError,
				fmt.Sprintf("request to %s failed: %v", current, err))
		}

		if !isRedirect(resp.StatusCode) {
			resp.FinalURL = current
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			resp.FinalURL = current
			return resp, nil
		}

		next, err := resolveLocation(current, location)
		if err != nil {
			return nil, err
		}
		if err := ValidateURL(next); err != nil {
			return nil, types.NewEngineError(types.ErrBlockedURL,
				fmt.Sprintf("redirect to blocked target %s: %v", next, err))
		}
		current = next
	}

	return nil, types.NewEngineError(types.ErrNetworkError,
		fmt.Sprintf("too many redirects (more than %d)", MaxRedirects))
}

func (c *Client) do(ctx context.Context, method, target string, body []byte, header http.Header) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, method, target, reader)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       payload,
	}, nil
}

// resolveLocation resolves a Location header value against the current URL.
func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", types.NewEngineError(types.ErrBlockedURL, fmt.Sprintf("invalid URL: %v", err))
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", types.NewEngineError(types.ErrBlockedURL,
			fmt.Sprintf("invalid redirect location %q: %v", location, err))
	}
	return base.ResolveReference(ref).String(), nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

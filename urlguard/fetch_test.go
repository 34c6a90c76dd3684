package urlguard

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentpay/payflow/types"
)

// roundTripFunc stubs the transport so fetch behavior can be exercised
// against synthetic public URLs without touching the network.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func stubClient(responses map[string]*http.Response, visited *[]string) *Client {
	c := NewClient(0)
	c.http.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		target := req.URL.String()
		if visited != nil {
			*visited = append(*visited, target)
		}
		resp, ok := responses[target]
		if !ok {
			return httpResponse(http.StatusNotFound, "", nil), nil
		}
		return resp, nil
	})
	return c
}

func httpResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func redirectTo(location string) *http.Response {
	header := http.Header{}
	header.Set("Location", location)
	return httpResponse(http.StatusFound, "", header)
}

func TestSafeFetch_RejectsBlockedTargetBeforeSending(t *testing.T) {
	var visited []string
	c := stubClient(nil, &visited)

	_, err := c.SafeFetch(context.Background(), Request{Method: "GET", URL: "http://127.0.0.1/admin"})
	require.Error(t, err)
	engineErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrBlockedURL, engineErr.Code)
	assert.Empty(t, visited)
}

func TestSafeFetch_FollowsRedirectsWithRevalidation(t *testing.T) {
	var visited []string
	c := stubClient(map[string]*http.Response{
		"https://a.example.com/start": redirectTo("https://b.example.com/mid"),
		"https://b.example.com/mid":   redirectTo("/final"),
		"https://b.example.com/final": httpResponse(http.StatusOK, "done", nil),
	}, &visited)

	resp, err := c.SafeFetch(context.Background(), Request{Method: "GET", URL: "https://a.example.com/start"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", string(resp.Body))
	assert.Equal(t, "https://b.example.com/final", resp.FinalURL)
	assert.Equal(t, []string{
		"https://a.example.com/start",
		"https://b.example.com/mid",
		"https://b.example.com/final",
	}, visited)
}

func TestSafeFetch_BlocksRedirectToInternalTarget(t *testing.T) {
	var visited []string
	c := stubClient(map[string]*http.Response{
		"https://a.example.com/start": redirectTo("http://169.254.169.254/latest/meta-data/"),
	}, &visited)

	_, err := c.SafeFetch(context.Background(), Request{Method: "GET", URL: "https://a.example.com/start"})
	require.Error(t, err)
	engineErr, ok := err.(*types.EngineError)
	require.True(t, ok)
	assert.Equal(t, types.ErrBlockedURL, engineErr.Code)
	// The internal target must never be contacted.
	assert.Equal(t, []string{"https://a.example.com/start"}, visited)
}

func TestSafeFetch_TooManyRedirects(t *testing.T) {
	responses := map[string]*http.Response{}
	for _, hop := range []string{"a", "b", "c", "d", "e", "f"} {
		next := string(hop[0] + 1)
		responses["https://"+hop+".example.com/"] = redirectTo("https://" + next + ".example.com/")
	}

	c := stubClient(responses, nil)
	_, err := c.SafeFetch(context.Background(), Request{Method: "GET", URL: "https://a.example.com/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
}

func TestSafeFetch_RedirectWithoutLocationReturnsResponse(t *testing.T) {
	c := stubClient(map[string]*http.Response{
		"https://a.example.com/": httpResponse(http.StatusMovedPermanently, "gone", nil),
	}, nil)

	resp, err := c.SafeFetch(context.Background(), Request{Method: "GET", URL: "https://a.example.com/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusMovedPermanently, resp.StatusCode)
	assert.Equal(t, "https://a.example.com/", resp.FinalURL)
}

func TestSafeFetch_ForwardsHeadersAndBody(t *testing.T) {
	var got *http.Request
	c := NewClient(0)
	c.http.Transport = roundTripFunc(func(req *http.Request) (*http.Response, error) {
		got = req
		body, _ := io.ReadAll(req.Body)
		return httpResponse(http.StatusOK, string(body), nil), nil
	})

	header := http.Header{}
	header.Set("Accept", "application/json")
	resp, err := c.SafeFetch(context.Background(), Request{
		Method: "POST",
		URL:    "https://a.example.com/submit",
		Body:   []byte(`{"q":1}`),
		Header: header,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, `{"q":1}`, string(resp.Body))
}

func TestResolveLocation(t *testing.T) {
	tests := []struct {
		current  string
		location string
		want     string
	}{
		{"https://a.example.com/x/y", "https://b.example.com/z", "https://b.example.com/z"},
		{"https://a.example.com/x/y", "/z", "https://a.example.com/z"},
		{"https://a.example.com/x/y", "z", "https://a.example.com/x/z"},
	}
	for _, tc := range tests {
		got, err := resolveLocation(tc.current, tc.location)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

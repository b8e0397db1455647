package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// HTTPClient is the request surface the API client depends on. Tests
// substitute a MockClient; production code wraps *http.Client.
type HTTPClient interface {
	Get(url string) (*http.Response, error)
	Post(url, contentType string, body io.Reader) (*http.Response, error)
}

// StandardClient adapts *http.Client to HTTPClient.
type StandardClient struct {
	c *http.Client
}

// NewStandardClient wraps c. A nil c uses http.DefaultClient.
func NewStandardClient(c *http.Client) *StandardClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &StandardClient{c: c}
}

func (s *StandardClient) Get(url string) (*http.Response, error) {
	return s.c.Get(url)
}

func (s *StandardClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return s.c.Post(url, contentType, body)
}

// MockClient serves queued replies for tests. Every Get or Post records
// the URL and pops the next reply in order; an exhausted queue fails
// the request.
type MockClient struct {
	mu      sync.Mutex
	urls    []string
	replies []mockReply
}

type mockReply struct {
	status int
	body   string
	err    error
}

// Reply queues a JSON response with the given status and body.
func (m *MockClient) Reply(status int, body string) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{status: status, body: body})
	return m
}

// Fail queues a transport-level error.
func (m *MockClient) Fail(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, mockReply{err: err})
	return m
}

// URLs returns the request URLs seen so far, in order.
func (m *MockClient) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.urls))
	copy(out, m.urls)
	return out
}

func (m *MockClient) Get(url string) (*http.Response, error) {
	return m.next(url)
}

func (m *MockClient) Post(url, contentType string, body io.Reader) (*http.Response, error) {
	return m.next(url)
}

func (m *MockClient) next(url string) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("httputil: no reply queued for %s", url)
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		StatusCode: r.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(r.body)),
	}, nil
}

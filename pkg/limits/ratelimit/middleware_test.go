package ratelimit

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"mercator-hq/forwarder/pkg/proxy/middleware"
	"mercator-hq/forwarder/pkg/proxy/types"
)

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) RecordRateLimited(chain string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[chain]++
}

func (r *countingRecorder) count(chain string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[chain]
}

func newLimiter(t *testing.T, burst int) *ClientLimiter {
	t.Helper()
	l, err := NewClientLimiter(Config{RequestsPerSecond: 0.001, Burst: burst})
	if err != nil {
		t.Fatalf("NewClientLimiter() error = %v", err)
	}
	return l
}

func newRequestContext(protocol string) (*types.RequestContext, *httptest.ResponseRecorder) {
	r := httptest.NewRequest(http.MethodGet, "http://example.org/", nil)
	u, _ := url.Parse("http://example.org/")
	u.Scheme = protocol
	rec := httptest.NewRecorder()
	return &types.RequestContext{
		Request:  r,
		Response: types.NewResponseWriter(rec),
		Locals:   &types.Locals{URL: u, ClientIP: "192.0.2.1", Protocol: protocol},
	}, rec
}

func TestMiddlewareRequest(t *testing.T) {
	rec := &countingRecorder{}
	m := NewMiddleware(newLimiter(t, 1), "test-proxy").WithRecorder(rec)

	chain := middleware.NewChain[*types.RequestContext]("request")
	_ = chain.Use(m.Request())

	c, w := newRequestContext(types.ProtocolHTTP)
	if !chain.Dispatch(c) {
		t.Fatal("first request refused")
	}
	if c.Response.HeadersSent() {
		t.Error("response written for an admitted request")
	}

	c, w = newRequestContext(types.ProtocolHTTP)
	if chain.Dispatch(c) {
		t.Fatal("request beyond burst admitted")
	}
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got == "" || got == "0" {
		t.Errorf("Retry-After = %q, want a positive number of seconds", got)
	}
	if got := w.Header().Get("Server"); got != "test-proxy" {
		t.Errorf("Server = %q", got)
	}
	if !c.Response.Ended() {
		t.Error("refusal did not end the response")
	}
	if got := rec.count("request"); got != 1 {
		t.Errorf("recorded request refusals = %d, want 1", got)
	}
}

func TestMiddlewareRequest_TunneledPasses(t *testing.T) {
	m := NewMiddleware(newLimiter(t, 1), "test-proxy")

	chain := middleware.NewChain[*types.RequestContext]("request")
	_ = chain.Use(m.Request())

	for i := 0; i < 5; i++ {
		c, _ := newRequestContext(types.ProtocolHTTPS)
		if !chain.Dispatch(c) {
			t.Fatalf("tunneled request #%d refused", i+1)
		}
	}
}

func TestMiddlewareConnect(t *testing.T) {
	rec := &countingRecorder{}
	m := NewMiddleware(newLimiter(t, 1), "test-proxy").WithRecorder(rec)

	chain := middleware.NewChain[*types.ConnectContext]("connect")
	_ = chain.Use(m.Connect())

	dispatch := func() (*types.ConnectContext, bool, string) {
		client, peer := net.Pipe()
		defer peer.Close()

		r := httptest.NewRequest(http.MethodConnect, "http://example.com:443", nil)
		r.RequestURI = "example.com:443"
		c := &types.ConnectContext{
			Request: r,
			Locals:  &types.Locals{URL: &url.URL{Scheme: "http", Host: "example.com:443"}, ClientIP: "192.0.2.1"},
			Client:  client,
		}

		answer := make(chan string, 1)
		go func() {
			b, _ := io.ReadAll(bufio.NewReader(peer))
			answer <- string(b)
		}()

		completed := chain.Dispatch(c)
		client.Close()
		return c, completed, <-answer
	}

	c, completed, answer := dispatch()
	if !completed || answer != "" {
		t.Fatalf("first CONNECT: completed = %v, answer = %q", completed, answer)
	}

	c, completed, answer = dispatch()
	if completed {
		t.Fatal("CONNECT beyond burst admitted")
	}
	if !c.Closed() {
		t.Error("refused CONNECT left open")
	}

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(answer)), nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v (answer %q)", err, answer)
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Proxy-Agent"); got != "test-proxy" {
		t.Errorf("Proxy-agent = %q", got)
	}
	if got := rec.count("connect"); got != 1 {
		t.Errorf("recorded connect refusals = %d, want 1", got)
	}
}

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{0, "1"},
		{100 * time.Millisecond, "1"},
		{time.Second, "1"},
		{1500 * time.Millisecond, "2"},
		{30 * time.Second, "30"},
	}

	for _, tt := range tests {
		t.Run(tt.wait.String(), func(t *testing.T) {
			if got := retryAfter(tt.wait); got != tt.want {
				t.Errorf("retryAfter(%v) = %q, want %q", tt.wait, got, tt.want)
			}
		})
	}
}

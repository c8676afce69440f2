package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mercator-hq/forwarder/pkg/cache"
	"mercator-hq/forwarder/pkg/proxy/types"
)

// cachedResponse is the stored form of a cached origin response.
type cachedResponse struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// ResponseCache serves and stores origin responses for GET requests.
type ResponseCache struct {
	store        cache.Cache
	ttl          time.Duration
	maxBodyBytes int64
	serverName   string
	recorder     LookupRecorder
}

// LookupRecorder counts cache lookups made by ResponseCache.
type LookupRecorder interface {
	RecordCacheLookup(hit bool)
}

// NewResponseCache creates a response cache over store. Bodies larger than
// maxBodyBytes are never stored.
func NewResponseCache(store cache.Cache, ttl time.Duration, maxBodyBytes int64, serverName string) *ResponseCache {
	return &ResponseCache{
		store:        store,
		ttl:          ttl,
		maxBodyBytes: maxBodyBytes,
		serverName:   serverName,
	}
}

// WithRecorder sets the recorder told about every lookup.
func (rc *ResponseCache) WithRecorder(r LookupRecorder) *ResponseCache {
	rc.recorder = r
	return rc
}

func (rc *ResponseCache) record(hit bool) {
	if rc.recorder != nil {
		rc.recorder.RecordCacheLookup(hit)
	}
}

func cacheKey(method, url string) string {
	return method + " " + url
}

// Lookup is a request middleware answering cache hits without contacting
// the origin.
func (rc *ResponseCache) Lookup() Func[*types.RequestContext] {
	return func(c *types.RequestContext, next Next) {
		r := c.Request
		if r.Method != http.MethodGet || noCache(r.Header) {
			next()
			return
		}

		raw, ok, err := rc.store.Get(r.Context(), cacheKey(r.Method, c.Locals.URL.String()))
		if err != nil {
			slog.WarnContext(r.Context(), "cache lookup failed", "error", err)
		}
		if !ok {
			rc.record(false)
			next()
			return
		}

		var entry cachedResponse
		if err := json.Unmarshal(raw, &entry); err != nil {
			slog.WarnContext(r.Context(), "discarding corrupt cache entry", "error", err)
			rc.record(false)
			next()
			return
		}
		rc.record(true)

		h := c.Response.Header()
		for k, v := range entry.Header {
			h[k] = v
		}
		h.Set("Server", rc.serverName)
		h.Set("X-Cache", "HIT")
		h.Set("Content-Length", strconv.Itoa(len(entry.Body)))
		c.Response.WriteHeader(entry.Status)
		_, _ = c.Response.Write(entry.Body)
		c.Response.End()
	}
}

// Store is a response middleware saving cacheable origin responses. The
// upstream body is buffered and replaced so the client still receives it.
func (rc *ResponseCache) Store() Func[*types.ResponseContext] {
	return func(c *types.ResponseContext, next Next) {
		up := c.Upstream
		if !rc.cacheable(c.Request, up) {
			next()
			return
		}

		orig := up.Body
		body, err := io.ReadAll(io.LimitReader(orig, rc.maxBodyBytes+1))
		if err != nil {
			// The relay replays what was read and then fails the same way.
			up.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), errReader{err}), Closer: orig}
			next()
			return
		}
		up.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(body), orig), Closer: orig}

		if int64(len(body)) > rc.maxBodyBytes {
			next()
			return
		}

		entry, err := json.Marshal(cachedResponse{
			Status: up.StatusCode,
			Header: storableHeader(up.Header),
			Body:   body,
		})
		if err == nil {
			err = rc.store.Set(c.Request.Context(), cacheKey(c.Request.Method, c.Locals.URL.String()), entry, rc.ttl)
		}
		if err != nil {
			slog.WarnContext(c.Request.Context(), "cache store failed", "error", err)
		} else {
			up.Header.Set("X-Cache", "MISS")
		}

		next()
	}
}

func (rc *ResponseCache) cacheable(r *http.Request, up *http.Response) bool {
	if r.Method != http.MethodGet || up.StatusCode != http.StatusOK {
		return false
	}
	if noCache(r.Header) || noCache(up.Header) {
		return false
	}
	if up.Header.Get("Set-Cookie") != "" || up.Header.Get("Vary") == "*" {
		return false
	}
	if r.Header.Get("Authorization") != "" {
		return false
	}
	return up.ContentLength <= rc.maxBodyBytes
}

func noCache(h http.Header) bool {
	cc := strings.ToLower(h.Get("Cache-Control"))
	return strings.Contains(cc, "no-store") ||
		strings.Contains(cc, "no-cache") ||
		strings.Contains(cc, "private")
}

// storableHeader drops headers that describe the original transfer.
func storableHeader(h http.Header) http.Header {
	out := h.Clone()
	for _, k := range []string{"Connection", "Keep-Alive", "Transfer-Encoding", "Content-Length", "Date", "X-Cache"} {
		out.Del(k)
	}
	return out
}

type readCloser struct {
	io.Reader
	io.Closer
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

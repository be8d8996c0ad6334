package mw

import (
	"bytes"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

const cacheHeader = "X-Cache"

type snapshot struct {
	status  int
	headers http.Header
	body    []byte
}

func (s snapshot) replay(w gin.ResponseWriter) {
	for k, v := range s.headers {
		w.Header()[k] = v
	}
	w.Header().Set(cacheHeader, "HIT")
	w.WriteHeader(s.status)
	_, _ = w.Write(s.body)
}

// recorder tees the response body so it can be stored after the handler returns.
type recorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (r *recorder) Write(b []byte) (int, error) {
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *recorder) WriteString(s string) (int, error) {
	r.buf.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

func (r *recorder) snapshot() snapshot {
	return snapshot{
		status:  r.Status(),
		headers: r.Header().Clone(),
		body:    bytes.Clone(r.buf.Bytes()),
	}
}

// ResponseCache stores GET responses and drops them after successful mutations.
type ResponseCache struct {
	store *cache.Cache
	ttl   time.Duration
	gen   atomic.Uint64
}

// NewResponseCache creates a cache whose entries live for ttl.
func NewResponseCache(ttl time.Duration) *ResponseCache {
	return &ResponseCache{store: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Cache serves repeated GET requests until the ttl passes or Invalidate flushes them.
// Only mount it on routes whose response does not depend on the requester.
func (rc *ResponseCache) Cache() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.Method + " " + c.Request.URL.RequestURI()
		if v, ok := rc.store.Get(key); ok {
			v.(snapshot).replay(c.Writer)
			c.Abort()
			return
		}

		gen := rc.gen.Load()
		rec := &recorder{ResponseWriter: c.Writer}
		c.Writer = rec
		rec.Header().Set(cacheHeader, "MISS")
		c.Next()

		if status := rec.Status(); status < http.StatusOK || status >= http.StatusMultipleChoices {
			return
		}
		rc.store.Set(key, rec.snapshot(), rc.ttl)
		// A mutation that finished while this request ran may have flushed before the Set.
		if rc.gen.Load() != gen {
			rc.store.Delete(key)
		}
	}
}

// Invalidate flushes the cache after every successful mutating request.
func (rc *ResponseCache) Invalidate() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() < http.StatusBadRequest {
			rc.gen.Add(1)
			rc.store.Flush()
		}
	}
}

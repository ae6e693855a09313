package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const (
	responseMetaKey   = "response_meta"
	requestStartKey   = "response_meta_start"
	cacheHitKey       = "cache_hit"
	generationKey     = "generation"
	processingTimeKey = "processing_time_ms"
)

// WithResponseMeta starts the per-request metadata map returned in the
// envelope's meta field.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(requestStartKey, time.Now())
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
	}
}

// SetCacheHit records whether the response was served from the shared cache.
func SetCacheHit(c *gin.Context, hit bool) {
	SetMeta(c, cacheHitKey, hit)
}

// SetGeneration records the analysis generation the response belongs to.
func SetGeneration(c *gin.Context, generation uint64) {
	SetMeta(c, generationKey, generation)
}

// SetMeta records an arbitrary metadata value for the current response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	meta, ok := metaFrom(c)
	if !ok {
		meta = make(map[string]interface{})
		c.Set(responseMetaKey, meta)
	}
	meta[key] = value
}

// ExtractMeta returns the metadata for the response about to be written. The
// elapsed processing time is added unless the handler set its own.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta, ok := metaFrom(c)
	if !ok {
		return nil
	}
	if _, set := meta[processingTimeKey]; !set {
		if start, ok := c.Get(requestStartKey); ok {
			if started, ok := start.(time.Time); ok {
				meta[processingTimeKey] = time.Since(started).Milliseconds()
			}
		}
	}
	return meta
}

func metaFrom(c *gin.Context) (map[string]interface{}, bool) {
	raw, exists := c.Get(responseMetaKey)
	if !exists {
		return nil, false
	}
	meta, ok := raw.(map[string]interface{})
	return meta, ok
}

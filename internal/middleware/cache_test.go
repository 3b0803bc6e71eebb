package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestWithResponseMetaCollectsTimingAndCacheHit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var meta map[string]interface{}
	router := gin.New()
	// Outer middleware observes the final metadata after the chain unwinds.
	router.Use(func(c *gin.Context) {
		c.Next()
		meta = ExtractMeta(c)
	})
	router.Use(WithResponseMeta())
	router.GET("/cached", func(c *gin.Context) {
		SetCacheHit(c, true)
		c.Status(http.StatusOK)
	})

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/cached", nil))

	if meta == nil {
		t.Fatal("expected response metadata to be populated")
	}
	if hit, ok := meta[cacheHitKey].(bool); !ok || !hit {
		t.Fatalf("expected cache_hit=true, got %v", meta[cacheHitKey])
	}
	if _, ok := meta["processing_time_ms"]; !ok {
		t.Fatal("expected processing_time_ms to be recorded")
	}
}

func TestExtractMetaWithoutMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	if got := ExtractMeta(c); got != nil {
		t.Fatalf("expected nil metadata, got %v", got)
	}

	// SetCacheHit is safe even when the middleware never ran.
	SetCacheHit(c, false)
	meta := ExtractMeta(c)
	if meta == nil {
		t.Fatal("expected metadata to be created on demand")
	}
	if hit, ok := meta[cacheHitKey].(bool); !ok || hit {
		t.Fatalf("expected cache_hit=false, got %v", meta[cacheHitKey])
	}
}

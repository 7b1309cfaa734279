package requestid

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func performRequest(t *testing.T, inboundID string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen string
	rec := httptest.NewRecorder()
	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		seen = Value(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inboundID != "" {
		req.Header.Set("X-Request-ID", inboundID)
	}
	r.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequestIDGenerated(t *testing.T) {
	rec, seen := performRequest(t, "")
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDPropagated(t *testing.T) {
	rec, seen := performRequest(t, "gateway-abc-123")
	assert.Equal(t, "gateway-abc-123", seen)
	assert.Equal(t, "gateway-abc-123", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDOversizedReplaced(t *testing.T) {
	oversized := strings.Repeat("x", 200)
	rec, seen := performRequest(t, oversized)
	assert.NotEqual(t, oversized, seen)
	assert.NotEqual(t, oversized, rec.Header().Get("X-Request-ID"))
}

package cors

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func performCORS(t *testing.T, allowed []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	r := gin.New()
	r.Use(New(allowed))
	r.GET("/courses", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(method, "/courses", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	r.ServeHTTP(rec, req)
	return rec
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	rec := performCORS(t, []string{"https://portal.example.edu"}, http.MethodGet, "https://portal.example.edu")
	assert.Equal(t, "https://portal.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	rec := performCORS(t, []string{"https://portal.example.edu"}, http.MethodGet, "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	rec := performCORS(t, nil, http.MethodOptions, "https://portal.example.edu")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

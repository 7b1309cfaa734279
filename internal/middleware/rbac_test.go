package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/ocrs/registration-api/internal/models"
)

func performWithClaims(t *testing.T, claims *models.JWTClaims, path string, handlers ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	r := gin.New()
	if claims != nil {
		r.Use(func(c *gin.Context) {
			c.Set(ContextUserKey, claims)
			c.Next()
		})
	}
	chain := append(handlers, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/students/:studentId", chain...)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(rec, req)
	return rec
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleAdmin}
	rec := performWithClaims(t, claims, "/students/stu-9", RBAC("ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACRejectsOtherRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}
	rec := performWithClaims(t, claims, "/students/stu-9", RBAC("ADMIN"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACSelfMatchesStudentID(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}
	rec := performWithClaims(t, claims, "/students/stu-1", RBAC("ADMIN", "SELF"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRBACSelfRejectsOtherStudent(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u-1", Role: models.RoleStudent, StudentID: "stu-1"}
	rec := performWithClaims(t, claims, "/students/stu-2", RBAC("ADMIN", "SELF"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	rec := performWithClaims(t, nil, "/students/stu-1", RBAC("ADMIN"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

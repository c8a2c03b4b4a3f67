package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"lulufarm/internal/pkg/jwt"
)

func newProtectedRouter(t *testing.T, svc *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(AdminAuth(svc))
	router.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"username": c.GetString("username")})
	})
	return router
}

func TestAdminAuth_BearerToken(t *testing.T) {
	svc := jwt.New("test-secret-123", time.Hour)
	token, err := svc.GenerateToken("admin", RoleAdmin)
	assert.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	newProtectedRouter(t, svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "admin")
}

func TestAdminAuth_Cookie(t *testing.T) {
	svc := jwt.New("test-secret-123", time.Hour)
	token, _ := svc.GenerateToken("admin", RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.AddCookie(&http.Cookie{Name: AdminCookieName, Value: token})
	newProtectedRouter(t, svc).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_Rejects(t *testing.T) {
	svc := jwt.New("test-secret-123", time.Hour)
	other := jwt.New("wrong-secret", time.Hour)
	foreign, _ := other.GenerateToken("admin", RoleAdmin)
	guest, _ := svc.GenerateToken("guest", "client")
	expired, _ := jwt.New("test-secret-123", -time.Minute).GenerateToken("admin", RoleAdmin)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"malformed header", "Token abc", http.StatusUnauthorized},
		{"garbage", "Bearer invalid-jwt-here", http.StatusUnauthorized},
		{"other secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong role", "Bearer " + guest, http.StatusForbidden},
	}
	router := newProtectedRouter(t, svc)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

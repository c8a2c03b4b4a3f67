package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lulufarm/internal/middleware"
	"lulufarm/internal/pkg/jwt"
)

func newTestRouter(t *testing.T) (*gin.Engine, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc, jwtService := newTestService(t, Credentials{Username: "admin", Password: "alpaca"})
	h := NewHandler(svc, false)

	r := gin.New()
	group := r.Group("/api/v1/admin")
	h.RegisterPublicRoutes(group)
	protected := group.Group("")
	protected.Use(middleware.AdminAuth(jwtService))
	h.RegisterRoutes(protected)
	return r, jwtService
}

func postJSON(r http.Handler, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_LoginSetsCookie(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/api/v1/admin/login", LoginRequest{Username: "admin", Password: "alpaca"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.AdminCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.NotEmpty(t, cookie.Value)

	// the cookie alone opens admin endpoints
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/integrations", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"adapter":"demo"`)
}

func TestHandler_LoginRejected(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postJSON(r, "/api/v1/admin/login", LoginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_CREDENTIALS")

	w = postJSON(r, "/api/v1/admin/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_ProtectedRoutesNeedToken(t *testing.T) {
	r, jwtService := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/integrations/crm/logs", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, _ := jwtService.GenerateToken("admin", "admin")
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/integrations/crm/logs", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
}

func TestHandler_Logout(t *testing.T) {
	r, _ := newTestRouter(t)
	w := postJSON(r, "/api/v1/admin/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, middleware.AdminCookieName, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}

func TestHandler_SendTestEmail(t *testing.T) {
	r, jwtService := newTestRouter(t)
	token, _ := jwtService.GenerateToken("admin", "admin")

	send := func(body any) *httptest.ResponseRecorder {
		raw, _ := json.Marshal(body)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/integrations/email/test", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send(TestEmailRequest{Email: "owner@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"sent":true`)
	assert.Contains(t, w.Body.String(), `"to":"owner@example.com"`)

	w = send(map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// без токена
	w = postJSON(r, "/api/v1/admin/integrations/email/test", TestEmailRequest{Email: "owner@example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

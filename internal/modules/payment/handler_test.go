package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lulufarm/internal/domain"
	"lulufarm/internal/testutil"
)

func newTestRouter(f *fixture) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(f.service, f.reconciler, f.gateway.DemoGateway, nil)
	h.RegisterPublicRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postForm(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_CreatePayment(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	r := newTestRouter(f)
	b := testutil.SeedBooking(t, f.db, f.slot, 1, 0, "pay@example.com")

	w := doJSON(r, http.MethodPost, "/api/v1/payments/create", gin.H{"bookingId": b.ID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success bool    `json:"success"`
		Data    Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "demo_"+b.ID.String(), resp.Data.ID)
	assert.Contains(t, resp.Data.URL, "/demo-payment?")

	w = doJSON(r, http.MethodPost, "/api/v1/payments/create", gin.H{"bookingId": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, http.MethodPost, "/api/v1/payments/create", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_WebhookStatusCodes(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	r := newTestRouter(f)
	b, inv := f.pendingWithInvoice(t)
	n, err := f.gateway.Complete(inv.ID)
	require.NoError(t, err)

	good := f.gateway.Form(n).Encode()
	w := postForm(r, "/api/v1/payments/webhook", good)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, domain.BookingPaid, testutil.ReloadBooking(t, f.db, b).Status)

	w = postForm(r, "/api/v1/payments/webhook", good)
	assert.Equal(t, http.StatusOK, w.Code, "duplicate delivery is acknowledged")

	forged := f.gateway.Form(n)
	forged.Set("signature", "00")
	w = postForm(r, "/api/v1/payments/webhook", forged.Encode())
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postForm(r, "/api/v1/payments/webhook", "status=success")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postForm(r, "/api/v1/payments/webhook", "%zz")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/webhook", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_CheckPayment(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	r := newTestRouter(f)
	b, inv := f.pendingWithInvoice(t)

	f.gateway.checkErr = errors.New("gateway down")
	w := doJSON(r, http.MethodPost, "/api/v1/payments/check", gin.H{"bookingId": b.ID.String(), "invoiceId": inv.ID})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "PAYMENT_CHECK_FAILED")

	f.gateway.checkErr = nil
	f.gateway.status = StatusPaid
	w = doJSON(r, http.MethodPost, "/api/v1/payments/check", gin.H{"bookingId": b.ID.String(), "invoiceId": inv.ID})
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data CheckResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.IsPaid)
	assert.True(t, resp.Data.Transitioned)
}

func TestHandler_CompleteDemo(t *testing.T) {
	f := newFixture(t, ReconcilerConfig{})
	r := newTestRouter(f)
	b, inv := f.pendingWithInvoice(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/demo/"+inv.ID+"/complete", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, domain.BookingPaid, testutil.ReloadBooking(t, f.db, b).Status)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/payments/demo/demo_unknown/complete", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

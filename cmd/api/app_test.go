package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lulufarm/internal/config"
	"lulufarm/internal/domain"
	"lulufarm/internal/testutil"
)

type testResponse struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:   "test",
		AppURL:   "http://localhost:3000",
		Location: time.UTC,
		Admin: config.AdminConfig{
			Username:  "admin",
			Password:  "alpaca",
			JWTSecret: "test_secret_key_32_characters_min",
			TokenTTL:  time.Hour,
		},
		Booking: config.BookingConfig{
			PendingTTL:    30 * time.Minute,
			SweepInterval: time.Minute,
		},
		Payment: config.PaymentConfig{
			Mode:          config.ModeDemo,
			WebhookSecret: "whsec_test",
			ServiceName:   "Экскурсия",
			Timeout:       time.Second,
		},
		CRM:           config.CRMConfig{Mode: config.ModeDemo},
		Email:         config.EmailConfig{Mode: config.ModeDemo},
		Events:        config.EventsConfig{Queue: "booking.events"},
		NotifyTimeout: 2 * time.Second,
	}
}

func nextWeek() string {
	return time.Now().UTC().AddDate(0, 0, 7).Format("2006-01-02")
}

func setup(t *testing.T) (*app, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	a := newApp(testConfig(), db, nil, nil)
	t.Cleanup(a.close)
	return a, db
}

func call(t *testing.T, r http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, testResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var resp testResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func bookingBody(slotID string, adult, child int) map[string]any {
	return map[string]any{
		"slotId":  slotID,
		"tickets": map[string]int{"adult": adult, "child": child, "infant": 0},
		"customer": map[string]string{
			"name":  "Иван Иванов",
			"phone": "+7 900 123-45-67",
			"email": "ivan@example.com",
		},
		"agreements": map[string]bool{"offer": true, "personalData": true},
	}
}

func TestE2E_BookAndPayThroughDemoGateway(t *testing.T) {
	a, db := setup(t)
	tariff := testutil.SeedTariff(t, db, "Стандарт", 1500, 800, 0)
	slot := testutil.SeedSlot(t, db, tariff, nextWeek(), "12:00", 15)

	w, resp := call(t, a.router, http.MethodPost, "/api/v1/bookings", "", bookingBody(slot.ID.String(), 2, 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, 3800.0, resp.Data["totalAmount"])
	bookingID := resp.Data["bookingId"].(string)
	invoiceID, _ := resp.Data["invoiceId"].(string)
	require.NotEmpty(t, invoiceID)
	assert.Equal(t, 12, testutil.Reload(t, db, slot).AvailableCapacity)

	w, resp = call(t, a.router, http.MethodPost, "/api/v1/payments/demo/"+invoiceID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "transitioned", resp.Data["outcome"])

	w, resp = call(t, a.router, http.MethodGet, "/api/v1/bookings/"+bookingID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(domain.BookingPaid), resp.Data["status"])

	// replayed completion is a no-op
	w, resp = call(t, a.router, http.MethodPost, "/api/v1/payments/demo/"+invoiceID+"/complete", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "already_paid", resp.Data["outcome"])
	assert.Equal(t, 12, testutil.Reload(t, db, slot).AvailableCapacity)
}

func TestE2E_AdminCancelReleasesSeats(t *testing.T) {
	a, db := setup(t)
	tariff := testutil.SeedTariff(t, db, "Стандарт", 1500, 800, 0)
	slot := testutil.SeedSlot(t, db, tariff, nextWeek(), "12:00", 3)

	w, resp := call(t, a.router, http.MethodPost, "/api/v1/bookings", "", bookingBody(slot.ID.String(), 3, 0))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	bookingID := resp.Data["bookingId"].(string)
	assert.Equal(t, domain.SlotFull, testutil.Reload(t, db, slot).Status)

	w, _ = call(t, a.router, http.MethodPost, "/api/v1/bookings", "", bookingBody(slot.ID.String(), 1, 0))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = call(t, a.router, http.MethodPost, "/api/v1/admin/bookings/"+bookingID+"/cancel", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp = call(t, a.router, http.MethodPost, "/api/v1/admin/login", "", map[string]string{"username": "admin", "password": "alpaca"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	token := resp.Data["token"].(string)

	w, _ = call(t, a.router, http.MethodPost, "/api/v1/admin/bookings/"+bookingID+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	after := testutil.Reload(t, db, slot)
	assert.Equal(t, 3, after.AvailableCapacity)
	assert.Equal(t, domain.SlotActive, after.Status)

	w, resp = call(t, a.router, http.MethodGet, "/api/v1/admin/integrations", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	payment := resp.Data["payment"].(map[string]interface{})
	assert.Equal(t, "demo", payment["adapter"])
}

func TestE2E_Healthz(t *testing.T) {
	a, _ := setup(t)
	w, _ := call(t, a.router, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

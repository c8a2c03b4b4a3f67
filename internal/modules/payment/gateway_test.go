package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]InvoiceStatus{
		"success":   StatusPaid,
		"PAID":      StatusPaid,
		"failed":    StatusFailed,
		"canceled":  StatusFailed,
		"cancelled": StatusFailed,
		"expired":   StatusExpired,
		"created":   StatusPending,
		"sent":      StatusPending,
		"refunded":  StatusUnknown,
		"":          StatusUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStatus(in), in)
	}
}

func TestAmountEqual(t *testing.T) {
	assert.True(t, amountEqual("3800", "3800.00"))
	assert.True(t, amountEqual(" 1200.5 ", "1200.50"))
	assert.False(t, amountEqual("3800.01", "3800.00"))
	assert.False(t, amountEqual("abc", "1"))
}

func TestDemoGateway_SignatureRoundTrip(t *testing.T) {
	g := NewDemoGateway("http://localhost:8080/", "s3cret")
	inv, err := g.CreateInvoice(context.Background(), InvoiceRequest{OrderID: "order-1", Amount: 3800, ClientEmail: "a@b.ru", ServiceName: "Экскурсия"})
	require.NoError(t, err)
	assert.Equal(t, "demo_order-1", inv.ID)

	u, err := url.Parse(inv.URL)
	require.NoError(t, err)
	assert.Equal(t, "/demo-payment", u.Path)
	assert.Equal(t, "3800.00", u.Query().Get("amount"))
	assert.Equal(t, "order-1", u.Query().Get("order_id"))

	n, err := g.Complete(inv.ID)
	require.NoError(t, err)
	parsed, err := g.ParseNotification(g.Form(n))
	require.NoError(t, err)
	assert.True(t, g.VerifySignature(parsed))
	assert.Equal(t, "OK", g.Ack(parsed))

	status, err := g.CheckStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, status)

	parsed.Amount = "1.00"
	assert.False(t, g.VerifySignature(parsed), "tampered amount must fail")

	other := NewDemoGateway("", "another")
	parsed.Amount = "3800.00"
	assert.False(t, other.VerifySignature(parsed), "foreign secret must fail")
}

func TestDemoGateway_RejectsWithoutSecretOrSignature(t *testing.T) {
	g := NewDemoGateway("", "")
	n := &Notification{PaymentID: "p", OrderID: "o", Amount: "1.00", Status: "success"}
	n.Signature = g.Sign(n)
	assert.False(t, g.VerifySignature(n))

	g = NewDemoGateway("", "k")
	assert.False(t, g.VerifySignature(&Notification{OrderID: "o"}))

	_, err := g.ParseNotification(url.Values{"status": {"success"}})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, err = g.Complete("demo_missing")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestPayKeeper_NotificationSignature(t *testing.T) {
	g := NewPayKeeperGateway(PayKeeperConfig{Server: "demo.paykeeper.ru", Secret: "pk-secret"})
	form := url.Values{
		"id":       {"123"},
		"sum":      {"3800.00"},
		"clientid": {"Анна"},
		"orderid":  {"b-1"},
	}
	form.Set("key", md5Hex("123"+"3800.00"+"Анна"+"b-1"+"pk-secret"))

	n, err := g.ParseNotification(form)
	require.NoError(t, err)
	assert.Equal(t, "paid", n.Status, "missing status means paid")
	assert.True(t, g.VerifySignature(n))
	assert.Equal(t, "OK "+md5Hex("123pk-secret"), g.Ack(n))

	form.Set("sum", "1.00")
	n, err = g.ParseNotification(form)
	require.NoError(t, err)
	assert.False(t, g.VerifySignature(n))

	form.Del("key")
	form.Set("signature", md5Hex("123"+"1.00"+"Анна"+"b-1"+"pk-secret"))
	n, err = g.ParseNotification(form)
	require.NoError(t, err)
	assert.True(t, g.VerifySignature(n), "signature is accepted as an alias of key")

	_, err = g.ParseNotification(url.Values{"id": {"1"}})
	assert.ErrorIs(t, err, ErrInvalidNotification)
}

func newPayKeeperStub(t *testing.T, invoiceURL string, status string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/info/settings/token/":
			_, _ = w.Write([]byte(`{"token":"tkn"}`))
		case "/change/invoice/preview/":
			_ = r.ParseForm()
			assert.Equal(t, "tkn", r.PostForm.Get("token"))
			assert.Equal(t, "3800.00", r.PostForm.Get("pay_amount"))
			assert.Equal(t, "b-1", r.PostForm.Get("orderid"))
			_, _ = w.Write([]byte(`{"invoice_id":"20260601123","invoice_url":"` + invoiceURL + `"}`))
		case "/info/invoice/byid/":
			if r.URL.Query().Get("id") != "20260601123" {
				_, _ = w.Write([]byte(`{}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"` + status + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPayKeeper_CreateInvoiceAndCheck(t *testing.T) {
	srv := newPayKeeperStub(t, "", "paid")
	g := NewPayKeeperGateway(PayKeeperConfig{Server: srv.URL, User: "admin", Password: "pw", Secret: "x"})

	inv, err := g.CreateInvoice(context.Background(), InvoiceRequest{OrderID: "b-1", Amount: 3800, ClientName: "Анна"})
	require.NoError(t, err)
	assert.Equal(t, "20260601123", inv.ID)
	assert.Equal(t, srv.URL+"/bill/20260601123/", inv.URL, "falls back to the bill page")

	status, err := g.CheckStatus(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, status)

	_, err = g.CheckStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestPayKeeper_AuthFailure(t *testing.T) {
	srv := newPayKeeperStub(t, "", "paid")
	g := NewPayKeeperGateway(PayKeeperConfig{Server: srv.URL, User: "admin", Password: "wrong"})

	_, err := g.CreateInvoice(context.Background(), InvoiceRequest{OrderID: "b-1", Amount: 3800})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

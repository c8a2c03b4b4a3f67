package payment

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

type demoInvoice struct {
	orderID   string
	amount    float64
	status    InvoiceStatus
	paymentID string
}

// DemoGateway keeps invoices in memory and pays them on request. It signs its
// own notifications with the webhook secret, so the callback path is the same
// as in production.
type DemoGateway struct {
	mu       sync.Mutex
	appURL   string
	secret   string
	invoices map[string]*demoInvoice
}

func NewDemoGateway(appURL, secret string) *DemoGateway {
	return &DemoGateway{
		appURL:   strings.TrimRight(appURL, "/"),
		secret:   secret,
		invoices: map[string]*demoInvoice{},
	}
}

func (g *DemoGateway) Name() string { return "demo" }

func (g *DemoGateway) CreateInvoice(_ context.Context, req InvoiceRequest) (*Invoice, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("demo: order id is required")
	}
	id := "demo_" + req.OrderID

	g.mu.Lock()
	if _, ok := g.invoices[id]; !ok {
		g.invoices[id] = &demoInvoice{orderID: req.OrderID, amount: req.Amount, status: StatusPending}
	}
	g.mu.Unlock()

	q := url.Values{}
	q.Set("order_id", req.OrderID)
	q.Set("amount", formatAmount(req.Amount))
	q.Set("email", req.ClientEmail)
	q.Set("service", req.ServiceName)
	return &Invoice{ID: id, URL: g.appURL + "/demo-payment?" + q.Encode()}, nil
}

// CheckStatus reports pending for invoices it does not know, e.g. after a
// restart, so stale bookings still expire.
func (g *DemoGateway) CheckStatus(_ context.Context, invoiceID string) (InvoiceStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return StatusPending, nil
	}
	return inv.status, nil
}

// Complete marks the invoice paid and returns the signed notification the
// demo payment page posts back to the webhook.
func (g *DemoGateway) Complete(invoiceID string) (*Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, fmt.Errorf("demo: %w: %s", ErrInvoiceNotFound, invoiceID)
	}
	if inv.paymentID == "" {
		inv.paymentID = "demo_pay_" + randomHex(8)
	}
	inv.status = StatusPaid

	n := &Notification{
		PaymentID: inv.paymentID,
		OrderID:   inv.orderID,
		Amount:    formatAmount(inv.amount),
		Status:    "success",
	}
	n.Signature = g.Sign(n)
	return n, nil
}

// Form renders a notification in the webhook wire format.
func (g *DemoGateway) Form(n *Notification) url.Values {
	form := url.Values{}
	form.Set("paymentId", n.PaymentID)
	form.Set("orderId", n.OrderID)
	form.Set("amount", n.Amount)
	form.Set("status", n.Status)
	form.Set("signature", n.Signature)
	return form
}

func (g *DemoGateway) ParseNotification(form url.Values) (*Notification, error) {
	n := &Notification{
		PaymentID: firstOf(form, "paymentId", "payment_id"),
		OrderID:   firstOf(form, "orderId", "order_id"),
		Amount:    firstOf(form, "amount"),
		Status:    firstOf(form, "status"),
		Signature: firstOf(form, "signature"),
	}
	if n.OrderID == "" {
		return nil, fmt.Errorf("%w: orderId is required", ErrInvalidNotification)
	}
	return n, nil
}

// Sign is hex(HMAC-SHA256(secret, "paymentId:amount:orderId:status")).
func (g *DemoGateway) Sign(n *Notification) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	mac.Write([]byte(n.PaymentID + ":" + n.Amount + ":" + n.OrderID + ":" + n.Status))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *DemoGateway) VerifySignature(n *Notification) bool {
	if n == nil || n.Signature == "" || g.secret == "" {
		return false
	}
	return equalFoldConstantTime(n.Signature, g.Sign(n))
}

func (g *DemoGateway) Ack(*Notification) string { return "OK" }

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

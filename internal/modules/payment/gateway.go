package payment

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"math/big"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrGatewayUnavailable  = errors.New("payment gateway unavailable")
	ErrPaymentCheckFailed  = errors.New("payment status check failed")
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrInvalidNotification = errors.New("invalid payment notification")
	ErrInvoiceNotFound     = errors.New("invoice not found")
)

type InvoiceStatus string

const (
	StatusPending InvoiceStatus = "pending"
	StatusPaid    InvoiceStatus = "paid"
	StatusFailed  InvoiceStatus = "failed"
	StatusExpired InvoiceStatus = "expired"
	StatusUnknown InvoiceStatus = "unknown"
)

// NormalizeStatus maps gateway status words onto the statuses reconciliation
// understands. Anything unrecognised is StatusUnknown.
func NormalizeStatus(raw string) InvoiceStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "paid", "succeeded":
		return StatusPaid
	case "failed", "fail", "cancelled", "canceled", "rejected":
		return StatusFailed
	case "expired":
		return StatusExpired
	case "created", "sent", "pending", "new":
		return StatusPending
	default:
		return StatusUnknown
	}
}

type InvoiceRequest struct {
	OrderID     string
	Amount      float64
	ClientName  string
	ClientEmail string
	ClientPhone string
	ServiceName string
}

type Invoice struct {
	ID  string `json:"invoiceId"`
	URL string `json:"paymentUrl"`
}

// Notification is a gateway callback in gateway-neutral form.
type Notification struct {
	PaymentID string
	OrderID   string
	ClientID  string
	Amount    string
	Status    string
	Signature string
}

// Gateway is the payment provider. One implementation is chosen at startup.
type Gateway interface {
	Name() string
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error)
	ParseNotification(form url.Values) (*Notification, error)
	VerifySignature(n *Notification) bool
	// Ack is the exact response body the gateway expects for an accepted notification.
	Ack(n *Notification) string
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func amountEqual(a, b string) bool {
	ar, ok := new(big.Rat).SetString(strings.TrimSpace(a))
	if !ok {
		return false
	}
	br, ok := new(big.Rat).SetString(strings.TrimSpace(b))
	if !ok {
		return false
	}
	return ar.Cmp(br) == 0
}

func md5Hex(s string) string {
	h := md5.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

func equalFoldConstantTime(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}

func firstOf(form url.Values, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(form.Get(k)); v != "" {
			return v
		}
	}
	return ""
}

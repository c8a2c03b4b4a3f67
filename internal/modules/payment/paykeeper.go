package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type PayKeeperConfig struct {
	Server   string // host, e.g. demo.paykeeper.ru; a full http(s) URL is used as is
	User     string
	Password string
	Secret   string
	Timeout  time.Duration
}

// PayKeeperGateway issues invoices through the PayKeeper JSON API.
type PayKeeperGateway struct {
	cfg     PayKeeperConfig
	baseURL string
	client  *http.Client
}

func NewPayKeeperGateway(cfg PayKeeperConfig) *PayKeeperGateway {
	base := strings.TrimRight(cfg.Server, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &PayKeeperGateway{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *PayKeeperGateway) Name() string { return "paykeeper" }

func (g *PayKeeperGateway) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	token, err := g.token(ctx)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("pay_amount", formatAmount(req.Amount))
	form.Set("clientid", req.ClientName)
	form.Set("orderid", req.OrderID)
	form.Set("service_name", req.ServiceName)
	form.Set("client_email", req.ClientEmail)
	form.Set("client_phone", req.ClientPhone)
	form.Set("token", token)

	var out struct {
		InvoiceID  string `json:"invoice_id"`
		InvoiceURL string `json:"invoice_url"`
		Result     string `json:"result"`
		Msg        string `json:"msg"`
	}
	if err := g.do(ctx, http.MethodPost, "/change/invoice/preview/", form, &out); err != nil {
		return nil, err
	}
	if out.InvoiceID == "" {
		return nil, fmt.Errorf("paykeeper: invoice not created: %s %s", out.Result, out.Msg)
	}
	link := out.InvoiceURL
	if link == "" {
		link = fmt.Sprintf("%s/bill/%s/", g.baseURL, out.InvoiceID)
	}
	return &Invoice{ID: out.InvoiceID, URL: link}, nil
}

func (g *PayKeeperGateway) token(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := g.do(ctx, http.MethodGet, "/info/settings/token/", nil, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("paykeeper: empty token")
	}
	return out.Token, nil
}

func (g *PayKeeperGateway) CheckStatus(ctx context.Context, invoiceID string) (InvoiceStatus, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := g.do(ctx, http.MethodGet, "/info/invoice/byid/?id="+url.QueryEscape(invoiceID), nil, &out); err != nil {
		return "", err
	}
	if out.Status == "" {
		return "", fmt.Errorf("paykeeper: %w: %s", ErrInvoiceNotFound, invoiceID)
	}
	return NormalizeStatus(out.Status), nil
}

// ParseNotification reads a PayKeeper POST callback. PayKeeper only notifies
// about successful payments, so a missing status means paid.
func (g *PayKeeperGateway) ParseNotification(form url.Values) (*Notification, error) {
	n := &Notification{
		PaymentID: firstOf(form, "id"),
		OrderID:   firstOf(form, "orderid"),
		ClientID:  form.Get("clientid"),
		Amount:    firstOf(form, "sum"),
		Status:    firstOf(form, "status"),
		Signature: firstOf(form, "key", "signature"),
	}
	if n.OrderID == "" {
		return nil, fmt.Errorf("%w: orderid is required", ErrInvalidNotification)
	}
	if n.PaymentID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidNotification)
	}
	if n.Status == "" {
		n.Status = string(StatusPaid)
	}
	return n, nil
}

func (g *PayKeeperGateway) VerifySignature(n *Notification) bool {
	if n == nil || n.Signature == "" || g.cfg.Secret == "" {
		return false
	}
	return equalFoldConstantTime(n.Signature, g.sign(n))
}

func (g *PayKeeperGateway) sign(n *Notification) string {
	return md5Hex(n.PaymentID + n.Amount + n.ClientID + n.OrderID + g.cfg.Secret)
}

func (g *PayKeeperGateway) Ack(n *Notification) string {
	return "OK " + md5Hex(n.PaymentID+g.cfg.Secret)
}

func (g *PayKeeperGateway) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("paykeeper: build request: %w", err)
	}
	req.SetBasicAuth(g.cfg.User, g.cfg.Password)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("paykeeper: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("paykeeper: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("paykeeper: decode response: %w", err)
	}
	return nil
}

package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type AmoCRMConfig struct {
	BaseURL        string // overrides https://{subdomain}.amocrm.ru/api/v4
	Subdomain      string
	AccessToken    string
	PipelineID     int64
	StatusBooked   int64
	StatusPaid     int64
	FieldDate      int64
	FieldTime      int64
	FieldTickets   int64
	FieldBookingID int64
	Timeout        time.Duration
}

// AmoCRM talks to the amoCRM REST API v4 with a long-lived access token.
type AmoCRM struct {
	cfg     AmoCRMConfig
	baseURL string
	client  *http.Client
	log     *CRMLog
}

func NewAmoCRM(cfg AmoCRMConfig, log *CRMLog) *AmoCRM {
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.amocrm.ru/api/v4", cfg.Subdomain)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AmoCRM{
		cfg:     cfg,
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *AmoCRM) Name() string { return "amocrm" }

type amoField struct {
	FieldID   int64           `json:"field_id,omitempty"`
	FieldCode string          `json:"field_code,omitempty"`
	Values    []amoFieldValue `json:"values"`
}

type amoFieldValue struct {
	Value    any    `json:"value"`
	EnumCode string `json:"enum_code,omitempty"`
}

type amoEntity struct {
	ID int64 `json:"id"`
}

type amoEmbedded struct {
	Embedded struct {
		Contacts []amoEntity `json:"contacts"`
		Leads    []amoEntity `json:"leads"`
	} `json:"_embedded"`
}

func (c *AmoCRM) CreateOrUpdateContact(ctx context.Context, ct Contact) (int64, error) {
	existing, err := c.findContact(ctx, ct.Email)
	if err != nil {
		c.fail("find_contact", ct.BookingID, err)
		return 0, err
	}

	fields := []amoField{
		{FieldCode: "PHONE", Values: []amoFieldValue{{Value: ct.Phone, EnumCode: "WORK"}}},
		{FieldCode: "EMAIL", Values: []amoFieldValue{{Value: ct.Email, EnumCode: "WORK"}}},
	}
	if existing != 0 {
		body := map[string]any{"name": ct.Name, "custom_fields_values": fields}
		if err := c.do(ctx, http.MethodPatch, "/contacts/"+strconv.FormatInt(existing, 10), body, nil); err != nil {
			c.fail("update_contact", ct.BookingID, err)
			return 0, err
		}
		c.log.Add(CRMLogEntry{Action: ActionContactUpdated, ContactID: existing, BookingID: ct.BookingID, Details: map[string]any{"email": ct.Email}})
		return existing, nil
	}

	var out amoEmbedded
	body := []map[string]any{{"name": ct.Name, "custom_fields_values": fields}}
	if err := c.do(ctx, http.MethodPost, "/contacts", body, &out); err != nil {
		c.fail("create_contact", ct.BookingID, err)
		return 0, err
	}
	if len(out.Embedded.Contacts) == 0 {
		err := fmt.Errorf("amocrm: empty contacts response")
		c.fail("create_contact", ct.BookingID, err)
		return 0, err
	}
	id := out.Embedded.Contacts[0].ID
	c.log.Add(CRMLogEntry{Action: ActionContactCreated, ContactID: id, BookingID: ct.BookingID, Details: map[string]any{"email": ct.Email}})
	return id, nil
}

func (c *AmoCRM) findContact(ctx context.Context, email string) (int64, error) {
	var out amoEmbedded
	path := "/contacts?query=" + url.QueryEscape(email)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, err
	}
	if len(out.Embedded.Contacts) == 0 {
		return 0, nil
	}
	return out.Embedded.Contacts[0].ID, nil
}

func (c *AmoCRM) CreateDeal(ctx context.Context, d Deal) (int64, error) {
	lead := map[string]any{
		"name":      d.Name,
		"price":     int64(math.Round(d.Price)),
		"status_id": c.cfg.StatusBooked,
		"_embedded": map[string]any{"contacts": []amoEntity{{ID: d.ContactID}}},
	}
	if c.cfg.PipelineID != 0 {
		lead["pipeline_id"] = c.cfg.PipelineID
	}
	var fields []amoField
	addField := func(id int64, v any) {
		if id != 0 {
			fields = append(fields, amoField{FieldID: id, Values: []amoFieldValue{{Value: v}}})
		}
	}
	addField(c.cfg.FieldDate, d.Date)
	addField(c.cfg.FieldTime, d.Time)
	addField(c.cfg.FieldTickets, strconv.Itoa(d.Tickets))
	addField(c.cfg.FieldBookingID, d.BookingID)
	if len(fields) > 0 {
		lead["custom_fields_values"] = fields
	}

	var out amoEmbedded
	if err := c.do(ctx, http.MethodPost, "/leads", []map[string]any{lead}, &out); err != nil {
		c.fail("create_deal", d.BookingID, err)
		return 0, err
	}
	if len(out.Embedded.Leads) == 0 {
		err := fmt.Errorf("amocrm: empty leads response")
		c.fail("create_deal", d.BookingID, err)
		return 0, err
	}
	id := out.Embedded.Leads[0].ID
	c.log.Add(CRMLogEntry{Action: ActionDealCreated, ContactID: d.ContactID, DealID: id, BookingID: d.BookingID, Details: map[string]any{"price": d.Price}})
	return id, nil
}

func (c *AmoCRM) UpdateDealStatus(ctx context.Context, dealID int64, stage DealStage) error {
	status := c.cfg.StatusBooked
	if stage == StagePaid {
		status = c.cfg.StatusPaid
	}
	body := map[string]any{"status_id": status}
	if err := c.do(ctx, http.MethodPatch, "/leads/"+strconv.FormatInt(dealID, 10), body, nil); err != nil {
		c.log.Add(CRMLogEntry{Action: ActionError, DealID: dealID, Details: map[string]any{"op": "update_deal_status", "error": err.Error()}})
		return err
	}
	c.log.Add(CRMLogEntry{Action: ActionStatusChanged, DealID: dealID, Details: map[string]any{"stage": string(stage), "status_id": status}})
	return nil
}

func (c *AmoCRM) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("amocrm: marshal: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("amocrm: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("amocrm: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// amoCRM answers 204 to searches without results
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("amocrm: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("amocrm: decode response: %w", err)
	}
	return nil
}

func (c *AmoCRM) fail(op, bookingID string, err error) {
	c.log.Add(CRMLogEntry{Action: ActionError, BookingID: bookingID, Details: map[string]any{"op": op, "error": err.Error()}})
}

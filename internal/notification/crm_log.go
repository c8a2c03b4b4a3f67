package notification

import (
	"sync"
	"time"
)

const (
	ActionContactCreated = "contact_created"
	ActionContactUpdated = "contact_updated"
	ActionDealCreated    = "deal_created"
	ActionStatusChanged  = "status_changed"
	ActionError          = "error"
)

const defaultCRMLogSize = 100

type CRMLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	ContactID int64          `json:"contactId,omitempty"`
	DealID    int64          `json:"dealId,omitempty"`
	BookingID string         `json:"bookingId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// CRMLog keeps the most recent CRM operations for the admin panel, newest first.
type CRMLog struct {
	mu      sync.RWMutex
	entries []CRMLogEntry
	max     int
	loggerf func(format string, args ...interface{})
}

func NewCRMLog(max int, loggerf func(format string, args ...interface{})) *CRMLog {
	if max <= 0 {
		max = defaultCRMLogSize
	}
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &CRMLog{max: max, loggerf: loggerf}
}

func (l *CRMLog) Add(e CRMLogEntry) {
	if l == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	l.mu.Lock()
	l.entries = append([]CRMLogEntry{e}, l.entries...)
	if len(l.entries) > l.max {
		l.entries = l.entries[:l.max]
	}
	l.mu.Unlock()
	l.loggerf("level=info msg=crm action=%s contact_id=%d deal_id=%d booking_id=%s details=%v", e.Action, e.ContactID, e.DealID, e.BookingID, e.Details)
}

// Entries returns up to limit entries; limit <= 0 returns all.
func (l *CRMLog) Entries(limit int) []CRMLogEntry {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CRMLogEntry, n)
	copy(out, l.entries[:n])
	return out
}

func (l *CRMLog) Clear() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

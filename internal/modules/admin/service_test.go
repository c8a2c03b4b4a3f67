package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"lulufarm/internal/domain"
	"lulufarm/internal/notification"
	"lulufarm/internal/pkg/jwt"
	"lulufarm/internal/repository"
	"lulufarm/internal/testutil"
)

type recordingMailer struct {
	sent []notification.Confirmation
	err  error
}

func (m *recordingMailer) Name() string { return "recording" }

func (m *recordingMailer) SendBookingConfirmation(_ context.Context, c notification.Confirmation) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, c)
	return nil
}

func newTestService(t *testing.T, creds Credentials) (*Service, *jwt.Service) {
	t.Helper()
	db := testutil.NewDB(t)
	jwtService := jwt.New("test-secret", time.Hour)
	crmLog := notification.NewCRMLog(10, nil)
	svc := NewService(creds, jwtService, repository.NewBookingRepository(db), crmLog, &recordingMailer{}, Integrations{
		Payment: IntegrationStatus{Enabled: true, Mode: "demo", Adapter: "demo"},
	}, nil)
	return svc, jwtService
}

func TestLogin_PlainPassword(t *testing.T) {
	svc, jwtService := newTestService(t, Credentials{Username: "admin", Password: "alpaca"})

	resp, err := svc.Login(LoginRequest{Username: "admin", Password: "alpaca"})
	require.NoError(t, err)
	claims, err := jwtService.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)

	_, err = svc.Login(LoginRequest{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(LoginRequest{Username: "root", Password: "alpaca"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_BcryptHashWins(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	svc, _ := newTestService(t, Credentials{Username: "admin", Password: "alpaca", PasswordHash: string(hash)})

	_, err = svc.Login(LoginRequest{Username: "admin", Password: "s3cret"})
	assert.NoError(t, err)
	_, err = svc.Login(LoginRequest{Username: "admin", Password: "alpaca"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_EmptyPasswordNeverMatches(t *testing.T) {
	svc, _ := newTestService(t, Credentials{Username: "admin"})
	_, err := svc.Login(LoginRequest{Username: "admin", Password: ""})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCRMLogs(t *testing.T) {
	svc, _ := newTestService(t, Credentials{Username: "admin", Password: "x"})
	svc.crmLog.Add(notification.CRMLogEntry{Action: notification.ActionContactCreated, ContactID: 1})
	svc.crmLog.Add(notification.CRMLogEntry{Action: notification.ActionDealCreated, DealID: 7})

	logs := svc.CRMLogs(1)
	require.Len(t, logs, 1)
	assert.Equal(t, notification.ActionDealCreated, logs[0].Action)

	svc.ClearCRMLogs()
	assert.Empty(t, svc.CRMLogs(0))
}

func TestStats(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(Credentials{}, jwt.New("s", time.Hour), repository.NewBookingRepository(db), nil, nil, Integrations{}, nil)

	tariff := testutil.SeedTariff(t, db, "Будни", 1500, 800, 0)
	slot := testutil.SeedSlot(t, db, tariff, "2026-06-01", "12:00", 10)
	testutil.SeedBooking(t, db, slot, 1, 0, "a@example.com")
	paid := testutil.SeedBooking(t, db, slot, 2, 1, "b@example.com")
	require.NoError(t, db.Model(&domain.Booking{}).Where("id = ?", paid.ID).Update("status", domain.BookingPaid).Error)

	stats, err := svc.Stats(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, stats.ByStatus, 2)
	assert.Equal(t, 3800.0, stats.Revenue)
	for _, row := range stats.ByStatus {
		assert.Equal(t, int64(1), row.Count)
	}
	assert.Empty(t, svc.CRMLogs(10))
}

func TestSendTestEmail(t *testing.T) {
	svc, _ := newTestService(t, Credentials{Username: "admin", Password: "alpaca"})
	m := svc.mailer.(*recordingMailer)

	resp, err := svc.SendTestEmail(context.Background(), " owner@example.com ")
	require.NoError(t, err)
	assert.True(t, resp.Sent)
	assert.Equal(t, "owner@example.com", resp.To)
	assert.Equal(t, "recording", resp.Adapter)

	require.Len(t, m.sent, 1)
	sent := m.sent[0]
	assert.Equal(t, "owner@example.com", sent.To)
	assert.Equal(t, 3800.0, sent.TotalAmount)
	assert.Contains(t, sent.BookingID, "test-")
	_, _, err = notification.RenderConfirmation(sent)
	assert.NoError(t, err)
}

func TestSendTestEmail_MailerFailure(t *testing.T) {
	svc, _ := newTestService(t, Credentials{Username: "admin", Password: "alpaca"})
	svc.mailer.(*recordingMailer).err = errors.New("sendgrid: 401")

	_, err := svc.SendTestEmail(context.Background(), "owner@example.com")
	assert.ErrorIs(t, err, ErrEmailSendFailed)
	assert.Contains(t, err.Error(), "sendgrid: 401")

	svc.mailer = nil
	_, err = svc.SendTestEmail(context.Background(), "owner@example.com")
	assert.ErrorIs(t, err, ErrEmailSendFailed)
}

package admin

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lulufarm/internal/domain"
	"lulufarm/internal/notification"
	"lulufarm/internal/pkg/jwt"
	"lulufarm/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailSendFailed    = errors.New("email send failed")
)

const roleAdmin = "admin"

// Credentials of the single farm administrator. PasswordHash (bcrypt) takes
// precedence over the plain Password.
type Credentials struct {
	Username     string
	Password     string
	PasswordHash string
}

type Service struct {
	creds        Credentials
	jwt          *jwt.Service
	bookings     *repository.BookingRepository
	crmLog       *notification.CRMLog
	mailer       notification.Mailer
	integrations Integrations
	now          func() time.Time
	loggerf      func(format string, args ...interface{})
}

func NewService(creds Credentials, jwtService *jwt.Service, bookings *repository.BookingRepository, crmLog *notification.CRMLog, mailer notification.Mailer, integrations Integrations, loggerf func(format string, args ...interface{})) *Service {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Service{
		creds:        creds,
		jwt:          jwtService,
		bookings:     bookings,
		crmLog:       crmLog,
		mailer:       mailer,
		integrations: integrations,
		now:          time.Now,
		loggerf:      loggerf,
	}
}

func (s *Service) Login(req LoginRequest) (*LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if !s.checkPassword(username, req.Password) {
		s.loggerf("level=warn msg=admin login failed username=%q", username)
		return nil, ErrInvalidCredentials
	}
	token, err := s.jwt.GenerateToken(username, roleAdmin)
	if err != nil {
		return nil, err
	}
	s.loggerf("level=info msg=admin login username=%q", username)
	return &LoginResponse{Token: token, ExpiresAt: s.now().Add(s.jwt.TTL()).UTC()}, nil
}

func (s *Service) checkPassword(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.creds.Username)) == 1
	var passOK bool
	if s.creds.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.creds.PasswordHash), []byte(password)) == nil
	} else {
		passOK = s.creds.Password != "" && subtle.ConstantTimeCompare([]byte(password), []byte(s.creds.Password)) == 1
	}
	return userOK && passOK
}

func (s *Service) TokenTTL() time.Duration {
	return s.jwt.TTL()
}

func (s *Service) Integrations() Integrations {
	return s.integrations
}

func (s *Service) CRMLogs(limit int) []notification.CRMLogEntry {
	if s.crmLog == nil {
		return []notification.CRMLogEntry{}
	}
	return s.crmLog.Entries(limit)
}

func (s *Service) ClearCRMLogs() {
	if s.crmLog != nil {
		s.crmLog.Clear()
	}
}

// SendTestEmail pushes a sample confirmation through the configured mailer so
// the operator can check delivery without a real booking.
func (s *Service) SendTestEmail(ctx context.Context, to string) (*TestEmailResponse, error) {
	if s.mailer == nil {
		return nil, fmt.Errorf("%w: no mailer configured", ErrEmailSendFailed)
	}
	now := s.now()
	c := notification.Confirmation{
		To:            strings.TrimSpace(to),
		CustomerName:  "Тестовый Пользователь",
		BookingID:     fmt.Sprintf("test-%d", now.Unix()),
		BookingRef:    "TEST",
		Date:          now.Format(domain.DateLayout),
		Time:          "14:00",
		TariffName:    "Стандарт",
		AdultTickets:  2,
		ChildTickets:  1,
		InfantTickets: 0,
		TotalAmount:   3800,
	}
	if err := s.mailer.SendBookingConfirmation(ctx, c); err != nil {
		s.loggerf("level=error msg=test email failed to=%s mailer=%s err=%v", c.To, s.mailer.Name(), err)
		return nil, fmt.Errorf("%w: %v", ErrEmailSendFailed, err)
	}
	s.loggerf("level=info msg=test email sent to=%s mailer=%s", c.To, s.mailer.Name())
	return &TestEmailResponse{Sent: true, To: c.To, Adapter: s.mailer.Name()}, nil
}

// Stats aggregates bookings of the last days days.
func (s *Service) Stats(ctx context.Context, days int) (*StatsResponse, error) {
	if days <= 0 || days > 366 {
		days = 30
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	rows, err := s.bookings.StatsByStatus(ctx, since)
	if err != nil {
		return nil, err
	}
	resp := &StatsResponse{Since: since, ByStatus: rows}
	for _, r := range rows {
		if r.Status == domain.BookingPaid {
			resp.Revenue = domain.RoundMoney(r.Amount)
		}
	}
	if resp.ByStatus == nil {
		resp.ByStatus = []repository.StatusStat{}
	}
	return resp, nil
}

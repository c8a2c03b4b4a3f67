package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"lulufarm/internal/domain"
)

// Confirmation is everything the booking confirmation letter shows.
type Confirmation struct {
	To            string
	CustomerName  string
	BookingID     string
	BookingRef    string
	Date          string
	Time          string
	TariffName    string
	AdultTickets  int
	ChildTickets  int
	InfantTickets int
	TotalAmount   float64
}

func NewConfirmation(b *domain.Booking) Confirmation {
	c := Confirmation{
		BookingID:     b.ID.String(),
		BookingRef:    b.ShortRef(),
		AdultTickets:  b.AdultTickets,
		ChildTickets:  b.ChildTickets,
		InfantTickets: b.InfantTickets,
		TotalAmount:   b.TotalAmount,
	}
	if b.User != nil {
		c.To = b.User.Email
		c.CustomerName = b.User.Name
	}
	if b.Slot != nil {
		c.Date = b.Slot.Date
		c.Time = b.Slot.Time
		if b.Slot.Tariff != nil {
			c.TariffName = b.Slot.Tariff.Name
		}
	}
	return c
}

func (c Confirmation) Subject() string {
	return fmt.Sprintf("Подтверждение бронирования #%s - Ферма ЛуЛу", c.BookingRef)
}

type Mailer interface {
	Name() string
	SendBookingConfirmation(ctx context.Context, c Confirmation) error
}

var confirmationHTML = template.Must(template.New("confirmation").Parse(`<h2>Здравствуйте, {{.CustomerName}}!</h2>
<p>Ваше бронирование <b>#{{.BookingRef}}</b> оплачено.</p>
<ul>
<li>Дата: {{.Date}}</li>
<li>Время: {{.Time}}</li>
{{if .TariffName}}<li>Тариф: {{.TariffName}}</li>{{end}}
<li>Взрослые: {{.AdultTickets}}</li>
<li>Дети: {{.ChildTickets}}</li>
<li>Малыши: {{.InfantTickets}}</li>
<li>Итого: {{printf "%.2f" .TotalAmount}} ₽</li>
</ul>
<p>Ждём вас на ферме!</p>`))

func RenderConfirmation(c Confirmation) (html string, text string, err error) {
	var buf bytes.Buffer
	if err := confirmationHTML.Execute(&buf, c); err != nil {
		return "", "", fmt.Errorf("render confirmation: %w", err)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Здравствуйте, %s!\n\n", c.CustomerName)
	fmt.Fprintf(&sb, "Ваше бронирование #%s оплачено.\n", c.BookingRef)
	fmt.Fprintf(&sb, "Дата: %s, время: %s\n", c.Date, c.Time)
	fmt.Fprintf(&sb, "Билеты: взрослые %d, дети %d, малыши %d\n", c.AdultTickets, c.ChildTickets, c.InfantTickets)
	fmt.Fprintf(&sb, "Итого: %.2f руб.\n", c.TotalAmount)
	return buf.String(), sb.String(), nil
}

// ConsoleMailer is the demo mailer: it renders the letter and logs it.
type ConsoleMailer struct {
	loggerf func(format string, args ...interface{})
}

func NewConsoleMailer(loggerf func(format string, args ...interface{})) *ConsoleMailer {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &ConsoleMailer{loggerf: loggerf}
}

func (m *ConsoleMailer) Name() string { return "email-demo" }

func (m *ConsoleMailer) SendBookingConfirmation(_ context.Context, c Confirmation) error {
	if c.To == "" {
		return fmt.Errorf("confirmation has no recipient")
	}
	_, text, err := RenderConfirmation(c)
	if err != nil {
		return err
	}
	m.loggerf("level=info msg=demo email to=%s subject=%q body=%q", c.To, c.Subject(), text)
	return nil
}

type SendGridMailer struct {
	client   *sendgrid.Client
	from     string
	fromName string
}

func NewSendGridMailer(apiKey, from, fromName string) *SendGridMailer {
	return &SendGridMailer{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
	}
}

func (m *SendGridMailer) Name() string { return "sendgrid" }

func (m *SendGridMailer) SendBookingConfirmation(ctx context.Context, c Confirmation) error {
	if c.To == "" {
		return fmt.Errorf("confirmation has no recipient")
	}
	html, text, err := RenderConfirmation(c)
	if err != nil {
		return err
	}
	msg := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		c.Subject(),
		mail.NewEmail(c.CustomerName, c.To),
		text,
		html,
	)
	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

package notification

import (
	"context"
	"errors"
	"fmt"
	"html"

	tele "gopkg.in/telebot.v3"

	"lulufarm/internal/queue"
)

// TelegramNotifier alerts the farm owners about new, paid and cancelled bookings.
type TelegramNotifier struct {
	bot     *tele.Bot
	chatIDs []int64
}

// NewTelegramNotifier creates an offline bot: it only sends, never polls.
// apiURL may be empty for the public Bot API.
func NewTelegramNotifier(token, apiURL string, chatIDs []int64) (*TelegramNotifier, error) {
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		URL:     apiURL,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs}, nil
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Publish(_ context.Context, ev queue.BookingEvent) error {
	msg := formatOwnerMessage(ev)
	if msg == "" {
		return nil
	}
	var errs []error
	for _, id := range n.chatIDs {
		if _, err := n.bot.Send(tele.ChatID(id), msg, &tele.SendOptions{ParseMode: tele.ModeHTML}); err != nil {
			errs = append(errs, fmt.Errorf("chat %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func formatOwnerMessage(ev queue.BookingEvent) string {
	var title string
	switch ev.Type {
	case queue.EventBookingCreated:
		title = "🆕 <b>Новое бронирование</b>"
	case queue.EventBookingPaid:
		title = "✅ <b>Бронирование оплачено</b>"
	case queue.EventBookingCancelled:
		title = "❌ <b>Бронирование отменено</b>"
	default:
		return ""
	}
	msg := fmt.Sprintf("%s\n\n"+
		"📆 %s в %s\n"+
		"👤 %s, %s\n"+
		"🎟 Взрослые: %d, дети: %d, малыши: %d\n"+
		"💰 %.2f руб.\n"+
		"#%s",
		title,
		html.EscapeString(ev.SlotDate), html.EscapeString(ev.SlotTime),
		html.EscapeString(ev.CustomerName), html.EscapeString(ev.CustomerPhone),
		ev.AdultTickets, ev.ChildTickets, ev.InfantTickets,
		ev.TotalAmount,
		html.EscapeString(ev.BookingID),
	)
	if ev.CancelReason != "" {
		msg += "\nПричина: " + html.EscapeString(ev.CancelReason)
	}
	return msg
}

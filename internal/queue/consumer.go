package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one decoded event. A returned error rejects the message
// without requeue.
type Handler func(ctx context.Context, ev BookingEvent) error

type Consumer struct {
	url     string
	queue   string
	handler Handler
}

func NewConsumer(url, queue string, handler Handler) *Consumer {
	return &Consumer{url: url, queue: queue, handler: handler}
}

// Run consumes until ctx is cancelled, reconnecting with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("level=warn msg=booking events consumer dial failed err=%v retry_in=%s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("level=warn msg=booking events consume loop ended err=%v", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("level=warn msg=set qos failed err=%v", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				log.Printf("level=error msg=booking event rejected err=%v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev BookingEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return c.handler(ctx, ev)
}

// LogLineHandler appends one line per event to w.
func LogLineHandler(w io.Writer) Handler {
	return func(_ context.Context, ev BookingEvent) error {
		line := fmt.Sprintf("[%s] %s | booking_id=%s | status=%s | customer=%q | slot=%s %s | tickets=%d | total=%.2f",
			ev.OccurredAt.Format(time.RFC3339), ev.Type, ev.BookingID, ev.Status, ev.CustomerName, ev.SlotDate, ev.SlotTime, ev.Tickets(), ev.TotalAmount)
		if ev.PaymentID != "" {
			line += " | payment_id=" + ev.PaymentID
		}
		if ev.CancelReason != "" {
			line += " | reason=" + ev.CancelReason
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("write log: %w", err)
		}
		return nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

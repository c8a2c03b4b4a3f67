// pending_sweep runs one expiry pass over stale PENDING bookings and exits.
// It is meant for cron when the API runs with BOOKING_SWEEP_ENABLED=false.
package main

import (
	"context"
	"log"
	"time"

	"lulufarm/internal/config"
	"lulufarm/internal/database"
	"lulufarm/internal/modules/payment"
	"lulufarm/internal/notification"
	"lulufarm/internal/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}

	var gateway payment.Gateway
	if cfg.Payment.Mode == config.ModeProduction {
		gateway = payment.NewPayKeeperGateway(payment.PayKeeperConfig{
			Server:   cfg.Payment.Server,
			User:     cfg.Payment.User,
			Password: cfg.Payment.Password,
			Secret:   cfg.Payment.WebhookSecret,
			Timeout:  cfg.Payment.Timeout,
		})
	} else {
		gateway = payment.NewDemoGateway(cfg.AppURL, cfg.Payment.WebhookSecret)
	}

	// CRM stage changes and confirmation mails still go out for bookings the
	// sweep finds paid
	crmLog := notification.NewCRMLog(0, log.Printf)
	var crm notification.CRM = notification.NewDemoCRM(crmLog)
	if cfg.CRM.Mode == config.ModeProduction {
		crm = notification.NewAmoCRM(notification.AmoCRMConfig{
			Subdomain:    cfg.CRM.Subdomain,
			AccessToken:  cfg.CRM.AccessToken,
			PipelineID:   cfg.CRM.PipelineID,
			StatusBooked: cfg.CRM.StatusBooked,
			StatusPaid:   cfg.CRM.StatusPaid,
			Timeout:      cfg.NotifyTimeout,
		}, crmLog)
	}
	var mailer notification.Mailer = notification.NewConsoleMailer(log.Printf)
	if cfg.Email.Mode == config.ModeProduction {
		mailer = notification.NewSendGridMailer(cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName)
	}
	dispatcher := notification.NewDispatcher(crm, mailer, nil, cfg.NotifyTimeout, log.Printf)

	bookingRepo := repository.NewBookingRepository(db)
	reconciler := payment.NewReconciler(db, bookingRepo, repository.NewSlotRepository(db), gateway, dispatcher, payment.ReconcilerConfig{
		ReleaseOnPaymentFailure: cfg.Booking.ReleaseOnPaymentFailure,
	}, log.Printf)
	sweeper := payment.NewExpirySweeper(bookingRepo, gateway, reconciler, payment.SweepConfig{
		PendingTTL: cfg.Booking.PendingTTL,
		Interval:   cfg.Booking.SweepInterval,
		BatchSize:  payment.DefaultSweepConfig().BatchSize,
		Enabled:    true,
	}, log.Printf)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	res, err := sweeper.RunOnce(ctx)
	if err != nil {
		log.Fatalf("pending sweep failed: %v", err)
	}
	log.Printf("pending sweep completed: checked=%d confirmed=%d expired=%d skipped=%d", res.Checked, res.Confirmed, res.Expired, res.Skipped)
}

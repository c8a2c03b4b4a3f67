package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"lulufarm/internal/config"
	"lulufarm/internal/middleware"
	"lulufarm/internal/modules/admin"
	"lulufarm/internal/modules/booking"
	"lulufarm/internal/modules/catalog"
	"lulufarm/internal/modules/live"
	"lulufarm/internal/modules/payment"
	"lulufarm/internal/notification"
	jwtsvc "lulufarm/internal/pkg/jwt"
	"lulufarm/internal/queue"
	"lulufarm/internal/repository"
)

// app holds the wired HTTP router and the pieces main has to start or stop.
type app struct {
	router    *gin.Engine
	gateway   payment.Gateway
	sweeper   *payment.ExpirySweeper
	hub       *live.Hub
	publisher *queue.Publisher
}

func newApp(cfg *config.Config, db *gorm.DB, rdb *redis.Client, loggerf func(format string, args ...interface{})) *app {
	slotRepo := repository.NewSlotRepository(db)
	tariffRepo := repository.NewTariffRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	userRepo := repository.NewUserRepository(db)

	jwtService := jwtsvc.New(cfg.Admin.JWTSecret, cfg.Admin.TokenTTL)

	// notifications
	crmLog := notification.NewCRMLog(0, loggerf)
	crm := newCRM(cfg, crmLog)
	mailer := newMailer(cfg, loggerf)
	hub := live.NewHub(loggerf)
	sinks := []notification.Sink{hub}
	var publisher *queue.Publisher
	if cfg.Events.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.Events.RabbitURL, cfg.Events.Queue)
		sinks = append(sinks, publisher)
	}
	telegram := newTelegram(cfg)
	if telegram != nil {
		sinks = append(sinks, telegram)
	}
	dispatcher := notification.NewDispatcher(crm, mailer, sinks, cfg.NotifyTimeout, loggerf)

	// payments
	gateway, demo := newGateway(cfg)
	paymentService := payment.NewService(bookingRepo, gateway, cfg.Payment.ServiceName, loggerf)
	reconciler := payment.NewReconciler(db, bookingRepo, slotRepo, gateway, dispatcher, payment.ReconcilerConfig{
		ReleaseOnPaymentFailure: cfg.Booking.ReleaseOnPaymentFailure,
	}, loggerf)
	sweeper := payment.NewExpirySweeper(bookingRepo, gateway, reconciler, payment.SweepConfig{
		PendingTTL: cfg.Booking.PendingTTL,
		Interval:   cfg.Booking.SweepInterval,
		BatchSize:  payment.DefaultSweepConfig().BatchSize,
		Enabled:    cfg.Booking.SweepEnabled,
	}, loggerf)

	bookingService := booking.NewService(db, slotRepo, bookingRepo, userRepo, paymentService, dispatcher, loggerf)
	catalogService := catalog.NewService(db, slotRepo, tariffRepo, bookingRepo, cfg.Location, loggerf)
	adminService := admin.NewService(admin.Credentials{
		Username:     cfg.Admin.Username,
		Password:     cfg.Admin.Password,
		PasswordHash: cfg.Admin.PasswordHash,
	}, jwtService, bookingRepo, crmLog, mailer, integrationsStatus(cfg, gateway, crm, mailer, telegram, publisher, rdb), loggerf)

	bookingHandler := booking.NewHandler(bookingService)
	catalogHandler := catalog.NewHandler(catalogService)
	paymentHandler := payment.NewHandler(paymentService, reconciler, demo, loggerf)
	adminHandler := admin.NewHandler(adminService, cfg.Admin.CookieSecure)
	liveHandler := live.NewHandler(hub, jwtService, []string{cfg.AppURL})

	r := gin.New()
	r.Use(gin.Logger(), middleware.RequestID(), middleware.ErrorLogger(), middleware.CORS(cfg.AppURL))
	r.GET("/healthz", healthz(db))

	v1 := r.Group("/api/v1")
	{
		catalogHandler.RegisterRoutes(v1)

		limited := v1.Group("")
		limited.Use(middleware.RateLimit(config.LoadRateLimitConfig(), rdb))
		bookingHandler.RegisterRoutes(limited)
		paymentHandler.RegisterPublicRoutes(limited)

		adminGroup := v1.Group("/admin")
		adminHandler.RegisterPublicRoutes(adminGroup)
		liveHandler.RegisterRoutes(adminGroup)

		protected := adminGroup.Group("")
		protected.Use(middleware.AdminAuth(jwtService))
		{
			adminHandler.RegisterRoutes(protected)
			catalogHandler.RegisterAdminRoutes(protected)
			bookingHandler.RegisterAdminRoutes(protected)
		}
	}

	return &app{
		router:    r,
		gateway:   gateway,
		sweeper:   sweeper,
		hub:       hub,
		publisher: publisher,
	}
}

func (a *app) close() {
	a.hub.Close()
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
}

// newGateway picks the payment provider for PAYMENT_MODE. The demo gateway
// is returned a second time so its completion endpoint can be mounted.
func newGateway(cfg *config.Config) (payment.Gateway, *payment.DemoGateway) {
	if cfg.Payment.Mode == config.ModeProduction {
		return payment.NewPayKeeperGateway(payment.PayKeeperConfig{
			Server:   cfg.Payment.Server,
			User:     cfg.Payment.User,
			Password: cfg.Payment.Password,
			Secret:   cfg.Payment.WebhookSecret,
			Timeout:  cfg.Payment.Timeout,
		}), nil
	}
	demo := payment.NewDemoGateway(cfg.AppURL, cfg.Payment.WebhookSecret)
	return demo, demo
}

func newCRM(cfg *config.Config, crmLog *notification.CRMLog) notification.CRM {
	if cfg.CRM.Mode == config.ModeProduction {
		return notification.NewAmoCRM(notification.AmoCRMConfig{
			Subdomain:      cfg.CRM.Subdomain,
			AccessToken:    cfg.CRM.AccessToken,
			PipelineID:     cfg.CRM.PipelineID,
			StatusBooked:   cfg.CRM.StatusBooked,
			StatusPaid:     cfg.CRM.StatusPaid,
			FieldDate:      cfg.CRM.FieldDate,
			FieldTime:      cfg.CRM.FieldTime,
			FieldTickets:   cfg.CRM.FieldTickets,
			FieldBookingID: cfg.CRM.FieldBookingID,
			Timeout:        cfg.NotifyTimeout,
		}, crmLog)
	}
	return notification.NewDemoCRM(crmLog)
}

func newMailer(cfg *config.Config, loggerf func(format string, args ...interface{})) notification.Mailer {
	if cfg.Email.Mode == config.ModeProduction {
		return notification.NewSendGridMailer(cfg.Email.APIKey, cfg.Email.From, cfg.Email.FromName)
	}
	return notification.NewConsoleMailer(loggerf)
}

func newTelegram(cfg *config.Config) *notification.TelegramNotifier {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.AdminChatIDs) == 0 {
		return nil
	}
	tg, err := notification.NewTelegramNotifier(cfg.Telegram.BotToken, "", cfg.Telegram.AdminChatIDs)
	if err != nil {
		log.Printf("level=warn msg=telegram disabled err=%v", err)
		return nil
	}
	return tg
}

func integrationsStatus(cfg *config.Config, gateway payment.Gateway, crm notification.CRM, mailer notification.Mailer, tg *notification.TelegramNotifier, publisher *queue.Publisher, rdb *redis.Client) admin.Integrations {
	return admin.Integrations{
		Payment:   admin.IntegrationStatus{Enabled: true, Mode: cfg.Payment.Mode, Adapter: gateway.Name()},
		CRM:       admin.IntegrationStatus{Enabled: true, Mode: cfg.CRM.Mode, Adapter: crm.Name()},
		Email:     admin.IntegrationStatus{Enabled: true, Mode: cfg.Email.Mode, Adapter: mailer.Name()},
		Telegram:  admin.IntegrationStatus{Enabled: tg != nil},
		Events:    admin.IntegrationStatus{Enabled: publisher != nil, Adapter: "rabbitmq"},
		RateLimit: admin.IntegrationStatus{Enabled: rdb != nil, Adapter: "redis"},
	}
}

func healthz(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultDatabaseURL     = "lulufarm.db"
	defaultAppURL          = "http://localhost:3000"
	defaultJWTSecret       = "change-me-jwt-secret"
	defaultAdminTTL        = "12h"
	defaultAdminUsername   = "admin"
	defaultAdminPassword   = "change-me-admin-password"
	defaultWebhookSecret   = "change-me-webhook-secret"
	defaultPendingTTL      = "30m"
	defaultSweepInterval   = "1m"
	defaultGatewayTimeout  = "15s"
	defaultNotifyTimeout   = "10s"
	defaultPayKeeperServer = "demo.paykeeper.ru"
	defaultServiceName     = "Экскурсия на ферму альпак ЛуЛу"
	defaultEmailFrom       = "noreply@lulu-alpaca.ru"
	defaultEmailFromName   = "Ферма альпак ЛуЛу"
	defaultEventsQueue     = "booking.events"
	defaultAmoStatusBooked = "142"
	defaultAmoStatusPaid   = "143"

	ModeDemo       = "demo"
	ModeProduction = "production"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string
	AppURL      string
	Location    *time.Location

	Admin    AdminConfig
	Booking  BookingConfig
	Payment  PaymentConfig
	CRM      CRMConfig
	Email    EmailConfig
	Telegram TelegramConfig
	Events   EventsConfig

	NotifyTimeout time.Duration
}

type AdminConfig struct {
	Username     string
	Password     string
	PasswordHash string
	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool
}

type BookingConfig struct {
	PendingTTL              time.Duration
	SweepInterval           time.Duration
	SweepEnabled            bool
	ReleaseOnPaymentFailure bool
}

type PaymentConfig struct {
	Mode          string
	Server        string
	User          string
	Password      string
	WebhookSecret string
	ServiceName   string
	Timeout       time.Duration
}

type CRMConfig struct {
	Mode           string
	Subdomain      string
	AccessToken    string
	PipelineID     int64
	StatusBooked   int64
	StatusPaid     int64
	FieldDate      int64
	FieldTime      int64
	FieldTickets   int64
	FieldBookingID int64
}

type EmailConfig struct {
	Mode     string
	APIKey   string
	From     string
	FromName string
}

type TelegramConfig struct {
	BotToken     string
	AdminChatIDs []int64
}

type EventsConfig struct {
	RabbitURL string
	Queue     string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = strings.TrimSpace(os.Getenv("ENV"))
	}
	if appEnv == "" {
		appEnv = "dev"
	}
	cfg.AppEnv = strings.ToLower(appEnv)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", defaultHTTPAddr)
	cfg.DatabaseURL = strings.TrimSpace(getEnv("DATABASE_URL", defaultDatabaseURL))
	cfg.AppURL = strings.TrimRight(getEnv("APP_URL", defaultAppURL), "/")

	loc, err := time.LoadLocation(getEnv("TIMEZONE", "Europe/Moscow"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	cfg.Admin.Username = strings.TrimSpace(getEnv("ADMIN_USERNAME", defaultAdminUsername))
	cfg.Admin.Password = getEnv("ADMIN_PASSWORD", defaultAdminPassword)
	cfg.Admin.PasswordHash = strings.TrimSpace(os.Getenv("ADMIN_PASSWORD_HASH"))
	cfg.Admin.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", defaultJWTSecret))
	cfg.Admin.CookieSecure = parseBoolEnv("COOKIE_SECURE", "false")
	if cfg.Admin.TokenTTL, err = parseDurationEnv("ADMIN_TOKEN_TTL", defaultAdminTTL); err != nil {
		return nil, err
	}

	if cfg.Booking.PendingTTL, err = parseDurationEnv("BOOKING_PENDING_TTL", defaultPendingTTL); err != nil {
		return nil, err
	}
	if cfg.Booking.SweepInterval, err = parseDurationEnv("BOOKING_SWEEP_INTERVAL", defaultSweepInterval); err != nil {
		return nil, err
	}
	cfg.Booking.SweepEnabled = parseBoolEnv("BOOKING_SWEEP_ENABLED", "true")
	cfg.Booking.ReleaseOnPaymentFailure = parseBoolEnv("BOOKING_RELEASE_ON_PAYMENT_FAILURE", "false")

	cfg.Payment.Mode = strings.ToLower(strings.TrimSpace(getEnv("PAYMENT_MODE", ModeDemo)))
	cfg.Payment.Server = strings.TrimSpace(getEnv("PAYKEEPER_SERVER", defaultPayKeeperServer))
	cfg.Payment.User = os.Getenv("PAYKEEPER_USER")
	cfg.Payment.Password = os.Getenv("PAYKEEPER_PASSWORD")
	cfg.Payment.WebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", getEnv("PAYKEEPER_SECRET", defaultWebhookSecret))
	cfg.Payment.ServiceName = getEnv("PAYMENT_SERVICE_NAME", defaultServiceName)
	if cfg.Payment.Timeout, err = parseDurationEnv("PAYMENT_HTTP_TIMEOUT", defaultGatewayTimeout); err != nil {
		return nil, err
	}

	cfg.CRM.Mode = strings.ToLower(strings.TrimSpace(getEnv("AMOCRM_MODE", ModeDemo)))
	cfg.CRM.Subdomain = strings.TrimSpace(os.Getenv("AMOCRM_SUBDOMAIN"))
	cfg.CRM.AccessToken = strings.TrimSpace(os.Getenv("AMOCRM_ACCESS_TOKEN"))
	intFields := []struct {
		name string
		def  string
		dst  *int64
	}{
		{"AMOCRM_PIPELINE_ID", "0", &cfg.CRM.PipelineID},
		{"AMOCRM_STATUS_BOOKED", defaultAmoStatusBooked, &cfg.CRM.StatusBooked},
		{"AMOCRM_STATUS_PAID", defaultAmoStatusPaid, &cfg.CRM.StatusPaid},
		{"AMOCRM_FIELD_DATE", "0", &cfg.CRM.FieldDate},
		{"AMOCRM_FIELD_TIME", "0", &cfg.CRM.FieldTime},
		{"AMOCRM_FIELD_TICKETS", "0", &cfg.CRM.FieldTickets},
		{"AMOCRM_FIELD_BOOKING_ID", "0", &cfg.CRM.FieldBookingID},
	}
	for _, f := range intFields {
		if *f.dst, err = parseIntEnv(f.name, f.def); err != nil {
			return nil, err
		}
	}

	cfg.Email.Mode = strings.ToLower(strings.TrimSpace(getEnv("EMAIL_MODE", ModeDemo)))
	cfg.Email.APIKey = strings.TrimSpace(os.Getenv("SENDGRID_API_KEY"))
	cfg.Email.From = getEnv("EMAIL_FROM", defaultEmailFrom)
	cfg.Email.FromName = getEnv("EMAIL_FROM_NAME", defaultEmailFromName)

	cfg.Telegram.BotToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if cfg.Telegram.AdminChatIDs, err = parseIDListEnv("TELEGRAM_ADMIN_CHAT_IDS"); err != nil {
		return nil, err
	}

	cfg.Events.RabbitURL = strings.TrimSpace(getEnv("RABBITMQ_URL", os.Getenv("AMQP_URL")))
	cfg.Events.Queue = getEnv("BOOKING_EVENTS_QUEUE", defaultEventsQueue)

	if cfg.NotifyTimeout, err = parseDurationEnv("NOTIFY_TIMEOUT", defaultNotifyTimeout); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	log.Printf("config loaded: env=%s payment_mode=%s crm_mode=%s email_mode=%s pending_ttl=%s", cfg.AppEnv, cfg.Payment.Mode, cfg.CRM.Mode, cfg.Email.Mode, cfg.Booking.PendingTTL)

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if cfg.Admin.TokenTTL <= 0 {
		return fmt.Errorf("ADMIN_TOKEN_TTL must be > 0")
	}
	if cfg.Booking.PendingTTL <= 0 {
		return fmt.Errorf("BOOKING_PENDING_TTL must be > 0")
	}
	if cfg.Booking.SweepInterval <= 0 {
		return fmt.Errorf("BOOKING_SWEEP_INTERVAL must be > 0")
	}
	if cfg.Payment.Timeout <= 0 {
		return fmt.Errorf("PAYMENT_HTTP_TIMEOUT must be > 0")
	}
	for name, mode := range map[string]string{"PAYMENT_MODE": cfg.Payment.Mode, "AMOCRM_MODE": cfg.CRM.Mode, "EMAIL_MODE": cfg.Email.Mode} {
		if mode != ModeDemo && mode != ModeProduction {
			return fmt.Errorf("%s must be one of: demo, production", name)
		}
	}
	if cfg.Payment.Mode == ModeProduction && (cfg.Payment.User == "" || cfg.Payment.Password == "") {
		return fmt.Errorf("PAYKEEPER_USER and PAYKEEPER_PASSWORD are required when PAYMENT_MODE=production")
	}
	if cfg.CRM.Mode == ModeProduction && (cfg.CRM.Subdomain == "" || cfg.CRM.AccessToken == "") {
		return fmt.Errorf("AMOCRM_SUBDOMAIN and AMOCRM_ACCESS_TOKEN are required when AMOCRM_MODE=production")
	}
	if cfg.Email.Mode == ModeProduction && cfg.Email.APIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required when EMAIL_MODE=production")
	}

	if IsProdLike(cfg.AppEnv) {
		if isEmptyOrDefault(cfg.Admin.JWTSecret, defaultJWTSecret) {
			return fmt.Errorf("in prod/release JWT_SECRET must be set and not default")
		}
		if isEmptyOrDefault(cfg.Payment.WebhookSecret, defaultWebhookSecret) {
			return fmt.Errorf("in prod/release PAYMENT_WEBHOOK_SECRET must be set and not default")
		}
		if cfg.Admin.PasswordHash == "" && isEmptyOrDefault(cfg.Admin.Password, defaultAdminPassword) {
			return fmt.Errorf("in prod/release ADMIN_PASSWORD or ADMIN_PASSWORD_HASH must be set and not default")
		}
		if cfg.Payment.Mode != ModeProduction {
			return fmt.Errorf("in prod/release PAYMENT_MODE must be production")
		}
		if !cfg.Admin.CookieSecure {
			return fmt.Errorf("in prod/release COOKIE_SECURE must be true")
		}
	}

	return nil
}

func IsProdLike(env string) bool {
	env = strings.ToLower(strings.TrimSpace(env))
	return env == "prod" || env == "production" || env == "release"
}

func isEmptyOrDefault(v, def string) bool {
	trimmed := strings.TrimSpace(v)
	return trimmed == "" || trimmed == def
}

func parseDurationEnv(name, fallback string) (time.Duration, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return d, nil
}

func parseBoolEnv(name, fallback string) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(name, fallback)))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}

func parseIntEnv(name, fallback string) (int64, error) {
	value := strings.TrimSpace(getEnv(name, fallback))
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, value, err)
	}
	return n, nil
}

func parseIDListEnv(name string) ([]int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s entry %q: %w", name, p, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func getEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

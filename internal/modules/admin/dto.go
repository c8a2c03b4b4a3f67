package admin

import (
	"time"

	"lulufarm/internal/repository"
)

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Integrations describes which external adapters the process runs with.
type Integrations struct {
	Payment   IntegrationStatus `json:"payment"`
	CRM       IntegrationStatus `json:"crm"`
	Email     IntegrationStatus `json:"email"`
	Telegram  IntegrationStatus `json:"telegram"`
	Events    IntegrationStatus `json:"events"`
	RateLimit IntegrationStatus `json:"rateLimit"`
}

type IntegrationStatus struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"`
	Adapter string `json:"adapter,omitempty"`
}

type TestEmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type TestEmailResponse struct {
	Sent    bool   `json:"sent"`
	To      string `json:"to"`
	Adapter string `json:"adapter"`
}

type StatsResponse struct {
	Since    time.Time               `json:"since"`
	ByStatus []repository.StatusStat `json:"byStatus"`
	Revenue  float64                 `json:"revenue"`
}

package admin

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lulufarm/internal/middleware"
	"lulufarm/internal/pkg/response"
)

type Handler struct {
	service      *Service
	cookieSecure bool
}

func NewHandler(service *Service, cookieSecure bool) *Handler {
	return &Handler{service: service, cookieSecure: cookieSecure}
}

// RegisterPublicRoutes mounts endpoints that work without a session.
func (h *Handler) RegisterPublicRoutes(admin *gin.RouterGroup) {
	admin.POST("/login", h.Login)
	admin.POST("/logout", h.Logout)
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/integrations", h.GetIntegrations)
	admin.GET("/integrations/crm/logs", h.GetCRMLogs)
	admin.DELETE("/integrations/crm/logs", h.ClearCRMLogs)
	admin.POST("/integrations/email/test", h.SendTestEmail)
	admin.GET("/stats", h.GetStats)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "username and password are required")
		return
	}
	resp, err := h.service.Login(req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			response.Error(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password")
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to sign in")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AdminCookieName, resp.Token, int(h.service.TokenTTL().Seconds()), "/", "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AdminCookieName, "", -1, "/", "", h.cookieSecure, true)
	response.Success(c, http.StatusOK, gin.H{"loggedOut": true})
}

func (h *Handler) GetIntegrations(c *gin.Context) {
	response.Success(c, http.StatusOK, h.service.Integrations())
}

func (h *Handler) GetCRMLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	logs := h.service.CRMLogs(limit)
	response.Success(c, http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

func (h *Handler) ClearCRMLogs(c *gin.Context) {
	h.service.ClearCRMLogs()
	response.Success(c, http.StatusOK, gin.H{"cleared": true})
}

func (h *Handler) SendTestEmail(c *gin.Context) {
	var req TestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "a valid email is required")
		return
	}
	resp, err := h.service.SendTestEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, ErrEmailSendFailed) {
			response.Error(c, http.StatusBadGateway, "EMAIL_SEND_FAILED", err.Error())
			return
		}
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to send test email")
		return
	}
	response.Success(c, http.StatusOK, resp)
}

func (h *Handler) GetStats(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "30"))
	stats, err := h.service.Stats(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load statistics")
		return
	}
	response.Success(c, http.StatusOK, stats)
}

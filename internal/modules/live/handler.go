package live

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"lulufarm/internal/pkg/jwt"
	"lulufarm/internal/pkg/response"
)

type Handler struct {
	hub      *Hub
	jwt      *jwt.Service
	upgrader websocket.Upgrader
}

// NewHandler accepts websocket upgrades from the listed origins. An empty
// list allows any origin.
func NewHandler(hub *Hub, jwtService *jwt.Service, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}
	return &Handler{
		hub: hub,
		jwt: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && allowed[u.Scheme+"://"+u.Host]
			},
		},
	}
}

func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/live", h.Live)
}

// Live upgrades to a websocket feed of booking events.
//
// Endpoint: GET /api/v1/admin/live?token=JWT
// Browsers cannot set headers on websocket requests, so the token comes in
// the query string (the admin_token cookie also works).
func (h *Handler) Live(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		if cookie, err := c.Cookie("admin_token"); err == nil {
			token = cookie
		}
	}
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token is required. Use ?token=YOUR_JWT_TOKEN")
		return
	}
	claims, err := h.jwt.ValidateToken(token)
	if err != nil || claims.Role != "admin" {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		return
	}
	h.hub.Serve(conn, claims.Username)
}

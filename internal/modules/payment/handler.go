package payment

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lulufarm/internal/pkg/response"
)

type Handler struct {
	service    *Service
	reconciler *Reconciler
	demo       *DemoGateway
	loggerf    func(format string, args ...interface{})
}

// NewHandler wires the payment endpoints. demo is nil outside demo mode.
func NewHandler(service *Service, reconciler *Reconciler, demo *DemoGateway, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Handler{service: service, reconciler: reconciler, demo: demo, loggerf: loggerf}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/create", h.CreatePayment)
	rg.POST("/payments/check", h.CheckPayment)
	rg.POST("/payments/webhook", h.Webhook)
	rg.GET("/payments/webhook", h.WebhookPing)
	if h.demo != nil {
		rg.POST("/payments/demo/:invoiceId/complete", h.CompleteDemo)
	}
}

// CreatePayment godoc
// @Summary      Create payment link
// @Description  Returns the booking's invoice, creating it on the first call
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        body body CreatePaymentRequest true "Booking"
// @Success      200 {object} Invoice
// @Router       /payments/create [post]
func (h *Handler) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "bookingId is required")
		return
	}
	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid bookingId")
		return
	}

	inv, err := h.service.CreateInvoice(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, inv)
}

// CheckPayment godoc
// @Summary      Poll payment status
// @Description  Asks the gateway about the invoice and confirms the booking when it is paid
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        body body CheckPaymentRequest true "Invoice and booking"
// @Success      200 {object} CheckResult
// @Router       /payments/check [post]
func (h *Handler) CheckPayment(c *gin.Context) {
	var req CheckPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invoiceId and bookingId are required")
		return
	}
	id, err := uuid.Parse(req.BookingID)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid bookingId")
		return
	}

	res, err := h.reconciler.CheckAndReconcile(c.Request.Context(), id, req.InvoiceID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Webhook godoc
// @Summary      Payment gateway callback
// @Description  Verifies the signature and applies the payment status (idempotent)
// @Tags         Payments
// @Accept       x-www-form-urlencoded
// @Produce      plain
// @Success      200 {string} string "gateway ack"
// @Failure      400 {string} string "bad request"
// @Failure      403 {string} string "forbidden"
// @Failure      404 {string} string "not found"
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	rawBody, _ := io.ReadAll(io.LimitReader(c.Request.Body, 64<<10))
	form, err := url.ParseQuery(string(rawBody))
	if err != nil {
		h.loggerf("level=error msg=webhook body is not a form err=%v", err)
		c.String(http.StatusBadRequest, "bad request")
		return
	}
	for k, v := range c.Request.URL.Query() {
		if _, ok := form[k]; !ok {
			form[k] = v
		}
	}
	h.loggerf("level=info msg=payment webhook received remote=%s fields=%s", c.ClientIP(), fieldNames(form))

	ack, outcome, err := h.reconciler.HandleNotification(c.Request.Context(), form)
	if err != nil {
		h.loggerf("level=error msg=payment webhook rejected err=%v", err)
		switch {
		case errors.Is(err, ErrInvalidNotification):
			c.String(http.StatusBadRequest, "bad request")
		case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrAmountMismatch):
			c.String(http.StatusForbidden, "forbidden")
		case errors.Is(err, ErrBookingNotFound):
			c.String(http.StatusNotFound, "not found")
		default:
			c.String(http.StatusInternalServerError, "internal error")
		}
		return
	}
	h.loggerf("level=info msg=payment webhook handled outcome=%s", outcome)
	c.String(http.StatusOK, ack)
}

func (h *Handler) WebhookPing(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// CompleteDemo pays a demo invoice and feeds the signed notification through
// the webhook path.
func (h *Handler) CompleteDemo(c *gin.Context) {
	invoiceID := c.Param("invoiceId")
	n, err := h.demo.Complete(invoiceID)
	if err != nil {
		response.Error(c, http.StatusNotFound, "INVOICE_NOT_FOUND", err.Error())
		return
	}
	ack, outcome, err := h.reconciler.HandleNotification(c.Request.Context(), h.demo.Form(n))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, CompleteDemoResponse{InvoiceID: invoiceID, Outcome: outcome, Ack: ack})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrBookingNotFound):
		response.Error(c, http.StatusNotFound, "BOOKING_NOT_FOUND", "booking not found")
	case errors.Is(err, ErrBookingNotPending):
		response.Error(c, http.StatusConflict, "BOOKING_NOT_PENDING", "booking is not pending")
	case errors.Is(err, ErrInvoiceMismatch):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrGatewayUnavailable):
		response.Error(c, http.StatusBadGateway, "PAYMENT_GATEWAY_ERROR", "payment gateway unavailable, try again later")
	case errors.Is(err, ErrPaymentCheckFailed):
		response.Error(c, http.StatusBadGateway, "PAYMENT_CHECK_FAILED", "payment status check failed")
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrAmountMismatch):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", err.Error())
	default:
		h.loggerf("level=error msg=payment request failed path=%s err=%v", c.FullPath(), err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

// fieldNames lists form keys without values; signatures stay out of logs.
func fieldNames(form url.Values) string {
	names := make([]string, 0, len(form))
	for k := range form {
		names = append(names, k)
	}
	return strings.Join(names, ",")
}

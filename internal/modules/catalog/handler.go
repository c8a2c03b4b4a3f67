package catalog

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lulufarm/internal/domain"
	"lulufarm/internal/pkg/response"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/slots", h.ListSlots)
	rg.GET("/slots/:id", h.GetSlot)
	rg.GET("/tariffs", h.ListTariffs)
}

func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	slots := rg.Group("/slots")
	{
		slots.GET("", h.AdminListSlots)
		slots.POST("", h.CreateSlot)
		slots.POST("/generate", h.GenerateSlots)
		slots.GET("/:id", h.GetSlot)
		slots.PATCH("/:id", h.UpdateSlot)
		slots.DELETE("/:id", h.DeleteSlot)
		slots.POST("/:id/recount", h.RecountSlot)
	}

	tariffs := rg.Group("/tariffs")
	{
		tariffs.GET("", h.AdminListTariffs)
		tariffs.POST("", h.CreateTariff)
		tariffs.PATCH("/:id", h.UpdateTariff)
		tariffs.POST("/:id/schedules", h.AddSchedule)
		tariffs.DELETE("/:id/schedules/:scheduleId", h.DeleteSchedule)
	}
}

// ListSlots godoc
// @Summary      Bookable excursion slots
// @Tags         Catalog
// @Produce      json
// @Param        date_from query string false "YYYY-MM-DD, default today"
// @Param        date_to   query string false "YYYY-MM-DD, default today+30"
// @Router       /slots [get]
func (h *Handler) ListSlots(c *gin.Context) {
	slots, err := h.service.ListAvailableSlots(c.Request.Context(), c.Query("date_from"), c.Query("date_to"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

func (h *Handler) GetSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	slot, err := h.service.GetSlot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, slot)
}

func (h *Handler) ListTariffs(c *gin.Context) {
	activeOnly := c.DefaultQuery("active_only", "true") != "false"
	tariffs, err := h.service.ListTariffs(c.Request.Context(), activeOnly)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tariffs": tariffs})
}

func (h *Handler) AdminListTariffs(c *gin.Context) {
	tariffs, err := h.service.ListTariffs(c.Request.Context(), c.Query("active_only") == "true")
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"tariffs": tariffs})
}

/* ---------- ADMIN: SLOTS ---------- */

func (h *Handler) AdminListSlots(c *gin.Context) {
	status := domain.SlotStatus(strings.ToUpper(c.Query("status")))
	slots, err := h.service.AdminListSlots(c.Request.Context(), c.Query("date_from"), c.Query("date_to"), status)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

func (h *Handler) CreateSlot(c *gin.Context) {
	var req CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	slot, err := h.service.CreateSlot(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, slot)
}

func (h *Handler) UpdateSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	slot, err := h.service.UpdateSlot(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, slot)
}

func (h *Handler) DeleteSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteSlot(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func (h *Handler) RecountSlot(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	slot, err := h.service.RecountSlot(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, slot)
}

func (h *Handler) GenerateSlots(c *gin.Context) {
	var req GenerateSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	res, err := h.service.GenerateSlots(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

/* ---------- ADMIN: TARIFFS ---------- */

func (h *Handler) CreateTariff(c *gin.Context) {
	var req CreateTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	t, err := h.service.CreateTariff(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, t)
}

// UpdateTariff returns the tariff that is current after the edit. When the
// prices of a booked tariff change this is a new version with a new id.
func (h *Handler) UpdateTariff(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req UpdateTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	t, err := h.service.UpdateTariff(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, t)
}

func (h *Handler) AddSchedule(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}
	sc, err := h.service.AddSchedule(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sc)
}

func (h *Handler) DeleteSchedule(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	scheduleID, ok := parseID(c, "scheduleId")
	if !ok {
		return
	}
	if err := h.service.DeleteSchedule(c.Request.Context(), id, scheduleID); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, ErrSlotNotFound):
		response.Error(c, http.StatusNotFound, "SLOT_NOT_FOUND", "Slot not found")
	case errors.Is(err, ErrTariffNotFound):
		response.Error(c, http.StatusNotFound, "TARIFF_NOT_FOUND", "Tariff not found")
	case errors.Is(err, ErrScheduleNotFound):
		response.Error(c, http.StatusNotFound, "SCHEDULE_NOT_FOUND", "Schedule not found")
	case errors.Is(err, ErrSlotExists):
		response.Error(c, http.StatusConflict, "SLOT_EXISTS", "A slot at this date and time already exists")
	case errors.Is(err, ErrSlotHasBookings):
		response.Error(c, http.StatusConflict, "SLOT_HAS_BOOKINGS", "Slot has active bookings")
	case errors.Is(err, ErrCapacityBelowHeld):
		response.Error(c, http.StatusConflict, "CAPACITY_BELOW_HELD", err.Error())
	case errors.Is(err, ErrNoTariff):
		response.Error(c, http.StatusUnprocessableEntity, "NO_TARIFF", "No active tariff for this date")
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}

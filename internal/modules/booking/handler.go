package booking

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/middleware"
	"agrirent/internal/pkg/request"
	"agrirent/internal/pkg/response"
)

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	bookings := protected.Group("/bookings")
	{
		bookings.POST("", h.CreateBooking)
		bookings.GET("/:id", h.GetBooking)
		bookings.PATCH("/:id", h.UpdateBooking)
		bookings.PATCH("/:id/status", h.UpdateStatus)
		bookings.POST("/:id/cancel", h.CancelBooking)
	}

	protected.GET("/users/me/bookings", h.ListMyBookings)
	protected.GET("/equipment/:id/bookings", middleware.RequireRole(domain.RoleOwner, domain.RoleAdmin), h.ListEquipmentBookings)
}

func (h *Handler) RegisterPublicRoutes(public *gin.RouterGroup) {
	public.GET("/equipment/:id/schedule", h.GetSchedule)
}

func (h *Handler) CreateBooking(c *gin.Context) {
	var req CreateBookingRequest
	if err := request.BindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.service.CreateBooking(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"booking": b})
}

func (h *Handler) GetBooking(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.service.GetBooking(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) UpdateBooking(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req UpdateBookingRequest
	if err := request.BindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.service.UpdateBooking(c.Request.Context(), id, middleware.Actor(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req UpdateStatusRequest
	if err := request.BindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}
	status, err := domain.ParseBookingStatus(req.Status)
	if err != nil {
		h.writeError(c, domain.FieldError("status", err.Error()))
		return
	}

	actor := middleware.Actor(c)
	var b *domain.Booking
	if status == domain.BookingCancelled {
		b, err = h.service.CancelBooking(c.Request.Context(), id, actor, req.Reason)
	} else {
		b, err = h.service.SetBookingStatus(c.Request.Context(), id, actor, status)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) CancelBooking(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var req CancelBookingRequest
	if err := request.BindOptionalJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	b, err := h.service.CancelBooking(c.Request.Context(), id, middleware.Actor(c), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) ListMyBookings(c *gin.Context) {
	limit, offset := request.Page(c)
	list, err := h.service.ListMyBookings(c.Request.Context(), middleware.Actor(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": list})
}

func (h *Handler) ListEquipmentBookings(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	limit, offset := request.Page(c)
	list, err := h.service.ListEquipmentBookings(c.Request.Context(), id, middleware.Actor(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"bookings": list})
}

// GetSchedule accepts optional RFC 3339 from/to bounds.
func (h *Handler) GetSchedule(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			h.writeError(c, domain.FieldError("from", "must be RFC 3339"))
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			h.writeError(c, domain.FieldError("to", "must be RFC 3339"))
			return
		}
	}

	held, err := h.service.GetSchedule(c.Request.Context(), id, from, to)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, ScheduleResponse{EquipmentID: id, Reservations: held})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrAlreadyPaid):
		response.Error(c, http.StatusConflict, "ALREADY_PAID", "Booking is already paid")
		return
	case errors.Is(err, ErrNotEditable):
		response.Error(c, http.StatusConflict, "NOT_EDITABLE", "Booking can no longer be edited")
		return
	}
	if response.DomainError(c, err) {
		return
	}

	h.log.WithError(err).WithField("path", c.FullPath()).Error("booking request failed")
	response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
}

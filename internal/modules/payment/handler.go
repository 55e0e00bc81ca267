package payment

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"agrirent/internal/middleware"
	"agrirent/internal/modules/booking"
	"agrirent/internal/modules/groupbooking"
	"agrirent/internal/pkg/request"
	"agrirent/internal/pkg/response"
)

const maxWebhookBody = 1 << 20

type Handler struct {
	service *Service
	log     logrus.FieldLogger
}

func NewHandler(service *Service, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, log: log}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings/:id/payments", h.InitBookingPayment)
	rg.POST("/group-bookings/:id/payments", h.InitParticipantPayment)
	rg.GET("/payments/:reference", h.GetPayment)
	rg.POST("/payments/:reference/verify", h.VerifyPayment)
}

// RegisterPublicRoutes mounts the gateway webhook. limit, when set, throttles it.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup, limit gin.HandlerFunc) {
	if limit != nil {
		rg.POST("/payments/webhook", limit, h.Webhook)
		return
	}
	rg.POST("/payments/webhook", h.Webhook)
}

// InitBookingPayment godoc
// @Summary      Open a checkout for a booking
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Booking ID"
// @Success      201 {object} CheckoutResponse
// @Router       /bookings/{id}/payments [post]
func (h *Handler) InitBookingPayment(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.service.InitiateBookingPayment(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// InitParticipantPayment godoc
// @Summary      Open a checkout for the caller's share of a group booking
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path int true "Group booking ID"
// @Success      201 {object} CheckoutResponse
// @Router       /group-bookings/{id}/payments [post]
func (h *Handler) InitParticipantPayment(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	res, err := h.service.InitiateParticipantPayment(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

func (h *Handler) GetPayment(c *gin.Context) {
	p, err := h.service.Get(c.Request.Context(), c.Param("reference"), middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

// VerifyPayment godoc
// @Summary      Check a checkout with the gateway after the payer returns
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        reference path string true "Payment reference"
// @Router       /payments/{reference}/verify [post]
func (h *Handler) VerifyPayment(c *gin.Context) {
	p, err := h.service.Verify(c.Request.Context(), c.Param("reference"), middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"payment": p})
}

// Webhook godoc
// @Summary      Razorpay webhook
// @Description  Authenticated with the X-Razorpay-Signature header
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_BODY", "Unreadable request body")
		return
	}

	signature := strings.TrimSpace(c.GetHeader("X-Razorpay-Signature"))
	if err := h.service.HandleWebhook(c.Request.Context(), body, signature); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"received": true})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrGatewayUnavailable):
		h.log.WithError(err).Warn("payment gateway unavailable")
		response.Error(c, http.StatusServiceUnavailable, "PAYMENT_GATEWAY_UNAVAILABLE", "Payment provider is unavailable, retry later")
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusForbidden, "INVALID_SIGNATURE", "Webhook signature is invalid")
	case errors.Is(err, ErrAmountChanged):
		response.Error(c, http.StatusConflict, "AMOUNT_CHANGED", err.Error())
	case errors.Is(err, booking.ErrAlreadyPaid), errors.Is(err, groupbooking.ErrAlreadyPaid):
		response.Error(c, http.StatusConflict, "ALREADY_PAID", "Already paid")
	case errors.Is(err, groupbooking.ErrNotParticipant):
		response.Error(c, http.StatusNotFound, "NOT_PARTICIPANT", "You are not a participant of this group booking")
	default:
		if response.DomainError(c, err) {
			return
		}
		h.log.WithError(err).WithField("path", c.FullPath()).Error("payment request failed")
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
	}
}

package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/pkg/jwt"
	"agrirent/internal/pkg/response"
)

type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

type Handler struct {
	service *Service
	hub     *Hub
	tokens  TokenValidator
	log     logrus.FieldLogger
}

func NewHandler(service *Service, hub *Hub, tokens TokenValidator, log logrus.FieldLogger) *Handler {
	return &Handler{service: service, hub: hub, tokens: tokens, log: log}
}

func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	g := protected.Group("/notifications")
	{
		g.GET("", h.List)
		g.PATCH("/:id/read", h.MarkRead)
	}
}

// Drainer delivers one batch of pending outbox events.
type Drainer interface {
	Drain(ctx context.Context) int
}

// RegisterAdminRoutes expects admin to be restricted by the caller.
func (h *Handler) RegisterAdminRoutes(admin *gin.RouterGroup, d Drainer) {
	admin.POST("/notifications/dispatch", func(c *gin.Context) {
		delivered := d.Drain(c.Request.Context())
		h.log.WithField("delivered", delivered).Info("manual notification dispatch")
		response.Success(c, http.StatusOK, gin.H{"delivered": delivered})
	})
}

// RegisterWebSocket mounts the live feed. Browsers cannot set headers on a
// websocket handshake, so the token travels as a query parameter.
func (h *Handler) RegisterWebSocket(public *gin.RouterGroup) {
	public.GET("/ws/notifications", h.ServeWS)
}

func (h *Handler) List(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	limit := 20
	if s := c.Query("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = min(v, 100)
		}
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	unreadOnly := c.Query("unread") == "true"

	list, unread, err := h.service.List(c.Request.Context(), userID, unreadOnly, limit, max(offset, 0))
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("list notifications")
		response.Error(c, http.StatusInternalServerError, "FETCH_FAILED", "Failed to get notifications")
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"notifications": list,
		"unread_count":  unread,
	})
}

func (h *Handler) MarkRead(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "Notification not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "UPDATE_FAILED", "Failed to mark as read")
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func (h *Handler) ServeWS(c *gin.Context) {
	claims, err := h.tokens.ValidateToken(c.Query("token"))
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
		return
	}

	if err := h.hub.ServeWS(c.Writer, c.Request, claims.UserID); err != nil {
		h.log.WithError(err).WithField("user_id", claims.UserID).Warn("websocket upgrade failed")
	}
}

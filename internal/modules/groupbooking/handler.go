package groupbooking

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"agrirent/internal/domain"
	"agrirent/internal/middleware"
	"agrirent/internal/pkg/request"
	"agrirent/internal/pkg/response"
)

type Handler struct {
	coordinator *Coordinator
	log         logrus.FieldLogger
}

func NewHandler(coordinator *Coordinator, log logrus.FieldLogger) *Handler {
	return &Handler{coordinator: coordinator, log: log}
}

// RegisterRoutes mounts the group booking endpoints. joinLimit, when set,
// throttles joins.
func (h *Handler) RegisterRoutes(protected *gin.RouterGroup, joinLimit gin.HandlerFunc) {
	groups := protected.Group("/group-bookings")
	{
		groups.POST("", h.Create)
		groups.GET("/:id", h.Get)
		if joinLimit != nil {
			groups.POST("/:id/join", joinLimit, h.Join)
		} else {
			groups.POST("/:id/join", h.Join)
		}
		groups.POST("/:id/leave", h.Leave)
		groups.POST("/:id/confirm", h.Confirm)
		groups.POST("/:id/cancel", h.Cancel)
		groups.PATCH("/:id/status", h.UpdateStatus)
	}

	protected.GET("/equipment/:id/group-bookings", h.ListOpen)
	protected.GET("/users/me/group-bookings", h.ListMine)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateGroupBookingRequest
	if err := request.BindJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Create(c.Request.Context(), middleware.Actor(c), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, view)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Get(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) Join(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req JoinRequest
	if err := request.BindOptionalJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Join(c.Request.Context(), id, middleware.Actor(c), req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) Leave(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Leave(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) Confirm(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Confirm(c.Request.Context(), id, middleware.Actor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}
	var req CancelRequest
	if err := request.BindOptionalJSON(c, &req); err != nil {
		h.writeError(c, err)
		return
	}

	view, err := h.coordinator.Cancel(c.Request.Context(), id, middleware.Actor(c), req.Reason)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
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
	status, err := domain.ParseGroupStatus(req.Status)
	if err != nil {
		h.writeError(c, domain.FieldError("status", err.Error()))
		return
	}

	ctx, actor := c.Request.Context(), middleware.Actor(c)
	var view *GroupView
	switch status {
	case domain.GroupConfirmed:
		view, err = h.coordinator.Confirm(ctx, id, actor)
	case domain.GroupCancelled:
		view, err = h.coordinator.Cancel(ctx, id, actor, req.Reason)
	default:
		view, err = h.coordinator.Advance(ctx, id, actor, status)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

func (h *Handler) ListOpen(c *gin.Context) {
	id, err := request.ParamID(c, "id")
	if err != nil {
		h.writeError(c, err)
		return
	}

	limit, offset := request.Page(c)
	groups, err := h.coordinator.ListOpen(c.Request.Context(), id, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"group_bookings": groups})
}

func (h *Handler) ListMine(c *gin.Context) {
	limit, offset := request.Page(c)
	groups, err := h.coordinator.ListMine(c.Request.Context(), middleware.Actor(c), limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"group_bookings": groups})
}

var errorCodes = []struct {
	err     error
	status  int
	code    string
	message string
}{
	{ErrGroupFull, http.StatusConflict, "GROUP_FULL", "Group booking has no free slots"},
	{ErrAlreadyJoined, http.StatusConflict, "ALREADY_JOINED", "You already joined this group booking"},
	{ErrGroupExpired, http.StatusGone, "GROUP_EXPIRED", "Group booking is no longer accepting participants"},
	{ErrAlreadyPaid, http.StatusConflict, "ALREADY_PAID", "Paid participants cannot leave"},
	{ErrQuorumNotMet, http.StatusConflict, "QUORUM_NOT_MET", "Minimum number of participants not reached"},
	{ErrNotAllPaid, http.StatusConflict, "NOT_ALL_PAID", "Every participant must pay before confirmation"},
	{ErrNotParticipant, http.StatusNotFound, "NOT_PARTICIPANT", "You are not a participant of this group booking"},
	{ErrInitiatorCannotLeave, http.StatusConflict, "INITIATOR_CANNOT_LEAVE", "The initiator must cancel the group booking instead"},
}

func (h *Handler) writeError(c *gin.Context, err error) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			response.Error(c, e.status, e.code, e.message)
			return
		}
	}
	if response.DomainError(c, err) {
		return
	}

	h.log.WithError(err).WithField("path", c.FullPath()).Error("group booking request failed")
	response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
}

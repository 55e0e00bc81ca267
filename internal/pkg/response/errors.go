package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"agrirent/internal/domain"
)

// DomainError writes the errors shared by every module. It reports false when
// err is not one of them, leaving the response untouched.
func DomainError(c *gin.Context, err error) bool {
	var verr *domain.ValidationError
	var conflict *domain.ScheduleConflictError

	switch {
	case errors.As(err, &verr):
		ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", verr.Error(), verr.Fields)
	case errors.Is(err, domain.ErrValidation):
		Error(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.As(err, &conflict):
		ErrorWithDetails(c, http.StatusConflict, "SCHEDULE_CONFLICT", "Equipment is already reserved for these dates",
			gin.H{"conflicts": conflict.Conflicts})
	case errors.Is(err, domain.ErrInvalidStateTransition):
		Error(c, http.StatusConflict, "INVALID_STATE_TRANSITION", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		Error(c, http.StatusForbidden, "FORBIDDEN", "You are not allowed to perform this action")
	case errors.Is(err, domain.ErrNotFound):
		Error(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, domain.ErrBusy):
		Error(c, http.StatusServiceUnavailable, "RESOURCE_BUSY", "Equipment is being updated, retry shortly")
	default:
		return false
	}
	return true
}

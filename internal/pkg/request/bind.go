// Package request binds JSON bodies into typed request structs.
package request

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"agrirent/internal/domain"
	"agrirent/internal/pkg/validator"
)

func init() {
	// every router that binds through this package rejects unknown fields
	binding.EnableDecoderDisallowUnknownFields = true
}

// BindJSON binds the body into dst with gin and checks its binding tags.
// Failures are *domain.ValidationError.
func BindJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil {
		return domain.NewValidationError("request body is required")
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		if verr, ok := validator.FromError(err); ok {
			return verr
		}
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("request body is required")
		}
		return domain.NewValidationError(fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

// BindOptionalJSON is BindJSON for endpoints whose body may be omitted.
func BindOptionalJSON(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return validator.Struct(dst)
	}
	return BindJSON(c, dst)
}

// ParamID parses a positive int64 path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.FieldError(name, "must be a positive integer")
	}
	return id, nil
}

// Page reads limit and offset query parameters; limit is capped at 100.
func Page(c *gin.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = min(v, 100)
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

package request

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrirent/internal/domain"
)

type joinRequest struct {
	EquipmentID int64  `json:"equipment_id" binding:"required,gt=0"`
	Notes       string `json:"notes" binding:"max=10"`
}

func testContext(body string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c
}

func TestBindJSON(t *testing.T) {
	var ok joinRequest
	require.NoError(t, BindJSON(testContext(`{"equipment_id":3,"notes":"north"}`), &ok))
	assert.Equal(t, int64(3), ok.EquipmentID)

	tests := []struct {
		name   string
		body   string
		field  string
		reason string
	}{
		{"empty body", "", "", "request body is required"},
		{"malformed", `{"equipment_id":`, "", ""},
		{"unknown field", `{"equipment_id":3,"equipment":1}`, "", ""},
		{"missing required", `{"notes":"x"}`, "equipment_id", "is required"},
		{"too long", `{"equipment_id":3,"notes":"far too long here"}`, "notes", "must be at most 10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst joinRequest
			err := BindJSON(testContext(tt.body), &dst)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			if tt.reason != "" && tt.field == "" {
				assert.Equal(t, tt.reason, verr.Message)
			}
			if tt.field != "" {
				assert.Equal(t, tt.reason, verr.Fields[tt.field])
			}
		})
	}
}

func TestBindOptionalJSON_AcceptsMissingBody(t *testing.T) {
	var dst struct {
		Reason string `json:"reason" binding:"max=5"`
	}
	assert.NoError(t, BindOptionalJSON(testContext(""), &dst))

	err := BindOptionalJSON(testContext(`{"reason":"much too long"}`), &dst)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

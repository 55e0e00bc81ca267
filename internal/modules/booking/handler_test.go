package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrirent/internal/domain"
	"agrirent/internal/logger"
	"agrirent/internal/middleware"
	"agrirent/internal/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

func newRouter(f *fixture) (*gin.Engine, *jwt.Service) {
	tokens := jwt.New("handler-test-secret", time.Hour)
	h := NewHandler(f.svc, logger.Discard())

	r := gin.New()
	api := r.Group("/api/v1")
	h.RegisterPublicRoutes(api)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(tokens))
	h.RegisterRoutes(protected)
	return r, tokens
}

func call(t *testing.T, r *gin.Engine, tokens *jwt.Service, actor *domain.Actor, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := tokens.GenerateToken(actor.UserID, actor.Role)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHandler_CreateAndConflict(t *testing.T) {
	f := newFixture(t)
	r, tokens := newRouter(f)

	create := map[string]any{
		"equipment_id": f.equipment.ID,
		"start_date":   day(1).Format(time.RFC3339),
		"end_date":     day(4).Format(time.RFC3339),
	}
	code, env := call(t, r, tokens, &f.renter, http.MethodPost, "/api/v1/bookings", create)
	require.Equal(t, http.StatusCreated, code, string(env.Data))

	var created struct {
		Booking domain.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(15000), created.Booking.TotalPrice)

	code, _ = call(t, r, tokens, &f.owner, http.MethodPatch,
		fmt.Sprintf("/api/v1/bookings/%d/status", created.Booking.ID), map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code)

	other := domain.Actor{UserID: 21, Role: domain.RoleFarmer}
	create["start_date"] = day(2).Format(time.RFC3339)
	code, env = call(t, r, tokens, &other, http.MethodPost, "/api/v1/bookings", create)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "SCHEDULE_CONFLICT", env.Error.Code)

	var details struct {
		Conflicts []domain.ReservedInterval `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	require.Len(t, details.Conflicts, 1)
	assert.Equal(t, created.Booking.ID, details.Conflicts[0].Ref.ID)
}

func TestHandler_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	r, tokens := newRouter(f)
	b := f.book(t, f.renter, 1, 3)
	stranger := domain.Actor{UserID: 55, Role: domain.RoleFarmer}

	tests := []struct {
		name   string
		actor  *domain.Actor
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unauthenticated", nil, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", b.ID), nil, http.StatusUnauthorized, "AUTH_HEADER_MISSING"},
		{"bad id", &f.renter, http.MethodGet, "/api/v1/bookings/abc", nil, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing", &f.renter, http.MethodGet, "/api/v1/bookings/999", nil, http.StatusNotFound, "NOT_FOUND"},
		{"stranger", &stranger, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", b.ID), nil, http.StatusForbidden, "FORBIDDEN"},
		{"unknown field", &f.renter, http.MethodPost, "/api/v1/bookings", map[string]any{"equipment": 1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"bad status", &f.owner, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/status", b.ID), map[string]string{"status": "done"}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"skip to completed", &f.owner, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d/status", b.ID), map[string]string{"status": "completed"}, http.StatusConflict, "INVALID_STATE_TRANSITION"},
		{"owner cannot cancel", &f.owner, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", b.ID), nil, http.StatusForbidden, "FORBIDDEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := call(t, r, tokens, tt.actor, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestHandler_CancelWithoutBody(t *testing.T) {
	f := newFixture(t)
	r, tokens := newRouter(f)
	b := f.book(t, f.renter, 1, 3)

	code, env := call(t, r, tokens, &f.renter, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", b.ID), nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Contains(t, string(env.Data), `"status":"cancelled"`)
}

func TestHandler_PublicSchedule(t *testing.T) {
	f := newFixture(t)
	r, tokens := newRouter(f)
	b := f.book(t, f.renter, 1, 3)
	_, err := f.svc.SetBookingStatus(f.ctx, b.ID, f.owner, domain.BookingConfirmed)
	require.NoError(t, err)

	code, env := call(t, r, tokens, nil, http.MethodGet, fmt.Sprintf("/api/v1/equipment/%d/schedule", f.equipment.ID), nil)
	require.Equal(t, http.StatusOK, code)

	var sched ScheduleResponse
	require.NoError(t, json.Unmarshal(env.Data, &sched))
	require.Len(t, sched.Reservations, 1)
	assert.Equal(t, b.ID, sched.Reservations[0].Ref.ID)

	code, env = call(t, r, tokens, nil, http.MethodGet, fmt.Sprintf("/api/v1/equipment/%d/schedule?from=yesterday", f.equipment.ID), nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrirent/internal/domain"
)

type window struct {
	EquipmentID int64     `binding:"required,gt=0"`
	StartDate   time.Time `binding:"required"`
	EndDate     time.Time `binding:"required,gtfield=StartDate"`
}

func TestValidate_ReportsSnakeCaseFields(t *testing.T) {
	start := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	fields := Validate(window{StartDate: start, EndDate: start.Add(-time.Hour)})

	assert.Equal(t, "is required", fields["equipment_id"])
	assert.Equal(t, "must be after start_date", fields["end_date"])
	assert.NotContains(t, fields, "start_date")
}

func TestStruct(t *testing.T) {
	start := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, Struct(window{EquipmentID: 1, StartDate: start, EndDate: start.Add(time.Hour)}))

	err := Struct(window{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestFromError(t *testing.T) {
	verr, ok := FromError(validate.Struct(window{EquipmentID: 1}))
	require.True(t, ok)
	assert.Equal(t, "is required", verr.Fields["start_date"])

	_, ok = FromError(errors.New("unexpected EOF"))
	assert.False(t, ok)
}

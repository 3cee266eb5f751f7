package company

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jornada/internal/journey/models"
	"jornada/pkg/domain"
	"jornada/pkg/platform/sentinel"
)

func newCompany(t *testing.T, cnpj string) *models.Company {
	t.Helper()
	c, err := models.NewCompany(domain.NewCompanyID(), "Transportes Andrade", domain.MustCnpj(cnpj), models.DefaultCompanySettings(), time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return c
}

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	c := newCompany(t, "11222333000181")

	require.NoError(t, store.Create(ctx, c))
	assert.ErrorIs(t, store.Create(ctx, newCompany(t, "11222333000181")), sentinel.ErrConflict)

	found, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Name, found.Name)
	assert.Equal(t, models.DefaultCompanySettings(), found.Settings)

	found.Drivers = append(found.Drivers, models.DriverRef{ID: domain.NewDriverID()})
	again, err := store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Drivers, "returned companies are copies")

	require.NoError(t, store.Update(ctx, found))
	again, err = store.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, again.Drivers, 1)

	_, err = store.FindByID(ctx, domain.NewCompanyID())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.ErrorIs(t, store.Update(ctx, newCompany(t, "11444777000161")), sentinel.ErrNotFound)
}

func TestSettingsEncoding(t *testing.T) {
	settings := models.CompanySettings{
		MaxDailyWork:            10 * time.Hour,
		MinRestBetweenShifts:    11 * time.Hour,
		MaxContinuousWork:       5*time.Hour + 30*time.Minute,
		RequireLocationOnEvents: false,
		ClockSkewTolerance:      90 * time.Second,
	}
	raw, err := encodeSettings(settings)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"max_daily_work_minutes": 600,
		"min_rest_between_shifts_minutes": 660,
		"max_continuous_work_minutes": 330,
		"require_location_on_events": false,
		"clock_skew_tolerance_seconds": 90
	}`, string(raw))

	decoded, err := decodeSettings(raw)
	require.NoError(t, err)
	assert.Equal(t, settings, decoded)
}

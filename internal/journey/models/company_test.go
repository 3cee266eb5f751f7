package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jornada/pkg/domain"
	dErrors "jornada/pkg/domain-errors"
)

var fixedNow = time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

func newTestCompany(t *testing.T) *Company {
	t.Helper()
	c, err := NewCompany(domain.NewCompanyID(), "Transportes Rapido", domain.MustCnpj("11.222.333/0001-81"), DefaultCompanySettings(), fixedNow)
	require.NoError(t, err)
	return c
}

func TestCompanySettings(t *testing.T) {
	s := DefaultCompanySettings()
	assert.Equal(t, 8*time.Hour, s.MaxDailyWork)
	assert.Equal(t, 11*time.Hour, s.MinRestBetweenShifts)
	assert.Equal(t, 4*time.Hour, s.MaxContinuousWork)
	assert.True(t, s.RequireLocationOnEvents)
	assert.Equal(t, 5*time.Minute, s.ClockSkewTolerance)
	require.NoError(t, s.Validate())

	s.MaxContinuousWork = 0
	assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeValidation))
}

func TestCompanyAddDriver(t *testing.T) {
	c := newTestCompany(t)
	cpf := domain.MustCpf("11144477735")

	d1, err := NewDriver(domain.NewDriverID(), c.ID, "Ana", cpf, "1", "ana@x.com", fixedNow)
	require.NoError(t, err)
	require.NoError(t, c.AddDriver(d1, fixedNow))

	t.Run("duplicate CPF conflicts", func(t *testing.T) {
		d2, err := NewDriver(domain.NewDriverID(), c.ID, "Outra Ana", cpf, "2", "ana2@x.com", fixedNow)
		require.NoError(t, err)
		err = c.AddDriver(d2, fixedNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("driver from another company is rejected", func(t *testing.T) {
		d3, err := NewDriver(domain.NewDriverID(), domain.NewCompanyID(), "Bia", domain.MustCpf("52998224725"), "3", "bia@x.com", fixedNow)
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(c.AddDriver(d3, fixedNow), dErrors.CodeBusinessRule))
	})

	t.Run("inactive company rejects drivers", func(t *testing.T) {
		c.Deactivate(fixedNow)
		d4, err := NewDriver(domain.NewDriverID(), c.ID, "Caio", domain.MustCpf("52998224725"), "4", "caio@x.com", fixedNow)
		require.NoError(t, err)
		assert.True(t, dErrors.HasCode(c.AddDriver(d4, fixedNow), dErrors.CodeBusinessRule))
		c.Activate(fixedNow)
		assert.NoError(t, c.AddDriver(d4, fixedNow))
	})
}

func TestCompanyRenameAndSettings(t *testing.T) {
	c := newTestCompany(t)
	assert.Error(t, c.Rename("  ", fixedNow))
	require.NoError(t, c.Rename("Novo Nome", fixedNow))
	assert.Equal(t, "Novo Nome", c.Name)

	bad := DefaultCompanySettings()
	bad.MaxDailyWork = -time.Hour
	assert.Error(t, c.UpdateSettings(bad, fixedNow))
	assert.Equal(t, 8*time.Hour, c.Settings.MaxDailyWork)
}

func TestVehicle(t *testing.T) {
	c := newTestCompany(t)

	t.Run("normalises plates", func(t *testing.T) {
		v, err := NewVehicle(domain.NewVehicleID(), c.ID, "abc-1d23", "Volvo FH", 2020, fixedNow)
		require.NoError(t, err)
		assert.Equal(t, "ABC1D23", v.Plate)
	})

	t.Run("rejects invalid plates and years", func(t *testing.T) {
		_, err := NewVehicle(domain.NewVehicleID(), c.ID, "12-ABC", "Volvo", 2020, fixedNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewVehicle(domain.NewVehicleID(), c.ID, "ABC1234", "Volvo", 1899, fixedNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewVehicle(domain.NewVehicleID(), c.ID, "ABC1234", "Volvo", 2026, fixedNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewVehicle(domain.NewVehicleID(), c.ID, "ABC1234", "Volvo", 2025, fixedNow)
		assert.NoError(t, err)
	})

	t.Run("plates are unique per company", func(t *testing.T) {
		v1, err := NewVehicle(domain.NewVehicleID(), c.ID, "XYZ9876", "Scania", 2019, fixedNow)
		require.NoError(t, err)
		v2, err := NewVehicle(domain.NewVehicleID(), c.ID, "xyz 9876", "Scania", 2021, fixedNow)
		require.NoError(t, err)
		require.NoError(t, c.AddVehicle(v1, fixedNow))
		assert.True(t, dErrors.HasCode(c.AddVehicle(v2, fixedNow), dErrors.CodeConflict))
	})

	t.Run("one active assignment at a time", func(t *testing.T) {
		v, err := NewVehicle(domain.NewVehicleID(), c.ID, "DEF5678", "Mercedes", 2018, fixedNow)
		require.NoError(t, err)
		a, err := v.AssignDriver(domain.AssignmentID{}, domain.NewDriverID(), fixedNow, fixedNow)
		require.NoError(t, err)
		assert.Same(t, a, v.CurrentAssignment())

		_, err = v.AssignDriver(domain.AssignmentID{}, domain.NewDriverID(), fixedNow, fixedNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

		v.Deactivate(fixedNow.Add(8 * time.Hour))
		assert.Nil(t, v.CurrentAssignment())
		assert.Equal(t, 8*time.Hour, a.Duration(fixedNow.Add(24*time.Hour)))
	})
}

func TestAssignmentEnd(t *testing.T) {
	a, err := NewAssignment(domain.NewAssignmentID(), domain.NewVehicleID(), domain.NewDriverID(), fixedNow)
	require.NoError(t, err)
	assert.True(t, a.IsActive())
	assert.Equal(t, 2*time.Hour, a.Duration(fixedNow.Add(2*time.Hour)))

	assert.True(t, dErrors.HasCode(a.End(fixedNow), dErrors.CodeBusinessRule))
	require.NoError(t, a.End(fixedNow.Add(time.Hour)))
	assert.False(t, a.IsActive())
	assert.True(t, dErrors.HasCode(a.End(fixedNow.Add(2*time.Hour)), dErrors.CodeBusinessRule))
}

func TestWorkdaySummaryTotals(t *testing.T) {
	s := WorkdaySummary{TotalWorked: 8 * time.Hour, TotalMeal: time.Hour, TotalRest: 30 * time.Minute, TotalDisposal: 15 * time.Minute}
	assert.Equal(t, 9*time.Hour+45*time.Minute, s.TotalShift())
	assert.False(t, s.HasAnomalies())
	s.Anomalies = []string{"x"}
	assert.True(t, s.HasAnomalies())
}

package domain_test

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_Lookup(t *testing.T) {
	catalog := domain.DefaultCatalog()

	inspection, err := catalog.Lookup(domain.KindInspection)
	require.NoError(t, err)
	assert.True(t, inspection.WeatherDependent)
	assert.Equal(t, 25.0, inspection.WeatherProfile.MaxWindMPH)

	installation, err := catalog.Lookup(domain.KindInstallation)
	require.NoError(t, err)
	assert.Equal(t, 20.0, installation.WeatherProfile.MaxWindMPH)

	_, err = catalog.Lookup("painting")
	assert.ErrorIs(t, err, domain.ErrUnknownAppointmentKind)

	kind, err := catalog.ParseKind(" Repair ")
	require.NoError(t, err)
	assert.Equal(t, domain.KindRepair, kind)
	assert.Len(t, catalog.Kinds(), 6)
}

func TestCatalog_WithDurationOverrides(t *testing.T) {
	catalog := domain.DefaultCatalog().WithDurationOverrides(map[domain.AppointmentKind]time.Duration{
		domain.KindRepair: 2 * time.Hour,
		domain.KindSurvey: -time.Minute,
	})

	repair, _ := catalog.Lookup(domain.KindRepair)
	survey, _ := catalog.Lookup(domain.KindSurvey)
	assert.Equal(t, 2*time.Hour, repair.DefaultDuration)
	assert.Equal(t, 2*time.Hour, survey.DefaultDuration)

	original, _ := domain.DefaultCatalog().Lookup(domain.KindRepair)
	assert.Equal(t, 90*time.Minute, original.DefaultDuration)
}

func TestWeatherRequirementProfile_Evaluate(t *testing.T) {
	profile := domain.DefaultWeatherProfile()

	ok, reasons := profile.Evaluate(domain.Conditions{TemperatureF: 65, WindSpeedMPH: 10})
	assert.True(t, ok)
	assert.Empty(t, reasons)

	ok, reasons = profile.Evaluate(domain.Conditions{TemperatureF: 65, WindSpeedMPH: 30})
	assert.False(t, ok)
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "wind 30 mph")

	ok, reasons = profile.Evaluate(domain.Conditions{TemperatureF: 10, WindSpeedMPH: 40, PrecipitationInH: 0.5})
	assert.False(t, ok)
	assert.Len(t, reasons, 3)
}

func TestParsePriority(t *testing.T) {
	p, err := domain.ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityNormal, p)

	p, err = domain.ParsePriority("EMERGENCY")
	require.NoError(t, err)
	assert.Greater(t, p.Rank(), domain.PriorityUrgent.Rank())

	_, err = domain.ParsePriority("asap")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestParticipant_Skills(t *testing.T) {
	p, err := domain.NewParticipant("Maya", []string{"Inspection", " roofing", "inspection"}, site, 4, 50)
	require.NoError(t, err)

	assert.Equal(t, []string{"inspection", "roofing"}, p.Skills())
	assert.True(t, p.HasSkills([]string{"INSPECTION"}))
	assert.False(t, p.HasSkills([]string{"inspection", "electrical"}))
	assert.Equal(t, 1, p.CountSkills([]string{"roofing", "safety"}))
	assert.True(t, p.AtCap(4))
	assert.False(t, p.AtCap(3))

	far := domain.Location{Latitude: 40.5853, Longitude: -105.0844}
	assert.False(t, p.CanReach(far), "Fort Collins is ~60 miles from Denver")
}

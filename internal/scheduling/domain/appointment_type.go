package domain

import (
	"sort"
	"strings"
	"time"
)

// AppointmentKind tags the closed set of appointment variants.
type AppointmentKind string

const (
	KindInspection   AppointmentKind = "inspection"
	KindInstallation AppointmentKind = "installation"
	KindRepair       AppointmentKind = "repair"
	KindMaintenance  AppointmentKind = "maintenance"
	KindSurvey       AppointmentKind = "survey"
	KindConsultation AppointmentKind = "consultation"
)

// AppointmentType is one variant with its defaults.
type AppointmentType struct {
	Kind             AppointmentKind
	DefaultDuration  time.Duration
	WeatherDependent bool
	WeatherProfile   WeatherRequirementProfile
	RequiredSkills   []string
	PreferredSkills  []string
}

// Catalog resolves kinds to their variant definitions.
type Catalog struct {
	types map[AppointmentKind]AppointmentType
}

// DefaultCatalog returns the built-in variants.
func DefaultCatalog() *Catalog {
	installation := DefaultWeatherProfile()
	installation.MaxWindMPH = 20
	installation.MaxPrecipitationInH = 0.05

	return &Catalog{types: map[AppointmentKind]AppointmentType{
		KindInspection: {
			Kind:             KindInspection,
			DefaultDuration:  60 * time.Minute,
			WeatherDependent: true,
			WeatherProfile:   DefaultWeatherProfile(),
			RequiredSkills:   []string{"inspection"},
			PreferredSkills:  []string{"roofing", "safety"},
		},
		KindInstallation: {
			Kind:             KindInstallation,
			DefaultDuration:  4 * time.Hour,
			WeatherDependent: true,
			WeatherProfile:   installation,
			RequiredSkills:   []string{"installation"},
			PreferredSkills:  []string{"electrical", "roofing"},
		},
		KindRepair: {
			Kind:            KindRepair,
			DefaultDuration: 90 * time.Minute,
			WeatherProfile:  DefaultWeatherProfile(),
			RequiredSkills:  []string{"repair"},
			PreferredSkills: []string{"electrical", "plumbing"},
		},
		KindMaintenance: {
			Kind:            KindMaintenance,
			DefaultDuration: 60 * time.Minute,
			WeatherProfile:  DefaultWeatherProfile(),
			RequiredSkills:  []string{"maintenance"},
			PreferredSkills: []string{"repair"},
		},
		KindSurvey: {
			Kind:             KindSurvey,
			DefaultDuration:  2 * time.Hour,
			WeatherDependent: true,
			WeatherProfile:   DefaultWeatherProfile(),
			RequiredSkills:   []string{"survey"},
			PreferredSkills:  []string{"drone"},
		},
		KindConsultation: {
			Kind:            KindConsultation,
			DefaultDuration: 45 * time.Minute,
			WeatherProfile:  DefaultWeatherProfile(),
			PreferredSkills: []string{"sales"},
		},
	}}
}

// Lookup returns the variant for kind.
func (c *Catalog) Lookup(kind AppointmentKind) (AppointmentType, error) {
	t, ok := c.types[kind]
	if !ok {
		return AppointmentType{}, ErrUnknownAppointmentKind
	}
	return t, nil
}

// ParseKind resolves a string tag, case-insensitively.
func (c *Catalog) ParseKind(s string) (AppointmentKind, error) {
	kind := AppointmentKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := c.types[kind]; !ok {
		return "", NewValidationError("type", "unknown appointment type "+s)
	}
	return kind, nil
}

// WithDurationOverrides returns a copy with per-kind default durations replaced.
// Unknown kinds and non-positive durations are ignored.
func (c *Catalog) WithDurationOverrides(overrides map[AppointmentKind]time.Duration) *Catalog {
	types := make(map[AppointmentKind]AppointmentType, len(c.types))
	for k, t := range c.types {
		if d, ok := overrides[k]; ok && d > 0 {
			t.DefaultDuration = d
		}
		types[k] = t
	}
	return &Catalog{types: types}
}

// Kinds lists every variant in stable order.
func (c *Catalog) Kinds() []AppointmentKind {
	kinds := make([]AppointmentKind, 0, len(c.types))
	for k := range c.types {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

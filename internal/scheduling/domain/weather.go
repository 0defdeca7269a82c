package domain

import (
	"fmt"
	"time"
)

// WeatherRequirementProfile bounds the conditions an outdoor appointment tolerates.
type WeatherRequirementProfile struct {
	MinTemperatureF     float64 `json:"min_temperature_f" yaml:"min_temperature_f"`
	MaxTemperatureF     float64 `json:"max_temperature_f" yaml:"max_temperature_f"`
	MaxWindMPH          float64 `json:"max_wind_mph" yaml:"max_wind_mph"`
	MaxPrecipitationInH float64 `json:"max_precipitation_in_h" yaml:"max_precipitation_in_h"`
}

// DefaultWeatherProfile applies when an appointment type does not define its own.
func DefaultWeatherProfile() WeatherRequirementProfile {
	return WeatherRequirementProfile{
		MinTemperatureF:     20,
		MaxTemperatureF:     105,
		MaxWindMPH:          25,
		MaxPrecipitationInH: 0.10,
	}
}

// Evaluate returns whether conditions satisfy the profile and, if not, why.
func (p WeatherRequirementProfile) Evaluate(c Conditions) (bool, []string) {
	var reasons []string
	if c.TemperatureF < p.MinTemperatureF {
		reasons = append(reasons, fmt.Sprintf("temperature %.0f°F below minimum %.0f°F", c.TemperatureF, p.MinTemperatureF))
	}
	if c.TemperatureF > p.MaxTemperatureF {
		reasons = append(reasons, fmt.Sprintf("temperature %.0f°F above maximum %.0f°F", c.TemperatureF, p.MaxTemperatureF))
	}
	if c.WindSpeedMPH > p.MaxWindMPH {
		reasons = append(reasons, fmt.Sprintf("wind %.0f mph exceeds limit %.0f mph", c.WindSpeedMPH, p.MaxWindMPH))
	}
	if c.PrecipitationInH > p.MaxPrecipitationInH {
		reasons = append(reasons, fmt.Sprintf("precipitation %.2f in/h exceeds limit %.2f in/h", c.PrecipitationInH, p.MaxPrecipitationInH))
	}
	return len(reasons) == 0, reasons
}

// Conditions is a forecast for one location and time.
type Conditions struct {
	TemperatureF     float64   `json:"temperature_f"`
	WindSpeedMPH     float64   `json:"wind_speed_mph"`
	PrecipitationInH float64   `json:"precipitation_in_h"`
	ValidAt          time.Time `json:"valid_at"`
	Source           string    `json:"source,omitempty"`
}

// WeatherCheck is the outcome of a suitability check.
// Degraded marks a fail-open pass produced without provider data.
type WeatherCheck struct {
	Suitable   bool        `json:"suitable"`
	Degraded   bool        `json:"degraded,omitempty"`
	Skipped    bool        `json:"skipped,omitempty"`
	Conditions *Conditions `json:"conditions,omitempty"`
	Reasons    []string    `json:"reasons,omitempty"`
	CheckedAt  time.Time   `json:"checked_at"`
}

// SkippedWeatherCheck is recorded for appointments that are not weather-dependent.
func SkippedWeatherCheck(at time.Time) WeatherCheck {
	return WeatherCheck{Suitable: true, Skipped: true, CheckedAt: at}
}

// Satisfied reports whether the check allows confirmation.
func (c WeatherCheck) Satisfied() bool {
	return c.Skipped || c.Suitable
}

// Verified reports a pass backed by actual forecast data.
func (c WeatherCheck) Verified() bool {
	return c.Suitable && !c.Degraded && !c.Skipped
}

// Outcome returns a short label for logs and audit.
func (c WeatherCheck) Outcome() string {
	switch {
	case c.Skipped:
		return "skipped"
	case c.Degraded:
		return "degraded"
	case c.Suitable:
		return "suitable"
	default:
		return "unsuitable"
	}
}

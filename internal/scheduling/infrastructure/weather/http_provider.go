// Package weather adapts external forecast sources to services.ForecastProvider.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
)

const maxErrorBody = 512

// HTTPProvider fetches hourly forecasts from a JSON endpoint:
//
//	GET {base}/v1/forecast?lat=39.7392&lon=-104.9903&at=2026-05-12T09:00:00Z
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider. A nil client uses http.DefaultClient.
// Callers bound each call with a context deadline.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type forecastResponse struct {
	TemperatureF     float64   `json:"temperature_f"`
	WindSpeedMPH     float64   `json:"wind_speed_mph"`
	PrecipitationInH float64   `json:"precipitation_in_h"`
	ValidAt          time.Time `json:"valid_at"`
}

// Forecast implements services.ForecastProvider.
func (p *HTTPProvider) Forecast(ctx context.Context, loc domain.Location, at time.Time) (domain.Conditions, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	q.Set("at", at.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return domain.Conditions{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Conditions{}, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.Conditions{}, fmt.Errorf("forecast provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Conditions{}, fmt.Errorf("decode forecast: %w", err)
	}
	if out.ValidAt.IsZero() {
		out.ValidAt = at
	}
	return domain.Conditions{
		TemperatureF:     out.TemperatureF,
		WindSpeedMPH:     out.WindSpeedMPH,
		PrecipitationInH: out.PrecipitationInH,
		ValidAt:          out.ValidAt,
		Source:           "http",
	}, nil
}

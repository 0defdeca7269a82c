// Package routing adapts a travel-time API to services.RoutingProvider.
package routing

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
	"golang.org/x/oauth2/clientcredentials"
)

// Credentials configure OAuth2 client-credentials auth for the routing API.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// NewOAuthClient returns an HTTP client that attaches and refreshes bearer
// tokens. ctx governs token fetches, not individual requests.
func NewOAuthClient(ctx context.Context, creds Credentials) *http.Client {
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}
	return cfg.Client(ctx)
}

// HTTPProvider asks a routing API for drive time:
//
//	GET {base}/v1/route?from=39.7392,-104.9903&to=39.7500,-105.0000&depart=2026-05-12T08:00:00Z
//	{"duration_seconds": 1260}
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a provider. A nil client uses http.DefaultClient.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type routeResponse struct {
	DurationSeconds float64 `json:"duration_seconds"`
}

// TravelTime implements services.RoutingProvider.
func (p *HTTPProvider) TravelTime(ctx context.Context, origin, destination domain.Location, departure time.Time) (time.Duration, error) {
	q := url.Values{}
	q.Set("from", coordinate(origin))
	q.Set("to", coordinate(destination))
	q.Set("depart", departure.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/route?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("routing provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out routeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode route: %w", err)
	}
	if out.DurationSeconds < 0 {
		return 0, fmt.Errorf("routing provider returned negative duration %v", out.DurationSeconds)
	}
	return time.Duration(out.DurationSeconds * float64(time.Second)), nil
}

func coordinate(l domain.Location) string {
	return strconv.FormatFloat(l.Latitude, 'f', 5, 64) + "," + strconv.FormatFloat(l.Longitude, 'f', 5, 64)
}

package weather

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

var (
	denver = domain.Location{Latitude: 39.7392, Longitude: -104.9903}
	nineAM = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)
)

type staticProvider struct {
	conditions domain.Conditions
	err        error
	lastLoc    domain.Location
	lastAt     time.Time
}

func (p *staticProvider) Forecast(_ context.Context, loc domain.Location, at time.Time) (domain.Conditions, error) {
	p.lastLoc, p.lastAt = loc, at
	return p.conditions, p.err
}

func TestHTTPProvider_Forecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/forecast", r.URL.Path)
		assert.Equal(t, "39.7392", r.URL.Query().Get("lat"))
		assert.Equal(t, "-104.9903", r.URL.Query().Get("lon"))
		assert.Equal(t, "2026-05-12T09:00:00Z", r.URL.Query().Get("at"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"temperature_f":61.5,"wind_speed_mph":12,"precipitation_in_h":0.02}`))
	}))
	defer srv.Close()

	c, err := NewHTTPProvider(srv.URL+"/", srv.Client()).Forecast(context.Background(), denver, nineAM)

	require.NoError(t, err)
	assert.Equal(t, 61.5, c.TemperatureF)
	assert.Equal(t, 12.0, c.WindSpeedMPH)
	assert.Equal(t, 0.02, c.PrecipitationInH)
	assert.Equal(t, nineAM, c.ValidAt)
	assert.Equal(t, "http", c.Source)
}

func TestHTTPProvider_Errors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "upstream quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewHTTPProvider(srv.URL, srv.Client()).Forecast(context.Background(), denver, nineAM)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
		assert.Contains(t, err.Error(), "quota exceeded")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"temperature_f":`))
		}))
		defer srv.Close()

		_, err := NewHTTPProvider(srv.URL, srv.Client()).Forecast(context.Background(), denver, nineAM)

		assert.Error(t, err)
	})

	t.Run("deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewHTTPProvider(srv.URL, srv.Client()).Forecast(ctx, denver, nineAM)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func dialForecast(t *testing.T, impl *staticProvider) *ForecastClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterForecastServer(s, impl)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewForecastClient(conn)
}

func TestForecastClient_RoundTripsThroughGRPC(t *testing.T) {
	impl := &staticProvider{conditions: domain.Conditions{
		TemperatureF:     38,
		WindSpeedMPH:     22,
		PrecipitationInH: 0.3,
		ValidAt:          nineAM,
		Source:           "station-7",
	}}
	client := dialForecast(t, impl)

	c, err := client.Forecast(context.Background(), denver, nineAM)

	require.NoError(t, err)
	assert.Equal(t, impl.conditions, c)
	assert.Equal(t, denver.Latitude, impl.lastLoc.Latitude)
	assert.True(t, nineAM.Equal(impl.lastAt))
}

func TestForecastClient_PropagatesPluginErrors(t *testing.T) {
	client := dialForecast(t, &staticProvider{err: errors.New("station offline")})

	_, err := client.Forecast(context.Background(), denver, nineAM)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "station offline")
}

func TestVerifyChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forecast-plugin")
	content := []byte("plugin bytes")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	sum := sha256.Sum256(content)
	good := hex.EncodeToString(sum[:])

	assert.NoError(t, verifyChecksum(path, good))
	assert.NoError(t, verifyChecksum(path, "SHA256:"+good))
	assert.Error(t, verifyChecksum(path, "sha256:deadbeef"))
	assert.Error(t, verifyChecksum(path, "md5:"+good))
}

func TestPluginLoader_RejectsBadBinaries(t *testing.T) {
	loader := NewPluginLoader(nil)
	defer loader.Close()

	_, err := loader.Load("relative/plugin", "")
	assert.Error(t, err)

	_, err = loader.Load(t.TempDir(), "")
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opt)
	defer client.Close()

	cache := NewRedisCache(client)
	ctx := context.Background()
	key := "test:" + nineAM.Format(time.RFC3339)

	miss, err := cache.Get(ctx, key+":absent")
	require.NoError(t, err)
	assert.Nil(t, miss)

	want := domain.Conditions{TemperatureF: 55, ValidAt: nineAM, Source: "http"}
	require.NoError(t, cache.Set(ctx, key, want, time.Minute))

	got, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.TemperatureF, got.TemperatureF)
	assert.True(t, want.ValidAt.Equal(got.ValidAt))
}

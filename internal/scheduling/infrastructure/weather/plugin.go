package weather

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/services"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/hashicorp/go-plugin"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Handshake must match between the scheduler and forecast plugin binaries.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "CREWPLAN_FORECAST_PLUGIN",
	MagicCookieValue: "crewplan-forecast-v1",
}

const (
	pluginName     = "forecast"
	serviceName    = "crewplan.weather.v1.ForecastService"
	forecastMethod = "/" + serviceName + "/Forecast"
)

// ForecastPlugin carries a ForecastProvider across the go-plugin boundary.
// Messages are protobuf Structs so no generated code is needed.
type ForecastPlugin struct {
	plugin.NetRPCUnsupportedPlugin
	// Impl is set on the plugin side only.
	Impl services.ForecastProvider
}

var _ plugin.GRPCPlugin = (*ForecastPlugin)(nil)

// GRPCServer registers the forecast service.
func (p *ForecastPlugin) GRPCServer(_ *plugin.GRPCBroker, s *grpc.Server) error {
	RegisterForecastServer(s, p.Impl)
	return nil
}

// GRPCClient returns a ForecastProvider backed by the plugin connection.
func (p *ForecastPlugin) GRPCClient(_ context.Context, _ *plugin.GRPCBroker, c *grpc.ClientConn) (interface{}, error) {
	return NewForecastClient(c), nil
}

// Serve runs impl as a forecast plugin. It is called from a plugin binary's
// main and blocks until the host disconnects.
func Serve(impl services.ForecastProvider) {
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         map[string]plugin.Plugin{pluginName: &ForecastPlugin{Impl: impl}},
		GRPCServer:      plugin.DefaultGRPCServer,
	})
}

type forecastServer interface {
	Forecast(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var forecastServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*forecastServer)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Forecast",
		Handler:    forecastHandler,
	}},
	Streams:  []grpc.StreamDesc{},
	Metadata: "crewplan/weather/v1/forecast.proto",
}

func forecastHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(forecastServer).Forecast(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: forecastMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(forecastServer).Forecast(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterForecastServer exposes impl on s.
func RegisterForecastServer(s grpc.ServiceRegistrar, impl services.ForecastProvider) {
	s.RegisterService(&forecastServiceDesc, &grpcServer{impl: impl})
}

type grpcServer struct {
	impl services.ForecastProvider
}

func (s *grpcServer) Forecast(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	at, err := time.Parse(time.RFC3339, fields["at"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("forecast request: invalid at: %w", err)
	}
	loc := domain.Location{
		Latitude:  fields["lat"].GetNumberValue(),
		Longitude: fields["lon"].GetNumberValue(),
	}

	c, err := s.impl.Forecast(ctx, loc, at)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(map[string]interface{}{
		"temperature_f":      c.TemperatureF,
		"wind_speed_mph":     c.WindSpeedMPH,
		"precipitation_in_h": c.PrecipitationInH,
		"valid_at":           c.ValidAt.UTC().Format(time.RFC3339),
		"source":             c.Source,
	})
}

// ForecastClient calls a forecast service over gRPC.
type ForecastClient struct {
	conn grpc.ClientConnInterface
}

// NewForecastClient wraps conn.
func NewForecastClient(conn grpc.ClientConnInterface) *ForecastClient {
	return &ForecastClient{conn: conn}
}

// Forecast implements services.ForecastProvider.
func (c *ForecastClient) Forecast(ctx context.Context, loc domain.Location, at time.Time) (domain.Conditions, error) {
	in, err := structpb.NewStruct(map[string]interface{}{
		"lat": loc.Latitude,
		"lon": loc.Longitude,
		"at":  at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return domain.Conditions{}, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, forecastMethod, in, out); err != nil {
		return domain.Conditions{}, fmt.Errorf("forecast plugin: %w", err)
	}

	fields := out.GetFields()
	validAt, err := time.Parse(time.RFC3339, fields["valid_at"].GetStringValue())
	if err != nil {
		validAt = at
	}
	source := fields["source"].GetStringValue()
	if source == "" {
		source = "plugin"
	}
	return domain.Conditions{
		TemperatureF:     fields["temperature_f"].GetNumberValue(),
		WindSpeedMPH:     fields["wind_speed_mph"].GetNumberValue(),
		PrecipitationInH: fields["precipitation_in_h"].GetNumberValue(),
		ValidAt:          validAt,
		Source:           source,
	}, nil
}

package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/security"
	"github.com/spf13/cobra"
)

// requestFlags collects the flags shared by find, commit and schedule.
type requestFlags struct {
	file       string
	kind       string
	priority   string
	windows    []string
	searchFrom string
	searchTo   string
	lat        float64
	lon        float64
	address    string
	weather    string
	backupDate string
	required   []string
	optional   []string
	quorum     int
	duration   time.Duration
	customer   string
}

func (f *requestFlags) bind(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.file, "request", "", "JSON scheduling request file; flags override its fields")
	flags.StringVarP(&f.kind, "kind", "k", "", "appointment type (inspection, installation, repair, maintenance, survey, consultation)")
	flags.StringVarP(&f.priority, "priority", "p", "", "priority (low, normal, high, urgent, emergency)")
	flags.StringArrayVarP(&f.windows, "window", "w", nil, "preferred window START/END, e.g. 2026-05-12T08:00/12:00 (repeatable)")
	flags.StringVar(&f.searchFrom, "from", "", "search range start (defaults to the span of the windows)")
	flags.StringVar(&f.searchTo, "to", "", "search range end")
	flags.Float64Var(&f.lat, "lat", 0, "site latitude")
	flags.Float64Var(&f.lon, "lon", 0, "site longitude")
	flags.StringVar(&f.address, "address", "", "site address")
	flags.StringVar(&f.weather, "weather", "auto", "weather dependency: auto, yes or no")
	flags.StringVar(&f.backupDate, "backup-date", "", "backup date for weather-dependent work (YYYY-MM-DD)")
	flags.StringSliceVar(&f.required, "required", nil, "required participant IDs")
	flags.StringSliceVar(&f.optional, "optional", nil, "optional participant IDs")
	flags.IntVar(&f.quorum, "quorum", 0, "minimum participants that must confirm")
	flags.DurationVarP(&f.duration, "duration", "d", 0, "duration (defaults to the type's duration)")
	flags.StringVar(&f.customer, "customer", "", "customer reference")
}

// build assembles the request. Normalization and validation happen in the
// handlers, so only parse errors are reported here.
func (f *requestFlags) build(catalog *domain.Catalog) (domain.SchedulingRequest, error) {
	var req domain.SchedulingRequest
	if f.file != "" {
		data, err := security.ReadInputFile(f.file)
		if err != nil {
			return req, fmt.Errorf("failed to read request file: %w", err)
		}
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("invalid request file: %w", err)
		}
	}

	if f.kind != "" {
		kind, err := catalog.ParseKind(f.kind)
		if err != nil {
			return req, err
		}
		req.Kind = kind
	}
	if req.Kind == "" {
		return req, errors.New("--kind is required")
	}
	if f.priority != "" {
		p, err := domain.ParsePriority(f.priority)
		if err != nil {
			return req, err
		}
		req.Priority = p
	}

	for _, raw := range f.windows {
		w, err := cli.ParseWindow(raw)
		if err != nil {
			return req, err
		}
		req.PreferredWindows = append(req.PreferredWindows, w)
	}
	if f.searchFrom != "" || f.searchTo != "" {
		if f.searchFrom == "" || f.searchTo == "" {
			return req, errors.New("--from and --to must be given together")
		}
		start, err := cli.ParseTime(f.searchFrom)
		if err != nil {
			return req, err
		}
		end, err := cli.ParseTime(f.searchTo)
		if err != nil {
			return req, err
		}
		req.SearchRange = domain.TimeRange{Start: start, End: end}
	}

	if f.lat != 0 || f.lon != 0 {
		req.Location = domain.Location{Latitude: f.lat, Longitude: f.lon, Address: f.address}
	} else if f.address != "" {
		req.Location.Address = f.address
	}

	switch strings.ToLower(f.weather) {
	case "", "auto":
	case "yes", "true":
		dep := true
		req.WeatherDependent = &dep
	case "no", "false":
		dep := false
		req.WeatherDependent = &dep
	default:
		return req, fmt.Errorf("invalid --weather %q, use auto, yes or no", f.weather)
	}

	if f.backupDate != "" {
		d, err := cli.ParseDate(f.backupDate)
		if err != nil {
			return req, err
		}
		req.BackupDate = &d
	}

	required, err := cli.ParseIDs(f.required)
	if err != nil {
		return req, err
	}
	if len(required) > 0 {
		req.RequiredParticipants = required
	}
	optional, err := cli.ParseIDs(f.optional)
	if err != nil {
		return req, err
	}
	if len(optional) > 0 {
		req.OptionalParticipants = optional
	}
	if f.quorum > 0 {
		req.MinQuorum = f.quorum
	}
	if f.duration > 0 {
		req.Duration = f.duration
	}
	if f.customer != "" {
		req.CustomerRef = f.customer
	}
	return req, nil
}

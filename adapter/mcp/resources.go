package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/felixgeelhaar/mcp-go"
)

// RegisterResources registers MCP resources that expose crewplan data.
func RegisterResources(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}
	t := schedulingTools{app: deps.App}

	srv.Resource("crewplan://participants").
		Name("Participants").
		Description("Active field participants with skills, home base and limits").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			participants, err := t.participants(ctx, participantsInput{})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, participants)
		})

	srv.Resource("crewplan://audit/recent").
		Name("Recent audit").
		Description("Scheduling decisions recorded in the last 24 hours").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			entries, err := t.audit(ctx, auditInput{SinceHours: 24, Limit: 100})
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, entries)
		})

	srv.Resource("crewplan://appointment-types").
		Name("Appointment types").
		Description("Appointment types with default duration, skills and weather profile").
		MimeType("application/json").
		Handler(func(ctx context.Context, uri string, params map[string]string) (*mcp.ResourceContent, error) {
			types, err := t.appointmentTypes()
			if err != nil {
				return nil, err
			}
			return jsonResource(uri, types)
		})

	return nil
}

type appointmentTypeDTO struct {
	Kind             string                            `json:"kind"`
	DefaultDuration  string                            `json:"default_duration"`
	WeatherDependent bool                              `json:"weather_dependent"`
	RequiredSkills   []string                          `json:"required_skills,omitempty"`
	PreferredSkills  []string                          `json:"preferred_skills,omitempty"`
	WeatherProfile   *domain.WeatherRequirementProfile `json:"weather_profile,omitempty"`
}

func (t schedulingTools) appointmentTypes() ([]appointmentTypeDTO, error) {
	if t.app == nil || t.app.Catalog == nil {
		return nil, errNoDatabase
	}
	kinds := t.app.Catalog.Kinds()
	out := make([]appointmentTypeDTO, 0, len(kinds))
	for _, kind := range kinds {
		at, err := t.app.Catalog.Lookup(kind)
		if err != nil {
			return nil, err
		}
		dto := appointmentTypeDTO{
			Kind:             string(at.Kind),
			DefaultDuration:  at.DefaultDuration.String(),
			WeatherDependent: at.WeatherDependent,
			RequiredSkills:   at.RequiredSkills,
			PreferredSkills:  at.PreferredSkills,
		}
		if at.WeatherDependent {
			profile := at.WeatherProfile
			dto.WeatherProfile = &profile
		}
		out = append(out, dto)
	}
	return out, nil
}

func jsonResource(uri string, v any) (*mcp.ResourceContent, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return &mcp.ResourceContent{
		URI:      uri,
		MimeType: "application/json",
		Text:     string(data),
	}, nil
}

// Package participant holds the participant administration commands.
package participant

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/spf13/cobra"
)

// Cmd is the participant command group
var Cmd = &cobra.Command{
	Use:     "participant",
	Short:   "Manage bookable participants",
	Aliases: []string{"participants", "tech"},
}

var (
	addID         string
	addName       string
	addSkills     []string
	addLat        float64
	addLon        float64
	addAddress    string
	addDailyCap   int
	addRadius     float64
	addDeactivate bool

	listSkills []string
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a participant, or update one with --id",
	Long: `Register a technician with their skills, home base, daily appointment
cap and travel radius. Passing --id replaces the profile of an existing
participant with the given flags.

Examples:
  crewplan participant add --name "Dana Ortiz" --skills repair,hvac --lat 39.74 --lon -104.99 --daily-cap 5
  crewplan participant add --id 0b6c... --skills repair --lat 39.74 --lon -104.99 --deactivate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.RegisterParticipantHandler == nil {
			return errors.New("participant commands require an initialized application")
		}
		command := commands.RegisterParticipantCommand{
			Name:              addName,
			Skills:            addSkills,
			Home:              domain.Location{Latitude: addLat, Longitude: addLon, Address: addAddress},
			DailyCap:          addDailyCap,
			TravelRadiusMiles: addRadius,
			Deactivate:        addDeactivate,
		}
		if addID != "" {
			id, err := cli.ParseID(addID, "participant id")
			if err != nil {
				return err
			}
			command.ID = id
		}

		p, err := app.RegisterParticipantHandler.Handle(cmd.Context(), command)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		state := "active"
		if !p.IsActive() {
			state = "inactive"
		}
		fmt.Fprintf(out, "Participant %s (%s)\n", p.ID(), state)
		fmt.Fprintf(out, "  %s  skills %v  cap %d/day\n", p.Name(), p.Skills(), p.DailyCap())
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active participants",
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.ListParticipantsHandler == nil {
			return errors.New("participant commands require an initialized application")
		}
		participants, err := app.ListParticipantsHandler.Handle(cmd.Context(), queries.ListParticipantsQuery{Skills: listSkills})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(participants) == 0 {
			fmt.Fprintln(out, "No participants.")
			return nil
		}
		for _, p := range participants {
			fmt.Fprintf(out, "%s  %-24s cap %-2d radius %-5s %v\n",
				p.ID(), p.Name(), p.DailyCap(), formatRadius(p.TravelRadiusMiles()), p.Skills())
		}
		return nil
	},
}

func formatRadius(miles float64) string {
	if miles <= 0 {
		return "any"
	}
	return fmt.Sprintf("%.0fmi", miles)
}

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "existing participant to update")
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "display name")
	addCmd.Flags().StringSliceVarP(&addSkills, "skills", "s", nil, "skills (comma-separated)")
	addCmd.Flags().Float64Var(&addLat, "lat", 0, "home base latitude")
	addCmd.Flags().Float64Var(&addLon, "lon", 0, "home base longitude")
	addCmd.Flags().StringVar(&addAddress, "address", "", "home base address")
	addCmd.Flags().IntVar(&addDailyCap, "daily-cap", 0, "maximum appointments per day (0 for no cap)")
	addCmd.Flags().Float64Var(&addRadius, "radius", 0, "travel radius in miles (0 for unlimited)")
	addCmd.Flags().BoolVar(&addDeactivate, "deactivate", false, "stop offering the participant")

	listCmd.Flags().StringSliceVarP(&listSkills, "skills", "s", nil, "only participants holding every skill")

	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(listCmd)
}


// Package slot holds the availability commands.
package slot

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/spf13/cobra"
)

// Cmd is the slot command group
var Cmd = &cobra.Command{
	Use:     "slot",
	Short:   "Manage participant availability",
	Aliases: []string{"slots", "availability"},
}

var (
	addID          string
	addParticipant string
	addWindow      string
	addCapacity    int
	addBlocked     []string

	importFrom string
	importDays int
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Publish an availability window, or update one with --id",
	Long: `Publish a window in which a participant can take appointments. Blocked
ranges inside the window are never offered. Resizing a slot below the
reservations it holds is rejected.

Examples:
  crewplan slot add --participant 0b6c... --window 2026-05-12T08:00/17:00 --capacity 3
  crewplan slot add --participant 0b6c... --window 2026-05-12T08:00/17:00 --block 2026-05-12T12:00/13:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.UpsertSlotHandler == nil {
			return errors.New("slot commands require an initialized application")
		}
		participantID, err := cli.ParseID(addParticipant, "participant id")
		if err != nil {
			return err
		}
		window, err := cli.ParseWindow(addWindow)
		if err != nil {
			return err
		}
		blocked := make([]domain.TimeRange, 0, len(addBlocked))
		for _, raw := range addBlocked {
			b, err := cli.ParseWindow(raw)
			if err != nil {
				return err
			}
			blocked = append(blocked, b)
		}
		command := commands.UpsertSlotCommand{
			ParticipantID: participantID,
			Window:        window,
			Capacity:      addCapacity,
			Blocked:       blocked,
			Source:        domain.SlotSourceManual,
		}
		if addID != "" {
			if command.SlotID, err = cli.ParseID(addID, "slot id"); err != nil {
				return err
			}
		}

		result, err := app.UpsertSlotHandler.Handle(cmd.Context(), command)
		if err != nil {
			return err
		}
		app.Flush(cmd.Context())

		verb := "Updated"
		if result.Created {
			verb = "Created"
		}
		s := result.Slot
		fmt.Fprintf(cmd.OutOrStdout(), "%s slot %s  %s  capacity %d  blocked %d\n",
			verb, s.ID(), s.Window(), s.Capacity(), len(s.Blocked()))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import availability from the configured CalDAV calendar",
	Long: `Pull availability windows and busy events from the CalDAV server set in
CALDAV_URL. Events map to participants by the X-CREWPLAN-PARTICIPANT property.

Examples:
  crewplan slot import
  crewplan slot import --from 2026-05-11 --days 7`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil {
			return errors.New("slot commands require an initialized application")
		}
		if app.ImportAvailabilityHandler == nil {
			return errors.New("calendar import is not configured; set CALDAV_URL")
		}
		start := domain.DayOf(time.Now())
		if importFrom != "" {
			d, err := cli.ParseDate(importFrom)
			if err != nil {
				return err
			}
			start = d
		}
		if importDays <= 0 {
			return errors.New("--days must be positive")
		}
		rng := domain.TimeRange{Start: start, End: start.AddDate(0, 0, importDays)}

		result, err := app.ImportAvailabilityHandler.Handle(cmd.Context(), commands.ImportAvailabilityCommand{Range: rng})
		if err != nil {
			return err
		}
		app.Flush(cmd.Context())

		fmt.Fprintf(cmd.OutOrStdout(), "Imported %s: %d created, %d updated, %d skipped, %d failed\n",
			rng, result.Created, result.Updated, result.Skipped, result.Failed)
		return nil
	},
}

func init() {
	addCmd.Flags().StringVar(&addID, "id", "", "existing slot to update")
	addCmd.Flags().StringVar(&addParticipant, "participant", "", "owning participant")
	addCmd.Flags().StringVarP(&addWindow, "window", "w", "", "window START/END, e.g. 2026-05-12T08:00/17:00")
	addCmd.Flags().IntVar(&addCapacity, "capacity", 1, "concurrent appointments the window can hold")
	addCmd.Flags().StringArrayVar(&addBlocked, "block", nil, "blocked range START/END inside the window (repeatable)")

	importCmd.Flags().StringVar(&importFrom, "from", "", "first day to import (YYYY-MM-DD, default: today)")
	importCmd.Flags().IntVar(&importDays, "days", 14, "number of days to import")

	Cmd.AddCommand(addCmd)
	Cmd.AddCommand(importCmd)
}

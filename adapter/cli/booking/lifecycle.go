package booking

import (
	"fmt"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/spf13/cobra"
)

var (
	resolveBackupDate string
	cancelReason      string
	respondDecline    bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve CONFLICT_ID OPTION_ID",
	Short: "Apply a conflict resolution option",
	Long: `Apply one of the options offered for a pending conflict. Options that
carry a candidate are committed; request_backup_date needs --backup-date.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		conflictID, err := cli.ParseID(args[0], "conflict id")
		if err != nil {
			return err
		}
		command := commands.ResolveConflictCommand{
			ConflictID:  conflictID,
			OptionID:    args[1],
			RequestedBy: app.OperatorID,
		}
		if resolveBackupDate != "" {
			d, err := cli.ParseDate(resolveBackupDate)
			if err != nil {
				return err
			}
			command.BackupDate = &d
		}

		out := cmd.OutOrStdout()
		result, err := app.ResolveConflictHandler.Handle(cmd.Context(), command)
		if err != nil {
			return explainCommitError(out, err)
		}
		app.Flush(cmd.Context())
		printCommitResult(out, result)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel APPOINTMENT_ID",
	Short: "Cancel an appointment and free its slots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		id, err := cli.ParseID(args[0], "appointment id")
		if err != nil {
			return err
		}
		result, err := app.CancelAppointmentHandler.Handle(cmd.Context(), commands.CancelAppointmentCommand{
			AppointmentID: id,
			Reason:        cancelReason,
			RequestedBy:   app.OperatorID,
		})
		if err != nil {
			return err
		}
		app.Flush(cmd.Context())

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Cancelled appointment %s\n", result.Appointment.ID())
		for _, r := range result.Released {
			fmt.Fprintf(out, "  freed %s for %s\n", formatWindow(r.Window), r.ParticipantID)
		}
		return nil
	},
}

var recheckCmd = &cobra.Command{
	Use:   "recheck-weather APPOINTMENT_ID",
	Short: "Re-run the forecast check of a booked appointment",
	Long: `Fetch a fresh forecast for a booked appointment. An unsuitable forecast
puts it on weather hold; a recovered one confirms it again.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		id, err := cli.ParseID(args[0], "appointment id")
		if err != nil {
			return err
		}
		result, err := app.RecheckWeatherHandler.Handle(cmd.Context(), commands.RecheckWeatherCommand{
			AppointmentID: id,
			RequestedBy:   app.OperatorID,
		})
		if err != nil {
			return err
		}
		app.Flush(cmd.Context())

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Weather: %s\n", formatWeather(result.Check))
		for _, r := range result.Check.Reasons {
			fmt.Fprintf(out, "  %s\n", r)
		}
		if result.Changed {
			fmt.Fprintf(out, "Status changed: %s -> %s\n", result.Previous, result.Appointment.Status())
		} else {
			fmt.Fprintf(out, "Status unchanged: %s\n", result.Appointment.Status())
		}
		return nil
	},
}

var respondCmd = &cobra.Command{
	Use:   "respond APPOINTMENT_ID PARTICIPANT_ID",
	Short: "Record a participant's answer to a proposed appointment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		appointmentID, err := cli.ParseID(args[0], "appointment id")
		if err != nil {
			return err
		}
		participantID, err := cli.ParseID(args[1], "participant id")
		if err != nil {
			return err
		}
		result, err := app.RespondParticipantHandler.Handle(cmd.Context(), commands.RespondParticipantCommand{
			AppointmentID: appointmentID,
			ParticipantID: participantID,
			Accept:        !respondDecline,
			RequestedBy:   app.OperatorID,
		})
		if err != nil {
			return err
		}
		app.Flush(cmd.Context())

		out := cmd.OutOrStdout()
		switch {
		case result.Confirmed:
			fmt.Fprintf(out, "Quorum reached, appointment %s is %s\n", appointmentID, result.Appointment.Status())
		case result.Cancelled:
			fmt.Fprintf(out, "Quorum can no longer be reached, appointment %s cancelled\n", appointmentID)
		default:
			fmt.Fprintf(out, "Recorded. %d held, %d pending\n",
				len(result.Group.HeldParticipants()), len(result.Group.PendingParticipants()))
		}
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveBackupDate, "backup-date", "", "date for a request_backup_date option (YYYY-MM-DD)")
	cancelCmd.Flags().StringVarP(&cancelReason, "reason", "r", "", "cancellation reason")
	respondCmd.Flags().BoolVar(&respondDecline, "decline", false, "decline instead of accepting")
}

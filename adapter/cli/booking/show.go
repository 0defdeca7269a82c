package booking

import (
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/spf13/cobra"
)

var (
	auditSince time.Duration
	auditLimit int
)

var showCmd = &cobra.Command{
	Use:   "show APPOINTMENT_ID",
	Short: "Show an appointment with its holds and conflicts",
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
		view, err := app.GetAppointmentHandler.Handle(cmd.Context(), queries.GetAppointmentQuery{AppointmentID: id})
		if err != nil {
			return err
		}
		printView(cmd.OutOrStdout(), view)
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit [APPOINTMENT_ID]",
	Short: "List scheduling decisions",
	Long: `List the audit trail of one appointment, or of every scheduling
decision recorded within --since.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		query := queries.ListAuditQuery{Limit: auditLimit}
		if len(args) == 1 {
			if query.AppointmentID, err = cli.ParseID(args[0], "appointment id"); err != nil {
				return err
			}
		} else {
			query.Since = time.Now().Add(-auditSince)
		}

		entries, err := app.ListAuditHandler.Handle(cmd.Context(), query)
		if err != nil {
			return err
		}
		printAudit(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	auditCmd.Flags().DurationVar(&auditSince, "since", 24*time.Hour, "how far back to list when no appointment is given")
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 50, "maximum entries")
}

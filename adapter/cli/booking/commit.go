package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/spf13/cobra"
)

var (
	commitReq         requestFlags
	commitParticipant string
	commitStart       string
	commitRank        int
	commitAcceptSoft  bool

	scheduleReq        requestFlags
	scheduleAcceptSoft bool
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Book a chosen candidate",
	Long: `Re-run the search for a request, pick one candidate and book it. The
candidate is picked by participant and start time, or by rank.

A lost race reports the regenerated alternatives instead of switching
candidates silently.

Examples:
  crewplan commit --kind repair --lat 39.74 --lon -104.99 --window 2026-05-12T08:00/12:00 --rank 2
  crewplan commit --kind repair --lat 39.74 --lon -104.99 --window 2026-05-12T08:00/12:00 \
      --participant 0b6c... --start 2026-05-12T09:30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		req, err := commitReq.build(app.Catalog)
		if err != nil {
			return err
		}

		found, err := app.FindSlotsHandler.Handle(cmd.Context(), queries.FindSlotsQuery{Request: req})
		if err != nil {
			return err
		}
		candidate, err := pickCandidate(found, commitParticipant, commitStart, commitRank)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		result, err := app.CommitAppointmentHandler.Handle(cmd.Context(), commands.CommitAppointmentCommand{
			Request:     found.Request,
			Candidate:   candidate,
			AcceptSoft:  commitAcceptSoft,
			RequestedBy: app.OperatorID,
		})
		if err != nil {
			return explainCommitError(out, err)
		}
		app.Flush(cmd.Context())

		printCommitResult(out, result)
		return nil
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Find and book the best candidate",
	Long: `Search, pick the top-ranked candidate and book it in one step. Lost
reservation races are retried against fresh candidates a bounded number
of times.

Examples:
  crewplan schedule --kind inspection --lat 39.74 --lon -104.99 --window 2026-05-12T08:00/17:00
  crewplan schedule --kind installation --weather yes --backup-date 2026-05-14 --request job.json`,
	Aliases: []string{"auto"},
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		req, err := scheduleReq.build(app.Catalog)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		result, err := app.AutoScheduleHandler.Handle(cmd.Context(), commands.AutoScheduleCommand{
			Request:     req,
			AcceptSoft:  scheduleAcceptSoft,
			RequestedBy: app.OperatorID,
		})
		if err != nil {
			return explainCommitError(out, err)
		}
		app.Flush(cmd.Context())

		printCommitResult(out, result.CommitResult)
		if result.Attempts > 1 {
			fmt.Fprintf(out, "  (%d attempts)\n", result.Attempts)
		}
		return nil
	},
}

func init() {
	commitReq.bind(commitCmd)
	commitCmd.Flags().StringVar(&commitParticipant, "participant", "", "lead participant of the candidate")
	commitCmd.Flags().StringVar(&commitStart, "start", "", "start time of the candidate")
	commitCmd.Flags().IntVar(&commitRank, "rank", 0, "pick the candidate at this rank (1 is best)")
	commitCmd.Flags().BoolVar(&commitAcceptSoft, "accept-soft", false, "book despite soft conflicts, recording them as notes")

	scheduleReq.bind(scheduleCmd)
	scheduleCmd.Flags().BoolVar(&scheduleAcceptSoft, "accept-soft", false, "book despite soft conflicts, recording them as notes")
}

// pickCandidate selects by participant and start when given, else by rank.
func pickCandidate(found *queries.FindSlotsResult, participant, start string, rank int) (domain.CandidateSlot, error) {
	if participant != "" || start != "" {
		if participant == "" || start == "" {
			return domain.CandidateSlot{}, errors.New("--participant and --start must be given together")
		}
		id, err := cli.ParseID(participant, "participant id")
		if err != nil {
			return domain.CandidateSlot{}, err
		}
		at, err := cli.ParseTime(start)
		if err != nil {
			return domain.CandidateSlot{}, err
		}
		if c, ok := found.Lookup(id, at); ok {
			return c, nil
		}
		return domain.CandidateSlot{}, fmt.Errorf("no candidate for participant %s at %s", id, at.Format(time.RFC3339))
	}
	if rank <= 0 {
		return domain.CandidateSlot{}, errors.New("choose a candidate with --rank or --participant and --start")
	}
	if rank > len(found.Candidates) {
		return domain.CandidateSlot{}, fmt.Errorf("rank %d out of range, %d candidates", rank, len(found.Candidates))
	}
	return found.Candidates[rank-1], nil
}

package booking

import (
	"fmt"

	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/spf13/cobra"
)

var (
	findReq   requestFlags
	findLimit int
	findJSON  bool
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Rank candidate slots for a request",
	Long: `Search every qualified participant's availability and rank the candidate
slots. Nothing is reserved.

Examples:
  crewplan find --kind repair --lat 39.74 --lon -104.99 --window 2026-05-12T08:00/12:00
  crewplan find --kind installation --from 2026-05-12T07:00 --to 2026-05-15T18:00 --limit 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := currentApp()
		if err != nil {
			return err
		}
		req, err := findReq.build(app.Catalog)
		if err != nil {
			return err
		}

		result, err := app.FindSlotsHandler.Handle(cmd.Context(), queries.FindSlotsQuery{
			Request: req,
			Limit:   findLimit,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if findJSON {
			return writeJSON(out, result)
		}
		fmt.Fprintf(out, "%d candidates for %s (%s), showing %d\n",
			result.Total, result.Request.Kind, result.Request.Duration, len(result.Candidates))
		printCandidates(out, result.Candidates)
		return nil
	},
}

func init() {
	findReq.bind(findCmd)
	findCmd.Flags().IntVarP(&findLimit, "limit", "n", 5, "number of candidates to show (0 for all)")
	findCmd.Flags().BoolVar(&findJSON, "json", false, "print the result as JSON")
}

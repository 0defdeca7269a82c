package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/commands"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/domain"
	"github.com/google/uuid"
)

const windowLayout = "Mon Jan 2 15:04"

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func formatWindow(w domain.TimeRange) string {
	start := w.Start.Local()
	end := w.End.Local()
	if start.YearDay() == end.YearDay() && start.Year() == end.Year() {
		return fmt.Sprintf("%s-%s", start.Format(windowLayout), end.Format(cli.TimeLayout))
	}
	return fmt.Sprintf("%s - %s", start.Format(windowLayout), end.Format(windowLayout))
}

func formatWeather(check domain.WeatherCheck) string {
	switch {
	case check.Skipped:
		return "n/a"
	case check.Degraded:
		return "unknown"
	case check.Suitable:
		return "ok"
	default:
		return "unsuitable"
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCandidates(out io.Writer, candidates []domain.CandidateSlot) {
	for i, c := range candidates {
		who := c.ParticipantName
		if who == "" {
			who = shortID(c.ParticipantID)
		}
		if len(c.Team) > 0 {
			who = fmt.Sprintf("%s +%d", who, len(c.Team))
		}
		travel := fmt.Sprintf("%dm", c.TravelMinutes)
		if !c.TravelMeasured {
			travel += "~"
		}
		fmt.Fprintf(out, "  %2d. %-28s %-20s score %5.1f  travel %-5s weather %s\n",
			i+1, formatWindow(c.Window), who, c.Score, travel, formatWeather(c.Weather))
	}
}

func printConflicts(out io.Writer, conflicts []*domain.Conflict) {
	for _, c := range conflicts {
		fmt.Fprintf(out, "  [%s] %s %s: %s\n", c.Severity(), c.Type(), shortID(c.ID()), c.Message())
	}
}

func printOptions(out io.Writer, options []domain.ResolutionOption) {
	if len(options) == 0 {
		return
	}
	fmt.Fprintln(out, "\nResolution options:")
	for _, o := range options {
		line := fmt.Sprintf("  %-10s %s", o.ID, o.Description)
		if o.Candidate != nil {
			line += fmt.Sprintf(" (%s, score %.1f)", formatWindow(o.Candidate.Window), o.Candidate.Score)
		}
		fmt.Fprintln(out, line)
	}
}

func printCommitResult(out io.Writer, result *commands.CommitResult) {
	switch result.Outcome {
	case commands.OutcomeConfirmed:
		appt := result.Appointment
		fmt.Fprintf(out, "Confirmed appointment %s\n", appt.ID())
		fmt.Fprintf(out, "  %s  %s  lead %s\n", appt.Kind(), formatWindow(appt.Window()), shortID(appt.Lead()))
		if check := appt.LastWeatherCheck(); check != nil && !check.Skipped {
			fmt.Fprintf(out, "  weather: %s\n", formatWeather(*check))
		}
		for _, note := range appt.Notes() {
			fmt.Fprintf(out, "  note: %s\n", note)
		}
	case commands.OutcomeProposed:
		group := result.Group
		fmt.Fprintf(out, "Proposed appointment %s, awaiting quorum of %d\n", result.Appointment.ID(), group.MinQuorum())
		fmt.Fprintf(out, "  %s  responses due %s\n", formatWindow(result.Appointment.Window()), group.Deadline().Local().Format(windowLayout))
		for _, m := range group.Members() {
			fmt.Fprintf(out, "  %s  %s\n", m.ParticipantID, m.State)
		}
	case commands.OutcomeConflicted:
		fmt.Fprintln(out, "Could not book; conflicts found:")
		printConflicts(out, result.Conflicts)
		printOptions(out, result.Options)
		if len(result.Conflicts) > 0 {
			fmt.Fprintf(out, "\nApply one with: crewplan resolve %s <option>\n", result.Conflicts[0].ID())
		}
	}
}

// explainCommitError prints the alternatives of a lost reservation race.
func explainCommitError(out io.Writer, err error) error {
	var raceErr *domain.ReservationConflictError
	if errors.As(err, &raceErr) && len(raceErr.Alternatives) > 0 {
		fmt.Fprintln(out, "The slot was taken. Alternatives:")
		printCandidates(out, raceErr.Alternatives)
	}
	return err
}

func printView(out io.Writer, view *queries.AppointmentView) {
	appt := view.Appointment
	fmt.Fprintf(out, "Appointment %s\n", appt.ID())
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "  Type:      %s (%s)\n", appt.Kind(), appt.Priority())
	fmt.Fprintf(out, "  Status:    %s\n", appt.Status())
	fmt.Fprintf(out, "  Window:    %s\n", formatWindow(appt.Window()))
	loc := appt.Location()
	if loc.Address != "" {
		fmt.Fprintf(out, "  Site:      %s (%.4f, %.4f)\n", loc.Address, loc.Latitude, loc.Longitude)
	} else {
		fmt.Fprintf(out, "  Site:      %.4f, %.4f\n", loc.Latitude, loc.Longitude)
	}
	fmt.Fprintf(out, "  Lead:      %s\n", appt.Lead())
	if ref := appt.CustomerRef(); ref != "" {
		fmt.Fprintf(out, "  Customer:  %s\n", ref)
	}
	if appt.WeatherDependent() {
		if check := appt.LastWeatherCheck(); check != nil {
			fmt.Fprintf(out, "  Weather:   %s (checked %s)\n", formatWeather(*check), check.CheckedAt.Local().Format(windowLayout))
			for _, r := range check.Reasons {
				fmt.Fprintf(out, "             %s\n", r)
			}
		}
		if backup := appt.BackupDate(); backup != nil {
			fmt.Fprintf(out, "  Backup:    %s\n", backup.Format(cli.DateLayout))
		}
	}
	if reason := appt.CancelReason(); reason != "" {
		fmt.Fprintf(out, "  Cancelled: %s\n", reason)
	}
	if to := appt.RescheduledTo(); to != nil {
		fmt.Fprintf(out, "  Moved to:  %s\n", *to)
	}
	if from := appt.RescheduledFrom(); from != nil {
		fmt.Fprintf(out, "  Moved from: %s\n", *from)
	}

	if len(view.Reservations) > 0 {
		fmt.Fprintln(out, "\nReservations:")
		for _, r := range view.Reservations {
			fmt.Fprintf(out, "  %s  %s  %s\n", r.ParticipantID, r.State, formatWindow(r.Window))
		}
	}
	if g := view.Group; g != nil {
		fmt.Fprintf(out, "\nCoordination (%s, quorum %d, deadline %s):\n", g.Status(), g.MinQuorum(), g.Deadline().Local().Format(windowLayout))
		for _, m := range g.Members() {
			fmt.Fprintf(out, "  %s  %s\n", m.ParticipantID, m.State)
		}
	}
	if pending := view.PendingConflicts(); len(pending) > 0 {
		fmt.Fprintln(out, "\nPending conflicts:")
		printConflicts(out, pending)
		for _, c := range pending {
			printOptions(out, c.Options())
		}
	}
	for _, note := range appt.Notes() {
		fmt.Fprintf(out, "  note: %s\n", note)
	}
}

func printAudit(out io.Writer, entries []domain.AuditEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No audit entries.")
		return
	}
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		line := fmt.Sprintf("%s  %-12s %-6s", e.RecordedAt.Local().Format(time.DateTime), e.Action, status)
		if e.AppointmentID != uuid.Nil {
			line += " " + shortID(e.AppointmentID)
		}
		if e.Reason != "" {
			line += "  " + e.Reason
		}
		if e.Breakdown != nil {
			line += fmt.Sprintf("  [score %.1f]", e.Breakdown.Total)
		}
		fmt.Fprintln(out, line)
	}
}

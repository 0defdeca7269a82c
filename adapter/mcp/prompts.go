package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common dispatch workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("book_field_job").
		Description("Walk through booking a field appointment: pick a type, search candidates, commit the best fit").
		Argument("job", "What needs doing and where, in plain words", true).
		Argument("deadline", "Latest acceptable day (YYYY-MM-DD)", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			deadline := args["deadline"]
			if deadline == "" {
				deadline = "none given"
			}
			return userPrompt("Book a field job", fmt.Sprintf(`I need to book this job: %s
Deadline: %s

Please:
1. Read crewplan://appointment-types and pick the type that fits the job.
2. Build a request with the site coordinates and one or more preferred windows.
   Set weather_dependent and a backup_date when the work is outdoors.
3. Call scheduling.find_slots and summarize the top candidates with their
   score breakdown and any soft conflicts.
4. Ask me which candidate to book, then call scheduling.commit with its
   participant_id and start.
5. If the outcome is reservation_conflict, show me the alternatives instead of
   retrying on your own. If it is conflicted, list the resolution options.`, args["job"], deadline)), nil
		})

	srv.Prompt("resolve_conflict").
		Description("Review a conflicted appointment and choose a resolution option").
		Argument("appointment_id", "Appointment with a pending conflict", true).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Resolve a scheduling conflict", fmt.Sprintf(`Appointment %s has a conflict.

Please:
1. Call scheduling.show for the appointment and list each pending conflict with
   its type, severity and window.
2. For every conflict, explain the resolution options in score order and what
   each would change for the customer and the crew.
3. Recommend one option and wait for my approval before calling
   scheduling.resolve.`, args["appointment_id"])), nil
		})

	srv.Prompt("weather_review").
		Description("Review weather-dependent work over the coming days").
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return userPrompt("Weather review", `Review upcoming weather-dependent appointments.

Please:
1. Read crewplan://audit/recent to find appointments booked or changed recently.
2. For each weather-dependent one, call scheduling.recheck_weather.
3. Report any appointment whose forecast turned unsuitable, with the reasons
   and the backup date, and suggest whether to move it now or wait.`), nil
		})

	return nil
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}

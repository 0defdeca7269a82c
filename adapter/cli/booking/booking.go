// Package booking holds the appointment commands of the crewplan CLI.
package booking

import (
	"errors"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/spf13/cobra"
)

var errNoApp = errors.New("booking commands require an initialized application")

// Commands returns the top-level booking commands.
func Commands() []*cobra.Command {
	return []*cobra.Command{
		findCmd,
		commitCmd,
		scheduleCmd,
		resolveCmd,
		cancelCmd,
		recheckCmd,
		respondCmd,
		showCmd,
		auditCmd,
	}
}

func currentApp() (*cli.App, error) {
	app := cli.GetApp()
	if app == nil {
		return nil, errNoApp
	}
	return app, nil
}

package mcp

import (
	"context"
	"errors"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	mcpinternal "github.com/felixgeelhaar/crewplan/internal/mcp"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Expose the scheduling tools, resources and prompts over MCP (streamable
HTTP). Set MCP_AUTH_TOKEN to require a bearer token.

Examples:
  crewplan mcp serve
  crewplan mcp serve --addr 127.0.0.1:8089`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil {
			return errors.New("mcp serve requires an initialized application")
		}
		cfg := *app.Config
		if serveAddr != "" {
			cfg.MCPAddr = serveAddr
		}

		err := mcpinternal.Serve(cmd.Context(), &cfg, app, cli.Logger())
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: MCP_ADDR)")
}

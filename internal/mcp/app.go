package mcp

import (
	"fmt"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	"github.com/felixgeelhaar/crewplan/internal/app"
	"github.com/google/uuid"
)

// NewCLIApp creates a CLI application instance backed by the provided
// container, acting as the configured operator.
func NewCLIApp(container *app.Container) (*cli.App, error) {
	operatorID, err := uuid.Parse(container.Config.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("invalid CREWPLAN_OPERATOR_ID: %w", err)
	}
	return cli.NewApp(container, operatorID), nil
}

package participant

import (
	"bytes"
	"context"
	"testing"

	"github.com/felixgeelhaar/crewplan/adapter/cli"
	internalApp "github.com/felixgeelhaar/crewplan/internal/app"
	"github.com/felixgeelhaar/crewplan/internal/scheduling/application/queries"
	"github.com/felixgeelhaar/crewplan/pkg/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *cli.App {
	t.Helper()
	container, err := internalApp.NewInMemoryContainer(context.Background(), &config.Config{AppEnv: "test"}, nil)
	require.NoError(t, err)

	app := cli.NewApp(container, uuid.New())
	cli.SetApp(app)
	t.Cleanup(func() {
		cli.SetApp(nil)
		app.Close()
	})
	return app
}

func resetFlags() {
	addID, addName, addAddress = "", "", ""
	addSkills = nil
	addLat, addLon, addRadius = 0, 0, 0
	addDailyCap = 0
	addDeactivate = false
	listSkills = nil
}

func run(t *testing.T, cmd *cobra.Command) string {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	t.Cleanup(func() { cmd.SetOut(nil) })
	require.NoError(t, cmd.RunE(cmd, nil))
	return out.String()
}

func TestAddCmd_RegistersParticipant(t *testing.T) {
	app := setupTestApp(t)
	resetFlags()

	addName = "Dana Ortiz"
	addSkills = []string{"repair", "hvac"}
	addLat, addLon = 39.74, -104.99
	addDailyCap = 5
	addRadius = 40

	out := run(t, addCmd)
	assert.Contains(t, out, "(active)")
	assert.Contains(t, out, "Dana Ortiz")
	assert.Contains(t, out, "cap 5/day")

	participants, err := app.ListParticipantsHandler.Handle(context.Background(), queries.ListParticipantsQuery{Skills: []string{"hvac"}})
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, 40.0, participants[0].TravelRadiusMiles())
}

func TestAddCmd_DeactivateHidesFromList(t *testing.T) {
	app := setupTestApp(t)
	resetFlags()

	addName = "Gale"
	addSkills = []string{"repair"}
	run(t, addCmd)

	participants, err := app.ListParticipantsHandler.Handle(context.Background(), queries.ListParticipantsQuery{})
	require.NoError(t, err)
	require.Len(t, participants, 1)

	addID = participants[0].ID().String()
	addDeactivate = true
	out := run(t, addCmd)
	assert.Contains(t, out, "(inactive)")

	resetFlags()
	out = run(t, listCmd)
	assert.Contains(t, out, "No participants.")
}

func TestAddCmd_InvalidID(t *testing.T) {
	setupTestApp(t)
	resetFlags()

	addName = "Gale"
	addID = "tech-1"
	addCmd.SetContext(context.Background())
	err := addCmd.RunE(addCmd, nil)
	assert.ErrorContains(t, err, "invalid participant id")
}

func TestListCmd_FiltersBySkill(t *testing.T) {
	setupTestApp(t)
	resetFlags()

	addName = "Gale"
	addSkills = []string{"repair"}
	run(t, addCmd)
	addName = "Rowan"
	addSkills = []string{"survey", "drone"}
	run(t, addCmd)

	resetFlags()
	listSkills = []string{"drone"}
	out := run(t, listCmd)
	assert.Contains(t, out, "Rowan")
	assert.NotContains(t, out, "Gale")
	assert.Contains(t, out, "radius any")
}

func TestFormatRadius(t *testing.T) {
	assert.Equal(t, "any", formatRadius(0))
	assert.Equal(t, "25mi", formatRadius(25))
}

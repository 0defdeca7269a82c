package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/crewplan/internal/shared/infrastructure/database/sqlite"
)

func TestUpFiles_BothDriversShipTheSameVersions(t *testing.T) {
	lite, err := upFiles("sqlite")
	require.NoError(t, err)
	pg, err := upFiles("postgres")
	require.NoError(t, err)

	assert.NotEmpty(t, lite)
	assert.Equal(t, lite, pg)
}

func TestRun_SQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := sqlite.NewConnection(ctx, database.Config{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "crewplan.db"),
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, Run(ctx, conn))
	require.NoError(t, Run(ctx, conn))

	var count int
	err = conn.QueryRow(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('participants', 'reservations', 'appointments', 'outbox')").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

package cli

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	local, err := ParseTime("2026-05-12T08:30")
	require.NoError(t, err)
	assert.Equal(t, time.Local, local.Location())
	assert.Equal(t, 8, local.Hour())
	assert.Equal(t, 30, local.Minute())

	spaced, err := ParseTime("2026-05-12 08:30")
	require.NoError(t, err)
	assert.True(t, spaced.Equal(local))

	utc, err := ParseTime("2026-05-12T08:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 12, 8, 30, 0, 0, time.UTC), utc.UTC())

	_, err = ParseTime("tomorrow")
	assert.ErrorContains(t, err, "invalid time")
}

func TestParseWindow(t *testing.T) {
	t.Run("bare end time", func(t *testing.T) {
		w, err := ParseWindow("2026-05-12T08:00/12:30")
		require.NoError(t, err)
		assert.Equal(t, 4*time.Hour+30*time.Minute, w.End.Sub(w.Start))
		assert.Equal(t, 12, w.End.Day())
	})

	t.Run("full end time", func(t *testing.T) {
		w, err := ParseWindow("2026-05-12T20:00/2026-05-13T02:00")
		require.NoError(t, err)
		assert.Equal(t, 6*time.Hour, w.End.Sub(w.Start))
	})

	t.Run("missing separator", func(t *testing.T) {
		_, err := ParseWindow("2026-05-12T08:00")
		assert.ErrorContains(t, err, "START/END")
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := ParseWindow("2026-05-12T12:00/08:00")
		assert.Error(t, err)
	})
}

func TestParseIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, err := ParseIDs([]string{a.String(), " " + b.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = ParseIDs([]string{"not-a-uuid"})
	assert.ErrorContains(t, err, "invalid participant id")

	_, err = ParseID("", "appointment id")
	assert.EqualError(t, err, "appointment id is required")
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-05-14")
	require.NoError(t, err)
	assert.Equal(t, 14, d.Day())

	_, err = ParseDate("05/14/2026")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFilePath(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := ValidateFilePath("")
		assert.ErrorContains(t, err, "cannot be empty")
	})

	t.Run("rejects dangerous shell characters", func(t *testing.T) {
		for _, char := range dangerousChars {
			_, err := ValidateFilePath("/tmp/job" + char + "file.json")
			assert.ErrorContains(t, err, "forbidden character", "character %q", char)
		}
	})

	t.Run("makes relative paths absolute", func(t *testing.T) {
		result, err := ValidateFilePath("job.json")
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(result))
	})

	t.Run("resolves symlinks", func(t *testing.T) {
		dir := t.TempDir()
		real := filepath.Join(dir, "tuning.yaml")
		require.NoError(t, os.WriteFile(real, []byte("weights: {}"), 0o600))
		link := filepath.Join(dir, "current.yaml")
		require.NoError(t, os.Symlink(real, link))

		result, err := ValidateFilePath(link)
		require.NoError(t, err)
		expected, _ := filepath.EvalSymlinks(real)
		assert.Equal(t, expected, result)
	})
}

func TestValidateExecutablePath(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "forecast-plugin")
	require.NoError(t, os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o700))

	resolved, err := ValidateExecutablePath(binary)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(binary), filepath.Base(resolved))

	for _, bad := range []string{"", "relative/plugin", "/tmp/plugin;rm -rf", filepath.Join(dir, "missing"), dir} {
		_, err := ValidateExecutablePath(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadInputFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("reads small files", func(t *testing.T) {
		path := filepath.Join(dir, "job.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"kind":"repair"}`), 0o600))
		data, err := ReadInputFile(path)
		require.NoError(t, err)
		assert.JSONEq(t, `{"kind":"repair"}`, string(data))
	})

	t.Run("rejects directories", func(t *testing.T) {
		_, err := ReadInputFile(dir)
		assert.ErrorContains(t, err, "not a regular file")
	})

	t.Run("rejects oversized files", func(t *testing.T) {
		path := filepath.Join(dir, "huge.json")
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", MaxInputFileSize+1)), 0o600))
		_, err := ReadInputFile(path)
		assert.ErrorContains(t, err, "larger than")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadInputFile(filepath.Join(dir, "missing.json"))
		assert.Error(t, err)
	})
}

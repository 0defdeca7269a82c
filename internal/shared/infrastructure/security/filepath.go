// Package security validates file paths handed to crewplan by operators:
// request files, tuning files and forecast plugin binaries.
package security

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxInputFileSize bounds request and tuning files.
const MaxInputFileSize = 1 << 20

// dangerousChars are shell metacharacters never accepted in a path.
var dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "{", "}", "<", ">", "!", "'", "\"", "\n", "\r"}

// ValidateFilePath cleans path, makes it absolute and resolves symlinks.
// A path that does not exist yet is returned cleaned.
func ValidateFilePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return "", fmt.Errorf("file path contains forbidden character %q: %s", char, path)
		}
	}

	clean, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return clean, nil
		}
		return "", fmt.Errorf("failed to resolve file path: %w", err)
	}
	return resolved, nil
}

// ValidateExecutablePath accepts only absolute paths to existing regular
// files. Plugin binaries are started directly, so relative lookups are refused.
func ValidateExecutablePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("plugin path cannot be empty")
	}
	if !filepath.IsAbs(filepath.Clean(path)) {
		return "", fmt.Errorf("plugin path must be absolute: %s", path)
	}
	resolved, err := ValidateFilePath(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("plugin not found: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("plugin %s is not a regular file", resolved)
	}
	return resolved, nil
}

// ReadInputFile reads a validated regular file of at most MaxInputFileSize bytes.
func ReadInputFile(path string) ([]byte, error) {
	clean, err := ValidateFilePath(path)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is validated above
	f, err := os.Open(clean)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", clean)
	}
	if info.Size() > MaxInputFileSize {
		return nil, fmt.Errorf("%s is larger than %d bytes", clean, MaxInputFileSize)
	}
	return io.ReadAll(io.LimitReader(f, MaxInputFileSize))
}

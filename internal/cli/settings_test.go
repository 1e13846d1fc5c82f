package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSettings(t *testing.T) {
	path := writeSettings(t, "db_path: /var/lib/policy.sqlite\nopen_attempts: 3\nattempt_timeout_ms: 250\n")

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/policy.sqlite", settings.DBPath)
	assert.Equal(t, 3, settings.OpenAttempts)
	assert.Equal(t, 250, settings.AttemptTimeoutMS)
}

func TestLoadSettingsRejectsUnknownFields(t *testing.T) {
	// A typo must fail, not silently fall back to a default.
	path := writeSettings(t, "db_pth: /var/lib/policy.sqlite\n")

	_, err := LoadSettings(path)
	require.Error(t, err)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestResolveSettingsFlagWins(t *testing.T) {
	path := writeSettings(t, "db_path: /from/file.sqlite\n")

	opts := &RootOptions{ConfigPath: path, DBPath: "/from/flag.sqlite"}
	settings, err := resolveSettings(opts)
	require.NoError(t, err)
	assert.Equal(t, "/from/flag.sqlite", settings.DBPath)
}

func TestResolveSettingsRequiresPath(t *testing.T) {
	_, err := resolveSettings(&RootOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database path")
}

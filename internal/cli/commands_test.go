package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carlink/policydb/internal/table"
	"github.com/carlink/policydb/internal/testutil"
)

// execute runs the CLI with args against a fresh command tree and
// returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeSampleDocument(t *testing.T, dir string) string {
	t.Helper()
	data, err := table.EncodeDocument(testutil.SampleDocument())
	require.NoError(t, err)
	path := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestInitCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "policy.sqlite")

	out, err := execute(t, "init", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ready")

	// Second init sees the existing database.
	out, err = execute(t, "init", "--db", dbPath, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestLoadCheckSnapshotFlow(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "policy.sqlite")
	docPath := writeSampleDocument(t, dir)

	out, err := execute(t, "load", docPath, "--db", dbPath, "--preloaded")
	require.NoError(t, err)
	assert.Contains(t, out, "5 applications")
	assert.Contains(t, out, "2 groups")

	t.Run("check allowed", func(t *testing.T) {
		out, err := execute(t, "check", "--db", dbPath,
			"--app", "media-app-1001", "--rpc", "GetVehicleData", "--level", "full")
		require.NoError(t, err)
		assert.Contains(t, out, "may invoke")
		assert.Contains(t, out, "gps")
	})

	t.Run("check disallowed exits 1", func(t *testing.T) {
		_, err := execute(t, "check", "--db", dbPath,
			"--app", "media-app-1001", "--rpc", "GetVehicleData", "--level", "NONE")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})

	t.Run("check invalid level exits 2", func(t *testing.T) {
		_, err := execute(t, "check", "--db", dbPath,
			"--app", "media-app-1001", "--rpc", "GetVehicleData", "--level", "SOMETIMES")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("snapshot round-trips", func(t *testing.T) {
		out, err := execute(t, "snapshot", "--db", dbPath)
		require.NoError(t, err)

		doc, err := table.ParseDocument([]byte(out))
		require.NoError(t, err)
		assert.Len(t, doc.AppPolicies.Apps, 5)
		assert.Contains(t, doc.FunctionalGroupings, "Base-4")
		assert.True(t, doc.ModuleConfig.PreloadedPT)
	})

	t.Run("status json", func(t *testing.T) {
		out, err := execute(t, "status", "--db", dbPath, "--format", "json",
			"--odometer", "1300", "--days", "19960")
		require.NoError(t, err)

		var resp Response
		require.NoError(t, json.Unmarshal([]byte(out), &resp))
		require.Equal(t, "ok", resp.Status)

		payload, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		var status StatusData
		require.NoError(t, json.Unmarshal(payload, &status))
		assert.Equal(t, 93, status.IgnitionCyclesLeft)
		require.NotNil(t, status.KilometersLeft)
		assert.Equal(t, 1700, *status.KilometersLeft)
		require.NotNil(t, status.DaysLeft)
		assert.Equal(t, 20, *status.DaysLeft)
		assert.Equal(t, 60, status.TimeoutSeconds)
		assert.True(t, status.Preloaded)
		assert.True(t, status.SchemaCurrent)
	})
}

func TestLoadRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "policy.sqlite")

	doc := testutil.SampleDocument()
	entry := doc.AppPolicies.Apps["media-app-1001"]
	entry.Params.Priority = "URGENT"
	doc.AppPolicies.Apps["media-app-1001"] = entry

	data, err := table.EncodeDocument(doc)
	require.NoError(t, err)
	docPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(docPath, data, 0o644))

	out, cmdErr := execute(t, "load", docPath, "--db", dbPath)
	require.Error(t, cmdErr)
	assert.Equal(t, ExitFailure, GetExitCode(cmdErr))
	assert.Contains(t, out, "validation failed")
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "garbage.json")
	require.NoError(t, os.WriteFile(docPath, []byte("{not json"), 0o644))

	_, err := execute(t, "load", docPath, "--db", filepath.Join(dir, "policy.sqlite"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLoadMissingDocumentExits2(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "load", filepath.Join(dir, "absent.json"),
		"--db", filepath.Join(dir, "policy.sqlite"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSnapshotToFile(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "policy.sqlite")
	docPath := writeSampleDocument(t, dir)

	_, err := execute(t, "load", docPath, "--db", dbPath)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "snapshot.json")
	_, err = execute(t, "snapshot", "--db", dbPath, "-o", outPath)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	doc, err := table.ParseDocument(data)
	require.NoError(t, err)
	assert.Contains(t, doc.FunctionalGroupings, "Emergency-1")
}

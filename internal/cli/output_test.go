package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	plain := NewExitError(ExitCommandError, "bad path")
	assert.Equal(t, "bad path", plain.Error())
	assert.Equal(t, ExitCommandError, GetExitCode(plain))

	wrapped := &ExitError{Code: ExitFailure, Message: "save failed", Err: errors.New("disk full")}
	assert.Equal(t, "save failed: disk full", wrapped.Error())
	assert.ErrorContains(t, wrapped.Unwrap(), "disk full")

	assert.Equal(t, ExitFailure, GetExitCode(errors.New("anything")))
}

func TestFormatterJSONSuccess(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Success(map[string]int{"applications": 3}))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
}

func TestFormatterJSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}
	require.NoError(t, f.Error(ErrCodeValidation, "bad document", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestFormatterTextError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}
	require.NoError(t, f.Error(ErrCodeStore, "save failed", nil))
	assert.Contains(t, buf.String(), "E003")
	assert.Contains(t, buf.String(), "save failed")
}

func TestVerboseLogRouting(t *testing.T) {
	var out, diag bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &out, ErrWriter: &diag, Verbose: true}
	f.VerboseLog("loading %s", "doc.json")

	assert.Empty(t, out.String())
	assert.Contains(t, diag.String(), "loading doc.json")

	quiet := &OutputFormatter{Format: "text", Writer: &out, Verbose: false}
	quiet.VerboseLog("hidden")
	assert.Empty(t, out.String())
}

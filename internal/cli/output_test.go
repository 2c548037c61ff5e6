package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryeko/ghx-router-sub004/internal/registry"
)

func TestOutputFormatter_Success(t *testing.T) {
	t.Run("json wraps data", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}

		require.NoError(t, f.Success(ValidationResult{Valid: true, Cards: 3}))

		var resp struct {
			Status string           `json:"status"`
			Data   ValidationResult `json:"data"`
			Error  *CLIError        `json:"error"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, ValidationResult{Valid: true, Cards: 3}, resp.Data)
		assert.Nil(t, resp.Error)
	})

	t.Run("text prints the value", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "text", Writer: buf}

		require.NoError(t, f.Success("All 14 cards valid"))
		assert.Equal(t, "All 14 cards valid\n", buf.String())
	})
}

func TestOutputFormatter_Error(t *testing.T) {
	issues := []registry.Issue{{Code: registry.ErrNoCards, Message: "no card documents found"}}

	tests := []struct {
		name     string
		format   string
		verbose  bool
		contains []string
		excludes []string
	}{
		{"text", "text", false, []string{"Error [E210]: invalid cards"}, []string{"Details:"}},
		{"text verbose", "text", true, []string{"Error [E210]", "Details:", "no card documents found"}, nil},
		{"json", "json", false, []string{`"status": "error"`, `"code": "E210"`, `"no card documents found"`}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}

			require.NoError(t, f.Error(registry.ErrNoCards, "invalid cards", issues))
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out, diag := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	f.VerboseLog("capability=%s", "repo.view")

	assert.Empty(t, out.String(), "diagnostics must not corrupt JSON on stdout")
	assert.Equal(t, "capability=repo.view\n", diag.String())
}

func TestOutputFormatter_VerboseLogQuiet(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	f.VerboseLog("capability=%s", "repo.view")

	assert.Empty(t, buf.String())
	assert.Same(t, buf, f.GetErrWriter())
}

func TestCLIResponse_OmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(CLIResponse{Status: "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(data))

	data, err = json.Marshal(CLIResponse{Status: "error", RequestID: "req-7", Error: &CLIError{Code: "E002", Message: "execution not found"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"error","request_id":"req-7","error":{"code":"E002","message":"execution not found"}}`, string(data))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad flag")))
	assert.Equal(t, ExitCommandError, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "bad flag"))))
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("permission denied")
	assert.Equal(t, "failed to read batch file: permission denied", WrapExitError(ExitCommandError, "failed to read batch file", cause).Error())
	assert.ErrorIs(t, WrapExitError(ExitCommandError, "x", cause), cause)
	assert.Empty(t, NewExitError(ExitFailure, "").Error())
}

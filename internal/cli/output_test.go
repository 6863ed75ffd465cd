package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qdsl/internal/querydoc"
	"github.com/roach88/qdsl/internal/queryir"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"sql": "SELECT 1"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeDocument, "failed to compile document", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E030", resp.Error.Code)
	assert.Equal(t, "failed to compile document", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Error(ErrCodeQuery, "query rejected", map[string]string{"code": "ARITY"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [E040]: query rejected")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error(ErrCodeQuery, "query rejected", map[string]string{"code": "ARITY"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := &querydoc.Error{Line: 4, Column: 7, Message: "unknown operator \"gt_eq\""}
	err := formatter.Fail(ErrCodeDocument, "failed to compile document", cause)

	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, cause)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E030", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "line 4 column 7")
	assert.Equal(t, map[string]any{"line": float64(4), "column": float64(7)}, resp.Error.Details)
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			errOut := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    out,
				ErrWriter: errOut,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Compiling %s", "adults.yaml")

			assert.Empty(t, out.String())
			if tt.wantLog {
				assert.Contains(t, errOut.String(), "Compiling adults.yaml")
			} else {
				assert.Empty(t, errOut.String())
			}
		})
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit_error", NewExitError(ExitCommandError, "bad path"), ExitCommandError},
		{"wrapped_exit_error", fmt.Errorf("outer: %w", NewExitError(ExitSuccess, "ok")), ExitSuccess},
		{"plain_error", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "bad path", NewExitError(ExitCommandError, "bad path").Error())
	assert.Equal(t, "failed to open: boom", WrapExitError(ExitCommandError, "failed to open", errors.New("boom")).Error())
}

func TestErrorDetails(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want any
	}{
		{
			name: "projection_mismatch",
			err:  queryir.NewProjectionMismatch(queryir.CodeArity, 1, "two columns for one field"),
			want: map[string]string{"kind": "ProjectionMismatchError", "code": "ARITY"},
		},
		{
			name: "document_position",
			err:  fmt.Errorf("compile: %w", &querydoc.Error{Line: 2, Column: 3, Message: "bad"}),
			want: map[string]int{"line": 2, "column": 3},
		},
		{
			name: "document_without_position",
			err:  &querydoc.Error{Message: "either query or mutation is required"},
			want: nil,
		},
		{
			name: "other",
			err:  errors.New("boom"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorDetails(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrCodeQuery, classify(queryir.NewProjectionMismatch(queryir.CodeIncompatibleType, 0, "x")))
	assert.Equal(t, ErrCodeDocument, classify(&querydoc.Error{Message: "x"}))
}

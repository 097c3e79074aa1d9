package cli

import (
	"bytes"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgq-dev/pgq"
	"github.com/pgq-dev/pgq/gateway"
)

func TestOutputQueryText(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{Format: FormatText, Writer: &buf}

	require.NoError(t, formatter.Query(pgq.QueryOf(`SELECT * FROM users WHERE "id" = $1 AND "meta" = $2`, 7, nil)))
	assert.Equal(t, "SELECT * FROM users WHERE \"id\" = $1 AND \"meta\" = $2\n$1 = 7\n$2 = null\n", buf.String())
}

func TestOutputQueryJSON(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{Format: FormatJSON, Writer: &buf}

	require.NoError(t, formatter.Query(pgq.QueryOf(`SELECT 1`)))
	assert.Equal(t, `{"status":"ok","data":{"sqlText":"SELECT 1","values":[]}}`+"\n", buf.String())
}

func TestOutputRows(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{Format: FormatText, Writer: &buf}

	require.NoError(t, formatter.Rows([]gateway.Row{{`id`: 1, `name`: `John`}, {`id`: 2, `name`: `Jane`}}))
	assert.Equal(t, "{\"id\":1,\"name\":\"John\"}\n{\"id\":2,\"name\":\"Jane\"}\n", buf.String())

	buf.Reset()
	formatter.Format = FormatJSON
	require.NoError(t, formatter.Rows(nil))
	assert.Equal(t, `{"status":"ok","data":[]}`+"\n", buf.String())
}

func TestOutputAffected(t *testing.T) {
	var buf bytes.Buffer
	formatter := &OutputFormatter{Format: FormatText, Writer: &buf}

	require.NoError(t, formatter.Affected(3))
	assert.Equal(t, "3 row(s) affected\n", buf.String())
}

func TestFail(t *testing.T) {
	t.Run(`database`, func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &OutputFormatter{Format: FormatText, Writer: &buf, Verbose: true}

		err := formatter.Fail(&pq.Error{Code: gateway.CodeUniqueViolation, Message: `duplicate key`})
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.True(t, IsReported(err))
		assert.True(t, gateway.IsUniqueViolation(err))
		assert.Contains(t, buf.String(), "Error [E003]: ")
		assert.Contains(t, buf.String(), `duplicate key`)
		assert.Contains(t, buf.String(), "Details: map[sqlState:23505]\n")
	})

	t.Run(`generic`, func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &OutputFormatter{Format: FormatText, Writer: &buf}

		err := formatter.Fail(errors.New(`boom`))
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "Error [E001]: boom\n", buf.String())
	})

	t.Run(`usage`, func(t *testing.T) {
		var buf bytes.Buffer
		formatter := &OutputFormatter{Format: FormatText, Writer: &buf}

		err := formatter.Fail(NewExitError(ExitCommandError, `no schema`))
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Equal(t, "Error [E002]: no schema\n", buf.String())
	})
}

func TestVerboseLog(t *testing.T) {
	var out, errOut bytes.Buffer
	formatter := &OutputFormatter{Format: FormatJSON, Writer: &out, ErrWriter: &errOut}

	formatter.VerboseLog(`step %q`, `u`)
	assert.Empty(t, errOut.String())

	formatter.Verbose = true
	formatter.VerboseLog(`step %q`, `u`)
	assert.Empty(t, out.String())
	assert.Equal(t, "step \"u\"\n", errOut.String())
}

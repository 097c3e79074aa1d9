package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgq-dev/pgq"
)

func TestLoadSchema(t *testing.T) {
	schema, err := LoadSchema(testSchema)
	require.NoError(t, err)
	assert.Equal(t, []string{`posts`, `users`}, schema.Names())

	users, err := schema.Table(`users`)
	require.NoError(t, err)
	assert.Equal(t, []string{`id`}, users.PrimaryKeys())
	assert.Equal(t, `lastChangedBy`, users.AuditColumn())
	assert.Equal(t, pgq.DefaultAuditUser, users.AuditUser())

	col, ok := users.Column(`meta`)
	require.True(t, ok)
	assert.Equal(t, pgq.TypeJsonb, col.Type)

	posts, err := schema.Table(`posts`)
	require.NoError(t, err)
	assert.Equal(t, `SYSTEM`, posts.AuditUser())
}

func TestLoadSchemaMissingFile(t *testing.T) {
	_, err := LoadSchema(`testdata/missing.yaml`)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseSchema(t *testing.T) {
	t.Run(`empty`, func(t *testing.T) {
		_, err := ParseSchema([]byte(`tables: []`))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run(`duplicate_table`, func(t *testing.T) {
		_, err := ParseSchema([]byte(`
tables:
  - {name: users, columns: [{name: id}]}
  - {name: users, columns: [{name: id}]}
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `declared twice`)
	})

	t.Run(`two_audit_columns`, func(t *testing.T) {
		_, err := ParseSchema([]byte(`
tables:
  - name: users
    columns:
      - {name: createdBy, audit: true}
      - {name: changedBy, audit: true}
`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, pgq.ErrInvalidInput))
	})

	t.Run(`unknown_type`, func(t *testing.T) {
		_, err := ParseSchema([]byte(`
tables:
  - name: users
    columns:
      - {name: id, type: serial8}
`))
		require.Error(t, err)
		assert.True(t, errors.Is(err, pgq.ErrInvalidInput))
	})

	t.Run(`malformed`, func(t *testing.T) {
		_, err := ParseSchema([]byte(`tables: {`))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run(`default_type`, func(t *testing.T) {
		schema, err := ParseSchema([]byte(`
tables:
  - name: tags
    columns:
      - {name: label}
`))
		require.NoError(t, err)
		col, ok := schema[`tags`].Column(`label`)
		require.True(t, ok)
		assert.Equal(t, pgq.TypeText, col.Type)
	})
}

package cli

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pgq-dev/pgq"
)

// Contents of a schema file.
type SchemaFile struct {
	Tables []TableSpec `yaml:"tables"`
}

// One table declaration in a schema file.
type TableSpec struct {
	Name      string       `yaml:"name"`
	AuditUser string       `yaml:"auditUser"`
	Columns   []pgq.Column `yaml:"columns"`
}

// Declared tables by name.
type Schema map[string]*pgq.Table

// Returns the named table, or an error listing the declared ones.
func (self Schema) Table(name string) (*pgq.Table, error) {
	table := self[name]
	if table == nil {
		return nil, NewExitError(ExitCommandError,
			fmt.Sprintf(`unknown table %q; declared tables: %v`, name, self.Names()))
	}
	return table, nil
}

// Sorted table names.
func (self Schema) Names() []string {
	out := make([]string, 0, len(self))
	for name := range self {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reads and validates a YAML schema file.
func LoadSchema(path string) (Schema, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `reading schema`, err)
	}
	return ParseSchema(src)
}

// Validates every table of a YAML schema document.
func ParseSchema(src []byte) (Schema, error) {
	var file SchemaFile
	err := yaml.Unmarshal(src, &file)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `decoding schema`, err)
	}
	if len(file.Tables) == 0 {
		return nil, NewExitError(ExitCommandError, `schema declares no tables`)
	}

	out := make(Schema, len(file.Tables))
	for _, spec := range file.Tables {
		if out[spec.Name] != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf(`table %q is declared twice`, spec.Name))
		}

		table, err := pgq.NewTable(spec.Name, spec.Columns...)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, `declaring schema`, err)
		}
		if spec.AuditUser != `` {
			table = table.WithAuditUser(spec.AuditUser)
		}
		out[spec.Name] = table
	}
	return out, nil
}

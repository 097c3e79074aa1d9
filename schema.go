package pgq

import (
	"fmt"
	"strings"
)

// Default value of the audit column when the caller doesn't provide one.
const DefaultAuditUser = `SERVER`

// Token accepted by `Table.Allow` meaning "every column of the table".
const AllowAllToken = `*`

// Base scalar type of a column. Informational: the builders never cast values.
type Type string

const (
	TypeText      Type = `text`
	TypeInt       Type = `int`
	TypeBigint    Type = `bigint`
	TypeNumeric   Type = `numeric`
	TypeBool      Type = `bool`
	TypeDate      Type = `date`
	TypeTimestamp Type = `timestamp`
	TypeJson      Type = `json`
	TypeJsonb     Type = `jsonb`
	TypeUuid      Type = `uuid`
)

// Parses a type name, case-insensitively. Empty input means `TypeText`.
func ParseType(src string) (Type, error) {
	switch typ := Type(strings.ToLower(strings.TrimSpace(src))); typ {
	case ``:
		return TypeText, nil
	case TypeText, TypeInt, TypeBigint, TypeNumeric, TypeBool, TypeDate,
		TypeTimestamp, TypeJson, TypeJsonb, TypeUuid:
		return typ, nil
	default:
		return ``, ErrInvalidInput.while(`parsing column type`).becausef(`unknown type %q`, src)
	}
}

// True for types whose values may be queried with JSON containment.
func (self Type) IsJson() bool { return self == TypeJson || self == TypeJsonb }

/*
Declaration of one column. `Audit` marks the column that records who last
changed the row: the statement builder always fills it. At most one column per
table may be an audit column. `Check` is metadata only.
*/
type Column struct {
	Name          string `json:"name"          yaml:"name"`
	Type          Type   `json:"type"          yaml:"type"`
	PrimaryKey    bool   `json:"primaryKey"    yaml:"primaryKey"`
	NotNull       bool   `json:"notNull"       yaml:"notNull"`
	Unique        bool   `json:"unique"        yaml:"unique"`
	AutoIncrement bool   `json:"autoIncrement" yaml:"autoIncrement"`
	Audit         bool   `json:"audit"         yaml:"audit"`
	Check         string `json:"check"         yaml:"check"`
}

/*
Declared table schema: ordered columns plus the derived primary-key set and
audit column. Constructed once via `NewTable` or `TableOf`, immutable
afterwards, and safe for concurrent use without synchronization. Accessors
return copies.
*/
type Table struct {
	name      string
	cols      []Column
	index     map[string]int
	pks       []string
	audit     string
	auditUser string
}

// Validates the declaration and builds an immutable table.
func NewTable(name string, cols ...Column) (*Table, error) {
	const while = `declaring table`

	err := validateIdent(while, name)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, ErrInvalidInput.while(while).becausef(`table %q has no columns`, name)
	}

	tab := &Table{
		name:      name,
		cols:      make([]Column, 0, len(cols)),
		index:     make(map[string]int, len(cols)),
		auditUser: DefaultAuditUser,
	}

	for _, col := range cols {
		if !isColumnName(col.Name) {
			return nil, ErrInvalidInput.while(while).becausef(`invalid column name %q in table %q`, col.Name, name)
		}
		if _, ok := tab.index[col.Name]; ok {
			return nil, ErrInvalidInput.while(while).becausef(`duplicate column %q in table %q`, col.Name, name)
		}

		col.Type, err = ParseType(string(col.Type))
		if err != nil {
			return nil, err
		}

		if col.Audit {
			if tab.audit != `` {
				return nil, ErrInvalidInput.while(while).becausef(
					`table %q declares more than one audit column: %q and %q`, name, tab.audit, col.Name,
				)
			}
			if col.PrimaryKey {
				return nil, ErrInvalidInput.while(while).becausef(`audit column %q can't be a primary key`, col.Name)
			}
			tab.audit = col.Name
		}

		if col.PrimaryKey {
			col.NotNull = true
			tab.pks = append(tab.pks, col.Name)
		}

		tab.index[col.Name] = len(tab.cols)
		tab.cols = append(tab.cols, col)
	}
	return tab, nil
}

// Same as `NewTable` but panics on error. Intended for package-level
// declarations.
func MustTable(name string, cols ...Column) *Table {
	tab, err := NewTable(name, cols...)
	if err != nil {
		panic(err)
	}
	return tab
}

/*
Returns a copy of the table with a different default value for the audit
column. The default is `DefaultAuditUser`.
*/
func (self *Table) WithAuditUser(val string) *Table {
	out := *self
	out.auditUser = val
	return &out
}

// Table name as used in SQL text.
func (self *Table) Name() string { return self.name }

// Copy of the column declarations, in declaration order.
func (self *Table) Columns() []Column {
	out := make([]Column, len(self.cols))
	copy(out, self.cols)
	return out
}

// Column names in declaration order.
func (self *Table) ColumnNames() []string {
	out := make([]string, len(self.cols))
	for i, col := range self.cols {
		out[i] = col.Name
	}
	return out
}

// Finds a column by name.
func (self *Table) Column(name string) (Column, bool) {
	index, ok := self.index[name]
	if !ok {
		return Column{}, false
	}
	return self.cols[index], true
}

// True if the table declares a column with this name.
func (self *Table) Has(name string) bool {
	_, ok := self.index[name]
	return ok
}

// Names of the primary-key columns, in declaration order.
func (self *Table) PrimaryKeys() []string { return copyStrings(self.pks) }

// True if the column is part of the primary key.
func (self *Table) IsPrimaryKey(name string) bool {
	col, ok := self.Column(name)
	return ok && col.PrimaryKey
}

// Name of the audit column, or "" if the table has none.
func (self *Table) AuditColumn() string { return self.audit }

// Default value of the audit column.
func (self *Table) AuditUser() string { return self.auditUser }

// Implement `fmt.Stringer` for debug purposes.
func (self *Table) String() string {
	return fmt.Sprintf(`%v(%v)`, self.name, strings.Join(self.ColumnNames(), `, `))
}

/*
Resolves an allow-list: the literal token "*" means every column of the table,
otherwise the names must be unique columns of the table. The order of the
input is preserved. No input means "allow nothing".
*/
func (self *Table) Allow(names ...string) (AllowList, error) {
	const while = `building allow-list`

	if len(names) == 1 && names[0] == AllowAllToken {
		return AllowList{names: self.ColumnNames()}.index(), nil
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == AllowAllToken {
			return AllowList{}, ErrInvalidInput.while(while).becausef(
				`%q must be the only element of an allow-list`, AllowAllToken,
			)
		}
		if _, ok := seen[name]; ok {
			return AllowList{}, ErrNonUniqueAllow.while(while).becausef(`column %q is listed more than once`, name)
		}
		if !self.Has(name) {
			return AllowList{}, ErrUnknownField.while(while).becausef(`table %q has no column %q`, self.name, name)
		}
		seen[name] = struct{}{}
	}

	return AllowList{names: copyStrings(names)}.index(), nil
}

// Same as `.Allow` but panics on error.
func (self *Table) MustAllow(names ...string) AllowList {
	out, err := self.Allow(names...)
	if err != nil {
		panic(err)
	}
	return out
}

/*
Resolved, ordered set of column names permitted in one call. Independent of
the full schema: a column may be declared but not allowed. The zero value
permits nothing. Obtain via `Table.Allow`.
*/
type AllowList struct {
	names []string
	set   map[string]struct{}
}

func (self AllowList) index() AllowList {
	self.set = make(map[string]struct{}, len(self.names))
	for _, name := range self.names {
		self.set[name] = struct{}{}
	}
	return self
}

// True if the column may appear in SQL text.
func (self AllowList) Has(name string) bool {
	_, ok := self.set[name]
	return ok
}

// Allowed column names, in order.
func (self AllowList) Names() []string { return copyStrings(self.names) }

// Amount of allowed columns.
func (self AllowList) Len() int { return len(self.names) }

package pgq

import (
	"database/sql/driver"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
)

// Kind of a `Statement`.
type StmtKind byte

const (
	StmtInsert StmtKind = iota
	StmtUpdate
)

// Implement `fmt.Stringer`.
func (self StmtKind) String() string {
	if self == StmtUpdate {
		return `update`
	}
	return `insert`
}

/*
Scalar subquery reading one column of an earlier chain step:

	(SELECT "id" FROM u)

Used as an `Assignment` value. Consumes no parameter.
*/
type StepCol struct {
	Step string
	Col  string
}

func (self StepCol) appendTo(bui *Bui) {
	bui.Str(`(SELECT `)
	bui.Ident(``, self.Col)
	bui.Str(` FROM `)
	bui.Str(self.Step)
	bui.Str(`)`)
}

/*
Cross-step reference in a `Chain`: the column `.To` of the referencing step
takes its value from the column `.Col` of the earlier step `.From`.
*/
type Ref struct {
	From string `json:"from" yaml:"from"`
	Col  string `json:"col"  yaml:"col"`
	To   string `json:"to"   yaml:"to"`
}

/*
One column of an INSERT or UPDATE. `.Val` is either a literal, passed as an
argument, or a `StepCol`, rendered as a scalar subquery.
*/
type Assignment struct {
	Col string
	Val interface{}
}

/*
Structured INSERT or UPDATE, as produced by `Table.Insert` and `Table.Update`.
Kept as a node rather than text so that `Chain` can rewrite individual column
values without parsing SQL. Render via `.Query`.

For inserts, `.Conflict` lists the conflict keys of an upsert. Every assigned
column outside `.Conflict` is updated from `EXCLUDED`. For updates, `.Where`
is the predicate, including the WHERE keyword, numbered from "$1".
*/
type Statement struct {
	Kind      StmtKind
	Table     string
	Assign    []Assignment
	Upsert    bool
	Conflict  []string
	Returning []string
	Where     Query

	schema *Table
	allow  AllowList
}

// Names of the assigned columns, in order.
func (self Statement) Columns() []string {
	out := make([]string, len(self.Assign))
	for i, val := range self.Assign {
		out[i] = val.Col
	}
	return out
}

/*
Returns a copy where the column `ref.To` is sourced from `(SELECT "<ref.Col>"
FROM <ref.From>)`. If the statement already assigns the column, its value is
replaced and the corresponding argument disappears; otherwise the column is
appended. For statements built by a `Table`, `ref.To` must be in the
allow-list the statement was built with.
*/
func (self Statement) With(ref Ref) (Statement, error) {
	const while = `injecting reference`

	err := validateName(while, ref.From)
	if err != nil {
		return self, err
	}
	if !isColumnName(ref.Col) || !isColumnName(ref.To) {
		return self, ErrInvalidInput.while(while).becausef(`invalid column in reference %+v`, ref)
	}
	if self.schema != nil && !self.schema.Has(ref.To) {
		return self, ErrUnknownField.while(while).becausef(`table %q has no column %q`, self.Table, ref.To)
	}
	if self.schema != nil && !self.allow.Has(ref.To) {
		return self, ErrUnknownField.while(while).becausef(`field %q is not allowed`, ref.To)
	}

	val := StepCol{Step: ref.From, Col: ref.Col}
	assign := make([]Assignment, len(self.Assign), len(self.Assign)+1)
	copy(assign, self.Assign)

	found := false
	for i := range assign {
		if assign[i].Col == ref.To {
			assign[i].Val = val
			found = true
		}
	}
	if !found {
		assign = append(assign, Assignment{ref.To, val})
	}

	self.Assign = assign
	return self, nil
}

// Renders the statement as a parameterized query.
func (self Statement) Query() (Query, error) {
	err := validateIdent(`rendering statement`, self.Table)
	if err != nil {
		return Query{}, err
	}

	var bui Bui
	switch self.Kind {
	case StmtInsert:
		err = self.appendInsert(&bui)
	case StmtUpdate:
		err = self.appendUpdate(&bui)
	default:
		err = ErrInvalidInput.while(`rendering statement`).becausef(`unknown statement kind %v`, self.Kind)
	}
	if err != nil {
		return Query{}, err
	}

	appendReturning(&bui, self.Returning)
	return bui.Get(), nil
}

func (self Statement) appendInsert(bui *Bui) error {
	bui.Str(`INSERT INTO `)
	bui.Str(self.Table)

	if len(self.Assign) == 0 {
		bui.Str(` DEFAULT VALUES`)
	} else {
		bui.Str(` (`)
		for i, val := range self.Assign {
			if i > 0 {
				bui.Str(`,`)
			}
			bui.Ident(``, val.Col)
		}
		bui.Str(`) VALUES (`)
		for i, val := range self.Assign {
			if i > 0 {
				bui.Str(`,`)
			}
			appendValue(bui, val.Val)
		}
		bui.Str(`)`)
	}

	if !self.Upsert {
		return nil
	}
	if len(self.Conflict) == 0 {
		return ErrInvalidInput.while(`rendering upsert`).becausef(`table %q has no conflict keys`, self.Table)
	}

	bui.Str(` ON CONFLICT (`)
	for i, col := range self.Conflict {
		if i > 0 {
			bui.Str(`,`)
		}
		bui.Ident(``, col)
	}
	bui.Str(`)`)

	excluded := self.excluded()
	if len(excluded) == 0 {
		bui.Str(` DO NOTHING`)
		return nil
	}

	bui.Str(` DO UPDATE SET `)
	for i, col := range excluded {
		if i > 0 {
			bui.Str(`, `)
		}
		bui.Ident(``, col)
		bui.Str(` = EXCLUDED.`)
		bui.Ident(``, col)
	}
	return nil
}

// Assigned columns outside the conflict keys. Primary keys never appear here.
func (self Statement) excluded() []string {
	var out []string
	for _, val := range self.Assign {
		if !containsString(self.Conflict, val.Col) &&
			!(self.schema != nil && self.schema.IsPrimaryKey(val.Col)) {
			out = append(out, val.Col)
		}
	}
	return out
}

func (self Statement) appendUpdate(bui *Bui) error {
	const while = `rendering update`

	if len(self.Assign) == 0 {
		return ErrInvalidInput.while(while).becausef(`nothing to update in table %q`, self.Table)
	}

	bui.Str(`UPDATE `)
	bui.Str(self.Table)
	bui.Str(` SET `)
	for i, val := range self.Assign {
		if i > 0 {
			bui.Str(`, `)
		}
		bui.Ident(``, val.Col)
		bui.Str(` = `)
		appendValue(bui, val.Val)
	}

	if self.Where.IsEmpty() {
		return nil
	}

	err := self.Where.Validate()
	if err != nil {
		return err
	}
	bui.Space()
	return bui.Sub(self.Where)
}

func appendValue(bui *Bui, val interface{}) {
	sub, ok := val.(StepCol)
	if ok {
		sub.appendTo(bui)
		return
	}
	bui.Arg(val)
}

func appendReturning(bui *Bui, cols []string) {
	if len(cols) == 0 {
		return
	}
	bui.Str(` RETURNING `)
	if len(cols) == 1 && cols[0] == AllowAllToken {
		bui.Str(`*`)
		return
	}
	for i, col := range cols {
		if i > 0 {
			bui.Str(`, `)
		}
		bui.Ident(``, col)
	}
}

// Options for `Table.Insert`.
type InsertOpts struct {
	// Value of the audit column. Defaults to `Table.AuditUser`.
	ChangedBy string

	// Adds `ON CONFLICT (<primary keys>) DO UPDATE SET ...`.
	Upsert bool

	// Columns to return: nil for none, `{"*"}` for all, or explicit names.
	Returning []string
}

// Options for `Table.Update`.
type UpdateOpts struct {
	// Value of the audit column. Defaults to `Table.AuditUser`.
	ChangedBy string

	// Permits an update without a predicate. Without it, such an update is
	// rejected with `ErrMissingPredicate`.
	Unconditional bool

	// Columns to return: nil for none, `{"*"}` for all, or explicit names.
	Returning []string

	// Allow-list for the predicate when it's a `Filter`. When empty, the
	// allow-list of the data is used.
	WhereAllow AllowList
}

/*
Builds an INSERT from a map or a `db`-tagged struct. Keys unknown to the schema
fail with `ErrUnknownField`. Keys outside the allow-list are dropped, and so
are nil values: absent and null are the same thing here. Columns follow schema
order. When the table declares an audit column, it's always appended last.
*/
func (self *Table) Insert(data interface{}, allow AllowList, opts InsertOpts) (Statement, error) {
	assign, err := self.assignments(`building insert`, data, allow, opts.ChangedBy)
	if err != nil {
		return Statement{}, err
	}

	returning, err := self.returning(opts.Returning)
	if err != nil {
		return Statement{}, err
	}

	if opts.Upsert && len(self.pks) == 0 {
		return Statement{}, ErrInvalidInput.while(`building upsert`).becausef(
			`table %q has no primary key`, self.name,
		)
	}

	out := Statement{
		Kind:      StmtInsert,
		Table:     self.name,
		Assign:    assign,
		Upsert:    opts.Upsert,
		Returning: returning,
		schema:    self,
		allow:     allow,
	}
	if opts.Upsert {
		out.Conflict = self.PrimaryKeys()
	}
	return out, nil
}

/*
Builds an UPDATE. `where` may be a `Filter`, a `map[string]interface{}`
(converted via `FilterOf`), a `Query` holding a raw predicate, or nil.

An update whose predicate is empty after applying the allow-list is rejected
with `ErrMissingPredicate` unless `opts.Unconditional` is set. This check runs
before anything else.
*/
func (self *Table) Update(data interface{}, allow AllowList, where interface{}, opts UpdateOpts) (Statement, error) {
	const while = `building update`

	whereAllow := opts.WhereAllow
	if whereAllow.Len() == 0 {
		whereAllow = allow
	}

	pred, err := compileUpdateWhere(where, whereAllow)
	if err != nil {
		return Statement{}, err
	}
	if pred.IsEmpty() && !opts.Unconditional {
		return Statement{}, ErrMissingPredicate.while(while).becausef(
			`refusing to update every row of %q; pass a predicate or opt into an unconditional update`, self.name,
		)
	}

	assign, err := self.assignments(while, data, allow, opts.ChangedBy)
	if err != nil {
		return Statement{}, err
	}
	if len(assign) == 0 {
		return Statement{}, ErrInvalidInput.while(while).becausef(`nothing to update in table %q`, self.name)
	}

	returning, err := self.returning(opts.Returning)
	if err != nil {
		return Statement{}, err
	}

	return Statement{
		Kind:      StmtUpdate,
		Table:     self.name,
		Assign:    assign,
		Returning: returning,
		Where:     pred,
		schema:    self,
		allow:     allow,
	}, nil
}

func compileUpdateWhere(where interface{}, allow AllowList) (Query, error) {
	const while = `building update predicate`

	switch where := where.(type) {
	case nil:
		return Query{}, nil

	case Query:
		text := strings.TrimSpace(where.String())
		if text == `` {
			return Query{}, nil
		}
		if !hasWhereKeyword(text) {
			text = `WHERE ` + text
		}
		return QueryOf(text, where.Args...), nil

	case map[string]interface{}:
		return compileUpdateWhere(FilterOf(where), allow)

	case Filter:
		for _, cond := range where {
			field, op, err := ParseKey(cond.Key)
			if err == nil && op == OpOrderBy && allow.Has(field) {
				return Query{}, ErrInvalidInput.while(while).becausef(`%q is not supported in updates`, cond.Key)
			}
		}
		return BuildWhere(where, allow, WhereOpts{})

	default:
		return Query{}, ErrInvalidInput.while(while).becausef(`unsupported predicate type %T`, where)
	}
}

func (self *Table) assignments(while string, data interface{}, allow AllowList, changedBy string) ([]Assignment, error) {
	dict, err := dataMap(data)
	if err != nil {
		return nil, ErrInvalidInput.while(while).because(err)
	}

	keys := make([]string, 0, len(dict))
	for key := range dict {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !self.Has(key) {
			return nil, ErrUnknownField.while(while).becausef(`table %q has no column %q`, self.name, key)
		}
	}

	var out []Assignment
	for _, col := range self.cols {
		if col.Audit || !allow.Has(col.Name) {
			continue
		}

		val, err := normNil(dict[col.Name])
		if err != nil {
			return nil, ErrInvalidInput.while(while).because(err)
		}
		if val == nil {
			continue
		}

		val, err = columnValue(col, dict[col.Name])
		if err != nil {
			return nil, ErrInvalidInput.while(while).because(err)
		}
		out = append(out, Assignment{col.Name, val})
	}

	if self.audit != `` {
		out = append(out, Assignment{self.audit, self.auditValue(dict, changedBy)})
	}
	return out, nil
}

/*
Maps, slices and structs assigned to JSON columns are encoded as JSON text,
since drivers can't encode them. Other values are passed as-is.
*/
func columnValue(col Column, val interface{}) (interface{}, error) {
	if !col.Type.IsJson() {
		return val, nil
	}
	if _, ok := val.(driver.Valuer); ok {
		return val, nil
	}

	switch reflect.ValueOf(val).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		if bytes, ok := val.([]byte); ok {
			return bytes, nil
		}
		out, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		return string(out), nil
	default:
		return val, nil
	}
}

// Explicit option first, then a non-empty value from the data, then the
// default.
func (self *Table) auditValue(dict map[string]interface{}, changedBy string) interface{} {
	if changedBy != `` {
		return changedBy
	}
	val, _ := normNil(dict[self.audit])
	if val != nil && val != `` {
		return val
	}
	return self.auditUser
}

func (self *Table) returning(cols []string) ([]string, error) {
	const while = `building returning clause`

	if len(cols) == 0 {
		return nil, nil
	}
	if len(cols) == 1 && cols[0] == AllowAllToken {
		return []string{AllowAllToken}, nil
	}

	for _, col := range cols {
		if col == AllowAllToken {
			return nil, ErrInvalidInput.while(while).becausef(`%q must be the only returned column`, AllowAllToken)
		}
		if !self.Has(col) {
			return nil, ErrUnknownField.while(while).becausef(`table %q has no column %q`, self.name, col)
		}
	}
	return copyStrings(cols), nil
}

func containsString(list []string, val string) bool {
	for _, elem := range list {
		if elem == val {
			return true
		}
	}
	return false
}

// True if the text starts with the WHERE keyword followed by whitespace.
func hasWhereKeyword(src string) bool {
	const keyword = `where`
	return len(src) > len(keyword) &&
		strings.EqualFold(src[:len(keyword)], keyword) &&
		isWhitespaceChar(rune(src[len(keyword)]))
}

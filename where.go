package pgq

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Reserved pseudo-fields honored by `BuildWhere` when `WhereOpts.Paginate` is
// set. Never validated against the schema.
const (
	KeyLimit  = `limit`
	KeyOffset = `offset`
)

// Options for `BuildWhere` and `Table.Select`.
type WhereOpts struct {
	// Unquoted table alias prefixed to every column.
	Alias string

	// Enables the reserved "limit" and "offset" pseudo-fields.
	Paginate bool

	// Columns selected by `Table.Select`. Empty means "*".
	Columns []string
}

/*
Compiles a filter into a WHERE / ORDER BY / LIMIT / OFFSET tail. Entries whose
base field is outside the allow-list are silently dropped. The remaining
conditions are AND-joined in filter order, each compiled independently and
folded via `Reconcile`, so the resulting parameters are exactly "$1".."$N" for
N arguments. Every "orderBy" entry contributes an ORDER BY item, in filter
order.

Returns an empty query when nothing applies.
*/
func BuildWhere(filter Filter, allow AllowList, opts WhereOpts) (Query, error) {
	const while = `building where clause`

	var (
		where  Query
		ords   Ords
		limit  string
		offset string
	)

	for _, cond := range filter {
		if opts.Paginate && (cond.Key == KeyLimit || cond.Key == KeyOffset) {
			num, err := parseCount(cond.Val)
			if err != nil {
				return Query{}, ErrInvalidInput.while(while).becausef(`%q: %w`, cond.Key, err)
			}
			if cond.Key == KeyLimit {
				limit = num
			} else {
				offset = num
			}
			continue
		}

		field, _, _ := strings.Cut(cond.Key, `.`)
		if !allow.Has(field) {
			continue
		}

		frag, err := CompileCond(cond, allow, opts.Alias)
		if err != nil {
			return Query{}, err
		}
		ords = append(ords, frag.Order...)

		if frag.Where.IsEmpty() {
			continue
		}
		if where.IsEmpty() {
			where = QueryOf(`WHERE `+frag.Where.String(), frag.Where.Args...)
			continue
		}

		where.Text = append(where.Text, ` AND`...)
		where, err = Reconcile(where, frag.Where)
		if err != nil {
			return Query{}, err
		}
	}

	var out Query
	out.Text = where.Text
	out.Args = where.Args
	if len(ords) > 0 {
		ords.AppendBytes(&out.Text)
	}
	if limit != `` {
		appendSpaceIfNeeded(&out.Text)
		appendStr(&out.Text, `LIMIT `+limit)
	}
	if offset != `` {
		appendSpaceIfNeeded(&out.Text)
		appendStr(&out.Text, `OFFSET `+offset)
	}
	return out, nil
}

/*
Builds a SELECT over the table, followed by the output of `BuildWhere`. The
selected columns come from `opts.Columns` and must be declared by the table.
*/
func (self *Table) Select(filter Filter, allow AllowList, opts WhereOpts) (Query, error) {
	const while = `building select`

	var bui Bui
	bui.Str(`SELECT `)

	if len(opts.Columns) == 0 || (len(opts.Columns) == 1 && opts.Columns[0] == AllowAllToken) {
		bui.Str(`*`)
	} else {
		for i, col := range opts.Columns {
			if !self.Has(col) {
				return Query{}, ErrUnknownField.while(while).becausef(`table %q has no column %q`, self.name, col)
			}
			if i > 0 {
				bui.Str(`, `)
			}
			bui.Ident(opts.Alias, col)
		}
	}

	bui.Str(` FROM `)
	bui.Str(self.name)
	if opts.Alias != `` {
		err := validateName(while, opts.Alias)
		if err != nil {
			return Query{}, err
		}
		bui.Str(` `)
		bui.Str(opts.Alias)
	}

	tail, err := BuildWhere(filter, allow, opts)
	if err != nil {
		return Query{}, err
	}
	return Reconcile(bui.Get(), tail)
}

/*
Appends a generated fragment, such as the output of `BuildWhere`, to predefined
SQL text with its own parameters. Shortcut for `Reconcile`.
*/
func WithWhere(base Query, where Query) (Query, error) {
	return Reconcile(base, where)
}

// LIMIT and OFFSET are interpolated, so only non-negative integers pass.
func parseCount(val interface{}) (string, error) {
	switch val := val.(type) {
	case int:
		if val >= 0 {
			return strconv.Itoa(val), nil
		}
	case int64:
		if val >= 0 {
			return strconv.FormatInt(val, 10), nil
		}
	case float64:
		if val >= 0 && val == math.Trunc(val) && val <= math.MaxInt64 {
			return strconv.FormatInt(int64(val), 10), nil
		}
	case json.Number:
		return parseCount(string(val))
	case string:
		num, err := strconv.ParseUint(strings.TrimSpace(val), 10, 63)
		if err == nil {
			return strconv.FormatUint(num, 10), nil
		}
	}
	return ``, ErrInvalidInput.becausef(`expected non-negative integer, got %#v`, val)
}

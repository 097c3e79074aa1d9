package pgq

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitranim/refut"
)

const (
	TagNameDb  = `db`
	TagNamePgq = `pgq`
)

/*
Scans a struct, accumulating fields tagged with `db` into a map suitable as
input for `Table.Insert` and `Table.Update`. The input must be a struct or a
struct pointer. A nil pointer is fine and produces an empty non-nil map.
Treats embedded structs as part of enclosing structs.

Nil-valued fields are kept in the map; the statement builder drops them.
*/
func StructMap(input interface{}) (map[string]interface{}, error) {
	dict := map[string]interface{}{}
	err := traverseStructDbFields(input, func(name string, value interface{}) {
		dict[name] = value
	})
	return dict, err
}

/*
Derives a table declaration from a struct type. Every field with a `db` tag
becomes a column, in field order. Column flags come from the `pgq` tag:

	type User struct {
		Id            int64  `db:"id"            pgq:"pk,autoinc"`
		Name          string `db:"name"          pgq:"notnull"`
		Email         string `db:"email"         pgq:"unique"`
		Meta          any    `db:"meta"          pgq:"type=jsonb"`
		LastChangedBy string `db:"lastChangedBy" pgq:"audit"`
	}

	users, err := pgq.TableOf(`users`, User{})

When the `pgq` tag doesn't specify a type, it's inferred from the Go type.
*/
func TableOf(name string, typ interface{}) (*Table, error) {
	const while = `deriving table from struct`

	rtype := refut.RtypeDeref(reflect.TypeOf(typ))
	if rtype == nil || rtype.Kind() != reflect.Struct {
		return nil, ErrInvalidInput.while(while).becausef(`expected struct, got %v`, rtype)
	}

	var cols []Column
	err := refut.TraverseStructRtype(rtype, func(sfield reflect.StructField, _ []int) error {
		colName := sfieldColumnName(sfield)
		if colName == `` {
			return nil
		}

		col, err := parseColumnTag(colName, sfield.Tag.Get(TagNamePgq))
		if err != nil {
			return err
		}
		if col.Type == `` {
			col.Type = inferType(sfield.Type)
		}
		cols = append(cols, col)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return NewTable(name, cols...)
}

func parseColumnTag(name, tag string) (Column, error) {
	col := Column{Name: name}

	for _, part := range strings.Split(tag, `,`) {
		part = strings.TrimSpace(part)

		switch {
		case part == ``:
		case part == `pk`:
			col.PrimaryKey = true
		case part == `notnull`:
			col.NotNull = true
		case part == `unique`:
			col.Unique = true
		case part == `autoinc`:
			col.AutoIncrement = true
		case part == `audit`:
			col.Audit = true
		case strings.HasPrefix(part, `type=`):
			typ, err := ParseType(strings.TrimPrefix(part, `type=`))
			if err != nil {
				return col, err
			}
			col.Type = typ
		default:
			return col, ErrInvalidInput.while(`parsing struct tag`).becausef(
				`unknown %q option %q on column %q`, TagNamePgq, part, name,
			)
		}
	}
	return col, nil
}

func inferType(rtype reflect.Type) Type {
	rtype = refut.RtypeDeref(rtype)

	if rtype == timeRtype {
		return TypeTimestamp
	}

	switch rtype.Kind() {
	case reflect.Bool:
		return TypeBool
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return TypeInt
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return TypeBigint
	case reflect.Float32, reflect.Float64:
		return TypeNumeric
	case reflect.Map, reflect.Struct:
		if isScannableRtype(rtype) {
			return TypeText
		}
		return TypeJsonb
	case reflect.Slice:
		if rtype.Elem().Kind() == reflect.Uint8 {
			return TypeText
		}
		return TypeJsonb
	default:
		return TypeText
	}
}

/*
Returns the column name from the "db" tag, following the JSON convention of
eliding anything after a comma and treating "-" as a non-name.
*/
func sfieldColumnName(sfield reflect.StructField) string {
	return refut.TagIdent(sfield.Tag.Get(TagNameDb))
}

func traverseStructDbFields(input interface{}, fun func(string, interface{})) error {
	const while = `traversing struct for DB fields`

	if input == nil {
		return ErrInvalidInput.while(while).becausef(`expected struct, got nil`)
	}

	rval := reflect.ValueOf(input)
	rtype := refut.RtypeDeref(rval.Type())

	if rtype.Kind() != reflect.Struct {
		return ErrInvalidInput.while(while).becausef(`expected struct, got %q`, rtype)
	}

	if refut.IsRvalNil(rval) {
		return nil
	}

	return refut.TraverseStructRval(rval, func(rval reflect.Value, sfield reflect.StructField, _ []int) error {
		colName := sfieldColumnName(sfield)
		if colName == `` {
			return nil
		}
		fun(colName, rval.Interface())
		return nil
	})
}

// Converts caller data to a column map: maps are used as-is, structs go
// through `StructMap`.
func dataMap(input interface{}) (map[string]interface{}, error) {
	switch val := input.(type) {
	case nil:
		return nil, nil
	case map[string]interface{}:
		return val, nil
	default:
		out, err := StructMap(input)
		if err != nil {
			return nil, fmt.Errorf(`unsupported data type %T: %w`, input, err)
		}
		return out, nil
	}
}

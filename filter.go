package pgq

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Suffix of a filter key, selecting the comparison to perform. The zero value
// means equality, or JSON containment for object values.
type Op string

const (
	OpEq        Op = ``
	OpNot       Op = `not`
	OpNull      Op = `null`
	OpLike      Op = `like`
	OpIn        Op = `in`
	OpStartDate Op = `startDate`
	OpEndDate   Op = `endDate`
	OpOrderBy   Op = `orderBy`
)

// Layouts accepted for `startDate` and `endDate` values given as strings.
var DateLayouts = []string{time.RFC3339Nano, time.RFC3339, `2006-01-02`}

/*
Parses a filter key such as "name" or "name.like" into the base column name and
the operator. Doesn't consult any schema.
*/
func ParseKey(key string) (string, Op, error) {
	const while = `parsing filter key`

	field, suffix, _ := strings.Cut(key, `.`)
	if !isColumnName(field) {
		return ``, OpEq, ErrInvalidInput.while(while).becausef(`invalid field name in key %q`, key)
	}

	switch op := Op(suffix); op {
	case OpEq, OpNot, OpNull, OpLike, OpIn, OpStartDate, OpEndDate, OpOrderBy:
		return field, op, nil
	default:
		return ``, OpEq, ErrInvalidInput.while(while).becausef(`unknown operator %q in key %q`, suffix, key)
	}
}

// Single filter entry: a key such as "name.like" and its value.
type Cond struct {
	Key string
	Val interface{}
}

/*
Ordered sequence of filter entries. Order is significant: it's the order of the
conditions in the generated WHERE clause, and of the items in ORDER BY.

Decoding from a JSON object preserves the key order of the source. For Go maps,
use `FilterOf`.
*/
type Filter []Cond

/*
Converts a map into a `Filter`, sorting the keys. Go maps have no stable
iteration order; sorting keeps the output deterministic.
*/
func FilterOf(src map[string]interface{}) Filter {
	if len(src) == 0 {
		return nil
	}

	keys := make([]string, 0, len(src))
	for key := range src {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(Filter, len(keys))
	for i, key := range keys {
		out[i] = Cond{key, src[key]}
	}
	return out
}

// Implement `json.Unmarshaler`, preserving the key order of the JSON object.
func (self *Filter) UnmarshalJSON(src []byte) error {
	const while = `decoding filter`

	dec := json.NewDecoder(bytes.NewReader(src))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*self = nil
		return nil
	}
	if tok != json.Delim('{') {
		return ErrInvalidInput.while(while).becausef(`expected JSON object, got %v`, tok)
	}

	var out Filter
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}

		key, _ := tok.(string)
		var val interface{}
		err = dec.Decode(&val)
		if err != nil {
			return err
		}
		out = append(out, Cond{key, val})
	}

	_, err = dec.Token()
	if err != nil {
		return err
	}

	*self = out
	return nil
}

// Implement `json.Marshaler`, preserving order.
func (self Filter) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, cond := range self {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(cond.Key)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cond.Val)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}

/*
Output of compiling one filter entry. `.Where` is a condition numbered locally
from "$1", or empty when the entry contributes only to ordering. `.Order` holds
orderings contributed by "orderBy" entries.
*/
type Fragment struct {
	Where Query
	Order []Ord
}

/*
Compiles one filter entry into a SQL condition. The base field must be in the
allow-list, otherwise the result is `ErrUnknownField`: no column outside the
allow-list ever reaches SQL text. Values are always passed as arguments, never
interpolated. The alias, if any, must be an unqualified name and prefixes the
column: `alias."field"`.

	"name"           "name" = $1              (nil: "name" IS NULL)
	"name.not"       "name" <> $1             (nil: "name" IS NOT NULL)
	"name.null"      "name" IS NULL           (when the value is true or "true")
	"name.like"      "name" LIKE $1
	"id.in"          "id" IN ($1, $2)         (empty: FALSE)
	"at.startDate"   "at" >= $1
	"at.endDate"     "at" <= $1
	"name.orderBy"   ORDER BY "name" DESC     (value "asc" or "desc")
	"meta"           "meta" ->> 'key' = $1    (object value, one per key)
*/
func CompileCond(cond Cond, allow AllowList, alias string) (Fragment, error) {
	const while = `compiling filter`

	field, op, err := ParseKey(cond.Key)
	if err != nil {
		return Fragment{}, err
	}
	if !allow.Has(field) {
		return Fragment{}, ErrUnknownField.while(while).becausef(`field %q is not allowed`, field)
	}
	if alias != `` {
		err := validateName(while, alias)
		if err != nil {
			return Fragment{}, err
		}
	}

	var bui Bui
	bui.Ident(alias, field)

	switch op {
	case OpEq:
		obj, ok := jsonObject(cond.Val)
		if ok {
			return compileJsonObject(alias, field, obj)
		}
		if isNullish(cond.Val) {
			bui.Str(` IS NULL`)
		} else {
			bui.Str(` = `)
			bui.Arg(cond.Val)
		}

	case OpNot:
		if isNullish(cond.Val) {
			bui.Str(` IS NOT NULL`)
		} else {
			bui.Str(` <> `)
			bui.Arg(cond.Val)
		}

	case OpNull:
		if isTruthy(cond.Val) {
			bui.Str(` IS NULL`)
		} else {
			bui.Str(` IS NOT NULL`)
		}

	case OpLike:
		if isNullish(cond.Val) {
			return Fragment{}, ErrInvalidInput.while(while).becausef(`%q requires a pattern`, cond.Key)
		}
		bui.Str(` LIKE `)
		bui.Arg(cond.Val)

	case OpIn:
		vals, err := listValues(cond.Val)
		if err != nil {
			return Fragment{}, ErrInvalidInput.while(while).because(err)
		}
		if len(vals) == 0 {
			return Fragment{Where: QueryOf(`FALSE`)}, nil
		}
		bui.Str(` IN (`)
		for i, val := range vals {
			if i > 0 {
				bui.Str(`, `)
			}
			bui.Arg(val)
		}
		bui.Str(`)`)

	case OpStartDate, OpEndDate:
		inst, err := coerceDate(cond.Val)
		if err != nil {
			return Fragment{}, ErrInvalidInput.while(while).becausef(`%q: %w`, cond.Key, err)
		}
		if op == OpStartDate {
			bui.Str(` >= `)
		} else {
			bui.Str(` <= `)
		}
		bui.Arg(inst)

	case OpOrderBy:
		var src string
		if cond.Val != nil {
			src = fmt.Sprint(cond.Val)
		}
		dir, err := ParseDir(src)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{Order: []Ord{{Alias: alias, Col: field, Dir: dir}}}, nil
	}

	return Fragment{Where: bui.Get()}, nil
}

func compileJsonObject(alias, field string, obj map[string]interface{}) (Fragment, error) {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var bui Bui
	for i, key := range keys {
		if i > 0 {
			bui.Str(` AND `)
		}
		bui.Ident(alias, field)
		bui.Str(` ->> `)
		appendLiteral(&bui.Text, key)

		val, err := jsonScalar(obj[key])
		if err != nil {
			return Fragment{}, err
		}
		if val == nil {
			bui.Str(` IS NULL`)
			continue
		}
		bui.Str(` = `)
		bui.Arg(val)
	}
	return Fragment{Where: bui.Get()}, nil
}

func jsonObject(val interface{}) (map[string]interface{}, bool) {
	switch val := val.(type) {
	case map[string]interface{}:
		return val, true
	case map[string]string:
		out := make(map[string]interface{}, len(val))
		for key, val := range val {
			out[key] = val
		}
		return out, true
	default:
		return nil, false
	}
}

/*
The `->>` operator yields text, so nested values are compared as their JSON
text, and strings as-is.
*/
func jsonScalar(val interface{}) (interface{}, error) {
	switch val := val.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	default:
		out, err := json.Marshal(val)
		if err != nil {
			return nil, ErrInvalidInput.while(`encoding JSON filter value`).because(err)
		}
		return string(out), nil
	}
}

func isNullish(val interface{}) bool {
	out, err := normNil(val)
	return err == nil && out == nil
}

func isTruthy(val interface{}) bool {
	switch val := val.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), `true`)
	default:
		return false
	}
}

// Accepts a slice, an array, or a comma-delimited string.
func listValues(val interface{}) ([]interface{}, error) {
	switch val := val.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == `` {
			return nil, nil
		}
		parts := strings.Split(val, `,`)
		out := make([]interface{}, len(parts))
		for i, part := range parts {
			out[i] = strings.TrimSpace(part)
		}
		return out, nil
	case []interface{}:
		return val, nil
	}

	rval := reflect.ValueOf(val)
	switch rval.Kind() {
	case reflect.Slice, reflect.Array:
		if rval.Type().Elem().Kind() == reflect.Uint8 {
			break
		}
		out := make([]interface{}, rval.Len())
		for i := range out {
			out[i] = rval.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf(`expected list or comma-delimited string, got %T`, val)
}

func coerceDate(val interface{}) (time.Time, error) {
	switch val := val.(type) {
	case time.Time:
		return val, nil
	case *time.Time:
		if val != nil {
			return *val, nil
		}
	case string:
		src := strings.TrimSpace(val)
		for _, layout := range DateLayouts {
			inst, err := time.Parse(layout, src)
			if err == nil {
				return inst, nil
			}
		}
		return time.Time{}, fmt.Errorf(`unrecognized date %q`, val)
	}
	return time.Time{}, fmt.Errorf(`expected date, got %T`, val)
}

package pgq

import (
	"encoding/json"
	"fmt"

	"github.com/mitranim/sqlp"
)

/*
Fully parameterized, ready-to-execute statement: SQL text with Postgres-style
ordinal parameters "$1".."$N" and the arguments for them, in the same order.
Every argument corresponds to exactly one parameter index; there are no gaps
and no unused arguments.

For combining two finished queries, see `Reconcile`. Builders in this package
append through `Bui`, which renumbers sub-queries the same way.

Encodes to JSON as `{"sqlText": "...", "values": [...]}`.
*/
type Query struct {
	Text []byte
	Args []interface{}
}

// Shortcut for making a `Query` from a string that's already numbered
// correctly for the given args.
func QueryOf(text string, args ...interface{}) Query {
	return Query{Text: []byte(text), Args: args}
}

// Implement `fmt.Stringer`.
func (self Query) String() string {
	return bytesToMutableString(self.Text)
}

// Shortcut for `self.String(), self.Args`. Go database drivers tend to require
// `string, []any` as inputs for queries and statements.
func (self Query) Reify() (string, []interface{}) {
	return self.String(), self.Args
}

// True if the query has no text.
func (self Query) IsEmpty() bool { return len(self.Text) == 0 }

type queryJSON struct {
	SqlText string        `json:"sqlText"`
	Values  []interface{} `json:"values"`
}

// Implement `json.Marshaler`.
func (self Query) MarshalJSON() ([]byte, error) {
	args := self.Args
	if args == nil {
		args = []interface{}{}
	}
	return json.Marshal(queryJSON{self.String(), args})
}

// Implement `json.Unmarshaler`.
func (self *Query) UnmarshalJSON(src []byte) error {
	var val queryJSON
	err := json.Unmarshal(src, &val)
	if err != nil {
		return err
	}
	self.Text = []byte(val.SqlText)
	self.Args = val.Values
	return nil
}

/*
Returns the highest ordinal parameter index found in the SQL text, or 0 if
there are none. Parameter-like text inside quoted strings, including
dollar-quoted ones, quoted identifiers and comments is ignored.
*/
func MaxOrdinal(src string) (out int, err error) {
	defer rec(&err)
	tokenizer := newTokenizer(src)

	for {
		node := tokenizer.Next()
		if node == nil {
			return
		}
		ord, ok := node.(sqlp.NodeOrdinalParam)
		if ok && int(ord) > out {
			out = int(ord)
		}
	}
}

/*
Adds the offset to every ordinal parameter in the SQL text: with offset 2,
"$1" becomes "$3". Offset 0 returns the text unchanged, and renumbering by `a`
then `b` is the same as renumbering by `a+b`. Parameter-like text inside quoted
strings, including dollar-quoted ones, quoted identifiers and comments is left
intact.
*/
func Renumber(src string, offset int) (_ string, err error) {
	if offset == 0 {
		return src, nil
	}
	if offset < 0 {
		return ``, ErrInvalidInput.while(`renumbering parameters`).becausef(
			`negative offset %v`, offset,
		)
	}

	defer rec(&err)
	buf := make([]byte, 0, len(src)+8)
	tokenizer := newTokenizer(src)

	for {
		node := tokenizer.Next()
		if node == nil {
			break
		}
		ord, ok := node.(sqlp.NodeOrdinalParam)
		if ok {
			ord += sqlp.NodeOrdinalParam(offset)
			ord.Append(&buf)
			continue
		}
		node.Append(&buf)
	}
	return bytesToMutableString(buf), nil
}

/*
Concatenates two independently-parameterized queries. The parameters of the
second query are offset by the highest parameter index of the first, and the
arguments are concatenated first-then-second. The texts are joined with a
single space when neither side already provides whitespace.

Both inputs are left unmodified.
*/
func Reconcile(head, tail Query) (Query, error) {
	offset, err := MaxOrdinal(head.String())
	if err != nil {
		return Query{}, err
	}

	text, err := Renumber(tail.String(), offset)
	if err != nil {
		return Query{}, err
	}

	var out Query
	out.Text = make([]byte, 0, len(head.Text)+1+len(text))
	out.Text = append(out.Text, head.Text...)
	if len(text) > 0 {
		appendSpaceIfNeeded(&out.Text)
	}
	out.Text = append(out.Text, text...)
	out.Args = make([]interface{}, 0, len(head.Args)+len(tail.Args))
	out.Args = append(out.Args, head.Args...)
	out.Args = append(out.Args, tail.Args...)
	return out, nil
}

/*
Validates the bookkeeping invariant of the query: the parameters found in the
text are exactly 1..N where N is the amount of arguments.
*/
func (self Query) Validate() (err error) {
	defer rec(&err)
	seen := make([]bool, len(self.Args))
	tokenizer := newTokenizer(self.String())

	for {
		node := tokenizer.Next()
		if node == nil {
			break
		}

		switch node := node.(type) {
		case sqlp.NodeOrdinalParam:
			index := node.Index()
			if index < 0 || index >= len(seen) {
				return ErrOrdinalOutOfBounds.while(`validating query`).becausef(
					`ordinal parameter %v exceeds argument count %v`, node, len(seen),
				)
			}
			seen[index] = true

		case sqlp.NodeNamedParam:
			return ErrUnexpectedParameter.while(`validating query`).becausef(
				`expected only ordinal params, got named param %q`, node,
			)
		}
	}

	for i, ok := range seen {
		if !ok {
			return ErrUnusedArgument.while(`validating query`).becausef(
				`unused argument %#v at index %v`, self.Args[i], i,
			)
		}
	}
	return nil
}

func (self Query) GoString() string {
	return fmt.Sprintf(`pgq.QueryOf(%q, %#v...)`, self.String(), self.Args)
}

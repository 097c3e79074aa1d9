package pgq

import (
	"strconv"
)

/*
Short for "builder". Tiny shortcut for building parameterized SQL text. Used
internally by the statement and filter builders. Every `.Arg` call appends one
argument and its ordinal parameter, so the text and args can't drift apart.
*/
type Bui struct {
	Text []byte
	Args []interface{}
}

/*
Prealloc tool. Makes a `Bui` with the specified capacity of the text and args
buffers.
*/
func MakeBui(textCap, argsCap int) Bui {
	return Bui{
		make([]byte, 0, textCap),
		make([]interface{}, 0, argsCap),
	}
}

// Returns text and args as a `Query`, without copying.
func (self Bui) Get() Query { return Query{self.Text, self.Args} }

// Returns inner text as a string, performing a free cast.
func (self Bui) String() string { return bytesToMutableString(self.Text) }

// Appends the provided string as-is.
func (self *Bui) Str(val string) { appendStr(&self.Text, val) }

// Adds a space if the preceding text doesn't already end with whitespace.
func (self *Bui) Space() { appendSpaceIfNeeded(&self.Text) }

// Appends a quoted column name, optionally prefixed by an alias.
func (self *Bui) Ident(alias, name string) { appendAliased(&self.Text, alias, name) }

/*
Appends an ordinal parameter such as "$1". Requires caution: does not verify
the existence of the corresponding argument.
*/
func (self *Bui) Param(val int) {
	self.Text = append(self.Text, '$')
	self.Text = strconv.AppendInt(self.Text, int64(val), 10)
}

/*
Appends an argument to `.Args` and a corresponding ordinal parameter to
`.Text`.
*/
func (self *Bui) Arg(val interface{}) {
	self.Args = append(self.Args, val)
	self.Param(len(self.Args))
}

/*
Appends a finished query, renumbering its parameters by the amount of
arguments accumulated so far. The input must satisfy the `Query` invariant:
its parameters are exactly 1..N for N arguments.
*/
func (self *Bui) Sub(val Query) error {
	text, err := Renumber(val.String(), len(self.Args))
	if err != nil {
		return err
	}
	appendStr(&self.Text, text)
	self.Args = append(self.Args, val.Args...)
	return nil
}

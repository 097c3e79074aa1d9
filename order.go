package pgq

import (
	"strings"
)

const (
	DirAsc  Dir = 0
	DirDesc Dir = 1
)

// Short for "direction". Enum for ordering direction: "ASC" or "DESC".
type Dir byte

// Implement `fmt.Stringer`.
func (self Dir) String() string {
	if self == DirDesc {
		return `DESC`
	}
	return `ASC`
}

/*
Parses a direction, case-insensitively. Empty input means ascending. Anything
other than "asc" or "desc" is rejected: the direction is interpolated into SQL
text.
*/
func ParseDir(src string) (Dir, error) {
	switch strings.ToLower(strings.TrimSpace(src)) {
	case ``, `asc`:
		return DirAsc, nil
	case `desc`:
		return DirDesc, nil
	default:
		return DirAsc, ErrInvalidInput.while(`parsing order direction`).becausef(
			`unrecognized direction %q`, src,
		)
	}
}

// Implement `encoding.TextMarshaler`.
func (self Dir) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(self.String())), nil
}

// Implement `encoding.TextUnmarshaler`.
func (self *Dir) UnmarshalText(src []byte) error {
	val, err := ParseDir(string(src))
	if err != nil {
		return err
	}
	*self = val
	return nil
}

/*
Short for "ordering". Describes one ORDER BY item such as:

	"someCol" ASC

	u."otherCol" DESC

When encoding for SQL, the column is quoted. `.Alias` is an unquoted table
alias and is emitted as-is.
*/
type Ord struct {
	Alias string
	Col   string
	Dir   Dir
}

// Shortcut for an ascending ordering.
func OrdAsc(col string) Ord { return Ord{Col: col, Dir: DirAsc} }

// Shortcut for a descending ordering.
func OrdDesc(col string) Ord { return Ord{Col: col, Dir: DirDesc} }

// Implement `fmt.Stringer`.
func (self Ord) String() string {
	var buf []byte
	self.AppendBytes(&buf)
	return bytesToMutableString(buf)
}

// Appends an SQL string to the buffer. See `.String()`.
func (self Ord) AppendBytes(buf *[]byte) {
	appendAliased(buf, self.Alias, self.Col)
	appendStr(buf, ` `)
	appendStr(buf, self.Dir.String())
}

/*
Short for "orderings". Sequence of `Ord` rendered as a single ORDER BY clause.
Empty `Ords` render nothing.
*/
type Ords []Ord

// Appends the ORDER BY clause, preceded by a space when needed.
func (self Ords) AppendBytes(buf *[]byte) {
	for i, val := range self {
		if i == 0 {
			appendSpaceIfNeeded(buf)
			appendStr(buf, `ORDER BY `)
		} else {
			appendStr(buf, `, `)
		}
		val.AppendBytes(buf)
	}
}

// Implement `fmt.Stringer`.
func (self Ords) String() string {
	var buf []byte
	self.AppendBytes(&buf)
	return bytesToMutableString(buf)
}

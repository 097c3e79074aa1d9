package pgq

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unsafe"

	"github.com/mitranim/refut"
)

const (
	quoteSingle = '\''
	quoteDouble = '"'
)

var (
	timeRtype       = reflect.TypeOf(time.Time{})
	sqlScannerRtype = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

	// Unquoted table names, optionally schema-qualified.
	identReg = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)?$`)

	// Unquoted names that can't be qualified: step names and aliases.
	nameReg = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

	// Column names are always quoted, but still restricted.
	columnReg = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)
)

/*
Allocation-free conversion. Reinterprets a byte slice as a string. Borrowed from
the standard library. Reasonably safe. Should not be used when the underlying
byte array is volatile, for example when it's part of a scratch buffer during
SQL scanning.
*/
func bytesToMutableString(bytes []byte) string {
	return *(*string)(unsafe.Pointer(&bytes))
}

func appendStr(buf *[]byte, str string) {
	*buf = append(*buf, str...)
}

func appendEnclosed(buf *[]byte, prefix, infix, suffix string) {
	appendStr(buf, prefix)
	appendStr(buf, infix)
	appendStr(buf, suffix)
}

func appendSpaceIfNeeded(buf *[]byte) {
	if buf == nil || len(*buf) == 0 {
		return
	}
	if !isWhitespaceChar(rune((*buf)[len(*buf)-1])) {
		*buf = append(*buf, ' ')
	}
}

func isWhitespaceChar(char rune) bool {
	switch char {
	case ' ', '\n', '\r', '\t', '\v':
		return true
	default:
		return false
	}
}

// Appends a quoted column name, such as `"someCol"`.
func appendIdent(buf *[]byte, name string) {
	appendEnclosed(buf, `"`, name, `"`)
}

// Appends `alias."col"` or `"col"`.
func appendAliased(buf *[]byte, alias, name string) {
	if alias != `` {
		appendStr(buf, alias)
		appendStr(buf, `.`)
	}
	appendIdent(buf, name)
}

// Appends a single-quoted SQL string literal, doubling inner quotes.
func appendLiteral(buf *[]byte, val string) {
	*buf = append(*buf, quoteSingle)
	appendStr(buf, strings.ReplaceAll(val, `'`, `''`))
	*buf = append(*buf, quoteSingle)
}

func isIdent(val string) bool { return identReg.MatchString(val) }

func isColumnName(val string) bool { return columnReg.MatchString(val) }

func validateIdent(while, val string) error {
	if isIdent(val) {
		return nil
	}
	return ErrInvalidInput.while(while).becausef(`invalid identifier %q`, val)
}

func validateName(while, val string) error {
	if nameReg.MatchString(val) {
		return nil
	}
	return ErrInvalidInput.while(while).becausef(`invalid name %q`, val)
}

func isScannableRtype(rtype reflect.Type) bool {
	return rtype != nil &&
		(rtype == timeRtype || reflect.PtrTo(rtype).Implements(sqlScannerRtype))
}

/*
Normalizes a value for the "absent or null" check used by the statement
builder: nil, typed nil pointers and `driver.Valuer` implementations reporting
null all become nil.
*/
func normNil(val interface{}) (interface{}, error) {
	if refut.IsNil(val) {
		return nil, nil
	}

	valuer, ok := val.(driver.Valuer)
	if ok {
		out, err := valuer.Value()
		if err != nil {
			return nil, err
		}
		if refut.IsNil(out) {
			return nil, nil
		}
	}
	return val, nil
}

// Strips trailing statement terminators and whitespace.
func trimTerminators(val []byte) []byte {
	for len(val) > 0 {
		char := val[len(val)-1]
		if char == ';' || isWhitespaceChar(rune(char)) {
			val = val[:len(val)-1]
			continue
		}
		break
	}
	return val
}

// Must be deferred.
func rec(ptr *error) {
	val := recover()
	if val == nil {
		return
	}

	err, _ := val.(error)
	if err != nil {
		*ptr = err
		return
	}

	*ptr = ErrInternal.because(fmt.Errorf(`%v`, val))
}

func copyStrings(val []string) []string {
	if val == nil {
		return nil
	}
	out := make([]string, len(val))
	copy(out, val)
	return out
}

package pgq

import (
	"errors"
	"reflect"
	"testing"
)

type (
	B  = testing.B
	T  = testing.T
	TB = testing.TB
)

type Dict = map[string]interface{}

func eq(t TB, expected interface{}, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected:\n%#v\nactual:\n%#v", expected, actual)
	}
}

func noErr(t TB, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %+v", err)
	}
}

func errIs(t TB, expected error, actual error) {
	t.Helper()
	if !errors.Is(actual, expected) {
		t.Fatalf("expected error %v, got: %v", expected, actual)
	}
}

func eqQuery(t TB, text string, args []interface{}, query Query) {
	t.Helper()
	if text != query.String() {
		t.Fatalf("expected query:\n%q\ngot:\n%q", text, query.String())
	}
	if !reflect.DeepEqual(args, query.Args) {
		t.Fatalf("expected args:\n%#v\ngot:\n%#v", args, query.Args)
	}
}

func list(vals ...interface{}) []interface{} { return vals }

var testUsers = MustTable(`users`,
	Column{Name: `id`, Type: TypeBigint, PrimaryKey: true, AutoIncrement: true},
	Column{Name: `name`, Type: TypeText, NotNull: true},
	Column{Name: `email`, Type: TypeText, Unique: true},
	Column{Name: `meta`, Type: TypeJsonb},
	Column{Name: `createdAt`, Type: TypeTimestamp},
	Column{Name: `lastChangedBy`, Type: TypeText, Audit: true},
)

var testPosts = MustTable(`posts`,
	Column{Name: `id`, Type: TypeBigint, PrimaryKey: true, AutoIncrement: true},
	Column{Name: `userId`, Type: TypeBigint, NotNull: true},
	Column{Name: `title`, Type: TypeText},
)

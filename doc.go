/*
PGQ: parameterized Postgres SQL construction. Turns a declared table schema and
caller-supplied filter/data maps into SQL text with "$N" ordinal parameters and
a matching argument list. Values are never interpolated into SQL text.

Key Features

• Filter maps with "field" / "field.suffix" keys compile into WHERE, ORDER BY
and LIMIT clauses. Only allow-listed columns ever reach the SQL text.

• Automatically renumerates ordinal parameters such as $1, $2, and so on when
fragments are combined. In every fragment, the count always starts at 1.
Quoted and dollar-quoted strings, quoted identifiers and comments are never
mistaken for parameters.

• Structured INSERT and UPDATE statements with upsert and RETURNING support.
An UPDATE without a predicate is rejected unless explicitly requested.

• Chains: several inserts/updates composed into one atomic CTE statement, where
a later step may read a column produced by an earlier step.

Examples

	users := pgq.MustTable(`users`,
		pgq.Column{Name: `id`, Type: pgq.TypeBigint, PrimaryKey: true, AutoIncrement: true},
		pgq.Column{Name: `name`, Type: pgq.TypeText},
		pgq.Column{Name: `email`, Type: pgq.TypeText},
	)

	allow, err := users.Allow(`id`, `name`, `email`)
	query, err := users.Select(pgq.Filter{{`name.like`, `%Doe%`}}, allow, pgq.WhereOpts{})

	query.Text // SELECT * FROM users WHERE "name" LIKE $1
	query.Args // []any{`%Doe%`}

See `Chain` for composing statements.
*/
package pgq

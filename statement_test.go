package pgq

import (
	"testing"
)

func TestTableInsert(t *testing.T) {
	allow := testUsers.MustAllow(`*`)

	render := func(stmt Statement, err error) Query {
		t.Helper()
		noErr(t, err)
		out, err := stmt.Query()
		noErr(t, err)
		return out
	}

	t.Run(`audit_default`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`name`: `John`, `email`: `john@x.com`}, allow, InsertOpts{}))
		eqQuery(t,
			`INSERT INTO users ("name","email","lastChangedBy") VALUES ($1,$2,$3)`,
			list(`John`, `john@x.com`, `SERVER`),
			out,
		)
	})

	t.Run(`audit_changed_by`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`name`: `John`}, allow, InsertOpts{ChangedBy: `admin`}))
		eqQuery(t, `INSERT INTO users ("name","lastChangedBy") VALUES ($1,$2)`, list(`John`, `admin`), out)
	})

	t.Run(`audit_from_data`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`lastChangedBy`: `importer`, `name`: `John`}, allow, InsertOpts{}))
		eqQuery(t, `INSERT INTO users ("name","lastChangedBy") VALUES ($1,$2)`, list(`John`, `importer`), out)
	})

	t.Run(`schema_order`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`email`: `e`, `id`: 7, `name`: `n`}, allow, InsertOpts{}))
		eqQuery(t,
			`INSERT INTO users ("id","name","email","lastChangedBy") VALUES ($1,$2,$3,$4)`,
			list(7, `n`, `e`, `SERVER`),
			out,
		)
	})

	t.Run(`drops_nil`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`name`: `John`, `email`: nil, `meta`: (*string)(nil)}, allow, InsertOpts{}))
		eqQuery(t, `INSERT INTO users ("name","lastChangedBy") VALUES ($1,$2)`, list(`John`, `SERVER`), out)
	})

	t.Run(`drops_disallowed`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`name`: `John`, `email`: `e`}, testUsers.MustAllow(`name`), InsertOpts{}))
		eqQuery(t, `INSERT INTO users ("name","lastChangedBy") VALUES ($1,$2)`, list(`John`, `SERVER`), out)
	})

	t.Run(`json_column`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`name`: `John`, `meta`: Dict{`b`: 2, `a`: []int{1}}}, allow, InsertOpts{}))
		eqQuery(t,
			`INSERT INTO users ("name","meta","lastChangedBy") VALUES ($1,$2,$3)`,
			list(`John`, `{"a":[1],"b":2}`, `SERVER`),
			out,
		)

		out = render(testUsers.Insert(Dict{`meta`: `{"raw":true}`}, allow, InsertOpts{}))
		eqQuery(t, `INSERT INTO users ("meta","lastChangedBy") VALUES ($1,$2)`, list(`{"raw":true}`, `SERVER`), out)
	})

	t.Run(`unknown_field`, func(t *testing.T) {
		_, err := testUsers.Insert(Dict{`name`: `John`, `password`: `x`}, allow, InsertOpts{})
		errIs(t, ErrUnknownField, err)
	})

	t.Run(`struct`, func(t *testing.T) {
		out := render(testUsers.Insert(testUser{Id: 3, Name: `John`}, testUsers.MustAllow(`name`, `email`), InsertOpts{}))
		eqQuery(t, `INSERT INTO users ("name","lastChangedBy") VALUES ($1,$2)`, list(`John`, `SERVER`), out)
	})

	t.Run(`unsupported_data`, func(t *testing.T) {
		_, err := testUsers.Insert(`str`, allow, InsertOpts{})
		errIs(t, ErrInvalidInput, err)
	})

	t.Run(`default_values`, func(t *testing.T) {
		out := render(testPosts.Insert(Dict{}, testPosts.MustAllow(`*`), InsertOpts{}))
		eqQuery(t, `INSERT INTO posts DEFAULT VALUES`, nil, out)
	})

	t.Run(`returning`, func(t *testing.T) {
		data := Dict{`name`: `John`, `email`: `john@x.com`}

		star := render(testUsers.Insert(data, allow, InsertOpts{Returning: []string{`*`}}))
		cols := render(testUsers.Insert(data, allow, InsertOpts{Returning: []string{`id`, `name`}}))
		none := render(testUsers.Insert(data, allow, InsertOpts{}))

		eq(t, none.String()+` RETURNING *`, star.String())
		eq(t, none.String()+` RETURNING "id", "name"`, cols.String())
		eq(t, none.Args, star.Args)
		eq(t, none.Args, cols.Args)
	})

	t.Run(`returning_invalid`, func(t *testing.T) {
		_, err := testUsers.Insert(Dict{}, allow, InsertOpts{Returning: []string{`password`}})
		errIs(t, ErrUnknownField, err)

		_, err = testUsers.Insert(Dict{}, allow, InsertOpts{Returning: []string{`*`, `id`}})
		errIs(t, ErrInvalidInput, err)
	})

	t.Run(`upsert`, func(t *testing.T) {
		out := render(testUsers.Insert(Dict{`id`: 1, `name`: `John`}, allow, InsertOpts{Upsert: true, Returning: []string{`id`}}))
		eqQuery(t,
			`INSERT INTO users ("id","name","lastChangedBy") VALUES ($1,$2,$3) `+
				`ON CONFLICT ("id") DO UPDATE SET "name" = EXCLUDED."name", "lastChangedBy" = EXCLUDED."lastChangedBy" `+
				`RETURNING "id"`,
			list(1, `John`, `SERVER`),
			out,
		)
	})

	t.Run(`upsert_do_nothing`, func(t *testing.T) {
		out := render(testPosts.Insert(Dict{`id`: 1}, testPosts.MustAllow(`*`), InsertOpts{Upsert: true}))
		eqQuery(t, `INSERT INTO posts ("id") VALUES ($1) ON CONFLICT ("id") DO NOTHING`, list(1), out)
	})

	t.Run(`upsert_without_primary_key`, func(t *testing.T) {
		tab := MustTable(`logs`, Column{Name: `msg`})
		_, err := tab.Insert(Dict{`msg`: `hi`}, tab.MustAllow(`*`), InsertOpts{Upsert: true})
		errIs(t, ErrInvalidInput, err)
	})
}

func TestTableUpdate(t *testing.T) {
	render := func(stmt Statement, err error) Query {
		t.Helper()
		noErr(t, err)
		out, err := stmt.Query()
		noErr(t, err)
		return out
	}

	postsAllow := testPosts.MustAllow(`*`)

	t.Run(`filter`, func(t *testing.T) {
		out := render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, Filter{{`id`, 2}}, UpdateOpts{}))
		eqQuery(t, `UPDATE posts SET "title" = $1 WHERE "id" = $2`, list(`Hello`, 2), out)
	})

	t.Run(`map_predicate`, func(t *testing.T) {
		out := render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, Dict{`userId`: 3, `id.in`: []int{1, 2}}, UpdateOpts{}))
		eqQuery(t,
			`UPDATE posts SET "title" = $1 WHERE "id" IN ($2, $3) AND "userId" = $4`,
			list(`Hello`, 1, 2, 3),
			out,
		)
	})

	t.Run(`audit_and_where_allow`, func(t *testing.T) {
		out := render(testUsers.Update(
			Dict{`name`: `Jane`},
			testUsers.MustAllow(`name`),
			Filter{{`id`, 7}},
			UpdateOpts{WhereAllow: testUsers.MustAllow(`id`), Returning: []string{`*`}},
		))
		eqQuery(t,
			`UPDATE users SET "name" = $1, "lastChangedBy" = $2 WHERE "id" = $3 RETURNING *`,
			list(`Jane`, `SERVER`, 7),
			out,
		)
	})

	t.Run(`raw_predicate`, func(t *testing.T) {
		out := render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, QueryOf(`"id" = $1 OR "title" = '$1'`, 2), UpdateOpts{}))
		eqQuery(t, `UPDATE posts SET "title" = $1 WHERE "id" = $2 OR "title" = '$1'`, list(`Hello`, 2), out)

		out = render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, QueryOf(`where "id" = $1`, 2), UpdateOpts{}))
		eqQuery(t, `UPDATE posts SET "title" = $1 where "id" = $2`, list(`Hello`, 2), out)

		out = render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, QueryOf("WHERE\n\"id\" = $1", 2), UpdateOpts{}))
		eqQuery(t, "UPDATE posts SET \"title\" = $1 WHERE\n\"id\" = $2", list(`Hello`, 2), out)

		out = render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, QueryOf("Where\t\"id\" = $1", 2), UpdateOpts{}))
		eqQuery(t, "UPDATE posts SET \"title\" = $1 Where\t\"id\" = $2", list(`Hello`, 2), out)

		out = render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, QueryOf(`"whereabouts" = $1`, 2), UpdateOpts{}))
		eqQuery(t, `UPDATE posts SET "title" = $1 WHERE "whereabouts" = $2`, list(`Hello`, 2), out)
	})

	t.Run(`missing_predicate`, func(t *testing.T) {
		for _, where := range []interface{}{nil, Filter{}, Filter{{`secret`, 1}}, Query{}, Dict{}} {
			_, err := testPosts.Update(Dict{`title`: `Hello`}, postsAllow, where, UpdateOpts{})
			errIs(t, ErrMissingPredicate, err)
			eq(t, true, IsValidation(err))
		}
	})

	t.Run(`missing_predicate_checked_first`, func(t *testing.T) {
		_, err := testPosts.Update(Dict{`password`: `x`}, postsAllow, nil, UpdateOpts{})
		errIs(t, ErrMissingPredicate, err)
	})

	t.Run(`unconditional`, func(t *testing.T) {
		out := render(testPosts.Update(Dict{`title`: `Hello`}, postsAllow, nil, UpdateOpts{Unconditional: true}))
		eqQuery(t, `UPDATE posts SET "title" = $1`, list(`Hello`), out)
	})

	t.Run(`nothing_to_set`, func(t *testing.T) {
		_, err := testPosts.Update(Dict{`title`: nil}, postsAllow, Filter{{`id`, 1}}, UpdateOpts{})
		errIs(t, ErrInvalidInput, err)
	})

	t.Run(`order_by_rejected`, func(t *testing.T) {
		_, err := testPosts.Update(Dict{`title`: `x`}, postsAllow, Filter{{`id`, 1}, {`id.orderBy`, `asc`}}, UpdateOpts{})
		errIs(t, ErrInvalidInput, err)
	})

	t.Run(`unsupported_predicate`, func(t *testing.T) {
		_, err := testPosts.Update(Dict{`title`: `x`}, postsAllow, 10, UpdateOpts{})
		errIs(t, ErrInvalidInput, err)
	})
}

func TestStatementWith(t *testing.T) {
	stmt, err := testPosts.Insert(Dict{`userId`: 99, `title`: `Hello`}, testPosts.MustAllow(`*`), InsertOpts{})
	noErr(t, err)

	t.Run(`replace`, func(t *testing.T) {
		out, err := stmt.With(Ref{From: `u`, Col: `id`, To: `userId`})
		noErr(t, err)

		query, err := out.Query()
		noErr(t, err)
		eqQuery(t, `INSERT INTO posts ("userId","title") VALUES ((SELECT "id" FROM u),$1)`, list(`Hello`), query)

		query, err = stmt.Query()
		noErr(t, err)
		eqQuery(t, `INSERT INTO posts ("userId","title") VALUES ($1,$2)`, list(99, `Hello`), query)
	})

	t.Run(`append`, func(t *testing.T) {
		base, err := testPosts.Insert(Dict{`title`: `Hello`}, testPosts.MustAllow(`*`), InsertOpts{})
		noErr(t, err)

		out, err := base.With(Ref{From: `u`, Col: `id`, To: `userId`})
		noErr(t, err)
		eq(t, []string{`title`, `userId`}, out.Columns())
		eq(t, []string{`title`}, base.Columns())
	})

	t.Run(`unknown_target`, func(t *testing.T) {
		_, err := stmt.With(Ref{From: `u`, Col: `id`, To: `authorId`})
		errIs(t, ErrUnknownField, err)
	})

	t.Run(`invalid_step`, func(t *testing.T) {
		_, err := stmt.With(Ref{From: `u)`, Col: `id`, To: `userId`})
		errIs(t, ErrInvalidInput, err)

		_, err = stmt.With(Ref{From: `public.u`, Col: `id`, To: `userId`})
		errIs(t, ErrInvalidInput, err)
	})

	t.Run(`target_outside_allow_list`, func(t *testing.T) {
		base, err := testPosts.Insert(Dict{`title`: `x`, `id`: 5}, testPosts.MustAllow(`title`), InsertOpts{})
		noErr(t, err)
		eq(t, []string{`title`}, base.Columns())

		_, err = base.With(Ref{From: `u`, Col: `id`, To: `id`})
		errIs(t, ErrUnknownField, err)

		upd, err := testPosts.Update(Dict{`title`: `x`}, testPosts.MustAllow(`title`), Filter{{`title`, `y`}}, UpdateOpts{})
		noErr(t, err)
		_, err = upd.With(Ref{From: `u`, Col: `id`, To: `userId`})
		errIs(t, ErrUnknownField, err)

		out, err := base.With(Ref{From: `u`, Col: `id`, To: `title`})
		noErr(t, err)
		eq(t, []string{`title`}, out.Columns())
	})

	t.Run(`hand_built`, func(t *testing.T) {
		manual := Statement{Kind: StmtInsert, Table: `posts`}
		out, err := manual.With(Ref{From: `u`, Col: `id`, To: `userId`})
		noErr(t, err)
		eq(t, []string{`userId`}, out.Columns())
	})
}

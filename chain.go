package pgq

// State of a `Chain`.
type ChainState byte

const (
	ChainUnbuilt ChainState = iota
	ChainAccumulating
	ChainBuilt
)

// Implement `fmt.Stringer`.
func (self ChainState) String() string {
	switch self {
	case ChainAccumulating:
		return `accumulating`
	case ChainBuilt:
		return `built`
	default:
		return `unbuilt`
	}
}

/*
One step of a `Chain`. Exactly one of `.Stmt` and `.Raw` is used: a step with
a non-nil `.Stmt` is a structured insert or update, otherwise `.Raw` is taken
as-is. `.Ref`, when set, sources one column of `.Stmt` from an earlier step,
and is only possible for structured statements.
*/
type Step struct {
	Name string
	Stmt *Statement
	Raw  Query
	Ref  *Ref
}

/*
Composes several statements into one atomic SQL statement made of CTEs:

	WITH u AS (INSERT ... RETURNING *), p AS (INSERT ...) SELECT * FROM u;

A later step may take one column's value from an earlier step's output. The
column is rewritten structurally to `(SELECT "col" FROM step)` and consumes no
parameter. Parameters of every step are renumbered so that the result is
numbered "$1".."$N" across all steps.

A chain starts unbuilt, accumulates steps, and is finalized exactly once by
`.Select`. Any further call fails with `ErrChainBuilt`. The zero value is
ready to use. Not safe for concurrent use.
*/
type Chain struct {
	steps []Step
	names map[string]int
	state ChainState
}

// Current state of the chain.
func (self *Chain) State() ChainState { return self.state }

// Amount of accumulated steps.
func (self *Chain) Len() int { return len(self.steps) }

/*
Adds a step. Fails when the chain is built, when the name is invalid or already
taken, when the reference names a step not declared earlier, or when a
reference is attached to a raw step.
*/
func (self *Chain) Add(step Step) error {
	const while = `adding chain step`

	if self.state == ChainBuilt {
		return ErrChainBuilt.while(while).becausef(`can't add step %q`, step.Name)
	}

	err := validateName(while, step.Name)
	if err != nil {
		return err
	}
	if _, ok := self.names[step.Name]; ok {
		return ErrDuplicateStep.while(while).becausef(`step %q is already declared`, step.Name)
	}

	if step.Ref != nil {
		if step.Stmt == nil {
			return ErrUnparseable.while(while).becausef(
				`step %q: references require a structured statement, not raw SQL`, step.Name,
			)
		}
		if _, ok := self.names[step.Ref.From]; !ok {
			return ErrUndefinedRef.while(while).becausef(
				`step %q references undeclared step %q`, step.Name, step.Ref.From,
			)
		}
		ref := *step.Ref
		step.Ref = &ref
	}

	if step.Stmt != nil {
		stmt := *step.Stmt
		stmt.Assign = append([]Assignment(nil), stmt.Assign...)
		stmt.Conflict = copyStrings(stmt.Conflict)
		stmt.Returning = copyStrings(stmt.Returning)
		step.Stmt = &stmt
	}

	if self.names == nil {
		self.names = map[string]int{}
	}
	self.names[step.Name] = len(self.steps)
	self.steps = append(self.steps, step)
	self.state = ChainAccumulating
	return nil
}

// Adds an insert step.
func (self *Chain) Insert(name string, stmt Statement) error {
	return self.addStmt(name, StmtInsert, stmt, nil)
}

// Adds an update step.
func (self *Chain) Update(name string, stmt Statement) error {
	return self.addStmt(name, StmtUpdate, stmt, nil)
}

// Adds a step from raw SQL. Raw steps can be referenced, but can't reference.
func (self *Chain) Raw(name string, query Query) error {
	return self.Add(Step{Name: name, Raw: query})
}

// Adds an insert step whose column `ref.To` comes from an earlier step.
func (self *Chain) InsertRef(name string, stmt Statement, ref Ref) error {
	return self.addStmt(name, StmtInsert, stmt, &ref)
}

// Adds an update step whose column `ref.To` comes from an earlier step.
func (self *Chain) UpdateRef(name string, stmt Statement, ref Ref) error {
	return self.addStmt(name, StmtUpdate, stmt, &ref)
}

// Same as `.Insert` when `ok`, otherwise does nothing.
func (self *Chain) InsertIf(ok bool, name string, stmt Statement) error {
	if !ok {
		return nil
	}
	return self.Insert(name, stmt)
}

// Same as `.Update` when `ok`, otherwise does nothing.
func (self *Chain) UpdateIf(ok bool, name string, stmt Statement) error {
	if !ok {
		return nil
	}
	return self.Update(name, stmt)
}

// Same as `.Raw` when `ok`, otherwise does nothing.
func (self *Chain) RawIf(ok bool, name string, query Query) error {
	if !ok {
		return nil
	}
	return self.Raw(name, query)
}

// Same as `.InsertRef` when `ok`, otherwise does nothing.
func (self *Chain) InsertRefIf(ok bool, name string, stmt Statement, ref Ref) error {
	if !ok {
		return nil
	}
	return self.InsertRef(name, stmt, ref)
}

// Same as `.UpdateRef` when `ok`, otherwise does nothing.
func (self *Chain) UpdateRefIf(ok bool, name string, stmt Statement, ref Ref) error {
	if !ok {
		return nil
	}
	return self.UpdateRef(name, stmt, ref)
}

func (self *Chain) addStmt(name string, kind StmtKind, stmt Statement, ref *Ref) error {
	if self.state != ChainBuilt && stmt.Kind != kind {
		return ErrInvalidInput.while(`adding chain step`).becausef(
			`step %q: expected %v statement, got %v`, name, kind, stmt.Kind,
		)
	}
	return self.Add(Step{Name: name, Stmt: &stmt, Ref: ref})
}

/*
Finalizes the chain, projecting the given columns of the named step. No
columns means "*". On success, the chain becomes built and rejects any further
calls. On failure, the chain is unchanged.
*/
func (self *Chain) Select(name string, cols ...string) (Query, error) {
	const while = `building chain`

	if self.state == ChainBuilt {
		return Query{}, ErrChainBuilt.while(while)
	}
	if len(self.steps) == 0 {
		return Query{}, ErrEmptyChain.while(while)
	}
	if _, ok := self.names[name]; !ok {
		return Query{}, ErrUndefinedRef.while(while).becausef(`can't select from undeclared step %q`, name)
	}

	bui := MakeBui(128*len(self.steps), 0)
	bui.Str(`WITH `)

	for i, step := range self.steps {
		query, err := self.renderStep(i, step)
		if err != nil {
			return Query{}, err
		}

		if i > 0 {
			bui.Str(`, `)
		}
		bui.Str(step.Name)
		bui.Str(` AS (`)
		err = bui.Sub(query)
		if err != nil {
			return Query{}, err
		}
		bui.Str(`)`)
	}

	bui.Str(` SELECT `)
	err := appendSelectCols(&bui, cols)
	if err != nil {
		return Query{}, err
	}
	bui.Str(` FROM `)
	bui.Str(name)
	bui.Str(`;`)

	self.state = ChainBuilt
	return bui.Get(), nil
}

// Same as `.Select` but panics on error.
func (self *Chain) MustSelect(name string, cols ...string) Query {
	out, err := self.Select(name, cols...)
	if err != nil {
		panic(err)
	}
	return out
}

func (self *Chain) renderStep(index int, step Step) (Query, error) {
	const while = `rendering chain step`

	if step.Stmt == nil {
		err := step.Raw.Validate()
		if err != nil {
			return Query{}, err
		}
		return QueryOf(string(trimTerminators(step.Raw.Text)), step.Raw.Args...), nil
	}

	stmt := *step.Stmt
	if step.Ref != nil {
		from, ok := self.names[step.Ref.From]
		if !ok || from >= index {
			return Query{}, ErrUndefinedRef.while(while).becausef(
				`step %q references step %q, which isn't declared before it`, step.Name, step.Ref.From,
			)
		}

		var err error
		stmt, err = stmt.With(*step.Ref)
		if err != nil {
			return Query{}, err
		}
	}

	query, err := stmt.Query()
	if err != nil {
		return Query{}, err
	}
	query.Text = trimTerminators(query.Text)
	return query, nil
}

func appendSelectCols(bui *Bui, cols []string) error {
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == AllowAllToken) {
		bui.Str(`*`)
		return nil
	}
	for i, col := range cols {
		if !isColumnName(col) {
			return ErrInvalidInput.while(`building chain projection`).becausef(`invalid column %q`, col)
		}
		if i > 0 {
			bui.Str(`, `)
		}
		bui.Ident(``, col)
	}
	return nil
}

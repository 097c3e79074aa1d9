/*
Package gateway runs queries built by "github.com/pgq-dev/pgq" against
Postgres through "database/sql". It adds nothing to the SQL: texts and
arguments are passed to the driver exactly as built, and driver errors are
returned unmodified.
*/
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/pgq-dev/pgq"
)

// Name of the driver registered by "github.com/lib/pq".
const DriverName = `postgres`

// Postgres SQLSTATE codes.
const (
	CodeUniqueViolation      = `23505`
	CodeForeignKeyViolation  = `23503`
	CodeSerializationFailure = `40001`
	CodeDeadlockDetected     = `40P01`
)

// Default threshold for slow statement logging.
const DefaultSlowThreshold = 100 * time.Millisecond

// One result row, keyed by column name.
type Row = map[string]interface{}

// Configures a `Gateway`.
type Option func(*Gateway)

// Sets the logger. Default is `slog.Default()`.
func WithLogger(logger *slog.Logger) Option {
	return func(self *Gateway) {
		if logger != nil {
			self.logger = logger
		}
	}
}

/*
Sets the threshold above which statements are logged as slow. Zero or negative
disables slow statement logging.
*/
func WithSlowThreshold(dur time.Duration) Option {
	return func(self *Gateway) { self.slowThreshold = dur }
}

/*
Enables retrying a whole statement or transaction up to `attempts` times in
total, sleeping `backoff * n` before the n-th retry. Only serialization
failures and deadlocks are retried.
*/
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(self *Gateway) {
		if attempts < 1 {
			attempts = 1
		}
		self.attempts = attempts
		self.backoff = backoff
	}
}

/*
Executes `pgq.Query` values. Safe for concurrent use, like the underlying
`*sql.DB`.
*/
type Gateway struct {
	db            *sql.DB
	logger        *slog.Logger
	slowThreshold time.Duration
	attempts      int
	backoff       time.Duration
}

// Opens a Postgres connection pool using "github.com/lib/pq".
func Open(dsn string, opts ...Option) (*Gateway, error) {
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}
	return New(db, opts...), nil
}

// Wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *Gateway {
	self := &Gateway{
		db:            db,
		logger:        slog.Default(),
		slowThreshold: DefaultSlowThreshold,
		attempts:      1,
	}
	for _, opt := range opts {
		opt(self)
	}
	return self
}

// Underlying connection pool.
func (self *Gateway) DB() *sql.DB { return self.db }

// Closes the underlying connection pool.
func (self *Gateway) Close() error { return self.db.Close() }

// Verifies the connection.
func (self *Gateway) Ping(ctx context.Context) error { return self.db.PingContext(ctx) }

// Runs a row-returning query and collects every row.
func (self *Gateway) Query(ctx context.Context, query pgq.Query) (out []Row, err error) {
	err = self.retry(ctx, func() error {
		out, err = self.query(ctx, self.db, query)
		return err
	})
	return
}

// Runs a row-returning query and returns the first row, or `sql.ErrNoRows`.
func (self *Gateway) One(ctx context.Context, query pgq.Query) (Row, error) {
	rows, err := self.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, sql.ErrNoRows
	}
	return rows[0], nil
}

// Runs a statement and returns the amount of affected rows.
func (self *Gateway) Exec(ctx context.Context, query pgq.Query) (out int64, err error) {
	err = self.retry(ctx, func() error {
		out, err = self.exec(ctx, self.db, query)
		return err
	})
	return
}

/*
Runs the queries in order inside one transaction. Any failure rolls the
transaction back and is returned as-is. A failed rollback is logged and never
replaces the original error.
*/
func (self *Gateway) Transact(ctx context.Context, queries ...pgq.Query) error {
	return self.retry(ctx, func() error { return self.transact(ctx, queries) })
}

func (self *Gateway) transact(ctx context.Context, queries []pgq.Query) (err error) {
	tx, err := self.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			return
		}
		rollbackErr := tx.Rollback()
		if rollbackErr != nil {
			self.logger.ErrorContext(ctx, `rollback failed`, `error`, rollbackErr, `cause`, err)
		}
	}()

	for _, query := range queries {
		_, err = self.exec(ctx, tx, query)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (self *Gateway) retry(ctx context.Context, fun func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fun()
		if err == nil || attempt >= self.attempts || !IsRetryable(err) {
			return err
		}

		delay := self.backoff * time.Duration(attempt)
		self.logger.WarnContext(ctx, `retrying statement`, `attempt`, attempt, `delay`, delay, `error`, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

func (self *Gateway) reportSlow(ctx context.Context, query pgq.Query, start time.Time) {
	dur := time.Since(start)
	if self.slowThreshold <= 0 || dur <= self.slowThreshold {
		return
	}
	self.logger.WarnContext(ctx, `slow query detected`,
		`duration`, dur, `query`, query.String(), `args`, query.Args,
	)
}

type execQuerier interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}

func (self *Gateway) exec(ctx context.Context, conn execQuerier, query pgq.Query) (int64, error) {
	defer self.reportSlow(ctx, query, time.Now())

	res, err := conn.ExecContext(ctx, query.String(), query.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (self *Gateway) query(ctx context.Context, conn execQuerier, query pgq.Query) ([]Row, error) {
	defer self.reportSlow(ctx, query, time.Now())

	rows, err := conn.QueryContext(ctx, query.String(), query.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

// Text and JSON columns may arrive as byte slices; they're copied into strings.
func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	vals := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))

	for rows.Next() {
		for i := range vals {
			vals[i] = nil
			ptrs[i] = &vals[i]
		}

		err := rows.Scan(ptrs...)
		if err != nil {
			return nil, err
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			if val, ok := vals[i].([]byte); ok {
				row[col] = string(val)
			} else {
				row[col] = vals[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Implemented by drivers other than "github.com/lib/pq", such as pgx.
type sqlStateError interface{ SQLState() string }

/*
Returns the Postgres SQLSTATE code carried by the error or any error it wraps,
or "" when there is none.
*/
func ErrorCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var stateErr sqlStateError
	if errors.As(err, &stateErr) {
		return stateErr.SQLState()
	}
	return ``
}

// True if the error is a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case CodeSerializationFailure, CodeDeadlockDetected:
		return true
	default:
		return false
	}
}

// True if the error is a unique constraint violation.
func IsUniqueViolation(err error) bool { return ErrorCode(err) == CodeUniqueViolation }

// True if the error is a foreign key constraint violation.
func IsForeignKeyViolation(err error) bool {
	return ErrorCode(err) == CodeForeignKeyViolation
}

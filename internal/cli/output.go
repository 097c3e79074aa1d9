package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pgq-dev/pgq"
	"github.com/pgq-dev/pgq/gateway"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Rejected input or failed statement
	ExitCommandError = 2 // Bad flags, unreadable files, unreachable database
)

// Error codes reported for failures that don't come from the builder.
const (
	ErrCodeGeneric  = `E001`
	ErrCodeUsage    = `E002`
	ErrCodeDatabase = `E003`
)

// An error with a specific exit code.
type ExitError struct {
	Code     int
	Message  string
	Err      error
	reported bool
}

func (self *ExitError) Error() string {
	if self.Err != nil {
		return fmt.Sprintf(`%s: %v`, self.Message, self.Err)
	}
	return self.Message
}

func (self *ExitError) Unwrap() error { return self.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// Extracts the exit code from an error. Returns `ExitFailure` for other errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Standard JSON response of every command.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Writes results in the configured format.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (self *OutputFormatter) Success(data interface{}) error {
	if self.Format == FormatJSON {
		return json.NewEncoder(self.Writer).Encode(CLIResponse{Status: `ok`, Data: data})
	}
	_, err := fmt.Fprintln(self.Writer, data)
	return err
}

func (self *OutputFormatter) Error(code, message string, details interface{}) error {
	if self.Format == FormatJSON {
		return json.NewEncoder(self.Writer).Encode(CLIResponse{
			Status: `error`,
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(self.Writer, "Error [%s]: %s\n", code, message)
	if self.Verbose && details != nil {
		fmt.Fprintf(self.Writer, "Details: %v\n", details)
	}
	return nil
}

/*
Prints a built query. The text format is the SQL text on the first line,
followed by one `$n = value` line per argument, with values encoded as JSON.
*/
func (self *OutputFormatter) Query(query pgq.Query) error {
	if self.Format == FormatJSON {
		return self.Success(query)
	}

	fmt.Fprintln(self.Writer, query.String())
	for i, arg := range query.Args {
		val, err := json.Marshal(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(self.Writer, "$%d = %s\n", i+1, val)
	}
	return nil
}

// Prints rows returned by the database, one JSON object per line in text mode.
func (self *OutputFormatter) Rows(rows []gateway.Row) error {
	if self.Format == FormatJSON {
		if rows == nil {
			rows = []gateway.Row{}
		}
		return self.Success(rows)
	}

	for _, row := range rows {
		val, err := json.Marshal(row)
		if err != nil {
			return err
		}
		fmt.Fprintln(self.Writer, string(val))
	}
	return nil
}

// Prints the amount of affected rows.
func (self *OutputFormatter) Affected(count int64) error {
	if self.Format == FormatJSON {
		return self.Success(map[string]int64{`affected`: count})
	}
	_, err := fmt.Fprintf(self.Writer, "%d row(s) affected\n", count)
	return err
}

// Outputs a message only in verbose mode, to `ErrWriter` when set.
func (self *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !self.Verbose {
		return
	}
	out := self.ErrWriter
	if out == nil {
		out = self.Writer
	}
	fmt.Fprintf(out, format+"\n", args...)
}

/*
Reports the error in the configured format and returns an `*ExitError`.
Builder errors are reported with their own code, such as "UnknownField".
*/
func (self *OutputFormatter) Fail(err error) error {
	var details interface{}
	code := ErrCodeGeneric

	var pgqErr pgq.Err
	if errors.As(err, &pgqErr) {
		code = string(pgqErr.Code)
	} else if state := gateway.ErrorCode(err); state != `` {
		code = ErrCodeDatabase
		details = map[string]string{`sqlState`: state}
	} else if GetExitCode(err) == ExitCommandError {
		code = ErrCodeUsage
	}

	self.Error(code, err.Error(), details)

	out := WrapExitError(GetExitCode(err), `failed`, err)
	out.reported = true
	return out
}

/*
True if the error was already printed by an `OutputFormatter`. Other errors,
such as bad flags or a wrong argument count, are left to the caller.
*/
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

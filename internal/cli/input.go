package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
	"github.com/pgq-dev/pgq/gateway"
)

/*
Flags shared by commands that build statements for one table. `DSN`, when set,
runs the built statement instead of printing it.
*/
type TableOptions struct {
	*RootOptions
	Allow     []string
	Returning []string
	DSN       string
}

func addAllowFlag(cmd *cobra.Command, opts *TableOptions) {
	cmd.Flags().StringSliceVar(&opts.Allow, `allow`, []string{pgq.AllowAllToken}, `columns permitted in this call ("*" for all)`)
}

func addReturningFlag(cmd *cobra.Command, opts *TableOptions) {
	cmd.Flags().StringSliceVar(&opts.Returning, `returning`, nil, `columns to return ("*" for all)`)
}

func addDSNFlag(cmd *cobra.Command, opts *TableOptions) {
	cmd.Flags().StringVar(&opts.DSN, `dsn`, ``, `Postgres connection string; runs the statement when set`)
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// Loads the schema and resolves the table and its allow-list.
func resolveTable(opts *TableOptions, name string) (*pgq.Table, pgq.AllowList, error) {
	schema, err := LoadSchema(opts.Schema)
	if err != nil {
		return nil, pgq.AllowList{}, err
	}

	table, err := schema.Table(name)
	if err != nil {
		return nil, pgq.AllowList{}, err
	}

	allow, err := table.Allow(opts.Allow...)
	if err != nil {
		return nil, pgq.AllowList{}, err
	}
	return table, allow, nil
}

/*
Reads a JSON argument. "@path" reads the file at path, "-" reads stdin,
anything else is taken literally.
*/
func readArg(cmd *cobra.Command, arg string) ([]byte, error) {
	switch {
	case arg == `-`:
		src, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, WrapExitError(ExitCommandError, `reading stdin`, err)
		}
		return src, nil

	case strings.HasPrefix(arg, `@`):
		src, err := os.ReadFile(arg[1:])
		if err != nil {
			return nil, WrapExitError(ExitCommandError, `reading argument`, err)
		}
		return src, nil

	default:
		return []byte(arg), nil
	}
}

// Decodes a JSON object into a filter, preserving key order.
func decodeFilter(cmd *cobra.Command, arg string) (pgq.Filter, error) {
	src, err := readArg(cmd, arg)
	if err != nil {
		return nil, err
	}

	var out pgq.Filter
	err = json.Unmarshal(src, &out)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `decoding filter`, err)
	}
	return out, nil
}

// Decodes a JSON object of column values.
func decodeData(cmd *cobra.Command, arg string) (map[string]interface{}, error) {
	src, err := readArg(cmd, arg)
	if err != nil {
		return nil, err
	}

	var out map[string]interface{}
	err = json.Unmarshal(src, &out)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `decoding data`, err)
	}
	return out, nil
}

func openGateway(opts *RootOptions, cmd *cobra.Command, dsn string) (*gateway.Gateway, error) {
	gate, err := gateway.Open(dsn, gateway.WithLogger(newLogger(opts, cmd.ErrOrStderr())))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, `opening database`, err)
	}
	return gate, nil
}

/*
Prints the query, or runs it when a DSN is given. Queries that return rows
print them, others print the amount of affected rows.
*/
func emit(ctx context.Context, opts *TableOptions, cmd *cobra.Command, formatter *OutputFormatter, query pgq.Query, returnsRows bool) error {
	if opts.DSN == `` {
		return formatter.Query(query)
	}

	gate, err := openGateway(opts.RootOptions, cmd, opts.DSN)
	if err != nil {
		return err
	}
	defer gate.Close()

	formatter.VerboseLog(`running: %s`, query.String())

	if returnsRows {
		rows, err := gate.Query(ctx, query)
		if err != nil {
			return err
		}
		return formatter.Rows(rows)
	}

	count, err := gate.Exec(ctx, query)
	if err != nil {
		return err
	}
	return formatter.Affected(count)
}

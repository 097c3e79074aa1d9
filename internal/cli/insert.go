package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
)

// Flags of the `insert` command.
type InsertOptions struct {
	TableOptions
	Upsert    bool
	ChangedBy string
}

// Creates the `insert` command.
func NewInsertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InsertOptions{TableOptions: TableOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   `insert <table> <data-json>`,
		Short: `Build an INSERT from a JSON object`,
		Long: `Build an INSERT from a JSON object of column values. Unknown columns are
rejected, columns outside the allow-list and null values are dropped. The
audit column, when declared, is always set.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsert(opts, args, cmd)
		},
	}

	addAllowFlag(cmd, &opts.TableOptions)
	addReturningFlag(cmd, &opts.TableOptions)
	addDSNFlag(cmd, &opts.TableOptions)
	cmd.Flags().BoolVar(&opts.Upsert, `upsert`, false, `update the row on primary key conflict`)
	cmd.Flags().StringVar(&opts.ChangedBy, `changed-by`, ``, `value of the audit column`)
	return cmd
}

func runInsert(opts *InsertOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := buildInsert(opts, args, cmd)
	if err != nil {
		return formatter.Fail(err)
	}

	err = emit(cmd.Context(), &opts.TableOptions, cmd, formatter, query, len(opts.Returning) > 0)
	if err != nil {
		return formatter.Fail(err)
	}
	return nil
}

func buildInsert(opts *InsertOptions, args []string, cmd *cobra.Command) (pgq.Query, error) {
	table, allow, err := resolveTable(&opts.TableOptions, args[0])
	if err != nil {
		return pgq.Query{}, err
	}

	data, err := decodeData(cmd, args[1])
	if err != nil {
		return pgq.Query{}, err
	}

	stmt, err := table.Insert(data, allow, pgq.InsertOpts{
		ChangedBy: opts.ChangedBy,
		Upsert:    opts.Upsert,
		Returning: opts.Returning,
	})
	if err != nil {
		return pgq.Query{}, err
	}
	return stmt.Query()
}

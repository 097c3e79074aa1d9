package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
)

// Creates the `select` command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhereOptions{TableOptions: TableOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   `select <table> <filter-json>`,
		Short: `Build a SELECT from a filter`,
		Long: `Build "SELECT <columns> FROM <table>" followed by the compiled filter.
With --dsn, runs the query and prints the rows.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args, cmd)
		},
	}

	addWhereFlags(cmd, opts)
	addDSNFlag(cmd, &opts.TableOptions)
	cmd.Flags().StringSliceVar(&opts.Columns, `columns`, nil, `columns to select (default "*")`)
	return cmd
}

func runSelect(opts *WhereOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := buildSelect(opts, args, cmd)
	if err != nil {
		return formatter.Fail(err)
	}

	err = emit(cmd.Context(), &opts.TableOptions, cmd, formatter, query, true)
	if err != nil {
		return formatter.Fail(err)
	}
	return nil
}

func buildSelect(opts *WhereOptions, args []string, cmd *cobra.Command) (pgq.Query, error) {
	table, allow, err := resolveTable(&opts.TableOptions, args[0])
	if err != nil {
		return pgq.Query{}, err
	}

	filter, err := decodeFilter(cmd, args[1])
	if err != nil {
		return pgq.Query{}, err
	}
	return table.Select(filter, allow, opts.whereOpts())
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
)

// Flags of the `where` and `select` commands.
type WhereOptions struct {
	TableOptions
	Alias    string
	Paginate bool
	Columns  []string
}

func addWhereFlags(cmd *cobra.Command, opts *WhereOptions) {
	addAllowFlag(cmd, &opts.TableOptions)
	cmd.Flags().StringVar(&opts.Alias, `alias`, ``, `table alias prefixed to every column`)
	cmd.Flags().BoolVar(&opts.Paginate, `paginate`, false, `honor "limit" and "offset" keys`)
}

func (self *WhereOptions) whereOpts() pgq.WhereOpts {
	return pgq.WhereOpts{Alias: self.Alias, Paginate: self.Paginate, Columns: self.Columns}
}

// Creates the `where` command.
func NewWhereCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WhereOptions{TableOptions: TableOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   `where <table> <filter-json>`,
		Short: `Compile a filter into a WHERE clause`,
		Long: `Compile a JSON filter into a WHERE / ORDER BY / LIMIT / OFFSET fragment.

Keys are column names with an optional operator suffix: "name.like",
"id.in", "deletedAt.null", "createdAt.startDate", "name.orderBy", etc.
Keys outside the allow-list are dropped.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhere(opts, args, cmd)
		},
	}

	addWhereFlags(cmd, opts)
	return cmd
}

func runWhere(opts *WhereOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := buildWhere(opts, args, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	return formatter.Query(query)
}

func buildWhere(opts *WhereOptions, args []string, cmd *cobra.Command) (pgq.Query, error) {
	_, allow, err := resolveTable(&opts.TableOptions, args[0])
	if err != nil {
		return pgq.Query{}, err
	}

	filter, err := decodeFilter(cmd, args[1])
	if err != nil {
		return pgq.Query{}, err
	}
	return pgq.BuildWhere(filter, allow, opts.whereOpts())
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
)

// Flags of the `update` command.
type UpdateOptions struct {
	TableOptions
	WhereAllow    []string
	Unconditional bool
	ChangedBy     string
}

// Creates the `update` command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{TableOptions: TableOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   `update <table> <data-json> <filter-json>`,
		Short: `Build an UPDATE from a JSON object and a filter`,
		Long: `Build an UPDATE from a JSON object of column values and a JSON filter for
the predicate. An update whose predicate is empty after applying the
allow-list is rejected unless --unconditional is given.`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, args, cmd)
		},
	}

	addAllowFlag(cmd, &opts.TableOptions)
	addReturningFlag(cmd, &opts.TableOptions)
	addDSNFlag(cmd, &opts.TableOptions)
	cmd.Flags().StringSliceVar(&opts.WhereAllow, `where-allow`, nil, `columns permitted in the filter (default: --allow)`)
	cmd.Flags().BoolVar(&opts.Unconditional, `unconditional`, false, `permit updating every row`)
	cmd.Flags().StringVar(&opts.ChangedBy, `changed-by`, ``, `value of the audit column`)
	return cmd
}

func runUpdate(opts *UpdateOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := buildUpdate(opts, args, cmd)
	if err != nil {
		return formatter.Fail(err)
	}

	err = emit(cmd.Context(), &opts.TableOptions, cmd, formatter, query, len(opts.Returning) > 0)
	if err != nil {
		return formatter.Fail(err)
	}
	return nil
}

func buildUpdate(opts *UpdateOptions, args []string, cmd *cobra.Command) (pgq.Query, error) {
	table, allow, err := resolveTable(&opts.TableOptions, args[0])
	if err != nil {
		return pgq.Query{}, err
	}

	var whereAllow pgq.AllowList
	if len(opts.WhereAllow) > 0 {
		whereAllow, err = table.Allow(opts.WhereAllow...)
		if err != nil {
			return pgq.Query{}, err
		}
	}

	data, err := decodeData(cmd, args[1])
	if err != nil {
		return pgq.Query{}, err
	}

	filter, err := decodeFilter(cmd, args[2])
	if err != nil {
		return pgq.Query{}, err
	}

	stmt, err := table.Update(data, allow, filter, pgq.UpdateOpts{
		ChangedBy:     opts.ChangedBy,
		Unconditional: opts.Unconditional,
		Returning:     opts.Returning,
		WhereAllow:    whereAllow,
	})
	if err != nil {
		return pgq.Query{}, err
	}
	return stmt.Query()
}

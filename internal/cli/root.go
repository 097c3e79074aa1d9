package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
)

// Global flags shared by every command.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Schema  string // path to a YAML schema file
}

// Allowed output formats.
var ValidFormats = []string{FormatText, FormatJSON}

const (
	FormatText = `text`
	FormatJSON = `json`
)

// Creates the root command of the `pgq` CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   `pgq`,
		Short: `Build parameterized Postgres statements`,
		Long: `Build parameterized Postgres statements from JSON filters and data, checked
against a YAML schema. Prints the SQL text with its values, or runs it when
--dsn is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf(`invalid format %q: must be one of %v`, opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, `verbose`, `v`, false, `verbose output`)
	cmd.PersistentFlags().StringVar(&opts.Format, `format`, FormatText, `output format (json|text)`)
	cmd.PersistentFlags().StringVarP(&opts.Schema, `schema`, `s`, `pgq.yaml`, `YAML schema file`)

	cmd.AddCommand(NewWhereCommand(opts))
	cmd.AddCommand(NewSelectCommand(opts))
	cmd.AddCommand(NewInsertCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewChainCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, val := range ValidFormats {
		if val == format {
			return true
		}
	}
	return false
}

// Diagnostics go to stderr so that JSON output stays parseable.
func newLogger(opts *RootOptions, out io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pgq-dev/pgq"
)

// Operations of a chain plan step.
const (
	OpInsert = `insert`
	OpUpdate = `update`
	OpRaw    = `raw`
)

/*
JSON description of a chained statement:

	{
		"steps": [
			{"name": "u", "op": "insert", "table": "users", "data": {"name": "John"}, "returning": ["*"]},
			{"name": "p", "op": "insert", "table": "posts", "data": {"title": "Hi"},
			 "ref": {"from": "u", "col": "id", "to": "userId"}}
		],
		"select": {"from": "u"}
	}
*/
type ChainPlan struct {
	Steps  []PlanStep `json:"steps"`
	Select PlanSelect `json:"select"`
}

type PlanStep struct {
	Name          string                 `json:"name"`
	Op            string                 `json:"op"`
	Table         string                 `json:"table"`
	Data          map[string]interface{} `json:"data"`
	Where         pgq.Filter             `json:"where"`
	Allow         []string               `json:"allow"`
	Returning     []string               `json:"returning"`
	Upsert        bool                   `json:"upsert"`
	Unconditional bool                   `json:"unconditional"`
	Ref           *pgq.Ref               `json:"ref"`
	Query         *pgq.Query             `json:"query"`
}

type PlanSelect struct {
	From    string   `json:"from"`
	Columns []string `json:"columns"`
}

// Flags of the `chain` command.
type ChainOptions struct {
	TableOptions
	ChangedBy string
}

// Creates the `chain` command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChainOptions{TableOptions: TableOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   `chain <plan-json>`,
		Short: `Compose several statements into one WITH statement`,
		Long: `Compose inserts, updates, and raw statements into one atomic statement made
of CTEs. A step may take one column from an earlier step through "ref".
Raw steps are given as {"query": {"sqlText": "...", "values": [...]}}.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(opts, args, cmd)
		},
	}

	addDSNFlag(cmd, &opts.TableOptions)
	cmd.Flags().StringVar(&opts.ChangedBy, `changed-by`, ``, `value of the audit column in every step`)
	return cmd
}

func runChain(opts *ChainOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	query, err := buildChain(opts, args, cmd, formatter)
	if err != nil {
		return formatter.Fail(err)
	}

	err = emit(cmd.Context(), &opts.TableOptions, cmd, formatter, query, true)
	if err != nil {
		return formatter.Fail(err)
	}
	return nil
}

func buildChain(opts *ChainOptions, args []string, cmd *cobra.Command, formatter *OutputFormatter) (pgq.Query, error) {
	src, err := readArg(cmd, args[0])
	if err != nil {
		return pgq.Query{}, err
	}

	var plan ChainPlan
	err = json.Unmarshal(src, &plan)
	if err != nil {
		return pgq.Query{}, WrapExitError(ExitCommandError, `decoding chain plan`, err)
	}

	schema, err := LoadSchema(opts.Schema)
	if err != nil {
		return pgq.Query{}, err
	}

	var chain pgq.Chain
	for _, step := range plan.Steps {
		formatter.VerboseLog(`adding step %q (%s)`, step.Name, step.Op)

		err := addPlanStep(&chain, schema, step, opts.ChangedBy)
		if err != nil {
			return pgq.Query{}, err
		}
	}
	return chain.Select(plan.Select.From, plan.Select.Columns...)
}

func addPlanStep(chain *pgq.Chain, schema Schema, step PlanStep, changedBy string) error {
	if step.Op == OpRaw {
		if step.Query == nil {
			return NewExitError(ExitCommandError, fmt.Sprintf(`raw step %q has no query`, step.Name))
		}
		return chain.Add(pgq.Step{Name: step.Name, Raw: *step.Query, Ref: step.Ref})
	}

	table, err := schema.Table(step.Table)
	if err != nil {
		return err
	}

	allowNames := step.Allow
	if len(allowNames) == 0 {
		allowNames = []string{pgq.AllowAllToken}
	}
	allow, err := table.Allow(allowNames...)
	if err != nil {
		return err
	}

	var stmt pgq.Statement
	switch step.Op {
	case OpInsert:
		stmt, err = table.Insert(step.Data, allow, pgq.InsertOpts{
			ChangedBy: changedBy,
			Upsert:    step.Upsert,
			Returning: step.Returning,
		})
	case OpUpdate:
		stmt, err = table.Update(step.Data, allow, step.Where, pgq.UpdateOpts{
			ChangedBy:     changedBy,
			Unconditional: step.Unconditional,
			Returning:     step.Returning,
		})
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf(
			`step %q: unknown op %q, expected one of %q, %q, %q`, step.Name, step.Op, OpInsert, OpUpdate, OpRaw,
		))
	}
	if err != nil {
		return err
	}

	return chain.Add(pgq.Step{Name: step.Name, Stmt: &stmt, Ref: step.Ref})
}

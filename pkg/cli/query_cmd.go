package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

func newAskCmd(client *Client, opts *options) *cobra.Command {
	var (
		write, execute, yes, schema bool
	)
	cmd := &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a question in plain language",
		Long: "Ask a question in plain language. Read-only questions run immediately; " +
			"with --write, destructive steps wait for confirmation unless --yes is given.",
		Example: `  nlsql ask "show all users"
  nlsql ask --write "delete the user named bob"
  nlsql ask --write --yes "add a user named dave"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := AskParams{
				Question:      strings.Join(args, " "),
				DatabaseID:    opts.database,
				ReadOnly:      !write,
				IncludeSchema: schema,
			}
			if cmd.Flags().Changed("execute") {
				p.Execute = &execute
			}
			resp, err := client.Ask(cmd.Context(), p)
			if err != nil {
				return err
			}
			if yes && resp.Summary.Pending > 0 && resp.Plan != nil && !resp.Plan.Started {
				if resp, err = client.Execute(cmd.Context(), resp.Plan.ID, nil); err != nil {
					return err
				}
			}
			return renderPlan(cmd, resp)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Allow INSERT, UPDATE and DELETE")
	cmd.Flags().BoolVar(&execute, "execute", false, "Override whether the plan runs immediately")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm every step that waits for confirmation")
	cmd.Flags().BoolVar(&schema, "schema", false, "Include the schema sent to the model")
	return cmd
}

func newSQLCmd(client *Client, opts *options) *cobra.Command {
	var write, execute bool
	cmd := &cobra.Command{
		Use:   "sql STATEMENT",
		Short: "Run one SQL statement through the same safety checks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := SQLParams{
				SQL:        strings.Join(args, " "),
				DatabaseID: opts.database,
				ReadOnly:   !write,
			}
			if cmd.Flags().Changed("execute") {
				p.Execute = &execute
			}
			resp, err := client.SQL(cmd.Context(), p)
			if err != nil {
				return err
			}
			return renderPlan(cmd, resp)
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Allow INSERT, UPDATE and DELETE")
	cmd.Flags().BoolVar(&execute, "execute", false, "Override whether the statement runs immediately")
	return cmd
}

func newExecuteCmd(client *Client) *cobra.Command {
	var steps []int
	cmd := &cobra.Command{
		Use:   "execute PLAN_ID",
		Short: "Execute a pending plan",
		Long:  "Execute a pending plan. Without --step every step waiting for confirmation is confirmed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Execute(cmd.Context(), args[0], steps)
			if err != nil {
				return err
			}
			return renderPlan(cmd, resp)
		},
	}
	cmd.Flags().IntSliceVar(&steps, "step", nil, "Confirm only these step numbers (repeatable)")
	return cmd
}

func newPlanCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "plan PLAN_ID",
		Short: "Show a plan and its step states",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Plan(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return renderPlan(cmd, resp)
		},
	}
}

func newCancelCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel PLAN_ID",
		Short: "Cancel a plan before its next step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			return render(cmd, map[string]string{"plan_id": args[0], "status": "cancel_requested"}, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "cancellation requested for plan %s\n", args[0])
			})
		},
	}
}

func renderPlan(cmd *cobra.Command, resp *query.PlanResponse) error {
	return render(cmd, resp, func(w io.Writer) { printPlan(w, resp) })
}

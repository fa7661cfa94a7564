package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

func newRollbackCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "rollback [RECORD_ID]",
		Short: "Show or undo the changes of the last write plan",
		Long: "Without an argument, show the rollback record of this session. " +
			"With a record id, undo its changes while the window is open.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				h, err := client.RollbackStatus(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd, h, func(w io.Writer) {
					steps := make([]string, len(h.Steps))
					for i, s := range h.Steps {
						steps[i] = fmt.Sprint(s)
					}
					printTable(w, []string{"RECORD", "PLAN", "DATABASE", "STEPS", "SECONDS LEFT"}, [][]string{{
						h.ID, h.PlanID, h.DatabaseID, strings.Join(steps, ","), fmt.Sprint(h.RemainingSeconds),
					}})
				})
			}

			out, err := client.Rollback(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd, out, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "rolled back %s: %d statement(s), %d row(s) restored\n",
					out.RecordID, out.Statements, out.RowsRestored)
			})
		},
	}
}

func newKeepCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "keep RECORD_ID",
		Short: "Keep the changes and discard the rollback record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.Keep(cmd.Context(), args[0]); err != nil {
				return err
			}
			return render(cmd, map[string]string{"record_id": args[0], "status": "kept"}, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "changes kept; rollback record %s discarded\n", args[0])
			})
		},
	}
}

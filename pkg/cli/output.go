package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/service/query"
)

const maxPrintedRows = 20

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printTable(w io.Writer, headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, r := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	_ = tw.Flush()
}

// render writes v as JSON or through table.
func render(cmd *cobra.Command, v any, table func(io.Writer)) error {
	w := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		return printJSON(w, v)
	}
	table(w)
	return nil
}

func printPlan(w io.Writer, resp *query.PlanResponse) {
	p := resp.Plan
	if p == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Plan %s (%s on %s)\n", p.ID, p.Mode, p.DatabaseID)

	rows := make([][]string, 0, len(p.Steps))
	for _, st := range p.Steps {
		sql := st.SQL
		if st.BoundSQL != "" {
			sql = st.BoundSQL
		}
		rows = append(rows, []string{fmt.Sprint(st.Number), string(st.Status), oneLine(sql, 80), stepNote(st)})
	}
	printTable(w, []string{"STEP", "STATUS", "SQL", "NOTE"}, rows)

	for _, warn := range resp.Warnings {
		_, _ = fmt.Fprintf(w, "warning: step %d: %s\n", warn.Step, warn.Message)
	}
	for _, im := range resp.Impact {
		_, _ = fmt.Fprintf(w, "impact: step %d %s on %s matches %d row(s)\n", im.Step, im.Operation, im.Table, im.MatchedRows)
		for _, d := range im.Dependents {
			_, _ = fmt.Fprintf(w, "  %d dependent row(s) in %s.%s (on delete %s)\n", d.Rows, d.Table, d.Column, onDelete(d.OnDelete))
		}
	}
	for _, st := range p.Steps {
		if st.Status == domain.StepSucceeded && st.Result != nil && len(st.Result.Columns) > 0 {
			_, _ = fmt.Fprintf(w, "\nStep %d: %d row(s)\n", st.Number, st.Result.RowCount)
			printResult(w, st.Result)
		}
	}

	s := resp.Summary
	_, _ = fmt.Fprintf(w, "\nexecuted %d, failed %d, skipped %d, denied %d, pending %d, canceled %d\n",
		s.Executed, s.Failed, s.Skipped, s.Denied, s.Pending, s.Canceled)
	if s.Pending > 0 {
		_, _ = fmt.Fprintf(w, "confirm with: nlsql execute %s\n", p.ID)
	}
	if rb := resp.Rollback; rb != nil {
		_, _ = fmt.Fprintf(w, "rollback available for %ds: nlsql rollback %s\n", rb.RemainingSeconds, rb.ID)
	}
}

func printResult(w io.Writer, res *domain.ExecutionResult) {
	rows := make([][]string, 0, min(len(res.Rows), maxPrintedRows))
	for i, r := range res.Rows {
		if i == maxPrintedRows {
			break
		}
		cells := make([]string, len(r))
		for j, v := range r {
			cells[j] = cell(v)
		}
		rows = append(rows, cells)
	}
	printTable(w, res.Columns, rows)
	if len(res.Rows) > maxPrintedRows {
		_, _ = fmt.Fprintf(w, "... %d more row(s)\n", len(res.Rows)-maxPrintedRows)
	}
}

func stepNote(st *domain.Step) string {
	switch {
	case st.Error != "":
		return st.Error
	case st.SkipReason != "":
		return st.SkipReason
	case st.Decision != nil && st.Decision.Reason != "":
		return st.Decision.Reason
	case st.Result != nil && st.Result.Write:
		return fmt.Sprintf("%d row(s) affected", st.Result.RowsAffected)
	}
	return ""
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func onDelete(rule string) string {
	if rule == "" {
		return "NO ACTION"
	}
	return rule
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

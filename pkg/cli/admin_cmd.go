package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmanoj0905/natural-language-sql/internal/domain"
)

func newAuditCmd(client *Client, opts *options) *cobra.Command {
	var filter domain.AuditFilter
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List audit records of destructive operations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if filter.DatabaseID == "" {
				filter.DatabaseID = opts.database
			}
			page, err := client.Audit(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return render(cmd, page, func(w io.Writer) {
				rows := make([][]string, 0, len(page.Records))
				for _, r := range page.Records {
					rows = append(rows, []string{
						r.Timestamp.Local().Format(time.DateTime), r.OperationType, r.TableName,
						oneLine(r.RecordIdentifier, 40), fmt.Sprint(r.RowsAffected), r.Performer,
					})
				}
				printTable(w, []string{"TIME", "OPERATION", "TABLE", "RECORD", "ROWS", "PERFORMER"}, rows)
				_, _ = fmt.Fprintf(w, "%d of %d record(s)\n", len(page.Records), page.Total)
			})
		},
	}
	cmd.Flags().StringVar(&filter.OperationType, "operation", "", "Filter by operation type (DELETE, UPDATE, ROLLBACK, ...)")
	cmd.Flags().StringVar(&filter.TableName, "table", "", "Filter by table name")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "Page size (server default 100)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "Records to skip")
	return cmd
}

func newDatabasesCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:     "databases",
		Aliases: []string{"dbs"},
		Short:   "List registered databases",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			list, err := client.Databases(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, list, func(w io.Writer) {
				rows := make([][]string, 0, len(list.Databases))
				for _, d := range list.Databases {
					def := ""
					if d.IsDefault {
						def = "*"
					}
					rows = append(rows, []string{def, d.ID, string(d.Type), d.Host, d.Database, d.Nickname})
				}
				printTable(w, []string{"", "ID", "TYPE", "HOST", "DATABASE", "NICKNAME"}, rows)
			})
		},
	}
}

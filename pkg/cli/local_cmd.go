package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jmanoj0905/natural-language-sql/internal/crypto"
	"github.com/jmanoj0905/natural-language-sql/internal/domain"
	"github.com/jmanoj0905/natural-language-sql/internal/sqlguard"
)

type classification struct {
	SQL        string                 `json:"sql"`
	Findings   []domain.DangerFinding `json:"findings"`
	Structural bool                   `json:"structural"`
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify STATEMENT",
		Short: "Show the danger findings of a statement without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql := strings.Join(args, " ")
			c := classification{SQL: sql, Findings: sqlguard.Classify(sql), Structural: sqlguard.IsStructural(sql)}
			if c.Findings == nil {
				c.Findings = []domain.DangerFinding{}
			}
			return render(cmd, c, func(w io.Writer) {
				if len(c.Findings) == 0 {
					_, _ = fmt.Fprintln(w, "no findings: plain read")
					return
				}
				rows := make([][]string, len(c.Findings))
				for i, f := range c.Findings {
					rows[i] = []string{string(f.Operation), string(f.Severity)}
				}
				printTable(w, []string{"OPERATION", "SEVERITY"}, rows)
				if c.Structural {
					_, _ = fmt.Fprintln(w, "structural: never executed by the server")
				}
			})
		},
	}
}

func newSealCmd() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "seal [PASSWORD]",
		Short: "Encrypt a database password for the databases file",
		Long: "Encrypt a database password with DB_ENCRYPTION_KEY (or --key). " +
			"The password is read from stdin when not given as an argument.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				key = os.Getenv("DB_ENCRYPTION_KEY")
			}
			if key == "" {
				return errors.New("no key: set DB_ENCRYPTION_KEY or pass --key (see nlsql gen-key)")
			}
			sealer, err := crypto.NewSealer(key)
			if err != nil {
				return err
			}

			var password string
			if len(args) == 1 {
				password = args[0]
			} else if password, err = readPassword(cmd); err != nil {
				return err
			}
			if password == "" {
				return errors.New("empty password")
			}

			sealed, err := sealer.Seal(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return err
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "Hex-encoded 32-byte key (default $DB_ENCRYPTION_KEY)")
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(cmd *cobra.Command) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a DB_ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
}

// Package cli implements the nlsql command-line client.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				errObj["http_status"] = apiErr.HTTPStatus
				errObj["code"] = apiErr.Code
			}
			_ = printJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// options are the resolved persistent flags.
type options struct {
	host      string
	session   string
	performer string
	database  string
	output    string
	profile   string
}

func newRootCmd() *cobra.Command {
	var opts options
	client := NewClient("http://localhost:8000")

	rootCmd := &cobra.Command{
		Use:           "nlsql",
		Short:         "Natural-language SQL client",
		Long:          "Ask questions in plain language, review the generated SQL plan, execute it and undo it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Config file is optional
			cfg, err := LoadUserConfig()
			if err != nil {
				cfg = &UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}
			}
			p := cfg.ActiveProfile(opts.profile)

			// Apply precedence: flag > env > profile > default
			resolve(cmd, "host", &opts.host, "NLSQL_HOST", p.Host)
			resolve(cmd, "session", &opts.session, "NLSQL_SESSION", p.Session)
			resolve(cmd, "performer", &opts.performer, "NLSQL_PERFORMER", p.Performer)
			resolve(cmd, "database", &opts.database, "NLSQL_DATABASE", p.Database)
			resolve(cmd, "output", &opts.output, "NLSQL_OUTPUT", p.Output)

			if err := validateOutputFormat(opts.output); err != nil {
				return err
			}
			client.SetBaseURL(opts.host)
			client.Session = opts.session
			client.Performer = opts.performer
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.host, "host", "http://localhost:8000", "API host URL")
	pf.StringVar(&opts.session, "session", defaultSession(), "Session id; rollback records are scoped to it")
	pf.StringVar(&opts.performer, "performer", "", "Name recorded in the audit log")
	pf.StringVarP(&opts.database, "database", "d", "", "Target database id (default: server default)")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	pf.StringVarP(&opts.profile, "profile", "p", "", "Config profile to use")

	rootCmd.AddCommand(
		newAskCmd(client, &opts),
		newSQLCmd(client, &opts),
		newExecuteCmd(client),
		newPlanCmd(client),
		newCancelCmd(client),
		newRollbackCmd(client),
		newKeepCmd(client),
		newAuditCmd(client, &opts),
		newDatabasesCmd(client),
		newClassifyCmd(),
		newSealCmd(),
		newGenKeyCmd(),
		newVersionCmd(),
		newCompletionCmd(),
	)
	return rootCmd
}

func resolve(cmd *cobra.Command, flag string, dst *string, env, profile string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v := os.Getenv(env); v != "" {
		*dst = v
	} else if profile != "" {
		*dst = profile
	}
}

// defaultSession keeps one rollback scope per user and host.
func defaultSession() string {
	host, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = "cli"
	}
	return "cli:" + user + "@" + host
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := map[string]string{"version": version, "commit": commit}
			return render(cmd, info, func(w io.Writer) {
				_, _ = fmt.Fprintf(w, "nlsql version %s (commit: %s)\n", version, commit)
			})
		},
	}
}

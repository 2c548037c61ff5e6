package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	CardsDir string // empty means the embedded card set
	TraceDB  string // empty disables the execution trace

	// Env replaces environment detection. Tests inject fakes here.
	Env *Environment
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ghx CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ghx",
		Short: "ghx - GitHub capability router",
		Long: `Run declarative GitHub capabilities over GraphQL, the gh CLI or REST,
with input validation, identifier resolution, batching, retries and route
fallback.

Environment:
  GITHUB_TOKEN, GH_TOKEN   credential for the graphql and rest routes
  GHX_CARDS_DIR            default for --cards
  GHX_TRACE_DB             default for --trace-db
  GHX_API_URL              API root (default https://api.github.com)
  GHX_SKIP_GH_PREFLIGHT    trust gh without checking installation and login`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.CardsDir, "cards", os.Getenv("GHX_CARDS_DIR"), "directory of operation cards (default: built-in cards)")
	cmd.PersistentFlags().StringVar(&opts.TraceDB, "trace-db", os.Getenv("GHX_TRACE_DB"), "SQLite database recording every execution")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // diagnostics stay off stdout so JSON stays parseable
		Verbose:   o.Verbose,
	}
}

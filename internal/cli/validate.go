package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aryeko/ghx-router-sub004/internal/registry"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Cards  int              `json:"cards"`
	Issues []registry.Issue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate operation cards",
		Long: `Load every operation card and report all problems at once.

Checks each document against the card meta-schema, compiles the input and
output schemas, parses the GraphQL documents, validates resolution and
template references, and checks that composite steps point at known
capabilities.

Examples:
  ghx validate
  ghx validate --cards ./cards --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	source := opts.CardsDir
	if source == "" {
		source = "built-in cards"
	}
	formatter.VerboseLog("Validating %s", source)

	reg, err := loadRegistry(opts, logger)
	if err != nil {
		var loadErr *registry.LoadError
		if !errors.As(err, &loadErr) {
			return cardsError(err)
		}
		return outputValidationIssues(formatter, loadErr.Issues)
	}

	result := ValidationResult{Valid: true, Cards: reg.Len()}
	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(fmt.Sprintf("All %d cards valid", result.Cards))
}

func outputValidationIssues(formatter *OutputFormatter, issues []registry.Issue) error {
	if formatter.Format == "json" {
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Issues: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: fmt.Sprintf("%d validation issue(s)", len(issues)),
			},
		}); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	fmt.Fprintf(formatter.Writer, "Validation failed with %d issue(s):\n", len(issues))
	for _, is := range issues {
		fmt.Fprintf(formatter.Writer, "  %s\n", is)
	}
	return NewExitError(ExitFailure, "validation failed")
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Input     string
	InputFile string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <capability>",
		Short: "Execute one capability",
		Long: `Execute one capability and print its result envelope.

Input is a JSON or YAML object given inline with --input or read from a file
with --input-file (use - for stdin). The capability runs on its preferred
route and falls back along the card's route list.

Exit status is 0 when the envelope is ok and 1 when it carries an error.

Examples:
  ghx run repo.view --input '{"owner":"cli","name":"cli"}'
  ghx run issue.labels.add --input-file labels.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapability(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "input object as JSON or YAML")
	cmd.Flags().StringVar(&opts.InputFile, "input-file", "", "read the input object from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("input", "input-file")

	return cmd
}

func runCapability(opts *RunOptions, capability string, cmd *cobra.Command) error {
	input, err := readInput(opts, cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	env := s.engine.ExecuteTask(ctx, engine.Request{Task: capability, Input: input}, s.env.Route)
	if err := writeEnvelope(opts.formatter(cmd), env); err != nil {
		return err
	}
	if !env.OK {
		// Already reported on stdout.
		return NewExitError(ExitFailure, "")
	}
	return nil
}

func readInput(opts *RunOptions, stdin io.Reader) (map[string]any, error) {
	var data []byte
	switch {
	case opts.InputFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read input from stdin", err)
		}
		data = b
	case opts.InputFile != "":
		b, err := os.ReadFile(opts.InputFile)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to read input file", err)
		}
		data = b
	default:
		data = []byte(opts.Input)
	}
	return parseInput(data)
}

// parseInput decodes a JSON or YAML object. Empty input is an empty object.
func parseInput(data []byte) (map[string]any, error) {
	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return nil, WrapExitError(ExitCommandError, "input must be a JSON or YAML object", err)
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

// writeEnvelope prints the envelope itself in JSON mode, and the data or
// the error in text mode.
func writeEnvelope(f *OutputFormatter, env engine.Envelope) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, env)
	}

	if env.OK {
		if err := writeJSON(f.Writer, env.Data); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(f.Writer, "Error [%s]: %s\n", env.Error.Code, env.Error.Message)
	}
	f.VerboseLog("capability=%s route=%s reason=%s request_id=%s",
		env.Meta.CapabilityID, env.Meta.RouteUsed, env.Meta.Reason, env.Meta.RequestID)
	for _, a := range env.Meta.Attempts {
		if a.ErrorCode != "" {
			f.VerboseLog("  attempt %s: %s (%s)", a.Route, a.Status, a.ErrorCode)
		} else {
			f.VerboseLog("  attempt %s: %s", a.Route, a.Status)
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

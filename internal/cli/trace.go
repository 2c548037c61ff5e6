package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aryeko/ghx-router-sub004/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Capability string
	Batch      string
	FailedOnly bool
	Limit      int
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace [request-id]",
		Short: "Inspect recorded executions",
		Long: `Inspect executions recorded in the trace database.

With a request id, prints that execution's envelope and route attempts.
Without one, lists the most recent executions, optionally filtered.

Examples:
  ghx trace --trace-db ./ghx.db
  ghx trace --trace-db ./ghx.db --failed --capability issue.labels.add
  ghx trace --trace-db ./ghx.db 01928c7e-7d4f-7aa2-b8a4-5e1f2d3c4b5a --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Capability, "capability", "", "only executions of this capability")
	cmd.Flags().StringVar(&opts.Batch, "batch", "", "only executions from this batch")
	cmd.Flags().BoolVar(&opts.FailedOnly, "failed", false, "only failed executions")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "maximum executions to list")

	return cmd
}

func runTrace(opts *TraceOptions, args []string, cmd *cobra.Command) error {
	if opts.TraceDB == "" {
		return NewExitError(ExitCommandError, "no trace database: set --trace-db or GHX_TRACE_DB")
	}
	if _, err := os.Stat(opts.TraceDB); errors.Is(err, fs.ErrNotExist) {
		return NewExitError(ExitCommandError, fmt.Sprintf("trace database not found: %s", opts.TraceDB))
	}

	st, err := store.Open(opts.TraceDB, store.ReadOnly())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open trace database", err)
	}
	defer st.Close()

	ctx := commandContext(cmd)
	formatter := opts.formatter(cmd)

	if len(args) == 1 {
		exec, err := st.ReadExecution(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			if opts.Format == "json" {
				if err := formatter.Error(ErrCodeNotFound, err.Error(), nil); err != nil {
					return err
				}
				return NewExitError(ExitFailure, "")
			}
			return NewExitError(ExitFailure, err.Error())
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read execution", err)
		}
		return outputExecution(formatter, exec)
	}

	execs, err := st.ListExecutions(ctx, store.ListOptions{
		CapabilityID: opts.Capability,
		BatchID:      opts.Batch,
		FailedOnly:   opts.FailedOnly,
		Limit:        opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list executions", err)
	}
	return outputExecutions(formatter, execs)
}

func outputExecution(f *OutputFormatter, exec store.Execution) error {
	if f.Format == "json" {
		return f.JSON(CLIResponse{Status: "ok", Data: exec, RequestID: exec.ID})
	}

	fmt.Fprintf(f.Writer, "Request:    %s\n", exec.ID)
	if exec.BatchID != "" {
		fmt.Fprintf(f.Writer, "Batch:      %s\n", exec.BatchID)
	}
	fmt.Fprintf(f.Writer, "Capability: %s\n", exec.CapabilityID)
	fmt.Fprintf(f.Writer, "Result:     %s\n", outcome(exec))
	if exec.RouteUsed != "" {
		fmt.Fprintf(f.Writer, "Route:      %s (%s)\n", exec.RouteUsed, exec.Reason)
	}
	if len(exec.Attempts) > 0 {
		fmt.Fprintln(f.Writer, "Attempts:")
		for i, a := range exec.Attempts {
			line := fmt.Sprintf("  %d. %s %s", i+1, a.Route, a.Status)
			if a.ErrorCode != "" {
				line += " " + a.ErrorCode
			}
			fmt.Fprintln(f.Writer, line)
		}
	}
	fmt.Fprintln(f.Writer, "Envelope:")
	fmt.Fprintln(f.Writer, string(exec.Envelope))
	return nil
}

func outputExecutions(f *OutputFormatter, execs []store.Execution) error {
	if f.Format == "json" {
		return f.Success(execs)
	}
	if len(execs) == 0 {
		fmt.Fprintln(f.Writer, "No executions recorded")
		return nil
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tREQUEST\tCAPABILITY\tROUTE\tRESULT")
	for _, exec := range execs {
		route := exec.RouteUsed
		if route == "" {
			route = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", exec.Seq, exec.ID, exec.CapabilityID, route, outcome(exec))
	}
	return tw.Flush()
}

func outcome(exec store.Execution) string {
	if exec.OK {
		return "ok"
	}
	return exec.ErrorCode
}

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aryeko/ghx-router-sub004/internal/engine"
)

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file|->",
		Short: "Execute several capabilities together",
		Long: `Execute a list of requests. GraphQL steps share one query call and one
mutation call; cli steps run on their own. Results keep the input order.

The file is JSON or YAML holding either a list of requests or an object
with a requests list:

  requests:
    - task: issue.close
      input: {issueId: I_kwDOA1}
    - task: issue.labels.add
      input: {owner: cli, name: cli, issueNumber: 7, labels: [bug]}

Exit status is 0 when every request succeeded and 1 otherwise.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runBatch(opts *RootOptions, path string, cmd *cobra.Command) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch file", err)
	}

	reqs, err := decodeRequests(data)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid batch file", err)
	}

	ctx := commandContext(cmd)
	s, err := newSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	result := s.engine.ExecuteTasks(ctx, reqs, s.env.Route)
	if err := writeBatch(opts.formatter(cmd), result); err != nil {
		return err
	}
	if result.Status != engine.BatchSuccess {
		return NewExitError(ExitFailure, "")
	}
	return nil
}

// decodeRequests accepts a bare list of requests or {requests: [...]}.
func decodeRequests(data []byte) ([]engine.Request, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("no requests")
	}

	var reqs []engine.Request
	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&reqs); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var wrapper struct {
			Requests []engine.Request `yaml:"requests"`
		}
		if err := root.Decode(&wrapper); err != nil {
			return nil, err
		}
		reqs = wrapper.Requests
	default:
		return nil, fmt.Errorf("line %d: expected a list of requests", root.Line)
	}

	for i := range reqs {
		if reqs[i].Task == "" {
			return nil, fmt.Errorf("request %d: task is required", i)
		}
		if reqs[i].Input == nil {
			reqs[i].Input = map[string]any{}
		}
	}
	return reqs, nil
}

func writeBatch(f *OutputFormatter, result engine.BatchResult) error {
	if f.Format == "json" {
		return writeJSON(f.Writer, result)
	}

	for i, env := range result.Results {
		if env.OK {
			fmt.Fprintf(f.Writer, "[%d] %s ok via %s\n", i, env.Meta.CapabilityID, env.Meta.RouteUsed)
			continue
		}
		fmt.Fprintf(f.Writer, "[%d] %s failed [%s]: %s\n", i, env.Meta.CapabilityID, env.Error.Code, env.Error.Message)
	}
	fmt.Fprintf(f.Writer, "%s: %d/%d succeeded\n", result.Status, result.Meta.Succeeded, result.Meta.Total)
	return nil
}

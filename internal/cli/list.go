package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aryeko/ghx-router-sub004/internal/card"
	"github.com/aryeko/ghx-router-sub004/internal/registry"
)

// CapabilitySummary is one row of ghx list.
type CapabilitySummary struct {
	CapabilityID string       `json:"capability_id"`
	Description  string       `json:"description"`
	Routes       []card.Route `json:"routes"`
	Composite    bool         `json:"composite,omitempty"`
	Mutation     bool         `json:"mutation,omitempty"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available capabilities",
		Long: `List every capability in the loaded card set, in registry order, with
its routes in preference order.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, cmd)
		},
	}
	return cmd
}

func runList(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	reg, err := loadRegistry(opts, newLogger(cmd.ErrOrStderr(), opts.Verbose))
	if err != nil {
		return cardsError(err)
	}

	cards := reg.List()
	if opts.Format == "json" {
		rows := make([]CapabilitySummary, 0, len(cards))
		for _, c := range cards {
			rows = append(rows, CapabilitySummary{
				CapabilityID: c.CapabilityID,
				Description:  c.Description,
				Routes:       c.Routing.Order(),
				Composite:    c.Composite != nil,
				Mutation:     c.GraphQL.IsMutation(),
			})
		}
		return formatter.Success(rows)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	for _, c := range cards {
		fmt.Fprintf(tw, "%s\t%s\n", registry.Describe(c), c.Description)
	}
	return tw.Flush()
}

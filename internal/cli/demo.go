package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/selection/rules"
	"github.com/liamcoop/selection/rules/generated"
)

const demoExamples = `  # Staff for an office furniture client:
  select demo --point-of-interest "Office Furniture" --budget 2000

  # Staff every matching rule agrees on:
  select demo --point-of-interest "Home Furniture" --budget 20000 --mode all`

type DemoArgs struct {
	*RootArgs

	Client generated.Client
	Mode   string
	Trace  bool
}

func NewDemoArgs(rootArgs *RootArgs) *DemoArgs {
	return &DemoArgs{
		RootArgs: rootArgs,
	}
}

func (da *DemoArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&da.Client.ID, "id", 1, "Client ID")
	cmd.Flags().StringVar(&da.Client.Name, "name", "John Doe", "Client name")
	cmd.Flags().StringVar(&da.Client.Phone, "phone", "", "Client phone number")
	cmd.Flags().StringVar(&da.Client.PointOfInterest, "point-of-interest", "Office Furniture",
		"Department the client is interested in")
	cmd.Flags().Float64Var(&da.Client.Budget, "budget", 2000, "Client budget")
	cmd.Flags().StringVar(&da.Mode, "mode", string(rules.ModeAny), "Selection mode, one of: all, any, first")
	cmd.Flags().BoolVar(&da.Trace, "trace", false, "Include per-rule evaluation results")

	err := cmd.RegisterFlagCompletionFunc("point-of-interest",
		cobra.FixedCompletions(
			[]string{"Office Furniture", "Home Furniture", "Plumbing Fixtures"},
			cobra.ShellCompDirectiveNoFileComp,
		),
	)
	if err != nil {
		panic(err)
	}
}

func NewDemoCmd(da *DemoArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "demo",
		Short:   "Assign showroom staff to a client with the built-in furniture rules",
		Example: demoExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return da.run(cmd)
		},
	}

	da.AddFlags(cmd)

	return cmd
}

func (da *DemoArgs) run(cmd *cobra.Command) error {
	mode, err := rules.ParseMode(da.Mode)
	if err != nil {
		return err
	}

	e := generated.DemoEngine()
	state := da.Client.State()
	ctx := cmd.Context()

	candidates, err := e.Run(ctx, mode, state)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}

	out := RunOutput{Mode: mode, Candidates: candidates}
	if da.Trace {
		out.Results, err = e.Evaluate(ctx, state)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

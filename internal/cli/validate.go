package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/selection/rules"
)

type ValidateArgs struct {
	*RootArgs

	File string
}

func NewValidateArgs(rootArgs *RootArgs) *ValidateArgs {
	return &ValidateArgs{
		RootArgs: rootArgs,
	}
}

func (va *ValidateArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&va.File, "file", "f", "", "Path to the rule set file")

	if err := cmd.MarkFlagFilename("file", "yaml", "yml"); err != nil {
		panic(fmt.Errorf("mark file flag: %w", err))
	}
}

func NewValidateCmd(va *ValidateArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that every rule in a rule set builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return va.run(cmd)
		},
	}

	va.AddFlags(cmd)

	return cmd
}

func (va *ValidateArgs) run(cmd *cobra.Command) error {
	if va.File == "" {
		return fmt.Errorf("a rule set is required, use --file")
	}

	rs, err := rules.LoadRuleSetFile(va.File)
	if err != nil {
		return err
	}

	env, err := rules.NewCELEnv(0)
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(rs.Rules))
	for _, def := range rs.Rules {
		if seen[def.ID] {
			errs = append(errs, fmt.Errorf("%w: %s", rules.ErrRuleExists, def.ID))
			continue
		}
		seen[def.ID] = true

		if _, err := def.Build(env); err != nil {
			errs = append(errs, err)
		}
	}

	ids := make(map[int64]bool, len(rs.Pool))
	for _, c := range rs.Pool {
		if ids[c.ID] {
			errs = append(errs, fmt.Errorf("%w: %d", rules.ErrCandidateExists, c.ID))
		}
		ids[c.ID] = true
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rules, %d candidates ok\n", va.File, len(rs.Rules), len(rs.Pool))
	return nil
}

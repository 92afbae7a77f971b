package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/liamcoop/selection/internal/logger"
	"github.com/liamcoop/selection/rules"
)

const runExamples = `  # Candidates any matching rule grants:
  select run -f ruleset.yaml --set pointOfInterest="Office Furniture" --set budget=20000

  # Candidates every matching rule agrees on:
  select run -f ruleset.yaml --mode all --state client.yaml

  # Include the per-rule trace:
  select run -f ruleset.yaml --state client.yaml --trace`

type RunArgs struct {
	*RootArgs

	File      string
	Mode      string
	Set       []string
	StateFile string
	Trace     bool
	CostLimit uint64
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&ra.File, "file", "f", "", "Path to the rule set file")
	cmd.Flags().StringVar(&ra.Mode, "mode", string(rules.ModeAny), "Selection mode, one of: all, any, first")
	cmd.Flags().StringArrayVar(&ra.Set, "set", nil, "State field as key=value, may be repeated")
	cmd.Flags().StringVar(&ra.StateFile, "state", "", "Path to a YAML or JSON state file")
	cmd.Flags().BoolVar(&ra.Trace, "trace", false, "Include per-rule evaluation results")
	cmd.Flags().Uint64Var(&ra.CostLimit, "cost-limit", rules.DefaultCostLimit, "CEL evaluation cost limit")

	for _, name := range []string{"file", "state"} {
		if err := cmd.MarkFlagFilename(name, "yaml", "yml", "json"); err != nil {
			panic(fmt.Errorf("mark %s flag: %w", name, err))
		}
	}

	err := cmd.RegisterFlagCompletionFunc("mode",
		cobra.FixedCompletions([]string{"all", "any", "first"}, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

func NewRunCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Select candidates for a state",
		Example: runExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ra.run(cmd)
		},
	}

	ra.AddFlags(cmd)

	return cmd
}

// RunOutput is what run prints.
type RunOutput struct {
	Mode       rules.Mode                `json:"mode"`
	Candidates []rules.Candidate         `json:"candidates"`
	Results    []*rules.EvaluationResult `json:"results,omitempty"`
}

func (ra *RunArgs) run(cmd *cobra.Command) error {
	if ra.File == "" {
		return fmt.Errorf("a rule set is required, use --file")
	}

	mode, err := rules.ParseMode(ra.Mode)
	if err != nil {
		return err
	}

	state, err := ra.state()
	if err != nil {
		return err
	}

	rs, err := rules.LoadRuleSetFile(ra.File)
	if err != nil {
		return err
	}

	env, err := rules.NewCELEnv(ra.CostLimit)
	if err != nil {
		return fmt.Errorf("create CEL environment: %w", err)
	}

	e, err := rs.Engine(env)
	if err != nil {
		return fmt.Errorf("build rules: %w", err)
	}
	logger.Debug("rule set loaded",
		"file", ra.File,
		"rules", len(e.Rules()),
		"pool", len(e.Pool()),
	)

	ctx := cmd.Context()
	candidates, err := e.Run(ctx, mode, state)
	if err != nil {
		return fmt.Errorf("select: %w", err)
	}

	out := RunOutput{Mode: mode, Candidates: candidates}
	if ra.Trace {
		out.Results, err = e.Evaluate(ctx, state)
		if err != nil {
			return fmt.Errorf("evaluate: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// state reads --state, then applies each --set on top.
func (ra *RunArgs) state() (rules.State, error) {
	state := rules.State{}

	if ra.StateFile != "" {
		data, err := os.ReadFile(ra.StateFile)
		if err != nil {
			return nil, fmt.Errorf("read state file: %w", err)
		}
		if err := yaml.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("decode state file %s: %w", ra.StateFile, err)
		}
		// A null document decodes to a nil map.
		if state == nil {
			state = rules.State{}
		}
	}

	for _, kv := range ra.Set {
		key, value, err := parseAssignment(kv)
		if err != nil {
			return nil, err
		}
		state[key] = value
	}

	return state, nil
}

// parseAssignment splits key=value. Finite decimal numbers are stored as
// float64 and the literals true and false as bool; everything else,
// NaN, Inf and hex included, stays a string.
func parseAssignment(kv string) (string, any, error) {
	key, raw, ok := strings.Cut(kv, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", nil, fmt.Errorf("invalid --set %q, want key=value", kv)
	}

	if decimal.MatchString(raw) {
		if n, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsInf(n, 0) {
			return key, n, nil
		}
	}
	switch raw {
	case "true":
		return key, true, nil
	case "false":
		return key, false, nil
	}
	return key, raw, nil
}

var decimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/liamcoop/selection/internal/logger"
)

const (
	cmdName = "select"
	cmdDesc = `Rule-based candidate selection from a YAML rule set.`
)

var (
	allLevels  = []string{"trace", "debug", "info", "warn", "error"}
	allFormats = []string{string(logger.FormatText), string(logger.FormatLogfmt), string(logger.FormatJSON)}
)

type RootArgs struct {
	LogLevel  string
	LogFormat string
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "warn", fmt.Sprintf("Log level, one of: %v", allLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %v", allFormats))

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(allFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(allLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

// NewRootCmd builds the select command tree.
func NewRootCmd() *cobra.Command {
	args := NewRootArgs()

	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging(args),
	}

	args.AddFlags(cmd)
	cmd.AddCommand(NewRunCmd(NewRunArgs(args)))
	cmd.AddCommand(NewValidateCmd(NewValidateArgs(args)))
	cmd.AddCommand(NewDemoCmd(NewDemoArgs(args)))

	bindEnvVars(cmd)

	return cmd
}

func setupLogging(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		level, err := logger.ParseLevel(ra.LogLevel)
		if err != nil {
			return fmt.Errorf("parse log level: %w", err)
		}
		format, err := logger.ParseFormat(ra.LogFormat)
		if err != nil {
			return fmt.Errorf("parse log format: %w", err)
		}

		logger.Configure(cmd.ErrOrStderr(), level, format)

		return nil
	}
}

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/liamcoop/selection/internal/logger"
)

// bindEnvVars binds environment variables to cobra command flags.
// Environment variable names are generated as SELECT_<FLAG_NAME> where the
// flag name is converted to uppercase and dashes are replaced with
// underscores, so "log-level" becomes "SELECT_LOG_LEVEL".
//
// Arguments take precedence over environment variables, which take precedence
// over default values. Usage strings are updated to name the variable.
func bindEnvVars(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		bindFlagToEnv(flag)
	})

	cmd.PersistentFlags().VisitAll(func(flag *pflag.Flag) {
		bindFlagToEnv(flag)
	})

	for _, sub := range cmd.Commands() {
		bindEnvVars(sub)
	}
}

// bindFlagToEnv binds a single flag to its corresponding environment variable.
func bindFlagToEnv(flag *pflag.Flag) {
	envName := flagToEnvName(flag.Name)

	if !strings.Contains(flag.Usage, envName) {
		flag.Usage = fmt.Sprintf("%s ($%s)", flag.Usage, envName)
	}

	// Skip if flag was already set via command line arguments.
	if flag.Changed {
		return
	}

	envValue, ok := os.LookupEnv(envName)
	if ok {
		if err := flag.Value.Set(envValue); err != nil {
			// Keep the default value.
			logger.Error("failed to set flag from environment variable",
				"flag", flag.Name,
				"env", envName,
				"value", envValue,
				"error", err,
			)
		}
	}
}

// flagToEnvName converts a flag name to its environment variable name.
// Example: "log-level" -> "SELECT_LOG_LEVEL".
func flagToEnvName(flagName string) string {
	envName := strings.ReplaceAll(flagName, "-", "_")
	return strings.ToUpper(cmdName + "_" + envName)
}

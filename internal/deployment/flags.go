package deployment

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagDef defines a command-line flag with its configuration.
type (
	flagType interface {
		string | int | bool
	}

	flagDef[T flagType] struct {
		name         string
		viperKey     string
		defaultValue T
		description  string
	}
)

var (
	deployStringFlags = []flagDef[string]{
		{"metrics-file", "metrics-file", "", "Write run metrics in Prometheus textfile format to this path"},
	}

	deployIntFlags = []flagDef[int]{
		{"parallelism", "deploy.parallelism", 1, "Number of contracts deployed concurrently"},
	}

	deployBoolFlags = []flagDef[bool]{
		{"skip-verify", "deploy.skip-verify", false, "Deploy without verifying the contract source"},
	}
)

func init() {
	if err := declareFlags(DeployCMD, deployStringFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(DeployCMD, deployIntFlags); err != nil {
		panic(err)
	}
	if err := declareFlags(DeployCMD, deployBoolFlags); err != nil {
		panic(err)
	}
}

// declareFlags declares multiple flags on cmd and binds them to viper configuration keys.
func declareFlags[T flagType](cmd *cobra.Command, flags []flagDef[T]) error {
	for _, flag := range flags {
		if err := declareFlag(cmd, flag.name, flag.viperKey, flag.defaultValue, flag.description); err != nil {
			return err
		}
	}
	return nil
}

// declareFlag declares a single flag and binds it to a viper configuration key.
// The type parameter T determines the flag type (string, int, or bool).
func declareFlag[T flagType](cmd *cobra.Command, flagName, viperKey string, defaultValue T, description string) error {
	var zero T
	switch any(zero).(type) {
	case string:
		cmd.Flags().String(flagName, any(defaultValue).(string), description)
	case int:
		cmd.Flags().Int(flagName, any(defaultValue).(int), description)
	case bool:
		cmd.Flags().Bool(flagName, any(defaultValue).(bool), description)
	}
	return viper.BindPFlag(viperKey, cmd.Flags().Lookup(flagName))
}

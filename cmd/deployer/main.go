package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/contract-deployer/configs"
	"github.com/compose-network/contract-deployer/internal/deployment"
	"github.com/compose-network/contract-deployer/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	appName   = "deployer"
	envPrefix = "DEPLOYER"
)

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Deploy and verify contracts on EVM and TRON networks",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo)

		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.With("err", err.Error()).Warn("failed to load .env file")
		}

		if err := configs.MergeDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
		viper.AutomaticEnv()

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if configFile := viper.GetString("config"); configFile != "" {
			viper.SetConfigFile(configFile)
		} else {
			if execPath, err := os.Executable(); err == nil {
				viper.AddConfigPath(filepath.Dir(execPath))
			}
			viper.AddConfigPath(".")
			viper.AddConfigPath("./configs")
		}

		// The embedded defaults are enough to run, a config file only overrides them.
		if err := viper.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		level, err := logger.ParseLevel(configs.Values.LogLevel)
		if err != nil {
			return err
		}
		logger.Initialize(level)

		slog.With("network", configs.Values.Network).Debug("configuration loaded")

		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a config file overriding the embedded defaults")
	flags.String("network", "", "Network to deploy to (default from config)")
	flags.String("artifacts", "", "Path to the compiled contracts.json")
	flags.String("output-dir", "", "Directory receiving deployment records")
	flags.String("log-level", "", "Log level: debug, info, warn or error")

	for _, name := range []string{"config", "network", "artifacts", "output-dir", "log-level"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func main() {
	rootCmd.AddCommand(deployment.DeployCMD)
	rootCmd.AddCommand(deployment.VerifyCMD)
	rootCmd.AddCommand(deployment.NetworksCMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		os.Exit(1)
	}
}

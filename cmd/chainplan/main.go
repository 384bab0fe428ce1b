package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/compose-network/chainplan/configs"
	"github.com/compose-network/chainplan/internal/cli"
	"github.com/compose-network/chainplan/internal/devnet"
	"github.com/compose-network/chainplan/internal/logger"
)

const appName = "chainplan"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Declarative smart contract deployments with a durable journal",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(logger.ParseLevel(logLevel))

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			viper.AddConfigPath(filepath.Dir(execPath))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		// A missing config file is fine, flags and defaults cover it.
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no config file found, relying on flags and defaults")
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

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(cli.DeployCMD)
	rootCmd.AddCommand(cli.StatusCMD)
	rootCmd.AddCommand(cli.WipeCMD)
	rootCmd.AddCommand(devnet.CMD)

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("command failed")
		os.Exit(1)
	}
}

// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/dyno_computer/internal/config"
)

const defaultConfigPath = "dyno_config.txt"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dyno",
	Short: "Roller dyno computer: reads the roller sensor and serves RPM, speed, torque and power.",
	Long: `dyno reads period samples from the roller sensor over serial and turns ` +
		`them into dashboard readings. "serve" runs the reader with the web ` +
		`dashboard, and the other commands attach to a running instance over MQTT.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"KEY=VALUE configuration file")
	rootCmd.AddCommand(serveCmd, consoleCmd, displayCmd, portsCmd)
}

// loadConfig reads the config file. A missing default file falls back to the
// built-in values, while a missing file named on the command line is an error.
func loadConfig(cmd *cobra.Command) error {
	path := configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !cmd.Flags().Changed("config") {
		logrus.Warnf("config: %s not found, using defaults", path)
		path = ""
	}
	if err := config.InitGlobal(path); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logrus.SetLevel(config.Get().LogLevel)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/measure/pkg/logging"
	"github.com/AleutianAI/measure/services/measure/config"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	verbose    bool

	// cfg and logger are set by setup before any subcommand runs.
	cfg    *config.Config
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "measure",
		Short: "Measure function performance and detect regressions",
		Long: `measure runs functions repeatedly against a monotonic clock, discards
warmup runs, trims outliers and reports duration statistics. Results are
appended to a .perf file and can be compared against a baseline.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath,
		"Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Shorthand for --log-level debug")

	rootCmd.AddCommand(calibrateCmd, compareCmd, historyCmd, initCmd)
}

// setup loads the configuration and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level := loaded.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	if verbose {
		level = "debug"
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}

	l, err := logging.New(logging.Config{
		Level:   lvl,
		LogDir:  loaded.Logging.Dir,
		Service: "measure",
		JSON:    loaded.Logging.JSON,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	l.SetDefault()

	cfg = loaded
	logger = l
	return nil
}

func teardown(*cobra.Command, []string) error {
	if logger == nil {
		return nil
	}
	return logger.Close()
}

// loadConfig reads path, falling back to defaults plus environment
// overrides when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	loaded, err := config.Load(path)
	if err == nil {
		return loaded, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	loaded = config.Default()
	if err := loaded.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := loaded.Validate(); err != nil {
		return nil, err
	}
	return loaded, nil
}

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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/measure/pkg/ux"
	"github.com/AleutianAI/measure/services/measure/config"
)

var initForce bool

// initCmd writes the default configuration file.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the configuration file",
	Long: `Create the configuration file with default settings.

An existing file is left untouched unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p := ux.NewPrinter(cmd.OutOrStdout())

		if initForce {
			if err := config.WriteDefault(configPath); err != nil {
				return err
			}
			p.Success(fmt.Sprintf("wrote default configuration to %s", configPath))
			return nil
		}

		loaded, created, err := config.LoadOrCreate(configPath)
		if err != nil {
			return err
		}
		if created {
			p.Success(fmt.Sprintf("created %s", configPath))
		} else {
			p.Info(fmt.Sprintf("%s already exists", configPath))
		}
		p.KeyValue(
			"runs", fmt.Sprint(loaded.Runs),
			"warmup", fmt.Sprint(loaded.WarmupRuns),
			"output", loaded.Output.Path,
		)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false,
		"Overwrite an existing configuration file")
}

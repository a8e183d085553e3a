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
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/measure/pkg/ux"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/store"
)

var historyLimit int

// historyCmd lists stored results.
//
// Without a name it lists every function in the store; with a name it shows
// that function's most recent results, newest first.
var historyCmd = &cobra.Command{
	Use:   "history [name]",
	Short: "Show stored results",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryCommand,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10,
		"Maximum results to show (0 for all)")
}

func runHistoryCommand(cmd *cobra.Command, args []string) error {
	db, err := store.Open(store.Config{Path: cfg.Store.Path, Logger: logger.Slog()})
	if err != nil {
		return fmt.Errorf("failed to open the history store: %w", err)
	}
	defer db.Close()

	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return showHistory(cmd.Context(), db, name, historyLimit, cmd.OutOrStdout(), logger.Slog())
}

// showHistory prints the stored names, or the history of one name.
func showHistory(ctx context.Context, db *store.BadgerStore, name string, limit int, w io.Writer, log *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := ux.NewPrinter(w)

	if name == "" {
		names, err := db.Names(ctx)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			p.Info("no stored results")
			return nil
		}
		p.Title("Stored functions")
		for _, n := range names {
			p.Info(n)
		}
		return nil
	}

	records, err := db.History(ctx, name, limit)
	if err != nil {
		return err
	}
	log.Debug("history loaded", slog.String("name", name), slog.Int("records", len(records)))

	if len(records) == 0 {
		p.Info(fmt.Sprintf("no stored results for %s", name))
		return nil
	}

	p.Title(name)
	for _, rec := range records {
		res := rec.Results
		p.KeyValue(
			"at", rec.Timestamp.Local().Format(time.DateTime),
			"mean", fmt.Sprintf("%.3fms", output.Millis(res.Duration.Mean)),
			"stdev", fmt.Sprintf("%.3fms", output.Millis(res.Duration.Stdev)),
			"p95", fmt.Sprintf("%.3fms", output.Millis(res.Duration.P95)),
			"runs", strconv.Itoa(res.Runs),
		)
	}
	return nil
}

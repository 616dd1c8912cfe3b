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
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/patchforge/changeset"
	"github.com/AleutianAI/patchforge/content"
	"github.com/AleutianAI/patchforge/events"
	"github.com/AleutianAI/patchforge/history"
	"github.com/AleutianAI/patchforge/metrics"
	"github.com/AleutianAI/patchforge/patch"
	"github.com/AleutianAI/patchforge/pkg/logging"
)

var (
	rootCmd = &cobra.Command{
		Use:   "patchforge",
		Short: "A line-level patch engine with review workflow",
		Long: `Patchforge computes line diffs, applies hunk edits with full-file
backups and rollback, and moves multi-file changesets through an
approval lifecycle with impact analysis.`,
		SilenceUsage: true,
	}

	cfgFile string
)

// app bundles the wired library components for command handlers.
type app struct {
	source  *content.OSStore
	engine  *patch.Engine
	manager *changeset.Manager
	history history.Store
	logger  *logging.Logger
}

func main() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.patchforge.yaml)")
	rootCmd.PersistentFlags().String("backup-dir", "", "backup directory (default ~/.patchforge/backups)")
	rootCmd.PersistentFlags().String("history-dir", "", "edit history directory (default ~/.patchforge/history)")
	rootCmd.PersistentFlags().Bool("strict", false, "treat content mismatches as conflicts")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json-logs", false, "emit JSON logs on stderr")

	for _, flag := range []string{"backup-dir", "history-dir", "strict", "log-level", "json-logs"} {
		_ = viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag))
	}

	addCommands()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".patchforge")
			viper.SetConfigType("yaml")
		}
	}

	viper.SetEnvPrefix("PATCHFORGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
}

func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".patchforge"), nil
}

func resolveDir(key, fallback string) (string, error) {
	if dir := viper.GetString(key); dir != "" {
		return dir, nil
	}
	base, err := stateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, fallback), nil
}

func buildLogger() *logging.Logger {
	level := logging.LevelInfo
	switch viper.GetString("log-level") {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(logging.Config{
		Level:   level,
		Service: "patchforge",
		JSON:    viper.GetBool("json-logs"),
	})
}

// buildApp wires the library stack for one command invocation.
//
// The content source is rooted at the working directory; all target
// paths resolve relative to it. Edit history persists in Badger so
// rollback works across invocations.
func buildApp() (*app, func(), error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, nil, fmt.Errorf("resolving working directory: %w", err)
	}
	source, err := content.NewOSStore(cwd)
	if err != nil {
		return nil, nil, err
	}

	backupDir, err := resolveDir("backup-dir", "backups")
	if err != nil {
		return nil, nil, err
	}
	backups, err := patch.NewBackupStore(backupDir)
	if err != nil {
		return nil, nil, err
	}

	historyDir, err := resolveDir("history-dir", "history")
	if err != nil {
		return nil, nil, err
	}
	hist, err := history.OpenBadger(historyDir)
	if err != nil {
		return nil, nil, fmt.Errorf("opening edit history: %w", err)
	}

	logger := buildLogger()
	m := metrics.New(nil)
	notifier := events.NewNotifier()

	engine, err := patch.NewEngine(patch.EngineConfig{
		Source:   source,
		Backups:  backups,
		History:  hist,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  m,
		Strict:   viper.GetBool("strict"),
	})
	if err != nil {
		hist.Close()
		return nil, nil, err
	}

	manager, err := changeset.NewManager(changeset.ManagerConfig{
		Source:   source,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		hist.Close()
		return nil, nil, err
	}

	cleanup := func() {
		notifier.Flush()
		hist.Close()
		logger.Close()
	}
	return &app{
		source:  source,
		engine:  engine,
		manager: manager,
		history: hist,
		logger:  logger,
	}, cleanup, nil
}

func addCommands() {
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(cleanupCmd)

	planCmd.Flags().String("target", "", "file the patch applies to (required)")
	_ = planCmd.MarkFlagRequired("target")
	applyCmd.Flags().String("target", "", "file the patch applies to (required)")
	_ = applyCmd.MarkFlagRequired("target")
	cleanupCmd.Flags().Duration("older-than", 72*time.Hour, "remove backups older than this")

	rootCmd.AddCommand(changesetCmd)
	changesetCmd.AddCommand(changesetCreateCmd)
	changesetCmd.AddCommand(changesetShowCmd)
	changesetCmd.AddCommand(changesetApproveCmd)
	changesetCmd.AddCommand(changesetRejectCmd)
	changesetCmd.AddCommand(changesetApplyCmd)
	changesetCmd.AddCommand(changesetRollbackCmd)
	changesetCmd.AddCommand(changesetListCmd)

	changesetCreateCmd.Flags().StringP("description", "d", "", "changeset description (required)")
	_ = changesetCreateCmd.MarkFlagRequired("description")
	changesetCreateCmd.Flags().StringArray("file", nil, "proposed change as target=source-file (repeatable)")
	changesetCreateCmd.Flags().StringArray("delete", nil, "file to delete (repeatable)")
	changesetApproveCmd.Flags().String("approver", "", "who approves (required)")
	_ = changesetApproveCmd.MarkFlagRequired("approver")
	changesetRejectCmd.Flags().String("reason", "", "why the changeset is rejected (required)")
	_ = changesetRejectCmd.MarkFlagRequired("reason")
}

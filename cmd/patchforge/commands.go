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
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/patchforge/diff"
	"github.com/AleutianAI/patchforge/patch"
)

var (
	addLine    = color.New(color.FgGreen).SprintFunc()
	delLine    = color.New(color.FgRed).SprintFunc()
	hunkHeader = color.New(color.FgCyan).SprintFunc()

	diffCmd = &cobra.Command{
		Use:   "diff <old-file> <new-file>",
		Short: "Print a colored unified diff between two files",
		Args:  cobra.ExactArgs(2),
		RunE:  runDiff,
	}
	planCmd = &cobra.Command{
		Use:   "plan <patch-file>",
		Short: "Parse hunks from a patch file and validate without applying",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlan,
	}
	applyCmd = &cobra.Command{
		Use:   "apply <patch-file>",
		Short: "Parse, validate, and apply hunks to the target file",
		Args:  cobra.ExactArgs(1),
		RunE:  runApply,
	}
	rollbackCmd = &cobra.Command{
		Use:   "rollback <edit-id>",
		Short: "Restore the file an edit mutated from its backup",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback,
	}
	cleanupCmd = &cobra.Command{
		Use:   "cleanup",
		Short: "Remove backups older than the retention window",
		Args:  cobra.NoArgs,
		RunE:  runCleanup,
	}
)

func runDiff(cmd *cobra.Command, args []string) error {
	oldData, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	newData, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[1], err)
	}

	fd := diff.NewFileDiff(args[1], string(oldData), string(newData))
	if fd.IsEmpty() {
		fmt.Println("files are identical")
		return nil
	}

	printColoredDiff(fd)
	fmt.Printf("\n%s: %s across %d hunks\n", fd.FilePath, fd.Stats(), fd.HunkCount())
	return nil
}

func printColoredDiff(fd *diff.FileDiff) {
	for _, line := range strings.Split(diff.FormatUnified(fd), "\n") {
		switch {
		case strings.HasPrefix(line, "@@"):
			fmt.Println(hunkHeader(line))
		case strings.HasPrefix(line, "+"):
			fmt.Println(addLine(line))
		case strings.HasPrefix(line, "-"):
			fmt.Println(delLine(line))
		default:
			fmt.Println(line)
		}
	}
}

func parsePatchFile(cmd *cobra.Command, patchFile string) (*patch.Edit, error) {
	target, _ := cmd.Flags().GetString("target")
	data, err := os.ReadFile(patchFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", patchFile, err)
	}
	edit, err := patch.ParseHunks(string(data), target)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", patchFile, err)
	}
	if edit == nil {
		return nil, fmt.Errorf("no hunk notation found in %s", patchFile)
	}
	return edit, nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	edit, err := parsePatchFile(cmd, args[0])
	if err != nil {
		return err
	}

	result, err := forge.engine.Validate(cmd.Context(), edit)
	if err != nil {
		return err
	}

	fmt.Printf("edit %s: %d hunks against %s\n", edit.ID, len(edit.Hunks), edit.FilePath)
	for _, c := range result.Conflicts {
		fmt.Println(delLine("conflict: " + c.Error()))
	}
	for _, w := range result.Warnings {
		fmt.Println("warning: " + w)
	}
	if result.Valid {
		fmt.Println(addLine("edit is applicable"))
		return nil
	}
	return fmt.Errorf("%d conflicts found", len(result.Conflicts))
}

func runApply(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	edit, err := parsePatchFile(cmd, args[0])
	if err != nil {
		return err
	}

	result, err := forge.engine.Apply(cmd.Context(), edit)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Println("warning: " + w)
	}
	fmt.Printf("applied edit %s: %d lines changed\n", result.EditID, result.LinesChanged)
	fmt.Printf("backup: %s\n", result.BackupPath)
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := forge.engine.Rollback(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("rolled back edit %s\n", args[0])
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	removed, err := forge.engine.CleanupBackups(cmd.Context(), olderThan)
	if err != nil {
		return err
	}
	fmt.Printf("removed %d backups older than %s\n", removed, olderThan)
	return nil
}

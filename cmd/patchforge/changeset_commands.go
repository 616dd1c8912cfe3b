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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/patchforge/changeset"
)

var (
	changesetCmd = &cobra.Command{
		Use:     "changeset",
		Aliases: []string{"cs"},
		Short:   "Manage multi-file change proposals",
	}
	changesetCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Propose a pending changeset from file contents",
		Args:  cobra.NoArgs,
		RunE:  runChangesetCreate,
	}
	changesetShowCmd = &cobra.Command{
		Use:   "show <id>",
		Short: "Print a changeset's status, impact, and unified diff",
		Args:  cobra.ExactArgs(1),
		RunE:  runChangesetShow,
	}
	changesetApproveCmd = &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending changeset",
		Args:  cobra.ExactArgs(1),
		RunE:  runChangesetApprove,
	}
	changesetRejectCmd = &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending changeset",
		Args:  cobra.ExactArgs(1),
		RunE:  runChangesetReject,
	}
	changesetApplyCmd = &cobra.Command{
		Use:   "apply <id>",
		Short: "Apply an approved changeset transactionally",
		Args:  cobra.ExactArgs(1),
		RunE:  runChangesetApply,
	}
	changesetRollbackCmd = &cobra.Command{
		Use:   "rollback <id>",
		Short: "Restore an applied changeset from its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runChangesetRollback,
	}
	changesetListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all known changesets",
		Args:  cobra.NoArgs,
		RunE:  runChangesetList,
	}
)

// changesetDir is where changesets persist between invocations.
func changesetDir() (string, error) {
	base, err := stateDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, "changesets")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating changeset directory: %w", err)
	}
	return dir, nil
}

// loadChangesets restores persisted changesets into the manager.
//
// Snapshots are process-local, so a changeset applied in an earlier
// invocation cannot be rolled back here; the manager reports
// ErrNoSnapshot in that case.
func loadChangesets(forge *app) error {
	dir, err := changesetDir()
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading changeset directory: %w", err)
	}
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("reading changeset %s: %w", e.Name(), err)
		}
		var cs changeset.ChangeSet
		if err := json.Unmarshal(data, &cs); err != nil {
			return fmt.Errorf("decoding changeset %s: %w", e.Name(), err)
		}
		if err := forge.manager.Restore(&cs); err != nil {
			return err
		}
	}
	return nil
}

func saveChangeset(cs *changeset.ChangeSet) error {
	dir, err := changesetDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding changeset %s: %w", cs.ID, err)
	}
	path := filepath.Join(dir, cs.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("persisting changeset %s: %w", cs.ID, err)
	}
	return nil
}

func buildChangesetApp() (*app, func(), error) {
	forge, cleanup, err := buildApp()
	if err != nil {
		return nil, nil, err
	}
	if err := loadChangesets(forge); err != nil {
		cleanup()
		return nil, nil, err
	}
	return forge, cleanup, nil
}

func runChangesetCreate(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	fileSpecs, _ := cmd.Flags().GetStringArray("file")
	deletes, _ := cmd.Flags().GetStringArray("delete")
	description, _ := cmd.Flags().GetString("description")

	var proposals []changeset.Proposed
	for _, spec := range fileSpecs {
		target, source, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid --file %q, want target=source-file", spec)
		}
		data, err := os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("reading %s: %w", source, err)
		}
		proposals = append(proposals, changeset.Proposed{Path: target, NewContent: string(data)})
	}
	for _, path := range deletes {
		proposals = append(proposals, changeset.Proposed{Path: path, Delete: true})
	}

	cs, err := forge.manager.Create(cmd.Context(), description, proposals)
	if err != nil {
		return err
	}
	if err := saveChangeset(cs); err != nil {
		return err
	}

	fmt.Printf("created changeset %s (%s)\n", cs.ID, cs.Status)
	printImpact(cs)
	return nil
}

func printImpact(cs *changeset.ChangeSet) {
	fmt.Printf("impact: %d files, +%d -%d, risk %s\n",
		cs.Impact.TotalFiles, cs.Impact.TotalAdditions, cs.Impact.TotalDeletions, cs.Impact.RiskLevel)
	for _, w := range cs.Impact.Warnings {
		fmt.Println("  warning: " + w)
	}
}

func runChangesetShow(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	cs, err := forge.manager.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("changeset %s: %s\n", cs.ID, cs.Description)
	fmt.Printf("status: %s  created: %s\n", cs.Status, cs.CreatedAt.Format("2006-01-02 15:04:05"))
	if cs.Approver != "" {
		fmt.Printf("approved by %s at %s\n", cs.Approver, cs.ApprovedAt.Format("2006-01-02 15:04:05"))
	}
	if cs.RejectReason != "" {
		fmt.Printf("rejected: %s\n", cs.RejectReason)
	}
	printImpact(cs)

	out, err := forge.manager.FormatUnifiedDiff(cs.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Print(out)
	return nil
}

func runChangesetApprove(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	approver, _ := cmd.Flags().GetString("approver")
	if err := forge.manager.Approve(args[0], approver); err != nil {
		return err
	}
	return persistAndReport(forge, args[0], "approved")
}

func runChangesetReject(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	reason, _ := cmd.Flags().GetString("reason")
	if err := forge.manager.Reject(args[0], reason); err != nil {
		return err
	}
	return persistAndReport(forge, args[0], "rejected")
}

func runChangesetApply(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := forge.manager.Apply(cmd.Context(), args[0]); err != nil {
		return err
	}
	return persistAndReport(forge, args[0], "applied")
}

func runChangesetRollback(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := forge.manager.Rollback(cmd.Context(), args[0]); err != nil {
		return err
	}
	return persistAndReport(forge, args[0], "rolled back")
}

func persistAndReport(forge *app, id, verb string) error {
	cs, err := forge.manager.Get(id)
	if err != nil {
		return err
	}
	if err := saveChangeset(cs); err != nil {
		return err
	}
	fmt.Printf("changeset %s %s\n", id, verb)
	return nil
}

func runChangesetList(cmd *cobra.Command, args []string) error {
	forge, cleanup, err := buildChangesetApp()
	if err != nil {
		return err
	}
	defer cleanup()

	sets := forge.manager.List()
	if len(sets) == 0 {
		fmt.Println("no changesets")
		return nil
	}
	for _, cs := range sets {
		fmt.Printf("%s  %-11s  %d files  risk %-6s  %s\n",
			cs.ID, cs.Status, len(cs.Files), cs.Impact.RiskLevel, cs.Description)
	}
	return nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package impact derives a risk assessment from a set of file diffs.
//
// The analysis is heuristic and path-based: it never parses file content.
// It exists to route a ChangeSet to the right level of review, not to
// prove anything about the change.
package impact

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/patchforge/diff"
)

// =============================================================================
// Risk Levels
// =============================================================================

// Risk classifies how much review a change deserves.
type Risk string

const (
	// RiskLow is routine volume with no flagged paths.
	RiskLow Risk = "low"

	// RiskMedium has at least one warning or a large deletion volume.
	RiskMedium Risk = "medium"

	// RiskHigh has many warnings or a very large deletion volume.
	RiskHigh Risk = "high"
)

// =============================================================================
// Analysis
// =============================================================================

// Analysis summarizes the blast radius of a set of file diffs.
type Analysis struct {
	// TotalFiles is the number of files touched.
	TotalFiles int `json:"total_files"`

	// TotalAdditions is the added line count across all files.
	TotalAdditions int `json:"total_additions"`

	// TotalDeletions is the removed line count across all files.
	TotalDeletions int `json:"total_deletions"`

	// Warnings describes flagged paths and deletions, one per finding.
	Warnings []string `json:"warnings,omitempty"`

	// RiskLevel is derived from warning count and deletion volume.
	RiskLevel Risk `json:"risk_level"`
}

// configBasenames are exact file names that suggest configuration.
var configBasenames = map[string]bool{
	".env":       true,
	"dockerfile": true,
	"makefile":   true,
}

// configExtensions are file extensions that suggest configuration.
var configExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".toml": true,
	".ini":  true,
}

// sensitiveSegments are path tokens that suggest security or auth surface.
var sensitiveSegments = map[string]bool{
	"auth":        true,
	"secret":      true,
	"secrets":     true,
	"token":       true,
	"tokens":      true,
	"credential":  true,
	"credentials": true,
	"password":    true,
	"passwords":   true,
	"key":         true,
	"keys":        true,
}

// Analyze tallies a set of file diffs and derives a risk level.
//
// # Description
//
// Warnings are flagged for three findings: paths that look like
// configuration (.env, Dockerfile, Makefile, .yaml/.yml/.toml/.ini
// anywhere, .json under a config directory), paths containing a
// security-suggestive token (auth, secret, token, credential, password,
// key), and every file deletion.
//
// Risk thresholds: more than 3 warnings or more than 500 deleted lines
// is high; any warning or more than 100 deleted lines is medium;
// otherwise low.
//
// # Inputs
//
//   - files: The diffs under review. Nil and empty are both fine.
//
// # Outputs
//
//   - *Analysis: Never nil. Zero files yields low risk.
func Analyze(files []*diff.FileDiff) *Analysis {
	a := &Analysis{
		TotalFiles: len(files),
		RiskLevel:  RiskLow,
	}

	for _, fd := range files {
		a.TotalAdditions += fd.Additions
		a.TotalDeletions += fd.Deletions

		if isConfigPath(fd.FilePath) {
			a.Warnings = append(a.Warnings, fmt.Sprintf("configuration file modified: %s", fd.FilePath))
		}
		if isSensitivePath(fd.FilePath) {
			a.Warnings = append(a.Warnings, fmt.Sprintf("security-sensitive path modified: %s", fd.FilePath))
		}
		if fd.ChangeType == diff.ChangeDelete {
			a.Warnings = append(a.Warnings, fmt.Sprintf("file deleted: %s", fd.FilePath))
		}
	}

	switch {
	case len(a.Warnings) > 3 || a.TotalDeletions > 500:
		a.RiskLevel = RiskHigh
	case len(a.Warnings) > 0 || a.TotalDeletions > 100:
		a.RiskLevel = RiskMedium
	}

	return a
}

// isConfigPath reports whether the path looks like configuration.
func isConfigPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if configBasenames[base] {
		return true
	}
	ext := filepath.Ext(base)
	if configExtensions[ext] {
		return true
	}
	// JSON is only config-suggestive when it lives under a config dir.
	if ext == ".json" {
		for _, seg := range pathSegments(path) {
			if seg == "config" || seg == "configs" || seg == "conf" {
				return true
			}
		}
	}
	return false
}

// isSensitivePath reports whether any path token suggests auth surface.
//
// Tokens are path segments split further on separators, so "api_key.go"
// flags but "monkey.go" does not.
func isSensitivePath(path string) bool {
	for _, seg := range pathSegments(path) {
		for _, tok := range strings.FieldsFunc(seg, func(r rune) bool {
			return r == '.' || r == '_' || r == '-'
		}) {
			if sensitiveSegments[tok] {
				return true
			}
		}
	}
	return false
}

// pathSegments returns the lowercased slash-separated segments of path.
func pathSegments(path string) []string {
	return strings.Split(strings.ToLower(filepath.ToSlash(path)), "/")
}

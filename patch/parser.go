// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package patch

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// Hunk notations recognized in free-form text. Upstream generators emit one
// of three shapes; all discovered hunks merge into a single Edit.
var (
	// Fenced block carrying the range on the fence line:
	//
	//	```go lines 3-5
	//	replacement
	//	```
	fenceRangeRe = regexp.MustCompile(`^\x60{3}[a-zA-Z0-9_+-]*\s+lines\s+(\d+)\s*-\s*(\d+)\s*$`)

	// Range marker on its own line, optionally with a "replace" verb,
	// followed by a fenced block:
	//
	//	Replace lines 3-5:
	//	```go
	//	replacement
	//	```
	markerRangeRe = regexp.MustCompile(`(?i)^(?:replace\s+)?lines\s+(\d+)\s*-\s*(\d+)\s*:?\s*$`)

	// Unified-diff hunk header.
	unifiedHeaderRe = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+\d+(?:,\d+)? @@`)

	fenceRe = regexp.MustCompile(`^\x60{3}`)
)

// ParseHunks extracts hunks from free-form text.
//
// # Description
//
// Recognizes three notations independently: fenced blocks annotated with an
// explicit line range, standard unified-diff hunks, and "replace lines N-M"
// markers followed by a fenced block. All discovered hunks are merged into
// one Edit targeting targetFile, sorted by start line.
//
// # Inputs
//
//   - text: Free-form text, typically upstream generator output.
//   - targetFile: Path the resulting Edit applies to.
//
// # Outputs
//
//   - *Edit: The merged edit, or nil when no hunk notation was found.
//     A nil Edit with nil error is the normal nothing-to-do outcome.
//   - error: Non-nil only for malformed unified-diff bodies.
func ParseHunks(text, targetFile string) (*Edit, error) {
	lines := strings.Split(text, "\n")

	var hunks []Hunk

	fenced := parseFencedRanges(lines)
	hunks = append(hunks, fenced...)

	unified, err := parseUnified(lines)
	if err != nil {
		return nil, err
	}
	hunks = append(hunks, unified...)

	if len(hunks) == 0 {
		return nil, nil
	}

	sort.Slice(hunks, func(i, j int) bool {
		return hunks[i].StartLine < hunks[j].StartLine
	})

	return NewEdit(targetFile, hunks), nil
}

// parseFencedRanges handles both the fence-line annotation and the
// standalone range marker forms.
func parseFencedRanges(lines []string) []Hunk {
	var hunks []Hunk

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")

		if m := fenceRangeRe.FindStringSubmatch(line); m != nil {
			body, next := readFenceBody(lines, i+1)
			if h, ok := rangeHunk(m[1], m[2], body); ok {
				hunks = append(hunks, h)
			}
			i = next
			continue
		}

		if m := markerRangeRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			// The fence must follow the marker, allowing blank lines between.
			j := i + 1
			for j < len(lines) && strings.TrimSpace(lines[j]) == "" {
				j++
			}
			if j >= len(lines) || !fenceRe.MatchString(lines[j]) || fenceRangeRe.MatchString(lines[j]) {
				continue
			}
			body, next := readFenceBody(lines, j+1)
			if h, ok := rangeHunk(m[1], m[2], body); ok {
				hunks = append(hunks, h)
			}
			i = next
		}
	}

	return hunks
}

// readFenceBody collects lines until the closing fence, returning the body
// and the index of the closing fence (or the last line).
func readFenceBody(lines []string, start int) (string, int) {
	var body []string
	for i := start; i < len(lines); i++ {
		if fenceRe.MatchString(lines[i]) {
			return strings.Join(body, "\n"), i
		}
		body = append(body, lines[i])
	}
	return strings.Join(body, "\n"), len(lines) - 1
}

// rangeHunk builds a Hunk from parsed range bounds and a replacement body.
func rangeHunk(startStr, endStr, body string) (Hunk, bool) {
	start, err1 := strconv.Atoi(startStr)
	end, err2 := strconv.Atoi(endStr)
	if err1 != nil || err2 != nil {
		return Hunk{}, false
	}
	return Hunk{
		StartLine:  start,
		EndLine:    end,
		NewContent: body,
	}, true
}

// parseUnified extracts unified-diff regions and converts their hunks.
//
// Only the first file's hunks are collected: a "--- " or "+++ " header
// appearing after hunks have been found starts a different file's diff,
// which cannot apply to the single target path of the resulting Edit.
func parseUnified(lines []string) ([]Hunk, error) {
	var regions [][]string

	for i := 0; i < len(lines); i++ {
		if isFileHeader(lines[i]) && len(regions) > 0 {
			break
		}
		if !unifiedHeaderRe.MatchString(lines[i]) {
			continue
		}
		// Collect the header plus the prefixed body lines that follow.
		// A file header terminates the region; its "---"/"+++" lines
		// would otherwise be swept into the body as change lines.
		region := []string{lines[i]}
		j := i + 1
		for j < len(lines) {
			l := lines[j]
			if isFileHeader(l) {
				break
			}
			if unifiedHeaderRe.MatchString(l) ||
				strings.HasPrefix(l, "+") ||
				strings.HasPrefix(l, "-") ||
				strings.HasPrefix(l, " ") ||
				strings.HasPrefix(l, `\`) ||
				l == "" && j+1 < len(lines) && isDiffBodyLine(lines[j+1]) {
				region = append(region, l)
				j++
				continue
			}
			break
		}
		regions = append(regions, region)
		i = j - 1
	}

	var hunks []Hunk
	for _, region := range regions {
		parsed, err := diff.ParseHunks([]byte(strings.Join(region, "\n") + "\n"))
		if err != nil {
			return nil, err
		}
		for _, ph := range parsed {
			if h, ok := convertUnifiedHunk(ph); ok {
				hunks = append(hunks, h)
			}
		}
	}
	return hunks, nil
}

// isFileHeader reports whether the line is a unified-diff file header.
func isFileHeader(l string) bool {
	return strings.HasPrefix(l, "--- ") || strings.HasPrefix(l, "+++ ")
}

func isDiffBodyLine(l string) bool {
	return strings.HasPrefix(l, "+") || strings.HasPrefix(l, "-") ||
		strings.HasPrefix(l, " ") || unifiedHeaderRe.MatchString(l)
}

// convertUnifiedHunk maps a unified hunk onto the span/replacement model.
//
// The old side (context + removed lines) becomes the expected original
// content; the new side (context + added lines) becomes the replacement.
// Insertion-only hunks with no old-side lines cannot be anchored to a span
// and are skipped.
func convertUnifiedHunk(ph *diff.Hunk) (Hunk, bool) {
	if ph.OrigLines == 0 {
		return Hunk{}, false
	}

	var oldSide, newSide []string
	for _, raw := range strings.Split(strings.TrimSuffix(string(ph.Body), "\n"), "\n") {
		if raw == "" {
			// A bare empty line inside a hunk body is an empty context line.
			oldSide = append(oldSide, "")
			newSide = append(newSide, "")
			continue
		}
		switch raw[0] {
		case ' ':
			oldSide = append(oldSide, raw[1:])
			newSide = append(newSide, raw[1:])
		case '-':
			oldSide = append(oldSide, raw[1:])
		case '+':
			newSide = append(newSide, raw[1:])
		case '\\':
			// "\ No newline at end of file" markers carry no content.
		}
	}

	return Hunk{
		StartLine:       int(ph.OrigStartLine),
		EndLine:         int(ph.OrigStartLine) + int(ph.OrigLines) - 1,
		OriginalContent: strings.Join(oldSide, "\n"),
		NewContent:      strings.Join(newSide, "\n"),
	}, true
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diff

import "strings"

// contextLines is the number of unchanged lines kept on each flank of a
// hunk, and the run length of context that closes an open hunk.
const contextLines = 3

// MaxDiffLines bounds the LCS table.
//
// The table is O(n*m); beyond this many lines per side the diff degrades to
// a single whole-file replacement hunk instead of running the DP.
const MaxDiffLines = 20000

// Compute computes the line-level diff between two text bodies.
//
// # Description
//
// Splits both texts into lines, computes the Longest Common Subsequence via
// dynamic programming, and walks both sequences against it: lines in the LCS
// are context, lines only in the new text are additions, lines only in the
// old text are removals. Runs of changes are coalesced into hunks; a hunk
// closes once three consecutive context lines follow a changed run.
//
// # Inputs
//
//   - oldText: The original content.
//   - newText: The proposed content.
//
// # Outputs
//
//   - []*Hunk: Ordered hunks with 1-indexed line numbers. Empty when the
//     texts are identical.
func Compute(oldText, newText string) []*Hunk {
	oldLines := SplitLines(oldText)
	newLines := SplitLines(newText)

	if len(oldLines) > MaxDiffLines || len(newLines) > MaxDiffLines {
		return wholeFileHunk(oldLines, newLines)
	}

	stream := buildStream(oldLines, newLines)
	return groupHunks(stream)
}

// SplitLines splits text into lines without a trailing phantom line.
//
// An empty string yields no lines, so diffing against empty content shows
// pure additions rather than the removal of one empty line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// buildStream produces the full context/removed/added line stream.
func buildStream(oldLines, newLines []string) []DiffLine {
	common := lcs(oldLines, newLines)

	stream := make([]DiffLine, 0, len(oldLines)+len(newLines))
	i, j := 0, 0
	for _, c := range common {
		// Old lines not in the LCS at the cursor are removals.
		for i < len(oldLines) && oldLines[i] != c {
			stream = append(stream, DiffLine{Type: LineRemoved, Content: oldLines[i], OldNum: i + 1})
			i++
		}
		// New lines not in the LCS at the cursor are additions.
		for j < len(newLines) && newLines[j] != c {
			stream = append(stream, DiffLine{Type: LineAdded, Content: newLines[j], NewNum: j + 1})
			j++
		}
		stream = append(stream, DiffLine{Type: LineContext, Content: c, OldNum: i + 1, NewNum: j + 1})
		i++
		j++
	}

	// Trailing lines after the last common line.
	for ; i < len(oldLines); i++ {
		stream = append(stream, DiffLine{Type: LineRemoved, Content: oldLines[i], OldNum: i + 1})
	}
	for ; j < len(newLines); j++ {
		stream = append(stream, DiffLine{Type: LineAdded, Content: newLines[j], NewNum: j + 1})
	}

	return stream
}

// lcs computes the Longest Common Subsequence of two line slices.
//
// Standard O(n*m) dynamic programming table, backtracked from the corner to
// emit the common subsequence in order.
func lcs(a, b []string) []string {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return nil
	}

	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}

	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if a[i-1] == b[j-1] {
				table[i][j] = table[i-1][j-1] + 1
			} else if table[i-1][j] >= table[i][j-1] {
				table[i][j] = table[i-1][j]
			} else {
				table[i][j] = table[i][j-1]
			}
		}
	}

	result := make([]string, table[n][m])
	i, j := n, m
	for i > 0 && j > 0 {
		switch {
		case a[i-1] == b[j-1]:
			result[table[i][j]-1] = a[i-1]
			i--
			j--
		case table[i-1][j] >= table[i][j-1]:
			i--
		default:
			j--
		}
	}
	return result
}

// groupHunks coalesces the line stream into context-bounded hunks.
//
// A hunk opens at the first changed line (seeded with up to contextLines of
// preceding context) and closes once more than contextLines consecutive
// context lines follow the changed run. Leading context never overlaps the
// previous hunk's trailing context.
func groupHunks(stream []DiffLine) []*Hunk {
	var hunks []*Hunk
	n := len(stream)
	prevStop := 0

	i := 0
	for i < n {
		if stream[i].IsContext() {
			i++
			continue
		}

		// Seed with leading context, clamped to the previous hunk boundary.
		start := i
		for start > prevStop && i-start < contextLines && stream[start-1].IsContext() {
			start--
		}

		// Extend through the changed run until the context gap exceeds the
		// window.
		last := i
		trailing := 0
		j := i
		for j < n {
			if stream[j].IsContext() {
				trailing++
				if trailing > contextLines {
					break
				}
			} else {
				trailing = 0
				last = j
			}
			j++
		}

		stop := last + 1 + contextLines
		if stop > n {
			stop = n
		}

		// Old cursor value just before the hunk, for pure-insertion anchors.
		prevOld := 0
		for k := start - 1; k >= 0; k-- {
			if stream[k].OldNum > 0 {
				prevOld = stream[k].OldNum
				break
			}
		}

		lines := append([]DiffLine(nil), stream[start:stop]...)
		hunks = append(hunks, finalizeHunk(lines, prevOld))
		prevStop = stop
		i = stop
	}

	return hunks
}

// finalizeHunk computes the header counts for a completed hunk.
//
// prevOld is the old cursor value just before the hunk's first line, used
// for pure-insertion hunks that carry no old line numbers.
func finalizeHunk(lines []DiffLine, prevOld int) *Hunk {
	h := &Hunk{Lines: lines}

	for _, l := range lines {
		if l.OldNum > 0 {
			if h.OldStart == 0 {
				h.OldStart = l.OldNum
			}
			h.OldCount++
		}
		if l.NewNum > 0 {
			if h.NewStart == 0 {
				h.NewStart = l.NewNum
			}
			h.NewCount++
		}
	}

	// Pure insertion: anchor to the old line the insertion follows.
	if h.OldCount == 0 {
		h.OldStart = prevOld
	}
	// Pure deletion: anchor likewise on the new side.
	if h.NewCount == 0 {
		for _, l := range lines {
			if l.NewNum > 0 {
				h.NewStart = l.NewNum
			}
		}
	}

	return h
}

// wholeFileHunk emits one hunk replacing the entire file. Used when inputs
// exceed MaxDiffLines and the DP table would be too expensive.
func wholeFileHunk(oldLines, newLines []string) []*Hunk {
	if len(oldLines) == 0 && len(newLines) == 0 {
		return nil
	}

	lines := make([]DiffLine, 0, len(oldLines)+len(newLines))
	for i, l := range oldLines {
		lines = append(lines, DiffLine{Type: LineRemoved, Content: l, OldNum: i + 1})
	}
	for j, l := range newLines {
		lines = append(lines, DiffLine{Type: LineAdded, Content: l, NewNum: j + 1})
	}

	h := &Hunk{
		OldCount: len(oldLines),
		NewCount: len(newLines),
		Lines:    lines,
	}
	if h.OldCount > 0 {
		h.OldStart = 1
	}
	if h.NewCount > 0 {
		h.NewStart = 1
	}
	return []*Hunk{h}
}

// NewFileDiff builds a FileDiff for one file's before/after pair.
//
// # Description
//
// Derives the change type (create when no prior content, delete when no new
// content), computes hunks via Compute, and tallies added/removed lines.
//
// # Inputs
//
//   - path: File path for display and application.
//   - oldContent: Current content, empty when the file does not exist.
//   - newContent: Proposed content, empty when the file is being deleted.
//
// # Outputs
//
//   - *FileDiff: The populated diff. Never nil.
func NewFileDiff(path, oldContent, newContent string) *FileDiff {
	fd := &FileDiff{
		FilePath:   path,
		OldContent: oldContent,
		NewContent: newContent,
		ChangeType: ChangeModify,
		Hunks:      Compute(oldContent, newContent),
	}

	switch {
	case oldContent == "" && newContent != "":
		fd.ChangeType = ChangeCreate
	case oldContent != "" && newContent == "":
		fd.ChangeType = ChangeDelete
	}

	for _, h := range fd.Hunks {
		fd.Additions += h.AddedCount()
		fd.Deletions += h.RemovedCount()
	}
	return fd
}

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

import (
	"fmt"
	"strings"
)

// FormatUnified renders a FileDiff in unified-diff format.
//
// # Description
//
// Produces the conventional rendering:
//
//	--- a/path
//	+++ b/path
//	@@ -oldStart,oldLines +newStart,newLines @@
//	 context
//	-removed
//	+added
//
// Created files use /dev/null as the old side; deleted files use /dev/null
// as the new side.
func FormatUnified(fd *FileDiff) string {
	var sb strings.Builder

	oldName := "a/" + fd.FilePath
	newName := "b/" + fd.FilePath
	if fd.ChangeType == ChangeCreate {
		oldName = "/dev/null"
	}
	if fd.ChangeType == ChangeDelete {
		newName = "/dev/null"
	}

	sb.WriteString(fmt.Sprintf("--- %s\n", oldName))
	sb.WriteString(fmt.Sprintf("+++ %s\n", newName))

	for _, h := range fd.Hunks {
		sb.WriteString(h.Header())
		sb.WriteString("\n")
		for _, line := range h.Lines {
			sb.WriteString(line.String())
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

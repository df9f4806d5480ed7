package executor

import (
	"fmt"
	"strings"
)

// diffContext is the number of unchanged lines shown before the first change
const diffContext = 2

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(s, "\n"), "\n")
}

// NewFileDiff renders content as an all-added unified diff
func NewFileDiff(file, content string) string {
	lines := splitLines(content)
	var b strings.Builder
	fmt.Fprintf(&b, "--- /dev/null\n+++ b/%s\n@@ -0,0 +1,%d @@\n", file, len(lines))
	for _, l := range lines {
		b.WriteString("+" + l + "\n")
	}
	return b.String()
}

// DeletedFileDiff renders content as an all-removed unified diff
func DeletedFileDiff(file, content string) string {
	lines := splitLines(content)
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ /dev/null\n@@ -1,%d +0,0 @@\n", file, len(lines))
	for _, l := range lines {
		b.WriteString("-" + l + "\n")
	}
	return b.String()
}

// LineDiff produces a single hunk covering the changed region between old and
// new, found by trimming the common prefix and suffix, with two lines of
// leading context. Identical inputs yield an empty string.
func LineDiff(file, old, new string) string {
	if old == new {
		return ""
	}
	a, b := splitLines(old), splitLines(new)

	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	start := prefix - diffContext
	if start < 0 {
		start = 0
	}
	removed := a[prefix : len(a)-suffix]
	added := b[prefix : len(b)-suffix]
	context := a[start:prefix]

	oldLen := len(context) + len(removed)
	newLen := len(context) + len(added)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n+++ b/%s\n", file, file)
	fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", hunkStart(start, oldLen), oldLen, hunkStart(start, newLen), newLen)
	for _, l := range context {
		sb.WriteString(" " + l + "\n")
	}
	for _, l := range removed {
		sb.WriteString("-" + l + "\n")
	}
	for _, l := range added {
		sb.WriteString("+" + l + "\n")
	}
	return sb.String()
}

// hunkStart follows the unified format: an empty range starts at the line before it
func hunkStart(start, length int) int {
	if length == 0 {
		return start
	}
	return start + 1
}

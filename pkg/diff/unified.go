package diff

import (
	"bytes"
	"fmt"
	"io"

	"github.com/odvcencio/twig/pkg/diff3"
)

// ContextLines is the number of unchanged lines shown around each hunk.
// Together with the marker conventions in pkg/diff3 it forms the printed
// diff contract.
const ContextLines = 3

const binarySniffLen = 8000

// IsBinary reports whether content should be treated as binary: a NUL byte
// within the leading sniff window.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = sniff[:binarySniffLen]
	}
	return bytes.IndexByte(sniff, 0) >= 0
}

// WriteUnified writes a unified diff for a single file to w. before or after
// may be nil for additions and deletions respectively. Equal contents write
// nothing; binary contents write a one-line notice instead of hunks.
func WriteUnified(w io.Writer, path string, before, after []byte) error {
	if bytes.Equal(before, after) {
		return nil
	}

	if _, err := fmt.Fprintf(w, "--- a/%s\n+++ b/%s\n", path, path); err != nil {
		return err
	}

	if IsBinary(before) || IsBinary(after) {
		_, err := fmt.Fprintf(w, "Binary files a/%s and b/%s differ\n", path, path)
		return err
	}

	lines := diff3.LineDiff(before, after)
	for _, h := range buildHunks(lines, ContextLines) {
		oldStart, oldCount, newStart, newCount := h.lineRange(lines)
		if _, err := fmt.Fprintf(w, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount); err != nil {
			return err
		}
		for _, dl := range lines[h.start:h.end] {
			var prefix byte
			switch dl.Type {
			case diff3.Equal:
				prefix = ' '
			case diff3.Insert:
				prefix = '+'
			case diff3.Delete:
				prefix = '-'
			}
			if _, err := fmt.Fprintf(w, "%c%s\n", prefix, dl.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

// Unified renders WriteUnified to a string.
func Unified(path string, before, after []byte) string {
	var buf bytes.Buffer
	WriteUnified(&buf, path, before, after)
	return buf.String()
}

// hunk is a half-open range into a line diff covering a run of changes plus
// surrounding context.
type hunk struct {
	start int
	end   int
}

// buildHunks groups changed lines into hunks, merging hunks whose context
// windows touch or overlap.
func buildHunks(lines []diff3.DiffLine, contextLines int) []hunk {
	if contextLines < 0 {
		contextLines = 0
	}

	var hunks []hunk
	for i, dl := range lines {
		if dl.Type == diff3.Equal {
			continue
		}

		start := i - contextLines
		if start < 0 {
			start = 0
		}
		end := i + contextLines + 1
		if end > len(lines) {
			end = len(lines)
		}

		if len(hunks) == 0 || start > hunks[len(hunks)-1].end {
			hunks = append(hunks, hunk{start: start, end: end})
			continue
		}
		if end > hunks[len(hunks)-1].end {
			hunks[len(hunks)-1].end = end
		}
	}
	return hunks
}

// lineRange translates a hunk's diff-line range into the @@ header numbers:
// 1-based starting lines and line counts on each side.
func (h hunk) lineRange(lines []diff3.DiffLine) (oldStart, oldCount, newStart, newCount int) {
	oldLine, newLine := 1, 1
	for i := 0; i < h.start; i++ {
		switch lines[i].Type {
		case diff3.Equal:
			oldLine++
			newLine++
		case diff3.Delete:
			oldLine++
		case diff3.Insert:
			newLine++
		}
	}

	oldStart, newStart = oldLine, newLine

	for i := h.start; i < h.end; i++ {
		switch lines[i].Type {
		case diff3.Equal:
			oldCount++
			newCount++
		case diff3.Delete:
			oldCount++
		case diff3.Insert:
			newCount++
		}
	}

	// An empty side is conventionally anchored one line earlier.
	if oldCount == 0 {
		oldStart--
	}
	if newCount == 0 {
		newStart--
	}
	return oldStart, oldCount, newStart, newCount
}

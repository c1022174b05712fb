package diff3

import (
	"bytes"
	"strings"
)

// HunkType classifies a hunk in a three-way merge result.
type HunkType int

const (
	HunkClean    HunkType = iota // merged without intervention
	HunkConflict                 // needs manual resolution
)

// Hunk is a contiguous section of the merge output with the side contents
// that produced it.
type Hunk struct {
	Type                       HunkType
	Base, Ours, Theirs, Merged []byte
}

// Result holds the outcome of a three-way merge. Merge never fails: a
// conflicted input still produces complete output with both versions
// bracketed by markers, and HasConflicts flags it.
type Result struct {
	Merged       []byte
	HasConflicts bool
	Hunks        []Hunk
}

// DiffLine is a single line in the output of LineDiff.
type DiffLine struct {
	Type    DiffType
	Content string
}

// LineDiff computes a line-level diff between byte slices a and b. The diff
// and show commands render their hunks from it.
func LineDiff(a, b []byte) []DiffLine {
	ops := MyersDiff(splitLines(string(a)), splitLines(string(b)))

	result := make([]DiffLine, len(ops))
	for i, op := range ops {
		result[i] = DiffLine{Type: op.Type, Content: op.Line}
	}
	return result
}

// Merge performs a three-way merge of base, ours, and theirs.
//
// Each side is diffed against the base, and the two edit scripts are turned
// into chunk runs that tile the base. The combiner then walks both runs,
// expanding to the smallest base region covered by whole chunks on both
// sides, and decides per region: unchanged regions keep the base, a change
// on one side wins, identical changes converge, and differing changes on the
// same region become a conflict with ours before theirs between the markers.
// It is a pure function: no filesystem or repository state.
func Merge(base, ours, theirs []byte) Result {
	baseLines := splitLines(string(base))
	oursChunks := buildChunks(baseLines, splitLines(string(ours)))
	theirsChunks := buildChunks(baseLines, splitLines(string(theirs)))

	return mergeChunks(baseLines, oursChunks, theirsChunks)
}

// splitLines splits s into lines. A trailing newline does not produce an
// extra empty element.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// chunk is a contiguous region relative to the base: the half-open base line
// range it covers and the side's replacement lines for that range. Chunks
// from one diff tile the base without gaps; pure insertions appear as
// zero-width changed chunks.
type chunk struct {
	baseStart, baseEnd int
	lines              []string
	changed            bool
}

// buildChunks converts a two-way diff (base to side) into a chunk run.
func buildChunks(base, side []string) []chunk {
	ops := MyersDiff(base, side)

	var chunks []chunk
	baseIdx := 0

	i := 0
	for i < len(ops) {
		if ops[i].Type == Equal {
			chunks = append(chunks, chunk{
				baseStart: baseIdx,
				baseEnd:   baseIdx + 1,
				lines:     []string{ops[i].Line},
			})
			baseIdx++
			i++
			continue
		}

		// Accumulate a contiguous changed run of deletes and inserts.
		chunkStart := baseIdx
		var sideLines []string
		for i < len(ops) && ops[i].Type != Equal {
			if ops[i].Type == Delete {
				baseIdx++
			} else {
				sideLines = append(sideLines, ops[i].Line)
			}
			i++
		}
		chunks = append(chunks, chunk{
			baseStart: chunkStart,
			baseEnd:   baseIdx,
			lines:     sideLines,
			changed:   true,
		})
	}

	return chunks
}

// mergeChunks walks the two chunk runs in parallel, region by region.
func mergeChunks(baseLines []string, oursChunks, theirsChunks []chunk) Result {
	var merged bytes.Buffer
	var hunks []Hunk
	hasConflicts := false

	oi, ti := 0, 0
	for oi < len(oursChunks) || ti < len(theirsChunks) {
		// One run exhausted: the remaining chunks on the other side cannot
		// overlap anything, take them as-is.
		if oi >= len(oursChunks) {
			c := theirsChunks[ti]
			writeLines(&merged, c.lines)
			hunks = append(hunks, cleanHunk(baseLines, c, false, c.changed))
			ti++
			continue
		}
		if ti >= len(theirsChunks) {
			c := oursChunks[oi]
			writeLines(&merged, c.lines)
			hunks = append(hunks, cleanHunk(baseLines, c, c.changed, false))
			oi++
			continue
		}

		// Expand to the smallest base region covered by whole chunks on both
		// sides. Because each run tiles the base, the expansion reaches a
		// fixpoint with both sides ending at the same base line.
		regionStart := min(oursChunks[oi].baseStart, theirsChunks[ti].baseStart)
		regionEnd := max(oursChunks[oi].baseEnd, theirsChunks[ti].baseEnd)

		var oursRegion, theirsRegion []chunk
		for {
			consumed := oi + ti
			for oi < len(oursChunks) && oursChunks[oi].baseStart < regionEnd {
				oursRegion = append(oursRegion, oursChunks[oi])
				regionEnd = max(regionEnd, oursChunks[oi].baseEnd)
				oi++
			}
			for ti < len(theirsChunks) && theirsChunks[ti].baseStart < regionEnd {
				theirsRegion = append(theirsRegion, theirsChunks[ti])
				regionEnd = max(regionEnd, theirsChunks[ti].baseEnd)
				ti++
			}
			if oi+ti == consumed {
				break
			}
		}

		baseRegion := baseLines[regionStart:regionEnd]
		oursOut := assembleRegion(oursRegion)
		theirsOut := assembleRegion(theirsRegion)
		oursChanged := anyChanged(oursRegion)
		theirsChanged := anyChanged(theirsRegion)

		switch {
		case !oursChanged && !theirsChanged:
			writeLines(&merged, baseRegion)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Merged: joinLines(baseRegion),
			})
		case oursChanged && !theirsChanged:
			writeLines(&merged, oursOut)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Ours:   joinLines(oursOut),
				Merged: joinLines(oursOut),
			})
		case !oursChanged && theirsChanged:
			writeLines(&merged, theirsOut)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Theirs: joinLines(theirsOut),
				Merged: joinLines(theirsOut),
			})
		case linesEqual(oursOut, theirsOut):
			writeLines(&merged, oursOut)
			hunks = append(hunks, Hunk{
				Type:   HunkClean,
				Base:   joinLines(baseRegion),
				Ours:   joinLines(oursOut),
				Merged: joinLines(oursOut),
			})
		default:
			hasConflicts = true
			writeConflict(&merged, oursOut, theirsOut)
			hunks = append(hunks, Hunk{
				Type:   HunkConflict,
				Base:   joinLines(baseRegion),
				Ours:   joinLines(oursOut),
				Theirs: joinLines(theirsOut),
			})
		}
	}

	return Result{
		Merged:       merged.Bytes(),
		HasConflicts: hasConflicts,
		Hunks:        hunks,
	}
}

func cleanHunk(baseLines []string, c chunk, fromOurs, fromTheirs bool) Hunk {
	h := Hunk{
		Type:   HunkClean,
		Merged: joinLines(c.lines),
	}
	if c.baseStart < c.baseEnd {
		h.Base = joinLines(baseLines[c.baseStart:c.baseEnd])
	}
	if fromOurs {
		h.Ours = joinLines(c.lines)
	}
	if fromTheirs {
		h.Theirs = joinLines(c.lines)
	}
	return h
}

func writeLines(buf *bytes.Buffer, lines []string) {
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
}

func writeConflict(buf *bytes.Buffer, oursLines, theirsLines []string) {
	buf.WriteString("<<<<<<< ours\n")
	writeLines(buf, oursLines)
	buf.WriteString("=======\n")
	writeLines(buf, theirsLines)
	buf.WriteString(">>>>>>> theirs\n")
}

func joinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	var buf bytes.Buffer
	writeLines(&buf, lines)
	return buf.Bytes()
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func assembleRegion(chunks []chunk) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, c.lines...)
	}
	return lines
}

func anyChanged(chunks []chunk) bool {
	for _, c := range chunks {
		if c.changed {
			return true
		}
	}
	return false
}

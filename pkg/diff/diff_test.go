package diff

import (
	"fmt"
	"strings"
	"testing"

	"github.com/odvcencio/twig/pkg/object"
)

// TestTreeChanges verifies that comparing two flattened trees yields added,
// modified, and deleted entries in path order, with unchanged paths omitted.
func TestTreeChanges(t *testing.T) {
	h1 := object.HashObject(object.TypeBlob, []byte("one"))
	h2 := object.HashObject(object.TypeBlob, []byte("two"))
	h3 := object.HashObject(object.TypeBlob, []byte("three"))
	h4 := object.HashObject(object.TypeBlob, []byte("four"))
	h5 := object.HashObject(object.TypeBlob, []byte("five"))

	from := map[string]object.Hash{
		"a.txt": h1,
		"b.txt": h2,
		"d.txt": h4,
	}
	to := map[string]object.Hash{
		"a.txt": h1,
		"b.txt": h3,
		"c.txt": h5,
	}

	changes := TreeChanges(from, to)

	want := []Change{
		{Path: "b.txt", Action: Modified},
		{Path: "c.txt", Action: Added},
		{Path: "d.txt", Action: Deleted},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d changes, want %d: %v", len(changes), len(want), changes)
	}
	for i, c := range changes {
		if c != want[i] {
			t.Errorf("change %d: got %+v, want %+v", i, c, want[i])
		}
	}
}

// TestTreeChangesIdentical verifies that identical trees produce no changes.
func TestTreeChangesIdentical(t *testing.T) {
	h := object.HashObject(object.TypeBlob, []byte("same"))
	from := map[string]object.Hash{"x.txt": h}

	if changes := TreeChanges(from, from); len(changes) != 0 {
		t.Fatalf("identical trees produced changes: %v", changes)
	}
}

// TestUnifiedEqual verifies that equal contents render as an empty diff.
func TestUnifiedEqual(t *testing.T) {
	data := []byte("A\nB\nC\n")
	if out := Unified("f.txt", data, data); out != "" {
		t.Fatalf("equal contents produced output:\n%s", out)
	}
}

// TestUnifiedModify verifies the full rendered output for a single changed
// line, including the file header and hunk header.
func TestUnifiedModify(t *testing.T) {
	before := []byte("A\nB\nC\n")
	after := []byte("A\nX\nC\n")

	got := Unified("f.txt", before, after)
	want := "--- a/f.txt\n" +
		"+++ b/f.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" A\n" +
		"-B\n" +
		"+X\n" +
		" C\n"
	if got != want {
		t.Fatalf("unified diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

// TestUnifiedAddFile verifies the hunk header for a pure addition: the old
// side is anchored at line 0 with zero count.
func TestUnifiedAddFile(t *testing.T) {
	got := Unified("new.txt", nil, []byte("A\nB\n"))
	want := "--- a/new.txt\n" +
		"+++ b/new.txt\n" +
		"@@ -0,0 +1,2 @@\n" +
		"+A\n" +
		"+B\n"
	if got != want {
		t.Fatalf("addition diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

// TestUnifiedDeleteFile verifies the hunk header for a pure deletion.
func TestUnifiedDeleteFile(t *testing.T) {
	got := Unified("old.txt", []byte("A\nB\n"), nil)
	want := "--- a/old.txt\n" +
		"+++ b/old.txt\n" +
		"@@ -1,2 +0,0 @@\n" +
		"-A\n" +
		"-B\n"
	if got != want {
		t.Fatalf("deletion diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

// TestUnifiedBinary verifies that binary content is reported without hunks.
func TestUnifiedBinary(t *testing.T) {
	before := []byte("\x00\x01old")
	after := []byte("new\x00")

	got := Unified("img.bin", before, after)
	want := "--- a/img.bin\n" +
		"+++ b/img.bin\n" +
		"Binary files a/img.bin and b/img.bin differ\n"
	if got != want {
		t.Fatalf("binary diff mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

// TestUnifiedHunkSeparation verifies that edits farther apart than the
// context window produce separate hunks with correct line numbers.
func TestUnifiedHunkSeparation(t *testing.T) {
	var beforeB, afterB strings.Builder
	for i := 1; i <= 20; i++ {
		line := fmt.Sprintf("L%02d", i)
		beforeB.WriteString(line + "\n")
		switch i {
		case 2:
			afterB.WriteString("X2\n")
		case 18:
			afterB.WriteString("X18\n")
		default:
			afterB.WriteString(line + "\n")
		}
	}

	got := Unified("big.txt", []byte(beforeB.String()), []byte(afterB.String()))

	if n := strings.Count(got, "@@ "); n != 2 {
		t.Fatalf("got %d hunks, want 2:\n%s", n, got)
	}
	if !strings.Contains(got, "@@ -1,5 +1,5 @@") {
		t.Errorf("missing first hunk header:\n%s", got)
	}
	if !strings.Contains(got, "@@ -15,6 +15,6 @@") {
		t.Errorf("missing second hunk header:\n%s", got)
	}
}

// TestUnifiedHunkMerging verifies that edits with overlapping context
// windows collapse into a single hunk.
func TestUnifiedHunkMerging(t *testing.T) {
	before := []byte("L1\nL2\nL3\nL4\nL5\nL6\nL7\n")
	after := []byte("X1\nL2\nL3\nL4\nL5\nL6\nX7\n")

	got := Unified("near.txt", before, after)
	if n := strings.Count(got, "@@ "); n != 1 {
		t.Fatalf("got %d hunks, want 1:\n%s", n, got)
	}
}

// TestIsBinary verifies the NUL-byte heuristic and its sniff window.
func TestIsBinary(t *testing.T) {
	if IsBinary([]byte("plain text\nwith lines\n")) {
		t.Error("text misclassified as binary")
	}
	if !IsBinary([]byte("has\x00nul")) {
		t.Error("NUL content misclassified as text")
	}
	if IsBinary(nil) {
		t.Error("empty content misclassified as binary")
	}

	// A NUL past the sniff window is not seen.
	big := make([]byte, binarySniffLen+10)
	for i := range big {
		big[i] = 'a'
	}
	big[binarySniffLen+5] = 0
	if IsBinary(big) {
		t.Error("NUL beyond sniff window should not mark content binary")
	}
}

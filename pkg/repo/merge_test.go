package repo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/odvcencio/twig/pkg/object"
)

// setupMergeRepo creates a test repo with an initial commit on "main",
// creates a "feature" branch from that commit, and returns the repo and
// temp directory. The initial commit contains main.go with function A.
func setupMergeRepo(t *testing.T) (*Repo, string) {
	t.Helper()

	dir := t.TempDir()
	r, err := Init(dir)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	base := `package main

func A() { println("a") }
`
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(base), 0o644); err != nil {
		t.Fatalf("write main.go: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add main.go: %v", err)
	}

	_, err = r.Commit("initial commit", "test-author")
	if err != nil {
		t.Fatalf("initial Commit: %v", err)
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Create feature branch at the same commit.
	if err := r.CreateBranch("feature", headHash); err != nil {
		t.Fatalf("CreateBranch(feature): %v", err)
	}

	return r, dir
}

// commitFile writes content to a path, stages it, and commits.
func commitFile(t *testing.T, r *Repo, dir, name, content, message string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := r.Add([]string{name}); err != nil {
		t.Fatalf("Add %s: %v", name, err)
	}
	if _, err := r.Commit(message, "test-author"); err != nil {
		t.Fatalf("Commit %q: %v", message, err)
	}
}

// TestMerge_CleanNonOverlapping verifies that merging two branches with
// non-overlapping additions (main adds func C, feature adds func B)
// produces a clean merge containing all three functions.
func TestMerge_CleanNonOverlapping(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// On main: add func C.
	oursContent := `package main

func A() { println("a") }

func C() { println("c") }
`
	commitFile(t, r, dir, "main.go", oursContent, "add func C on main")

	// Switch to feature branch.
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}

	// On feature: add func B.
	theirsContent := `package main

func A() { println("a") }

func B() { println("b") }
`
	commitFile(t, r, dir, "main.go", theirsContent, "add func B on feature")

	// Switch back to main.
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	// Merge feature into main.
	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}

	if report.HasConflicts {
		t.Fatalf("expected clean merge, got conflicts: %+v", report)
	}

	// Verify merged file contains all three functions.
	merged, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read merged main.go: %v", err)
	}
	mergedStr := string(merged)
	if !strings.Contains(mergedStr, "func A()") {
		t.Errorf("merged file missing func A: %s", mergedStr)
	}
	if !strings.Contains(mergedStr, "func B()") {
		t.Errorf("merged file missing func B: %s", mergedStr)
	}
	if !strings.Contains(mergedStr, "func C()") {
		t.Errorf("merged file missing func C: %s", mergedStr)
	}

	// A clean merge concludes: no MERGE_HEAD left behind.
	if _, inProgress := r.MergeHead(); inProgress {
		t.Fatal("MERGE_HEAD should be cleared after clean merge")
	}
}

// TestMerge_ConflictReported verifies that both sides modifying the same
// function produces a conflict with HasConflicts=true and conflict markers
// in the file on disk.
func TestMerge_ConflictReported(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// On main: modify func A.
	oursContent := `package main

func A() { println("ours") }
`
	commitFile(t, r, dir, "main.go", oursContent, "modify A on main")

	// Switch to feature branch.
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}

	// On feature: modify func A differently.
	theirsContent := `package main

func A() { println("theirs") }
`
	commitFile(t, r, dir, "main.go", theirsContent, "modify A on feature")

	// Switch back to main.
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	// Merge feature into main.
	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}

	if !report.HasConflicts {
		t.Fatal("expected conflicts, got clean merge")
	}
	if report.TotalConflicts == 0 {
		t.Error("TotalConflicts should be > 0")
	}
	if report.MergeCommit != "" {
		t.Error("MergeCommit should be empty for conflicted merge")
	}

	// Verify conflict markers in the file on disk, ours before theirs.
	merged, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read merged main.go: %v", err)
	}
	mergedStr := string(merged)
	if !strings.Contains(mergedStr, "<<<<<<<") {
		t.Errorf("expected conflict markers in file, got:\n%s", mergedStr)
	}
	if !strings.Contains(mergedStr, ">>>>>>>") {
		t.Errorf("expected conflict markers in file, got:\n%s", mergedStr)
	}
	oursIdx := strings.Index(mergedStr, `println("ours")`)
	theirsIdx := strings.Index(mergedStr, `println("theirs")`)
	if oursIdx == -1 || theirsIdx == -1 || oursIdx > theirsIdx {
		t.Errorf("expected ours content before theirs content, got:\n%s", mergedStr)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	entry := stg.Entries["main.go"]
	if entry == nil {
		t.Fatalf("expected main.go in staging after conflicted merge")
	}
	if !entry.Conflict {
		t.Fatalf("expected main.go conflict flag in staging")
	}
	if entry.BaseBlobHash == "" || entry.OursBlobHash == "" || entry.TheirsBlobHash == "" {
		t.Fatalf("expected conflict blob hashes populated, got base=%q ours=%q theirs=%q", entry.BaseBlobHash, entry.OursBlobHash, entry.TheirsBlobHash)
	}

	// The merged-in tip stays recorded until the conflict is resolved.
	if _, inProgress := r.MergeHead(); !inProgress {
		t.Fatal("expected MERGE_HEAD to persist for conflicted merge")
	}

	statusEntries, err := r.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	foundConflict := false
	for _, e := range statusEntries {
		if e.Path == "main.go" && (e.IndexStatus == StatusConflict || e.WorkStatus == StatusConflict) {
			foundConflict = true
			break
		}
	}
	if !foundConflict {
		t.Fatalf("expected status to expose conflict state for main.go")
	}
}

// TestMerge_ResolveThenCommitConcludes verifies the conflicted-merge
// lifecycle: resolve the file, re-add it, commit; the commit carries two
// parents and MERGE_HEAD is cleared.
func TestMerge_ResolveThenCommitConcludes(t *testing.T) {
	r, dir := setupMergeRepo(t)

	commitFile(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"ours\") }\n", "modify A on main")
	mainTip, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	commitFile(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"theirs\") }\n", "modify A on feature")
	featureTip, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.HasConflicts {
		t.Fatal("expected conflicts")
	}

	// Commit while conflicts are unresolved must fail.
	if _, err := r.Commit("premature", "test-author"); !errors.Is(err, ErrUnresolvedConflicts) {
		t.Fatalf("expected ErrUnresolvedConflicts, got: %v", err)
	}

	// Resolve: write merged content and re-add.
	resolved := "package main\n\nfunc A() { println(\"resolved\") }\n"
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(resolved), 0o644); err != nil {
		t.Fatalf("write resolved main.go: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add resolved: %v", err)
	}

	mergeHash, err := r.Commit("merge feature", "test-author")
	if err != nil {
		t.Fatalf("Commit(conclude merge): %v", err)
	}

	commit, err := r.Store.ReadCommit(mergeHash)
	if err != nil {
		t.Fatalf("ReadCommit: %v", err)
	}
	if len(commit.Parents) != 2 {
		t.Fatalf("merge commit parents = %d, want 2", len(commit.Parents))
	}
	if commit.Parents[0] != mainTip || commit.Parents[1] != featureTip {
		t.Fatalf("parents = %v, want [%s %s]", commit.Parents, mainTip, featureTip)
	}

	if _, inProgress := r.MergeHead(); inProgress {
		t.Fatal("MERGE_HEAD should be cleared after concluding commit")
	}
}

// TestMerge_DeleteVsModifyFileConflict verifies repository-level safety for
// file delete-vs-modify: the merge must report a conflict and keep conflict
// markers instead of silently dropping the modified side.
func TestMerge_DeleteVsModifyFileConflict(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// On main: modify main.go.
	oursContent := `package main

func A() { println("ours-change") }
`
	commitFile(t, r, dir, "main.go", oursContent, "modify main.go on main")

	// Switch to feature and delete main.go while adding another tracked file
	// so the delete commit is non-empty.
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("keep\n"), 0o644); err != nil {
		t.Fatalf("write keep.txt: %v", err)
	}
	if err := r.Add([]string{"keep.txt"}); err != nil {
		t.Fatalf("Add keep.txt: %v", err)
	}
	if err := r.Remove([]string{"main.go"}, false); err != nil {
		t.Fatalf("Remove main.go: %v", err)
	}
	if _, err := r.Commit("delete main.go on feature", "test-author"); err != nil {
		t.Fatalf("Commit (delete): %v", err)
	}

	// Merge feature into main.
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}
	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}

	if !report.HasConflicts {
		t.Fatalf("expected conflict for delete-vs-modify, got clean merge: %+v", report)
	}
	if report.TotalConflicts == 0 {
		t.Fatalf("expected conflict count > 0, got 0")
	}

	merged, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read conflicted main.go: %v", err)
	}
	mergedStr := string(merged)
	if !strings.Contains(mergedStr, "<<<<<<< ours") || !strings.Contains(mergedStr, ">>>>>>> theirs") {
		t.Fatalf("expected conflict markers in main.go, got:\n%s", mergedStr)
	}
	if !strings.Contains(mergedStr, "theirs (deleted)") {
		t.Fatalf("expected deletion marker on theirs side, got:\n%s", mergedStr)
	}
	if !strings.Contains(mergedStr, "ours-change") {
		t.Fatalf("expected ours modification to be preserved in conflict body, got:\n%s", mergedStr)
	}

	stg, err := r.ReadStaging()
	if err != nil {
		t.Fatalf("ReadStaging: %v", err)
	}
	entry := stg.Entries["main.go"]
	if entry == nil {
		t.Fatalf("expected conflicted main.go in staging")
	}
	if !entry.Conflict {
		t.Fatalf("expected staging conflict flag for main.go")
	}
	if entry.OursBlobHash == "" {
		t.Fatalf("expected ours blob hash to be recorded")
	}
	if entry.TheirsBlobHash != "" {
		t.Fatalf("expected empty theirs blob hash for deleted side, got %q", entry.TheirsBlobHash)
	}
}

// TestMerge_CommitWithTwoParents verifies that a clean merge creates a
// commit with exactly two parent hashes, ours first.
func TestMerge_CommitWithTwoParents(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// On main: add func C.
	oursContent := `package main

func A() { println("a") }

func C() { println("c") }
`
	commitFile(t, r, dir, "main.go", oursContent, "add func C on main")
	mainCommit, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Switch to feature branch.
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}

	// On feature: add func B.
	theirsContent := `package main

func A() { println("a") }

func B() { println("b") }
`
	commitFile(t, r, dir, "main.go", theirsContent, "add func B on feature")
	featureCommit, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Switch back to main.
	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	// Merge feature into main.
	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}

	if report.HasConflicts {
		t.Fatalf("expected clean merge, got conflicts")
	}
	if report.MergeCommit == "" {
		t.Fatal("expected merge commit hash, got empty")
	}

	// Read the merge commit and verify two parents.
	commit, err := r.Store.ReadCommit(report.MergeCommit)
	if err != nil {
		t.Fatalf("ReadCommit(%s): %v", report.MergeCommit, err)
	}
	if len(commit.Parents) != 2 {
		t.Fatalf("merge commit parents = %d, want 2", len(commit.Parents))
	}
	if commit.Parents[0] != mainCommit {
		t.Errorf("parent[0] = %q, want %q (main)", commit.Parents[0], mainCommit)
	}
	if commit.Parents[1] != featureCommit {
		t.Errorf("parent[1] = %q, want %q (feature)", commit.Parents[1], featureCommit)
	}

	// Verify commit message.
	if !strings.Contains(commit.Message, "Merge 'feature'") {
		t.Errorf("commit message = %q, want to contain %q", commit.Message, "Merge 'feature'")
	}
}

// TestMerge_FastForward verifies that merging a descendant moves the branch
// without creating a merge commit.
func TestMerge_FastForward(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// Advance feature while main stays put.
	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	commitFile(t, r, dir, "extra.go", "package main\n\nfunc B() {}\n", "add extra on feature")
	featureTip, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.FastForward {
		t.Fatalf("expected fast-forward merge, got %+v", report)
	}
	if report.MergeCommit != featureTip {
		t.Errorf("MergeCommit = %q, want feature tip %q", report.MergeCommit, featureTip)
	}

	head, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}
	if head != featureTip {
		t.Errorf("HEAD = %q, want %q", head, featureTip)
	}

	// The fast-forwarded worktree has the feature file.
	if _, err := os.Stat(filepath.Join(dir, "extra.go")); err != nil {
		t.Fatalf("expected extra.go in worktree after fast-forward: %v", err)
	}

	// Still on branch main.
	branch, err := r.CurrentBranch()
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main", branch)
	}
}

// TestMerge_AlreadyUpToDate verifies that merging an ancestor is a no-op.
func TestMerge_AlreadyUpToDate(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// Advance main past feature.
	commitFile(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"v2\") }\n", "advance main")

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.AlreadyUpToDate {
		t.Fatalf("expected already-up-to-date, got %+v", report)
	}
	if report.MergeCommit != "" {
		t.Errorf("MergeCommit = %q, want empty", report.MergeCommit)
	}
}

// TestMerge_UnrelatedHistories verifies that merging a commit with no common
// ancestor is refused.
func TestMerge_UnrelatedHistories(t *testing.T) {
	r, _ := setupMergeRepo(t)

	// Build a disconnected root commit in a second repo and point a branch
	// at it after copying its objects over.
	other := initRepoWithFile(t, "other.go", []byte("package other\n"))
	orphan, err := other.Commit("unrelated root", "test-author")
	if err != nil {
		t.Fatalf("Commit(unrelated): %v", err)
	}
	if err := copyObjects(t, other, r); err != nil {
		t.Fatalf("copy objects: %v", err)
	}
	if err := r.CreateBranch("orphan", orphan); err != nil {
		t.Fatalf("CreateBranch(orphan): %v", err)
	}

	_, err = r.Merge("orphan")
	if !errors.Is(err, ErrNoCommonAncestor) {
		t.Fatalf("expected ErrNoCommonAncestor, got: %v", err)
	}
}

// copyObjects copies every object reachable from src's HEAD into dst's store.
func copyObjects(t *testing.T, src, dst *Repo) error {
	t.Helper()
	head, err := src.ResolveRef("HEAD")
	if err != nil {
		return err
	}
	reachable, err := object.ReachableSet(src.Store, []object.Hash{head})
	if err != nil {
		return err
	}
	for h := range reachable {
		typ, payload, err := src.Store.Read(h)
		if err != nil {
			return err
		}
		if _, err := dst.Store.Write(typ, payload); err != nil {
			return err
		}
	}
	return nil
}

// TestMerge_AbortRestoresHead verifies AbortMerge discards a conflicted
// merge and restores the pre-merge state.
func TestMerge_AbortRestoresHead(t *testing.T) {
	r, dir := setupMergeRepo(t)

	oursContent := "package main\n\nfunc A() { println(\"ours\") }\n"
	commitFile(t, r, dir, "main.go", oursContent, "modify A on main")

	if err := r.Checkout("feature"); err != nil {
		t.Fatalf("Checkout(feature): %v", err)
	}
	commitFile(t, r, dir, "main.go", "package main\n\nfunc A() { println(\"theirs\") }\n", "modify A on feature")

	if err := r.Checkout("main"); err != nil {
		t.Fatalf("Checkout(main): %v", err)
	}

	report, err := r.Merge("feature")
	if err != nil {
		t.Fatalf("Merge(feature): %v", err)
	}
	if !report.HasConflicts {
		t.Fatal("expected conflicts")
	}

	if err := r.AbortMerge(); err != nil {
		t.Fatalf("AbortMerge: %v", err)
	}

	if _, inProgress := r.MergeHead(); inProgress {
		t.Fatal("MERGE_HEAD should be cleared after abort")
	}

	data, err := os.ReadFile(filepath.Join(dir, "main.go"))
	if err != nil {
		t.Fatalf("read main.go: %v", err)
	}
	if string(data) != oursContent {
		t.Fatalf("main.go after abort = %q, want %q", string(data), oursContent)
	}

	// A second abort without a merge in progress fails.
	if err := r.AbortMerge(); err == nil {
		t.Fatal("expected AbortMerge without merge in progress to fail")
	}
}

// TestMergeBase_LinearHistory verifies that MergeBase finds the correct
// common ancestor in a linear commit chain A -> B -> C.
// The merge base of B and C should be B.
func TestMergeBase_LinearHistory(t *testing.T) {
	r, dir := setupMergeRepo(t)

	// At this point we have commit A (initial).
	commitA, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Create commit B.
	contentB := `package main

func A() { println("a") }

func B() { println("b") }
`
	commitFile(t, r, dir, "main.go", contentB, "commit B")
	commitB, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Create commit C.
	contentC := `package main

func A() { println("a") }

func B() { println("b") }

func C() { println("c") }
`
	commitFile(t, r, dir, "main.go", contentC, "commit C")
	commitC, err := r.ResolveRef("HEAD")
	if err != nil {
		t.Fatalf("ResolveRef(HEAD): %v", err)
	}

	// Merge base of B and C should be B (since C is a child of B).
	base, err := r.MergeBase(commitB, commitC)
	if err != nil {
		t.Fatalf("MergeBase(B, C): %v", err)
	}
	if base != commitB {
		t.Errorf("MergeBase(B, C) = %q, want %q (commitB)", base, commitB)
	}

	// Merge base of A and C should be A.
	base, err = r.MergeBase(commitA, commitC)
	if err != nil {
		t.Fatalf("MergeBase(A, C): %v", err)
	}
	if base != commitA {
		t.Errorf("MergeBase(A, C) = %q, want %q (commitA)", base, commitA)
	}

	// Merge base of a commit with itself should be itself.
	base, err = r.MergeBase(commitB, commitB)
	if err != nil {
		t.Fatalf("MergeBase(B, B): %v", err)
	}
	if base != commitB {
		t.Errorf("MergeBase(B, B) = %q, want %q (commitB)", base, commitB)
	}
}

package repo

import (
	"errors"
	"strings"
	"testing"

	"github.com/odvcencio/twig/pkg/object"
)

func TestResolveRevisionAtAliasesHead(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	head, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	for _, rev := range []string{"@", "HEAD"} {
		got, err := r.ResolveRevision(rev)
		if err != nil {
			t.Fatalf("ResolveRevision(%q): %v", rev, err)
		}
		if got != head {
			t.Errorf("ResolveRevision(%q) = %q, want %q", rev, got, head)
		}
	}
}

func TestResolveRevisionBranchAndFullRef(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	head, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := r.CreateBranch("feature", head); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	for _, rev := range []string{"feature", "refs/heads/feature", "main"} {
		got, err := r.ResolveRevision(rev)
		if err != nil {
			t.Fatalf("ResolveRevision(%q): %v", rev, err)
		}
		if got != head {
			t.Errorf("ResolveRevision(%q) = %q, want %q", rev, got, head)
		}
	}
}

func TestResolveRevisionTagWinsOverBranch(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	h1, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit h1: %v", err)
	}
	if err := r.Add([]string{"main.go"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	h2, err := r.Commit("second", "test-author")
	if err != nil {
		t.Fatalf("Commit h2: %v", err)
	}

	// Same name as both tag and branch: the tag candidate is tried first.
	if err := r.CreateTag("v1", h1, false); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}
	if err := r.CreateBranch("v1", h2); err != nil {
		t.Fatalf("CreateBranch: %v", err)
	}

	got, err := r.ResolveRevision("v1")
	if err != nil {
		t.Fatalf("ResolveRevision(v1): %v", err)
	}
	if got != h1 {
		t.Errorf("ResolveRevision(v1) = %q, want tag target %q", got, h1)
	}
}

func TestResolveRevisionFullHash(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	head, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := r.ResolveRevision(string(head))
	if err != nil {
		t.Fatalf("ResolveRevision(full hash): %v", err)
	}
	if got != head {
		t.Errorf("ResolveRevision(full hash) = %q, want %q", got, head)
	}

	// A well-formed hash that is not stored is unknown.
	missing := strings.Repeat("0123", 16)
	_, err = r.ResolveRevision(missing)
	if !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("ResolveRevision(missing hash) = %v, want ErrUnknownRevision", err)
	}
}

func TestResolveRevisionShortPrefix(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	head, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := r.ResolveRevision(string(head)[:8])
	if err != nil {
		t.Fatalf("ResolveRevision(short prefix): %v", err)
	}
	if got != head {
		t.Errorf("ResolveRevision(short prefix) = %q, want %q", got, head)
	}

	// Prefixes shorter than four characters are never treated as hashes.
	_, err = r.ResolveRevision(string(head)[:3])
	if !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("ResolveRevision(3-char prefix) = %v, want ErrUnknownRevision", err)
	}
}

func TestResolveRevisionAmbiguousPrefix(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	if _, err := r.Commit("initial", "test-author"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	// Manufacture two objects sharing a 4-char prefix by writing blobs until
	// a birthday collision appears. Expected after a few hundred writes.
	seen := make(map[string]object.Hash)
	var prefix string
	for i := 0; prefix == ""; i++ {
		if i > 100_000 {
			t.Fatal("no 4-char prefix collision found in bounded attempts")
		}
		h, err := r.Store.WriteBlob(&object.Blob{Data: []byte(strings.Repeat("x", i))})
		if err != nil {
			t.Fatalf("WriteBlob: %v", err)
		}
		p := string(h)[:4]
		if other, ok := seen[p]; ok && other != h {
			prefix = p
		}
		seen[p] = h
	}

	_, err := r.ResolveRevision(prefix)
	if !errors.Is(err, ErrAmbiguousOid) {
		t.Fatalf("ResolveRevision(%q) = %v, want ErrAmbiguousOid", prefix, err)
	}
}

func TestResolveRevisionUnknownName(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	if _, err := r.Commit("initial", "test-author"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	_, err := r.ResolveRevision("no-such-branch")
	if !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("ResolveRevision(no-such-branch) = %v, want ErrUnknownRevision", err)
	}

	_, err = r.ResolveRevision("")
	if !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("ResolveRevision(\"\") = %v, want ErrUnknownRevision", err)
	}
}

func TestResolveRevisionMergeHead(t *testing.T) {
	r := initRepoWithFile(t, "main.go", []byte("package main\n"))
	head, err := r.Commit("initial", "test-author")
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if err := r.SetRef("MERGE_HEAD", DirectRef(head)); err != nil {
		t.Fatalf("SetRef(MERGE_HEAD): %v", err)
	}

	got, err := r.ResolveRevision("MERGE_HEAD")
	if err != nil {
		t.Fatalf("ResolveRevision(MERGE_HEAD): %v", err)
	}
	if got != head {
		t.Errorf("ResolveRevision(MERGE_HEAD) = %q, want %q", got, head)
	}
}

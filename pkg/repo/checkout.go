package repo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
)

// Checkout switches the working tree and HEAD to the given target. A branch
// name checks out the branch; any other revision resolves to a commit and
// leaves HEAD detached.
//
// Algorithm:
//  1. Refuse if uncommitted changes exist.
//  2. Resolve target: branch name first, then any revision form.
//  3. Restore the working tree and index from the target commit's tree.
//  4. Update HEAD (symbolic ref for a branch, direct hash for detached).
func (r *Repo) Checkout(target string) error {
	if err := r.ensureClean(); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	branchRef := "refs/heads/" + target
	var commitHash object.Hash
	isBranch := false
	if _, err := r.ReadRef(branchRef); err == nil {
		isBranch = true
		commitHash, err = r.ResolveRef(branchRef)
		if err != nil {
			return fmt.Errorf("checkout: resolve %s: %w", branchRef, err)
		}
	} else if !errors.Is(err, ErrRefNotFound) {
		return fmt.Errorf("checkout: read %s: %w", branchRef, err)
	} else {
		var rerr error
		commitHash, rerr = r.ResolveRevision(target)
		if rerr != nil {
			return fmt.Errorf("checkout: %w", rerr)
		}
	}

	commit, err := r.Store.ReadCommit(commitHash)
	if err != nil {
		return fmt.Errorf("checkout: cannot read commit %s: %w", commitHash, err)
	}

	if err := r.restoreWorktreeFromTree(commit.TreeHash); err != nil {
		return fmt.Errorf("checkout: %w", err)
	}

	if isBranch {
		err = r.SetRef("HEAD", SymbolicRef(branchRef))
	} else {
		err = r.SetRef("HEAD", DirectRef(commitHash))
	}
	if err != nil {
		return fmt.Errorf("checkout: update HEAD: %w", err)
	}

	r.invalidateStatusCache()
	return nil
}

// RestoreTree resets the working tree and index to the given tree. Tracked
// files absent from the tree are removed; untracked files are left alone.
func (r *Repo) RestoreTree(treeHash object.Hash) error {
	if err := r.restoreWorktreeFromTree(treeHash); err != nil {
		return fmt.Errorf("restore tree: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

func (r *Repo) restoreWorktreeFromTree(treeHash object.Hash) error {
	targetFiles, err := r.FlattenTree(treeHash)
	if err != nil {
		return fmt.Errorf("flatten target tree: %w", err)
	}

	keep := make(map[string]bool, len(targetFiles))
	for _, f := range targetFiles {
		keep[f.Path] = true
	}

	// Remove tracked files (HEAD tree + staging) that the target tree lacks.
	for path := range r.trackedFiles() {
		if keep[path] {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	// Write all files from the target tree.
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))

		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}

		blob, err := r.Store.ReadBlob(f.BlobHash)
		if err != nil {
			return fmt.Errorf("read blob for %q: %w", f.Path, err)
		}

		if err := os.WriteFile(absPath, blob.Data, filePermFromMode(f.Mode)); err != nil {
			return fmt.Errorf("write %q: %w", f.Path, err)
		}
	}

	// Rebuild staging to match the target tree.
	stg := &Staging{Entries: make(map[string]*StagingEntry, len(targetFiles))}
	for _, f := range targetFiles {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(f.Path))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat %q: %w", f.Path, err)
		}

		stg.Entries[f.Path] = &StagingEntry{
			Path:     f.Path,
			BlobHash: f.BlobHash,
			Mode:     normalizeFileMode(f.Mode),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}
	if err := r.WriteStaging(stg); err != nil {
		return err
	}
	return nil
}

// ensureClean checks that the working tree has no uncommitted changes.
// Untracked files do not count as dirty.
func (r *Repo) ensureClean() error {
	entries, err := r.Status()
	if err != nil {
		return fmt.Errorf("check status: %w", err)
	}

	for _, e := range entries {
		if e.IndexStatus == StatusUntracked && e.WorkStatus == StatusUntracked {
			continue
		}
		if e.IndexStatus != StatusClean || e.WorkStatus != StatusClean {
			return fmt.Errorf("working tree is not clean (file %q has uncommitted changes)", e.Path)
		}
	}
	return nil
}

// trackedFiles returns a set of all currently tracked file paths. It merges
// paths from the HEAD tree and the staging index.
func (r *Repo) trackedFiles() map[string]bool {
	files := make(map[string]bool)

	headEntries := r.headTreeEntries()
	for path := range headEntries {
		files[path] = true
	}

	stg, err := r.ReadStaging()
	if err == nil {
		for path := range stg.Entries {
			files[path] = true
		}
	}

	return files
}

// removeEmptyParents removes empty directories up to (but not including)
// the repository root.
func (r *Repo) removeEmptyParents(dir string) {
	for {
		// Never remove the repo root itself.
		if dir == r.RootDir || !strings.HasPrefix(dir, r.RootDir) {
			return
		}

		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}

		os.Remove(dir)
		dir = filepath.Dir(dir)
	}
}

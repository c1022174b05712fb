package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/odvcencio/twig/pkg/object"
)

// ErrUnresolvedConflicts is returned when committing while the index still
// carries conflicted entries.
var ErrUnresolvedConflicts = errors.New("unresolved merge conflicts")

// CommitSigner signs canonical commit payload bytes and returns an encoded
// signature string to be persisted in CommitObj.Signature.
type CommitSigner func(payload []byte) (string, error)

// Commit creates a new commit from the current staging area.
//
//  1. Read staging; refuse if empty or conflicted
//  2. BuildTree from staging
//  3. Resolve HEAD to get the first parent (if any); MERGE_HEAD, when
//     present, contributes the second parent
//  4. Create CommitObj with tree hash, parents, author, current timestamp,
//     message
//  5. Write commit to store
//  6. Move the current branch (or detached HEAD) with a compare-and-swap
//     against the old tip
//  7. Clear MERGE_HEAD only after the ref update lands
func (r *Repo) Commit(message, author string) (object.Hash, error) {
	return r.CommitWithSigner(message, author, nil)
}

// CommitWithSigner creates a new commit and signs it when signer is provided.
func (r *Repo) CommitWithSigner(message, author string, signer CommitSigner) (object.Hash, error) {
	stg, err := r.ReadStaging()
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	if len(stg.Entries) == 0 {
		return "", fmt.Errorf("commit: nothing staged")
	}
	if stg.HasConflicts() {
		return "", fmt.Errorf("commit: %w", ErrUnresolvedConflicts)
	}

	treeHash, err := r.BuildTree(stg)
	if err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	// Resolve HEAD to get the first parent (may not exist for the first
	// commit). A recorded MERGE_HEAD adds the merged-in tip as second parent.
	var parents []object.Hash
	parentHash, err := r.ResolveRef("HEAD")
	if err == nil && parentHash != "" {
		parents = append(parents, parentHash)
	}
	mergeParent, hasMergeParent := r.MergeHead()
	if hasMergeParent {
		parents = append(parents, mergeParent)
	}

	commitObj := &object.CommitObj{
		TreeHash:  treeHash,
		Parents:   parents,
		Author:    author,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	if signer != nil {
		payload, err := object.CommitSigningPayload(commitObj)
		if err != nil {
			return "", fmt.Errorf("commit: signing payload: %w", err)
		}
		signature, err := signer(payload)
		if err != nil {
			return "", fmt.Errorf("commit: sign commit: %w", err)
		}
		commitObj.Signature = signature
	}

	commitHash, err := r.Store.WriteCommit(commitObj)
	if err != nil {
		return "", fmt.Errorf("commit: write commit: %w", err)
	}

	// HEAD dereferences to the current branch; a detached HEAD is updated in
	// place. A CAS against the old tip catches concurrent movers.
	if err := r.UpdateRefCAS("HEAD", commitHash, parentHash); err != nil {
		return "", fmt.Errorf("commit: update HEAD: %w", err)
	}

	if hasMergeParent {
		if err := r.clearMergeHead(); err != nil {
			return "", fmt.Errorf("commit: %w", err)
		}
	}

	r.invalidateStatusCache()

	return commitHash, nil
}

// Log walks the commit history starting from the given hash, covering both
// parents of merges, and returns up to limit commits newest first.
func (r *Repo) Log(start object.Hash, limit int) ([]*object.CommitObj, error) {
	var commits []*object.CommitObj

	w := r.Ancestors(start)
	for len(commits) < limit && w.Next() {
		commits = append(commits, w.Commit())
	}
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	return commits, nil
}

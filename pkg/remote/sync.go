package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
)

var (
	// ErrNonFastForward is returned when a push would move a remote ref to a
	// value that does not contain its current one. The remote is left as-is.
	ErrNonFastForward = errors.New("non-fast-forward update")
	// ErrNoSuchLocalRef is returned when pushing a ref that is unset locally.
	ErrNoSuchLocalRef = errors.New("no such local ref")
)

const (
	// MaxBatchObjects mirrors the server-side cap on one batch response.
	MaxBatchObjects = 50000
	// MaxBatchHaveHashes keeps batch request payloads under server body limits.
	MaxBatchHaveHashes = 20000
	// MaxBatchNegotiationRounds prevents unbounded negotiation loops.
	MaxBatchNegotiationRounds = 1024
)

// Push transfer limits per chunk.
const (
	maxPushChunkObjects = 2000
	maxPushChunkBytes   = 32 << 20
	maxPushObjectBytes  = 16 << 20
)

// FetchResult reports what a Fetch brought in.
type FetchResult struct {
	Refs    map[string]object.Hash // advertised remote refs (heads/..., tags/...)
	Written int                    // objects newly written to the local store
}

// Fetch copies everything reachable from the remote's refs into the local
// store and records remote-tracking refs under refs/remotes/<remoteName>/.
// Fetching an unchanged remote writes no objects and leaves ref values as
// they were.
func Fetch(ctx context.Context, t Transport, r *repo.Repo, remoteName string) (*FetchResult, error) {
	remoteName = strings.TrimSpace(remoteName)
	if remoteName == "" {
		return nil, fmt.Errorf("fetch: remote name is required")
	}

	refs, err := t.ListRefs(ctx)
	if err != nil {
		return nil, err
	}
	for name := range refs {
		if err := validateRemoteRefName(name); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	written := 0
	if len(refs) > 0 {
		wants := make([]object.Hash, 0, len(refs))
		for _, h := range refs {
			wants = append(wants, h)
		}
		haves, err := localRefTips(r)
		if err != nil {
			return nil, err
		}
		written, err = FetchIntoStore(ctx, t, r.Store, wants, haves)
		if err != nil {
			return nil, err
		}
	}

	for name, h := range refs {
		if err := updateTrackingRef(r, remoteName, name, h); err != nil {
			return nil, fmt.Errorf("fetch: %w", err)
		}
	}

	slog.Debug("fetch complete", "remote", remoteName, "refs", len(refs), "objects", written)
	return &FetchResult{Refs: refs, Written: written}, nil
}

// PushResult reports the outcome of a Push.
type PushResult struct {
	RefName  string      // remote-relative name, e.g. heads/main
	LocalRef string      // fully qualified local name, e.g. refs/heads/main
	OldHash  object.Hash // remote value before the update ("" when created)
	NewHash  object.Hash
	Uploaded int  // objects transferred
	Created  bool // the remote ref did not exist before
	UpToDate bool // nothing to do; no transfer happened
}

// Push publishes one local branch or tag ref to the remote.
//
// Branch updates must be fast-forwards unless force is set: the local tip has
// to contain the current remote tip, which is fetched first when unknown
// locally. The transfer covers the closure of the local tip minus everything
// reachable from remote ref values already held locally, then the remote ref
// is updated with compare-and-swap against the advertised value. When
// remoteName is non-empty the matching tracking ref is recorded.
func Push(ctx context.Context, t Transport, r *repo.Repo, remoteName, refName string, force bool) (*PushResult, error) {
	localRef, remoteRef, err := pushRefNames(refName)
	if err != nil {
		return nil, err
	}

	localHash, err := r.ResolveRef(localRef)
	if err != nil {
		if errors.Is(err, repo.ErrRefNotFound) {
			return nil, fmt.Errorf("push %q: %w", refName, ErrNoSuchLocalRef)
		}
		return nil, fmt.Errorf("resolve local ref %q: %w", localRef, err)
	}
	if strings.TrimSpace(string(localHash)) == "" {
		return nil, fmt.Errorf("push %q: %w", refName, ErrNoSuchLocalRef)
	}

	remoteRefs, err := t.ListRefs(ctx)
	if err != nil {
		return nil, err
	}
	remoteHash, hasRemote := remoteRefs[remoteRef]
	if hasRemote && strings.TrimSpace(string(remoteHash)) == "" {
		hasRemote = false
	}

	if hasRemote && remoteHash == localHash {
		if remoteName != "" {
			if err := updateTrackingRef(r, remoteName, remoteRef, remoteHash); err != nil {
				return nil, err
			}
		}
		return &PushResult{
			RefName:  remoteRef,
			LocalRef: localRef,
			OldHash:  remoteHash,
			NewHash:  localHash,
			UpToDate: true,
		}, nil
	}

	if hasRemote && !force {
		if strings.HasPrefix(remoteRef, "heads/") {
			if !r.Store.Has(remoteHash) {
				haves, err := localRefTips(r)
				if err != nil {
					return nil, err
				}
				if _, err := FetchIntoStore(ctx, t, r.Store, []object.Hash{remoteHash}, haves); err != nil {
					return nil, fmt.Errorf("push safety check failed fetching remote head: %w", err)
				}
			}
			ok, err := r.IsAncestor(remoteHash, localHash)
			if err != nil {
				return nil, fmt.Errorf("push safety check failed: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf(
					"push rejected: %w (local %s does not contain remote %s)",
					ErrNonFastForward, shortPushHash(localHash), shortPushHash(remoteHash))
			}
		} else {
			return nil, fmt.Errorf(
				"push rejected: %w (remote %s already exists at %s)",
				ErrNonFastForward, remoteRef, shortPushHash(remoteHash))
		}
	}

	stopRoots := make([]object.Hash, 0, len(remoteRefs))
	for _, h := range remoteRefs {
		if strings.TrimSpace(string(h)) == "" {
			continue
		}
		if r.Store.Has(h) {
			stopRoots = append(stopRoots, h)
		}
	}

	objects, err := CollectObjectsForPush(r.Store, []object.Hash{localHash}, stopRoots)
	if err != nil {
		return nil, err
	}
	uploaded, err := pushObjectsChunked(ctx, t, objects)
	if err != nil {
		return nil, err
	}

	old := object.Hash("")
	if hasRemote {
		old = remoteHash
	}
	newHash := localHash
	updated, err := t.UpdateRefs(ctx, []RefUpdate{{Name: remoteRef, Old: &old, New: &newHash}})
	if err != nil {
		return nil, err
	}

	finalHash := localHash
	if h, ok := updated[remoteRef]; ok && strings.TrimSpace(string(h)) != "" {
		finalHash = h
	}
	if remoteName != "" {
		if err := updateTrackingRef(r, remoteName, remoteRef, finalHash); err != nil {
			return nil, err
		}
	}

	slog.Debug("push complete",
		"ref", remoteRef, "objects", uploaded,
		"old", string(old), "new", string(finalHash))
	return &PushResult{
		RefName:  remoteRef,
		LocalRef: localRef,
		OldHash:  old,
		NewHash:  finalHash,
		Uploaded: uploaded,
		Created:  !hasRemote,
	}, nil
}

// pushRefNames maps a user-facing ref argument to the local ref file and the
// remote-relative wire name. Bare names are branches.
func pushRefNames(refName string) (localRef, remoteRef string, err error) {
	refName = strings.TrimSpace(refName)
	if refName == "" {
		return "", "", fmt.Errorf("push: ref name is required")
	}

	if name, ok := strings.CutPrefix(refName, "refs/heads/"); ok {
		if strings.TrimSpace(name) == "" {
			return "", "", fmt.Errorf("invalid branch ref %q", refName)
		}
		return refName, "heads/" + name, nil
	}
	if name, ok := strings.CutPrefix(refName, "refs/tags/"); ok {
		if strings.TrimSpace(name) == "" {
			return "", "", fmt.Errorf("invalid tag ref %q", refName)
		}
		return refName, "tags/" + name, nil
	}
	if strings.HasPrefix(refName, "refs/") {
		return "", "", fmt.Errorf("unsupported ref %q (only refs/heads/* and refs/tags/* are supported)", refName)
	}
	return "refs/heads/" + refName, "heads/" + refName, nil
}

// pushObjectsChunked uploads records in bounded chunks so a single request
// never exceeds the server's body limits.
func pushObjectsChunked(ctx context.Context, t Transport, objects []ObjectRecord) (int, error) {
	if len(objects) == 0 {
		return 0, nil
	}

	chunk := make([]ObjectRecord, 0, maxPushChunkObjects)
	chunkBytes := 0
	uploaded := 0

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := t.PushObjects(ctx, chunk); err != nil {
			return err
		}
		uploaded += len(chunk)
		chunk = chunk[:0]
		chunkBytes = 0
		return nil
	}

	for _, obj := range objects {
		if len(obj.Data) > maxPushObjectBytes {
			return uploaded, fmt.Errorf("object %s exceeds %d-byte push limit", shortPushHash(obj.Hash), maxPushObjectBytes)
		}
		recBytes := len(obj.Data) + 128
		if len(chunk) > 0 && (len(chunk) >= maxPushChunkObjects || chunkBytes+recBytes > maxPushChunkBytes) {
			if err := flush(); err != nil {
				return uploaded, err
			}
		}
		chunk = append(chunk, obj)
		chunkBytes += recBytes
	}
	if err := flush(); err != nil {
		return uploaded, err
	}
	return uploaded, nil
}

// trackingRefName is where a remote ref's last known value lives locally.
func trackingRefName(remoteName, remoteRef string) string {
	return "refs/remotes/" + remoteName + "/" + strings.TrimPrefix(remoteRef, "/")
}

// updateTrackingRef records a remote ref value, skipping no-op writes so an
// unchanged remote leaves the reflog alone.
func updateTrackingRef(r *repo.Repo, remoteName, remoteRef string, h object.Hash) error {
	name := trackingRefName(remoteName, remoteRef)
	if v, err := r.ReadRef(name); err == nil && v.Hash() == h {
		return nil
	}
	return r.UpdateRef(name, h)
}

// localRefTips collects the hashes of every resolved local ref, the starting
// have-set for negotiation.
func localRefTips(r *repo.Repo) ([]object.Hash, error) {
	refs, err := r.ListRefHashes("")
	if err != nil {
		return nil, err
	}
	tips := make([]object.Hash, 0, len(refs))
	for _, h := range refs {
		if strings.TrimSpace(string(h)) != "" {
			tips = append(tips, h)
		}
	}
	return tips, nil
}

func shortPushHash(h object.Hash) string {
	if len(h) > 8 {
		return string(h[:8])
	}
	return string(h)
}

// FetchIntoStore fetches all objects reachable from wants into the local store.
//
// It starts with batch negotiation, then guarantees closure by walking the
// object graph locally and fetching any still-missing object via GetObject.
func FetchIntoStore(ctx context.Context, t Transport, store *object.Store, wants, haves []object.Hash) (int, error) {
	roots := uniqueHashes(wants)
	if len(roots) == 0 {
		return 0, fmt.Errorf("at least one want hash is required")
	}

	knownHaves, knownHaveSet := initKnownHaves(haves)
	written := 0
	negotiationCompleted := false
	for round := 0; round < MaxBatchNegotiationRounds; round++ {
		batchObjects, truncated, err := t.BatchObjects(ctx, roots, selectBatchHaves(knownHaves, MaxBatchHaveHashes), MaxBatchObjects)
		if err != nil {
			return written, err
		}

		newInRound := 0
		for _, obj := range batchObjects {
			n, err := writeVerifiedObject(store, obj)
			if err != nil {
				return written, err
			}
			written += n
			if n > 0 {
				newInRound++
			}
			knownHaves, knownHaveSet = appendKnownHave(knownHaves, knownHaveSet, obj.Hash)
		}

		if !truncated {
			negotiationCompleted = true
			break
		}
		// If the server keeps truncating without new objects, finish via point
		// fetches to avoid spinning on duplicate batches.
		if newInRound == 0 {
			negotiationCompleted = true
			break
		}
	}
	if !negotiationCompleted {
		return written, fmt.Errorf("batch negotiation exceeded %d rounds", MaxBatchNegotiationRounds)
	}

	// Always run closure for robustness against partial state and truncated batches.
	n, err := ensureGraphClosure(ctx, t, store, roots)
	if err != nil {
		return written, err
	}
	written += n
	return written, nil
}

func initKnownHaves(haves []object.Hash) ([]object.Hash, map[object.Hash]struct{}) {
	haveSet := make(map[object.Hash]struct{}, len(haves))
	haveList := make([]object.Hash, 0, len(haves))
	for _, h := range uniqueHashes(haves) {
		haveList = append(haveList, h)
		haveSet[h] = struct{}{}
	}
	return haveList, haveSet
}

func appendKnownHave(haveList []object.Hash, haveSet map[object.Hash]struct{}, h object.Hash) ([]object.Hash, map[object.Hash]struct{}) {
	h = object.Hash(strings.TrimSpace(string(h)))
	if h == "" {
		return haveList, haveSet
	}
	if _, ok := haveSet[h]; ok {
		return haveList, haveSet
	}
	haveSet[h] = struct{}{}
	haveList = append(haveList, h)
	return haveList, haveSet
}

func selectBatchHaves(haves []object.Hash, max int) []object.Hash {
	if max <= 0 || len(haves) <= max {
		out := make([]object.Hash, len(haves))
		copy(out, haves)
		return out
	}
	out := make([]object.Hash, max)
	copy(out, haves[len(haves)-max:])
	return out
}

// CollectObjectsForPush returns objects reachable from roots excluding objects
// in stopRoots (and anything reachable from stopRoots).
func CollectObjectsForPush(store *object.Store, roots, stopRoots []object.Hash) ([]ObjectRecord, error) {
	roots = uniqueHashes(roots)
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one root hash is required")
	}

	stopSet, err := object.ReachableSet(store, stopRoots)
	if err != nil {
		return nil, err
	}

	seen := make(map[object.Hash]struct{})
	stack := make([]object.Hash, 0, len(roots))
	stack = append(stack, roots...)

	objects := make([]ObjectRecord, 0, 1024)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		if _, stopped := stopSet[h]; stopped {
			continue
		}
		seen[h] = struct{}{}

		objType, data, err := store.Read(h)
		if err != nil {
			return nil, fmt.Errorf("read object %s: %w", h, err)
		}
		objects = append(objects, ObjectRecord{Hash: h, Type: objType, Data: data})

		refs, err := referencedHashes(objType, data)
		if err != nil {
			return nil, fmt.Errorf("parse object %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	return objects, nil
}

func ensureGraphClosure(ctx context.Context, t Transport, store *object.Store, roots []object.Hash) (int, error) {
	written := 0
	seen := make(map[object.Hash]struct{}, len(roots))
	stack := make([]object.Hash, 0, len(roots))
	stack = append(stack, roots...)

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}

		if !store.Has(h) {
			obj, err := t.GetObject(ctx, h)
			if err != nil {
				return written, err
			}
			n, err := writeVerifiedObject(store, obj)
			if err != nil {
				return written, err
			}
			written += n
		}

		objType, data, err := store.Read(h)
		if err != nil {
			return written, fmt.Errorf("read object %s: %w", h, err)
		}
		refs, err := referencedHashes(objType, data)
		if err != nil {
			return written, fmt.Errorf("parse object %s (%s): %w", h, objType, err)
		}
		stack = append(stack, refs...)
	}

	return written, nil
}

func writeVerifiedObject(store *object.Store, obj ObjectRecord) (int, error) {
	if strings.TrimSpace(string(obj.Hash)) == "" {
		return 0, fmt.Errorf("object hash is required")
	}
	if _, err := parseObjectType(string(obj.Type)); err != nil {
		return 0, err
	}
	computed := object.HashObject(obj.Type, obj.Data)
	if computed != obj.Hash {
		return 0, fmt.Errorf("object hash mismatch: expected %s, got %s", obj.Hash, computed)
	}
	alreadyPresent := store.Has(obj.Hash)
	writtenHash, err := store.Write(obj.Type, obj.Data)
	if err != nil {
		return 0, err
	}
	if writtenHash != obj.Hash {
		return 0, fmt.Errorf("object write mismatch: expected %s, wrote %s", obj.Hash, writtenHash)
	}
	if alreadyPresent {
		return 0, nil
	}
	return 1, nil
}

func referencedHashes(objType object.ObjectType, data []byte) ([]object.Hash, error) {
	switch objType {
	case object.TypeBlob:
		return nil, nil
	case object.TypeCommit:
		commit, err := object.UnmarshalCommit(data)
		if err != nil {
			return nil, err
		}
		refs := make([]object.Hash, 0, 1+len(commit.Parents))
		refs = append(refs, commit.TreeHash)
		refs = append(refs, commit.Parents...)
		return refs, nil
	case object.TypeTree:
		tree, err := object.UnmarshalTree(data)
		if err != nil {
			return nil, err
		}
		refs := make([]object.Hash, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			refs = append(refs, e.Hash)
		}
		return refs, nil
	default:
		return nil, fmt.Errorf("unsupported object type %q", objType)
	}
}

func uniqueHashes(in []object.Hash) []object.Hash {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[object.Hash]struct{}, len(in))
	out := make([]object.Hash, 0, len(in))
	for _, h := range in {
		h = object.Hash(strings.TrimSpace(string(h)))
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

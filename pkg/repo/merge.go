package repo

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/odvcencio/twig/pkg/diff3"
	"github.com/odvcencio/twig/pkg/object"
)

// FileMergeReport records the merge outcome for a single file.
type FileMergeReport struct {
	Path          string
	Status        string // "clean", "conflict", "added", "deleted"
	ConflictCount int
}

// MergedFile is a file the merge produced, with its content blob already
// stored. Conflicted files carry marker-annotated content.
type MergedFile struct {
	Path     string
	Content  []byte
	Mode     string
	BlobHash object.Hash
}

// MergeConflictEntry records the three input versions of a conflicted path.
// An empty hash means the path was absent on that side.
type MergeConflictEntry struct {
	Path       string
	BaseHash   object.Hash
	OursHash   object.Hash
	TheirsHash object.Hash
	Mode       string
}

// TreeMergeResult is the outcome of merging three trees. Conflicts are data,
// not errors: the result always covers every path, and conflicted paths
// appear both in Merged (with markers) and in Conflicts.
type TreeMergeResult struct {
	Files          []FileMergeReport
	Merged         []MergedFile
	Deleted        []string
	Conflicts      []MergeConflictEntry
	HasConflicts   bool
	TotalConflicts int
}

// MergeReport is the overall result of a repository-level merge.
type MergeReport struct {
	Files           []FileMergeReport
	HasConflicts    bool
	TotalConflicts  int
	MergeCommit     object.Hash // set when the merge committed (clean or fast-forward)
	FastForward     bool
	AlreadyUpToDate bool
}

// MergeHead reads MERGE_HEAD, the tip recorded while a merge awaits conflict
// resolution.
func (r *Repo) MergeHead() (object.Hash, bool) {
	v, err := r.ReadRef("MERGE_HEAD")
	if err != nil || v.Symbolic || v.Value == "" {
		return "", false
	}
	return v.Hash(), true
}

func (r *Repo) setMergeHead(h object.Hash) error {
	return r.SetRef("MERGE_HEAD", DirectRef(h))
}

func (r *Repo) clearMergeHead() error {
	err := r.DeleteRef("MERGE_HEAD")
	if err != nil && !errors.Is(err, ErrRefNotFound) {
		return fmt.Errorf("clear MERGE_HEAD: %w", err)
	}
	return nil
}

// Merge merges the given revision into the current HEAD.
//
// Outcomes:
//   - other already reachable from HEAD: nothing to do
//   - HEAD is an ancestor of other: fast-forward, no merge commit
//   - otherwise: record MERGE_HEAD, merge the trees, materialize the result,
//     and auto-commit when no path conflicted. Conflicts stay staged with
//     markers in the working tree; commit after resolving them concludes
//     the merge.
func (r *Repo) Merge(target string) (*MergeReport, error) {
	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return nil, fmt.Errorf("merge: resolve HEAD: %w", err)
	}
	otherHash, err := r.ResolveRevision(target)
	if err != nil {
		return nil, fmt.Errorf("merge: resolve %q: %w", target, err)
	}

	if _, inProgress := r.MergeHead(); inProgress {
		return nil, fmt.Errorf("merge: merge already in progress (MERGE_HEAD exists)")
	}
	if err := r.ensureClean(); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	baseHash, err := r.MergeBase(headHash, otherHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	// Nothing to do when the other tip is already part of our history.
	if baseHash == otherHash || headHash == otherHash {
		return &MergeReport{AlreadyUpToDate: true}, nil
	}

	// Fast-forward when we have not diverged from the other tip.
	if baseHash == headHash {
		otherCommit, err := r.Store.ReadCommit(otherHash)
		if err != nil {
			return nil, fmt.Errorf("merge: read commit %s: %w", otherHash, err)
		}
		if err := r.UpdateRefCAS("HEAD", otherHash, headHash); err != nil {
			return nil, fmt.Errorf("merge: fast-forward: %w", err)
		}
		if err := r.RestoreTree(otherCommit.TreeHash); err != nil {
			return nil, fmt.Errorf("merge: fast-forward: %w", err)
		}
		r.invalidateStatusCache()
		return &MergeReport{FastForward: true, MergeCommit: otherHash}, nil
	}

	headCommit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read head commit: %w", err)
	}
	otherCommit, err := r.Store.ReadCommit(otherHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read commit %s: %w", otherHash, err)
	}
	baseCommit, err := r.Store.ReadCommit(baseHash)
	if err != nil {
		return nil, fmt.Errorf("merge: read base commit: %w", err)
	}

	res, err := r.MergeTrees(baseCommit.TreeHash, headCommit.TreeHash, otherCommit.TreeHash)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	// Record the merged-in tip before touching the worktree so an
	// interrupted merge is visible and resumable.
	if err := r.setMergeHead(otherHash); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	if err := r.materializeMergeResult(res); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	if err := r.stageMergeResult(res); err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}

	report := &MergeReport{
		Files:          res.Files,
		HasConflicts:   res.HasConflicts,
		TotalConflicts: res.TotalConflicts,
	}

	if !res.HasConflicts {
		mergeHash, err := r.Commit(fmt.Sprintf("Merge '%s'", target), r.defaultAuthor())
		if err != nil {
			return nil, fmt.Errorf("merge: commit: %w", err)
		}
		report.MergeCommit = mergeHash
	}

	r.invalidateStatusCache()
	return report, nil
}

// AbortMerge discards an in-progress merge, restoring index and worktree to
// HEAD.
func (r *Repo) AbortMerge() error {
	if _, inProgress := r.MergeHead(); !inProgress {
		return fmt.Errorf("abort merge: no merge in progress")
	}

	headHash, err := r.ResolveRef("HEAD")
	if err != nil {
		return fmt.Errorf("abort merge: resolve HEAD: %w", err)
	}
	commit, err := r.Store.ReadCommit(headHash)
	if err != nil {
		return fmt.Errorf("abort merge: read HEAD commit: %w", err)
	}
	if err := r.RestoreTree(commit.TreeHash); err != nil {
		return fmt.Errorf("abort merge: %w", err)
	}
	if err := r.clearMergeHead(); err != nil {
		return fmt.Errorf("abort merge: %w", err)
	}
	r.invalidateStatusCache()
	return nil
}

// MergeTrees merges theirs into ours relative to base, path by path. An
// empty base hash merges unrelated trees. It writes result blobs to the
// object store but never touches the worktree, index, or refs.
//
// Per path:
//   - changed on one side only: take that side
//   - both sides equal: take either
//   - deleted on the unchanged side: delete
//   - delete vs modify: conflict; the surviving content is kept with
//     markers naming the deleted side
//   - both sides changed: line-level three-way merge, conflicts marked
//     ours-then-theirs
func (r *Repo) MergeTrees(baseTree, oursTree, theirsTree object.Hash) (*TreeMergeResult, error) {
	oursFiles, err := r.FlattenTree(oursTree)
	if err != nil {
		return nil, fmt.Errorf("flatten ours tree: %w", err)
	}
	theirsFiles, err := r.FlattenTree(theirsTree)
	if err != nil {
		return nil, fmt.Errorf("flatten theirs tree: %w", err)
	}
	var baseFiles []TreeFileEntry
	if baseTree != "" {
		baseFiles, err = r.FlattenTree(baseTree)
		if err != nil {
			return nil, fmt.Errorf("flatten base tree: %w", err)
		}
	}

	baseMap := indexByPath(baseFiles)
	oursMap := indexByPath(oursFiles)
	theirsMap := indexByPath(theirsFiles)
	allPaths := collectAllPaths(baseMap, oursMap, theirsMap)

	res := &TreeMergeResult{}
	for _, path := range allPaths {
		if err := r.mergePath(res, path, baseMap, oursMap, theirsMap); err != nil {
			return nil, fmt.Errorf("merge file %q: %w", path, err)
		}
	}
	return res, nil
}

func (r *Repo) mergePath(res *TreeMergeResult, path string, baseMap, oursMap, theirsMap map[string]TreeFileEntry) error {
	base, inBase := baseMap[path]
	ours, inOurs := oursMap[path]
	theirs, inTheirs := theirsMap[path]

	switch {
	case inOurs && inTheirs:
		// Present on both sides; base presence decides between a three-way
		// merge and a both-added merge against empty base.
		if ours.BlobHash == theirs.BlobHash {
			return r.addMergedFile(res, FileMergeReport{Path: path, Status: "clean"}, path, ours.BlobHash, nil, ours.Mode)
		}
		if inBase {
			if ours.BlobHash == base.BlobHash {
				// Only theirs changed.
				return r.addMergedFile(res, FileMergeReport{Path: path, Status: "clean"}, path, theirs.BlobHash, nil, theirs.Mode)
			}
			if theirs.BlobHash == base.BlobHash {
				// Only ours changed.
				return r.addMergedFile(res, FileMergeReport{Path: path, Status: "clean"}, path, ours.BlobHash, nil, ours.Mode)
			}
		}

		var baseData []byte
		if inBase {
			var err error
			baseData, err = r.readBlobData(base.BlobHash)
			if err != nil {
				return err
			}
		}
		oursData, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return err
		}
		theirsData, err := r.readBlobData(theirs.BlobHash)
		if err != nil {
			return err
		}

		fr, content := mergeFileContents(path, baseData, oursData, theirsData)
		if fr.Status == "conflict" {
			res.HasConflicts = true
			res.TotalConflicts += fr.ConflictCount
			res.Conflicts = append(res.Conflicts, MergeConflictEntry{
				Path:       path,
				BaseHash:   base.BlobHash,
				OursHash:   ours.BlobHash,
				TheirsHash: theirs.BlobHash,
				Mode:       normalizeFileMode(ours.Mode),
			})
		}
		return r.addMergedFile(res, fr, path, "", content, ours.Mode)

	case inBase && inOurs && !inTheirs:
		// Deleted by theirs.
		if ours.BlobHash == base.BlobHash {
			res.Files = append(res.Files, FileMergeReport{Path: path, Status: "deleted"})
			res.Deleted = append(res.Deleted, path)
			return nil
		}

		// Delete vs modify: keep our content, mark their deletion.
		oursData, err := r.readBlobData(ours.BlobHash)
		if err != nil {
			return err
		}
		content := renderFileConflict(oursData, nil, "ours", "theirs (deleted)")
		res.HasConflicts = true
		res.TotalConflicts++
		res.Conflicts = append(res.Conflicts, MergeConflictEntry{
			Path:     path,
			BaseHash: base.BlobHash,
			OursHash: ours.BlobHash,
			Mode:     normalizeFileMode(ours.Mode),
		})
		return r.addMergedFile(res, FileMergeReport{Path: path, Status: "conflict", ConflictCount: 1}, path, "", content, ours.Mode)

	case inBase && !inOurs && inTheirs:
		// Deleted by ours.
		if theirs.BlobHash == base.BlobHash {
			res.Files = append(res.Files, FileMergeReport{Path: path, Status: "deleted"})
			res.Deleted = append(res.Deleted, path)
			return nil
		}

		// Delete vs modify: keep their content, mark our deletion.
		theirsData, err := r.readBlobData(theirs.BlobHash)
		if err != nil {
			return err
		}
		content := renderFileConflict(nil, theirsData, "ours (deleted)", "theirs")
		res.HasConflicts = true
		res.TotalConflicts++
		res.Conflicts = append(res.Conflicts, MergeConflictEntry{
			Path:       path,
			BaseHash:   base.BlobHash,
			TheirsHash: theirs.BlobHash,
			Mode:       normalizeFileMode(theirs.Mode),
		})
		return r.addMergedFile(res, FileMergeReport{Path: path, Status: "conflict", ConflictCount: 1}, path, "", content, theirs.Mode)

	case !inBase && inOurs && !inTheirs:
		// New in ours only: keep as-is.
		return r.addMergedFile(res, FileMergeReport{Path: path, Status: "added"}, path, ours.BlobHash, nil, ours.Mode)

	case !inBase && !inOurs && inTheirs:
		// New in theirs only: add.
		return r.addMergedFile(res, FileMergeReport{Path: path, Status: "added"}, path, theirs.BlobHash, nil, theirs.Mode)

	case inBase && !inOurs && !inTheirs:
		// Both deleted: remove.
		res.Files = append(res.Files, FileMergeReport{Path: path, Status: "deleted"})
		res.Deleted = append(res.Deleted, path)
	}
	return nil
}

// addMergedFile appends a merged file to the result, storing its blob.
// Either blobHash (reuse an existing blob) or content must be given.
func (r *Repo) addMergedFile(res *TreeMergeResult, fr FileMergeReport, path string, blobHash object.Hash, content []byte, mode string) error {
	if blobHash == "" {
		var err error
		blobHash, err = r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("write merged blob: %w", err)
		}
	} else if content == nil {
		data, err := r.readBlobData(blobHash)
		if err != nil {
			return err
		}
		content = data
	}

	res.Files = append(res.Files, fr)
	res.Merged = append(res.Merged, MergedFile{
		Path:     path,
		Content:  content,
		Mode:     normalizeFileMode(mode),
		BlobHash: blobHash,
	})
	return nil
}

// mergeFileContents runs the line-level merge engine on raw file contents.
func mergeFileContents(path string, base, ours, theirs []byte) (FileMergeReport, []byte) {
	result := diff3.Merge(base, ours, theirs)

	conflicts := 0
	for _, h := range result.Hunks {
		if h.Type == diff3.HunkConflict {
			conflicts++
		}
	}

	fr := FileMergeReport{Path: path, ConflictCount: conflicts}
	if result.HasConflicts {
		fr.Status = "conflict"
	} else {
		fr.Status = "clean"
	}
	return fr, result.Merged
}

// renderFileConflict brackets whole-file contents in conflict markers, ours
// before theirs. Labels annotate each side's marker line.
func renderFileConflict(ours, theirs []byte, oursLabel, theirsLabel string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<<<<<<< " + oursLabel + "\n")
	buf.Write(ours)
	if len(ours) > 0 && ours[len(ours)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString("=======\n")
	buf.Write(theirs)
	if len(theirs) > 0 && theirs[len(theirs)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.WriteString(">>>>>>> " + theirsLabel + "\n")
	return buf.Bytes()
}

// materializeMergeResult writes merged files into the working tree and
// removes deleted ones.
func (r *Repo) materializeMergeResult(res *TreeMergeResult) error {
	for _, mf := range res.Merged {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(mf.Path))
		dir := filepath.Dir(absPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %q: %w", dir, err)
		}
		if err := os.WriteFile(absPath, mf.Content, filePermFromMode(mf.Mode)); err != nil {
			return fmt.Errorf("write %q: %w", mf.Path, err)
		}
	}

	for _, path := range res.Deleted {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(path))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", path, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}
	return nil
}

// stageMergeResult rewrites the index from a merge result. Conflicted paths
// are staged with their three input versions so status can surface them and
// commit can refuse them.
func (r *Repo) stageMergeResult(res *TreeMergeResult) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("read staging: %w", err)
	}

	for _, p := range res.Deleted {
		delete(stg.Entries, p)
	}

	conflictByPath := make(map[string]MergeConflictEntry, len(res.Conflicts))
	for _, ce := range res.Conflicts {
		conflictByPath[ce.Path] = ce
	}

	for _, mf := range res.Merged {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(mf.Path))
		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("stat merged file %q: %w", mf.Path, err)
		}

		entry := &StagingEntry{
			Path:     mf.Path,
			BlobHash: mf.BlobHash,
			Mode:     mf.Mode,
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
		if ce, ok := conflictByPath[mf.Path]; ok {
			entry.Conflict = true
			entry.BaseBlobHash = ce.BaseHash
			entry.OursBlobHash = ce.OursHash
			entry.TheirsBlobHash = ce.TheirsHash
		}
		stg.Entries[mf.Path] = entry
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("write staging: %w", err)
	}
	return nil
}

// readBlobData reads a blob from the store and returns its raw data.
func (r *Repo) readBlobData(h object.Hash) ([]byte, error) {
	blob, err := r.Store.ReadBlob(h)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return blob.Data, nil
}

// indexByPath creates a map from file path to TreeFileEntry.
func indexByPath(entries []TreeFileEntry) map[string]TreeFileEntry {
	m := make(map[string]TreeFileEntry, len(entries))
	for _, e := range entries {
		m[e.Path] = e
	}
	return m
}

// collectAllPaths returns a sorted, deduplicated list of all file paths
// across three file maps.
func collectAllPaths(base, ours, theirs map[string]TreeFileEntry) []string {
	seen := make(map[string]bool)
	for p := range base {
		seen[p] = true
	}
	for p := range ours {
		seen[p] = true
	}
	for p := range theirs {
		seen[p] = true
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

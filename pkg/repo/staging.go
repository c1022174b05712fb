package repo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
)

// StagingEntry records the staged state of a single file. During an
// unresolved merge, Conflict is set and the three stage hashes record the
// base, ours, and theirs versions (empty hash = absent on that side).
type StagingEntry struct {
	Path     string      `json:"path"`
	BlobHash object.Hash `json:"blob_hash"`
	Mode     string      `json:"mode,omitempty"`
	ModTime  int64       `json:"mod_time"`
	Size     int64       `json:"size"`

	Conflict       bool        `json:"conflict,omitempty"`
	BaseBlobHash   object.Hash `json:"base_blob_hash,omitempty"`
	OursBlobHash   object.Hash `json:"ours_blob_hash,omitempty"`
	TheirsBlobHash object.Hash `json:"theirs_blob_hash,omitempty"`
}

// Staging holds the full staging area (index) for a Twig repository.
type Staging struct {
	Entries map[string]*StagingEntry `json:"entries"`
}

// HasConflicts reports whether any entry carries unresolved conflict state.
func (s *Staging) HasConflicts() bool {
	for _, e := range s.Entries {
		if e.Conflict {
			return true
		}
	}
	return false
}

// indexPath returns the filesystem path to the staging index file.
func (r *Repo) indexPath() string {
	return filepath.Join(r.TwigDir, "index")
}

// ReadStaging loads the staging area from .twig/index. If the file does not
// exist, an empty Staging is returned (no error).
func (r *Repo) ReadStaging() (*Staging, error) {
	data, err := os.ReadFile(r.indexPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Staging{Entries: make(map[string]*StagingEntry)}, nil
		}
		return nil, fmt.Errorf("read staging: %w", err)
	}

	var stg Staging
	if err := json.Unmarshal(data, &stg); err != nil {
		return nil, fmt.Errorf("read staging: unmarshal: %w", err)
	}
	if stg.Entries == nil {
		stg.Entries = make(map[string]*StagingEntry)
	}
	return &stg, nil
}

// WriteStaging atomically writes the staging area to .twig/index.
func (r *Repo) WriteStaging(s *Staging) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("write staging: marshal: %w", err)
	}

	// Atomic write via temp file + rename.
	tmp, err := os.CreateTemp(r.TwigDir, ".index-tmp-*")
	if err != nil {
		return fmt.Errorf("write staging: tmpfile: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write staging: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: close: %w", err)
	}

	if err := os.Rename(tmpName, r.indexPath()); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write staging: rename: %w", err)
	}
	return nil
}

// Add stages the given pathspecs. A pathspec may name a file, a directory
// (staged recursively, honoring ignore rules), "." for the whole tree, or a
// glob pattern. For each file the raw content is written as a blob to the
// object store, and a fresh StagingEntry records the hash and file metadata.
// Re-adding a conflicted path marks its conflict resolved.
func (r *Repo) Add(paths []string) error {
	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	expanded, err := r.expandAddPathspecs(paths)
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}

	for _, relPath := range expanded {
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(relPath))
		content, err := os.ReadFile(absPath)
		if err != nil {
			return fmt.Errorf("add: read %q: %w", relPath, err)
		}

		info, err := os.Stat(absPath)
		if err != nil {
			return fmt.Errorf("add: stat %q: %w", relPath, err)
		}

		blobHash, err := r.Store.WriteBlob(&object.Blob{Data: content})
		if err != nil {
			return fmt.Errorf("add: write blob %q: %w", relPath, err)
		}

		stg.Entries[relPath] = &StagingEntry{
			Path:     relPath,
			BlobHash: blobHash,
			Mode:     modeFromFileInfo(info),
			ModTime:  info.ModTime().UnixNano(),
			Size:     info.Size(),
		}
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("add: %w", err)
	}

	r.invalidateStatusCache()
	return nil
}

// expandAddPathspecs resolves pathspecs into repo-relative file paths.
// Explicitly named files are staged even when ignore rules match them;
// directory and pattern expansion honors ignore rules.
func (r *Repo) expandAddPathspecs(paths []string) ([]string, error) {
	ic := NewIgnoreChecker(r.RootDir)
	seen := make(map[string]struct{})
	var out []string

	addFile := func(rel string) {
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}

	for _, p := range paths {
		rel, err := r.repoRelPath(p)
		if err != nil {
			return nil, fmt.Errorf("resolve path %q: %w", p, err)
		}
		rel = filepath.ToSlash(filepath.Clean(rel))

		if rel == "." || rel == "" {
			files, err := r.walkWorktreeFiles("", ic)
			if err != nil {
				return nil, err
			}
			for _, f := range files {
				addFile(f)
			}
			continue
		}

		absPath := filepath.Join(r.RootDir, filepath.FromSlash(rel))
		if info, err := os.Stat(absPath); err == nil {
			if info.IsDir() {
				files, err := r.walkWorktreeFiles(rel, ic)
				if err != nil {
					return nil, err
				}
				for _, f := range files {
					addFile(f)
				}
				continue
			}
			addFile(rel)
			continue
		}

		if strings.ContainsAny(rel, "*?[") {
			files, err := r.walkWorktreeFiles("", ic)
			if err != nil {
				return nil, err
			}
			matched := false
			for _, f := range files {
				ok, err := path.Match(rel, f)
				if err != nil {
					return nil, fmt.Errorf("bad pattern %q: %w", p, err)
				}
				if ok {
					addFile(f)
					matched = true
				}
			}
			if !matched {
				return nil, fmt.Errorf("pathspec %q did not match any files", p)
			}
			continue
		}

		return nil, fmt.Errorf("pathspec %q did not match any files", p)
	}

	return out, nil
}

// walkWorktreeFiles lists non-ignored regular files under the given
// repo-relative directory ("" walks the whole worktree), sorted.
func (r *Repo) walkWorktreeFiles(relDir string, ic *IgnoreChecker) ([]string, error) {
	root := r.RootDir
	if relDir != "" {
		root = filepath.Join(r.RootDir, filepath.FromSlash(relDir))
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if ic.IsIgnored(rel) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", relDir, err)
	}

	sort.Strings(files)
	return files, nil
}

// repoRelPath converts a path (absolute, or relative to CWD) into a path
// relative to the repository root. If the path is already relative and does
// not start with the repo root, it is assumed to already be repo-relative.
func (r *Repo) repoRelPath(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.RootDir, p)
		if err != nil {
			return "", fmt.Errorf("cannot make %q relative to %q: %w", p, r.RootDir, err)
		}
		return filepath.ToSlash(rel), nil
	}

	// Try to resolve via CWD.
	cwd, err := os.Getwd()
	if err != nil {
		// Fall through to treating p as repo-relative.
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	abs := filepath.Join(cwd, p)
	// Check if the absolute path lives within the repo root.
	rel, err := filepath.Rel(r.RootDir, abs)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	// If the relative path starts with "..", p is outside the repo.
	// In that case, treat the original p as already repo-relative.
	if len(rel) >= 2 && rel[:2] == ".." {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}

	return filepath.ToSlash(rel), nil
}

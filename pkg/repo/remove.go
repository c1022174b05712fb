package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Remove unstages paths and, unless cached is true, deletes them from the
// working tree. A path naming a directory removes everything staged under it.
func (r *Repo) Remove(paths []string, cached bool) error {
	if len(paths) == 0 {
		return fmt.Errorf("remove: no paths given")
	}

	stg, err := r.ReadStaging()
	if err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	targets := make(map[string]struct{})
	for _, raw := range paths {
		rel, err := r.repoRelPath(raw)
		if err != nil {
			return fmt.Errorf("remove: %w", err)
		}
		rel = filepath.ToSlash(filepath.Clean(strings.TrimSpace(rel)))

		matched := false
		if _, ok := stg.Entries[rel]; ok {
			targets[rel] = struct{}{}
			matched = true
		}

		prefix := rel + "/"
		for p := range stg.Entries {
			if strings.HasPrefix(p, prefix) {
				targets[p] = struct{}{}
				matched = true
			}
		}

		if !matched {
			return fmt.Errorf("remove: path %q did not match any staged entries", raw)
		}
	}

	for _, p := range sortedPathSet(targets) {
		delete(stg.Entries, p)

		if cached {
			continue
		}
		absPath := filepath.Join(r.RootDir, filepath.FromSlash(p))
		if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %q: %w", p, err)
		}
		r.removeEmptyParents(filepath.Dir(absPath))
	}

	if err := r.WriteStaging(stg); err != nil {
		return fmt.Errorf("remove: %w", err)
	}

	r.invalidateStatusCache()
	return nil
}

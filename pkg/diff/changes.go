// Package diff computes what changed between two flattened trees and renders
// per-file unified diffs.
package diff

import (
	"sort"

	"github.com/odvcencio/twig/pkg/object"
)

// Action classifies what happened to a path between two trees.
type Action string

const (
	Added    Action = "added"
	Modified Action = "modified"
	Deleted  Action = "deleted"
)

// Change is one changed path. Paths whose digests are equal on both sides
// are omitted entirely.
type Change struct {
	Path   string
	Action Action
}

// TreeChanges compares two flattened trees (path to blob digest) and lists
// every differing path in lexicographic order: deleted when only in from,
// added when only in to, modified when present in both with different
// digests.
func TreeChanges(from, to map[string]object.Hash) []Change {
	paths := make(map[string]struct{}, len(from)+len(to))
	for p := range from {
		paths[p] = struct{}{}
	}
	for p := range to {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	out := make([]Change, 0, len(sorted))
	for _, p := range sorted {
		fromHash, inFrom := from[p]
		toHash, inTo := to[p]
		switch {
		case !inFrom && inTo:
			out = append(out, Change{Path: p, Action: Added})
		case inFrom && !inTo:
			out = append(out, Change{Path: p, Action: Deleted})
		case fromHash != toHash:
			out = append(out, Change{Path: p, Action: Modified})
		}
	}
	return out
}

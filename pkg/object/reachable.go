package object

import "fmt"

// ReachableSet computes the transitive closure of objects referenced from
// the given roots: commits pull in their root tree and parents, trees their
// entries, blobs nothing. Roots absent from the store are skipped, so the
// closure over a partially known graph can serve as a stop-set.
func ReachableSet(s *Store, roots []Hash) (map[Hash]struct{}, error) {
	seen := make(map[Hash]struct{})
	stack := make([]Hash, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		stack = append(stack, r)
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[h]; ok {
			continue
		}
		if !s.Has(h) {
			continue
		}
		seen[h] = struct{}{}

		refs, err := referencedHashes(s, h)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if _, ok := seen[ref]; !ok {
				stack = append(stack, ref)
			}
		}
	}
	return seen, nil
}

// referencedHashes lists the direct references held by one object.
func referencedHashes(s *Store, h Hash) ([]Hash, error) {
	objType, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	switch objType {
	case TypeTree:
		t, err := UnmarshalTree(data)
		if err != nil {
			return nil, fmt.Errorf("tree %s: %w", h, err)
		}
		out := make([]Hash, 0, len(t.Entries))
		for _, e := range t.Entries {
			out = append(out, e.Hash)
		}
		return out, nil
	case TypeCommit:
		c, err := UnmarshalCommit(data)
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", h, err)
		}
		out := make([]Hash, 0, len(c.Parents)+1)
		out = append(out, c.TreeHash)
		out = append(out, c.Parents...)
		return out, nil
	default:
		return nil, nil
	}
}

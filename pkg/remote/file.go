package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
)

// FileTransport serves a twig repository on the local filesystem through the
// Transport contract. It is what path-based remotes resolve to.
type FileTransport struct {
	repo *repo.Repo
}

// NewFileTransport wraps an already opened repository.
func NewFileTransport(r *repo.Repo) *FileTransport {
	return &FileTransport{repo: r}
}

// OpenFileTransport opens the repository at path and serves it.
func OpenFileTransport(path string) (*FileTransport, error) {
	r, err := repo.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file remote %q: %w", path, err)
	}
	return &FileTransport{repo: r}, nil
}

// Repo exposes the underlying repository, mainly for tests.
func (t *FileTransport) Repo() *repo.Repo {
	return t.repo
}

// ListRefs advertises the repository's branches and tags. Names are relative
// to refs/ (heads/main, tags/v1); other namespaces stay private.
func (t *FileTransport) ListRefs(ctx context.Context) (map[string]object.Hash, error) {
	refs, err := t.repo.ListRefHashes("refs/")
	if err != nil {
		return nil, err
	}
	out := make(map[string]object.Hash, len(refs))
	for full, h := range refs {
		if strings.TrimSpace(string(h)) == "" {
			continue
		}
		name := strings.TrimPrefix(full, "refs/")
		if validateRemoteRefName(name) != nil {
			continue
		}
		out[name] = h
	}
	return out, nil
}

// BatchObjects walks the object graph from wants, stopping at anything
// reachable from haves, and returns up to maxObjects records.
func (t *FileTransport) BatchObjects(ctx context.Context, wants, haves []object.Hash, maxObjects int) ([]ObjectRecord, bool, error) {
	if len(wants) == 0 {
		return nil, false, fmt.Errorf("at least one want hash is required")
	}

	roots := make([]object.Hash, 0, len(wants))
	for _, h := range uniqueHashes(wants) {
		if t.repo.Store.Has(h) {
			roots = append(roots, h)
		}
	}
	if len(roots) == 0 {
		return nil, false, nil
	}

	records, err := CollectObjectsForPush(t.repo.Store, roots, haves)
	if err != nil {
		return nil, false, err
	}
	if maxObjects > 0 && len(records) > maxObjects {
		return records[:maxObjects], true, nil
	}
	return records, false, nil
}

// GetObject reads one object from the served repository.
func (t *FileTransport) GetObject(ctx context.Context, hash object.Hash) (ObjectRecord, error) {
	hash = object.Hash(strings.TrimSpace(string(hash)))
	if hash == "" {
		return ObjectRecord{}, fmt.Errorf("object hash is required")
	}
	objType, data, err := t.repo.Store.Read(hash)
	if err != nil {
		return ObjectRecord{}, fmt.Errorf("remote object %s: %w", hash, err)
	}
	return ObjectRecord{Hash: hash, Type: objType, Data: data}, nil
}

// PushObjects verifies and writes the records into the served repository.
func (t *FileTransport) PushObjects(ctx context.Context, objects []ObjectRecord) error {
	for i, obj := range objects {
		if _, err := writeVerifiedObject(t.repo.Store, obj); err != nil {
			return fmt.Errorf("push object %d: %w", i, err)
		}
	}
	return nil
}

// UpdateRefs applies branch and tag updates against the served repository's
// ref files, compare-and-swap when Old is set. Empty New deletes the ref.
func (t *FileTransport) UpdateRefs(ctx context.Context, updates []RefUpdate) (map[string]object.Hash, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("at least one ref update is required")
	}

	out := make(map[string]object.Hash, len(updates))
	for _, u := range updates {
		name := strings.TrimSpace(u.Name)
		if err := validateRemoteRefName(name); err != nil {
			return nil, err
		}
		full := "refs/" + name

		newHash := object.Hash("")
		if u.New != nil {
			newHash = object.Hash(strings.TrimSpace(string(*u.New)))
		}

		if newHash == "" {
			if err := t.deleteRefCAS(full, u.Old); err != nil {
				return nil, err
			}
			out[name] = ""
			continue
		}

		if err := ValidateHash(newHash); err != nil {
			return nil, fmt.Errorf("update ref %q: %w", name, err)
		}
		if !t.repo.Store.Has(newHash) {
			return nil, fmt.Errorf("update ref %q: unknown object %s", name, newHash)
		}

		var err error
		if u.Old != nil {
			err = t.repo.UpdateRefCAS(full, newHash, *u.Old)
		} else {
			err = t.repo.UpdateRef(full, newHash)
		}
		if err != nil {
			return nil, err
		}
		out[name] = newHash
	}
	return out, nil
}

// deleteRefCAS removes a ref, first comparing against expected when given.
// Deleting an absent ref is a no-op.
func (t *FileTransport) deleteRefCAS(full string, expected *object.Hash) error {
	current := object.Hash("")
	found := false
	v, err := t.repo.ReadRef(full)
	switch {
	case err == nil:
		current = v.Hash()
		found = true
	case errors.Is(err, repo.ErrRefNotFound):
	default:
		return err
	}

	if expected != nil && current != *expected {
		return fmt.Errorf("delete ref %q: %w (expected %s, found %s)",
			full, repo.ErrRefCASMismatch, *expected, current)
	}
	if !found {
		return nil
	}
	return t.repo.DeleteRef(full)
}

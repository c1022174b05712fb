package object

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	// ErrNotFound is returned when a requested object is absent from the
	// store. A missing object means the repository is corrupt or
	// incompletely synced; callers never paper over it.
	ErrNotFound = errors.New("not found")

	// ErrTypeMismatch is returned by typed reads when the stored object
	// exists but carries a different type than the caller expected.
	ErrTypeMismatch = errors.New("type mismatch")
)

// Store is a content-addressed object store rooted at a directory. Each
// object lives in its own file under a two-character fan-out, named by the
// remaining digest characters; file contents are the envelope the digest was
// computed over. The store is append-only: objects are never modified or
// deleted, and writing an already-present digest is a no-op success.
type Store struct {
	Root string
}

func NewStore(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) objectPath(h Hash) string {
	name := string(h)
	return filepath.Join(s.Root, name[:2], name[2:])
}

// Has reports whether the object exists in the store.
func (s *Store) Has(h Hash) bool {
	if len(h) != hashHexLen {
		return false
	}
	_, err := os.Stat(s.objectPath(h))
	return err == nil
}

// Write stores a typed payload and returns its digest. Writing content that
// is already present leaves the existing file untouched.
func (s *Store) Write(objType ObjectType, data []byte) (Hash, error) {
	h := HashObject(objType, data)
	if s.Has(h) {
		return h, nil
	}

	dir := filepath.Dir(s.objectPath(h))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create object dir: %w", err)
	}

	envelope := make([]byte, 0, len(objType)+1+len(data))
	envelope = append(envelope, objType...)
	envelope = append(envelope, 0)
	envelope = append(envelope, data...)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp object: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(envelope); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write object %s: %w", h, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close object %s: %w", h, err)
	}
	if err := os.Rename(tmpName, s.objectPath(h)); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store object %s: %w", h, err)
	}
	return h, nil
}

// Read loads an object, returning its type and payload.
func (s *Store) Read(h Hash) (ObjectType, []byte, error) {
	if len(h) != hashHexLen {
		return "", nil, fmt.Errorf("object %q: malformed hash", h)
	}
	raw, err := os.ReadFile(s.objectPath(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, fmt.Errorf("object %s: %w", h, ErrNotFound)
		}
		return "", nil, fmt.Errorf("read object %s: %w", h, err)
	}

	sep := bytes.IndexByte(raw, 0)
	if sep < 0 {
		return "", nil, fmt.Errorf("object %s: malformed envelope: missing type separator", h)
	}
	objType := ObjectType(raw[:sep])
	switch objType {
	case TypeBlob, TypeTree, TypeCommit:
	default:
		return "", nil, fmt.Errorf("object %s: unknown type %q", h, objType)
	}
	return objType, raw[sep+1:], nil
}

func (s *Store) readTyped(h Hash, want ObjectType) ([]byte, error) {
	got, data, err := s.Read(h)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("object %s: %w: got %q, want %q", h, ErrTypeMismatch, got, want)
	}
	return data, nil
}

func (s *Store) ReadBlob(h Hash) (*Blob, error) {
	data, err := s.readTyped(h, TypeBlob)
	if err != nil {
		return nil, err
	}
	return UnmarshalBlob(data)
}

func (s *Store) ReadTree(h Hash) (*TreeObj, error) {
	data, err := s.readTyped(h, TypeTree)
	if err != nil {
		return nil, err
	}
	t, err := UnmarshalTree(data)
	if err != nil {
		return nil, fmt.Errorf("tree %s: %w", h, err)
	}
	return t, nil
}

func (s *Store) ReadCommit(h Hash) (*CommitObj, error) {
	data, err := s.readTyped(h, TypeCommit)
	if err != nil {
		return nil, err
	}
	c, err := UnmarshalCommit(data)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", h, err)
	}
	return c, nil
}

func (s *Store) WriteBlob(b *Blob) (Hash, error) {
	return s.Write(TypeBlob, MarshalBlob(b))
}

func (s *Store) WriteTree(t *TreeObj) (Hash, error) {
	data, err := MarshalTree(t)
	if err != nil {
		return "", err
	}
	return s.Write(TypeTree, data)
}

func (s *Store) WriteCommit(c *CommitObj) (Hash, error) {
	data, err := MarshalCommit(c)
	if err != nil {
		return "", err
	}
	return s.Write(TypeCommit, data)
}

// FindByPrefix returns every stored digest beginning with the given hex
// prefix, sorted. Prefixes of two or more characters narrow the scan to a
// single fan-out directory.
func (s *Store) FindByPrefix(prefix string) ([]Hash, error) {
	prefix = strings.ToLower(prefix)
	if !isHexString(prefix) {
		return nil, nil
	}
	if len(prefix) == hashHexLen {
		if s.Has(Hash(prefix)) {
			return []Hash{Hash(prefix)}, nil
		}
		return nil, nil
	}
	if len(prefix) > hashHexLen {
		return nil, nil
	}

	var fanouts []string
	if len(prefix) >= 2 {
		fanouts = []string{prefix[:2]}
	} else {
		dirs, err := os.ReadDir(s.Root)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, fmt.Errorf("scan object dir: %w", err)
		}
		for _, d := range dirs {
			name := d.Name()
			if d.IsDir() && len(name) == 2 && strings.HasPrefix(name, prefix) {
				fanouts = append(fanouts, name)
			}
		}
	}

	var matches []Hash
	for _, fanout := range fanouts {
		entries, err := os.ReadDir(filepath.Join(s.Root, fanout))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("scan object dir %s: %w", fanout, err)
		}
		for _, e := range entries {
			name := fanout + e.Name()
			if e.IsDir() || len(name) != hashHexLen || !isHexString(name) {
				continue
			}
			if strings.HasPrefix(name, prefix) {
				matches = append(matches, Hash(name))
			}
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })
	return matches, nil
}

func isHexString(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}

// VerifyReport summarizes an integrity scan of the store.
type VerifyReport struct {
	Objects int
	Corrupt []Hash
}

// Verify re-hashes every stored envelope and compares the result against the
// digest the object is filed under. Temp files from in-flight writes are
// ignored.
func (s *Store) Verify() (*VerifyReport, error) {
	report := &VerifyReport{}

	dirs, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return nil, fmt.Errorf("scan object dir: %w", err)
	}

	for _, d := range dirs {
		if !d.IsDir() || len(d.Name()) != 2 || !isHexString(d.Name()) {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.Root, d.Name()))
		if err != nil {
			return nil, fmt.Errorf("scan object dir %s: %w", d.Name(), err)
		}
		for _, e := range entries {
			name := d.Name() + e.Name()
			if e.IsDir() || len(name) != hashHexLen || !isHexString(name) {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(s.Root, d.Name(), e.Name()))
			if err != nil {
				return nil, fmt.Errorf("read object %s: %w", name, err)
			}
			report.Objects++
			if HashBytes(raw) != Hash(name) {
				report.Corrupt = append(report.Corrupt, Hash(name))
			}
		}
	}
	sort.Slice(report.Corrupt, func(i, j int) bool { return report.Corrupt[i] < report.Corrupt[j] })
	return report, nil
}

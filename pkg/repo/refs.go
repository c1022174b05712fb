package repo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odvcencio/twig/pkg/object"
)

var (
	// ErrRefNotFound is returned when a reference file does not exist.
	ErrRefNotFound = errors.New("ref not found")
	// ErrRefCycle is returned when following symbolic references exceeds
	// the hop limit.
	ErrRefCycle = errors.New("symbolic ref cycle")
	// ErrRefCASMismatch is returned when a compare-and-swap update finds a
	// different current value than expected.
	ErrRefCASMismatch = errors.New("ref compare-and-swap mismatch")
	// ErrRefUpdatedButReflogAppendFailed marks updates whose ref write
	// committed but whose reflog entry could not be appended.
	ErrRefUpdatedButReflogAppendFailed = errors.New("ref updated but reflog append failed")
)

// maxSymbolicHops bounds symbolic ref chains. Anything deeper is treated as
// a cycle.
const maxSymbolicHops = 32

const (
	refLockRetryDelay = 5 * time.Millisecond
	refLockWaitLimit  = 2 * time.Second
)

// RefUpdateReflogError indicates the ref file update succeeded, but appending
// the corresponding reflog entry failed.
type RefUpdateReflogError struct {
	Ref     string
	OldHash object.Hash
	NewHash object.Hash
	Err     error
}

func (e *RefUpdateReflogError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf(
		"update ref %q: %s (old=%s new=%s): %v",
		e.Ref,
		ErrRefUpdatedButReflogAppendFailed,
		e.OldHash,
		e.NewHash,
		e.Err,
	)
}

func (e *RefUpdateReflogError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *RefUpdateReflogError) Is(target error) bool {
	return target == ErrRefUpdatedButReflogAppendFailed
}

// RefValue is the content of a reference file: either a direct object hash
// or a symbolic pointer to another ref name.
type RefValue struct {
	Symbolic bool
	Value    string // target ref name when symbolic, hex hash otherwise
}

// DirectRef builds a RefValue holding an object hash.
func DirectRef(h object.Hash) RefValue {
	return RefValue{Value: string(h)}
}

// SymbolicRef builds a RefValue pointing at another ref name.
func SymbolicRef(target string) RefValue {
	return RefValue{Symbolic: true, Value: target}
}

// Hash returns the direct hash value, or "" for symbolic refs.
func (v RefValue) Hash() object.Hash {
	if v.Symbolic {
		return ""
	}
	return object.Hash(v.Value)
}

// fileContent renders the on-disk form: "ref: <target>\n" for symbolic
// values, "<hex>\n" for direct ones.
func (v RefValue) fileContent() string {
	if v.Symbolic {
		return "ref: " + v.Value + "\n"
	}
	return v.Value + "\n"
}

func parseRefValue(data []byte) RefValue {
	content := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(content, "ref: "); ok {
		return SymbolicRef(strings.TrimSpace(target))
	}
	return RefValue{Value: content}
}

// normalizeRefName maps shorthand names onto ref file paths. HEAD and
// MERGE_HEAD live at the top of the state directory; fully qualified names
// stay as given; bare names are treated as branch names.
func normalizeRefName(name string) string {
	name = strings.TrimSpace(name)
	if name == "HEAD" || name == "MERGE_HEAD" {
		return name
	}
	if strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}

func (r *Repo) refFilePath(name string) string {
	return filepath.Join(r.TwigDir, filepath.FromSlash(normalizeRefName(name)))
}

// ReadRef reads a single reference file without following symbolic targets.
func (r *Repo) ReadRef(name string) (RefValue, error) {
	data, err := os.ReadFile(r.refFilePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return RefValue{}, fmt.Errorf("ref %q: %w", normalizeRefName(name), ErrRefNotFound)
		}
		return RefValue{}, fmt.Errorf("read ref %q: %w", name, err)
	}
	return parseRefValue(data), nil
}

// ResolveRef resolves a ref name to an object hash, following symbolic
// references up to maxSymbolicHops. Deeper chains report ErrRefCycle.
func (r *Repo) ResolveRef(name string) (object.Hash, error) {
	current := normalizeRefName(name)
	for hop := 0; hop < maxSymbolicHops; hop++ {
		v, err := r.ReadRef(current)
		if err != nil {
			return "", err
		}
		if !v.Symbolic {
			return v.Hash(), nil
		}
		current = normalizeRefName(v.Value)
	}
	return "", fmt.Errorf("resolve ref %q: %w", name, ErrRefCycle)
}

// SetRef writes a reference file without dereferencing symbolic targets.
// This is how HEAD is detached or repointed and how MERGE_HEAD is recorded.
func (r *Repo) SetRef(name string, v RefValue) error {
	name = normalizeRefName(name)
	refPath := r.refFilePath(name)

	if err := os.MkdirAll(filepath.Dir(refPath), 0o755); err != nil {
		return fmt.Errorf("set ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("set ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldRaw, err := os.ReadFile(refPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("set ref %q: read old: %w", name, err)
	}
	oldHash := r.refValueHash(parseRefValue(oldRaw))

	if _, err := lockFile.WriteString(v.fileContent()); err != nil {
		return fmt.Errorf("set ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("set ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("set ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("set ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	newHash := r.refValueHash(v)
	if err := r.appendReflog(name, oldHash, newHash, "update"); err != nil {
		return &RefUpdateReflogError{Ref: name, OldHash: oldHash, NewHash: newHash, Err: err}
	}
	return nil
}

// refValueHash resolves a RefValue to a hash for reflog purposes. Symbolic
// values that point at missing refs resolve to "".
func (r *Repo) refValueHash(v RefValue) object.Hash {
	if !v.Symbolic {
		return v.Hash()
	}
	h, err := r.ResolveRef(v.Value)
	if err != nil {
		return ""
	}
	return h
}

// DeleteRef removes the reference file at the given name. Symbolic targets
// are not followed: deleting a branch never deletes what it points at.
func (r *Repo) DeleteRef(name string) error {
	name = normalizeRefName(name)
	if err := os.Remove(r.refFilePath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("delete ref %q: %w", name, ErrRefNotFound)
		}
		return fmt.Errorf("delete ref %q: %w", name, err)
	}
	return nil
}

// UpdateRef writes a hash to the named ref, following symbolic references
// first, so that updating HEAD on a branch moves the branch.
func (r *Repo) UpdateRef(name string, h object.Hash) error {
	return r.UpdateRefCAS(name, h)
}

// UpdateRefCAS writes a hash to the named ref using lockfile + rename atomic
// semantics. Symbolic references are followed first: the write lands at the
// end of the chain. If expectedOld is provided, the update only succeeds
// when the current ref hash matches it.
//
// Reflog append happens after the ref rename; if reflog append fails, the ref
// update remains committed and a RefUpdateReflogError is returned.
func (r *Repo) UpdateRefCAS(name string, h object.Hash, expectedOld ...object.Hash) error {
	if len(expectedOld) > 1 {
		return fmt.Errorf("update ref %q: expected at most one old hash", name)
	}
	hasExpectedOld := len(expectedOld) == 1
	wantOldHash := object.Hash("")
	if hasExpectedOld {
		wantOldHash = expectedOld[0]
	}

	name, err := r.finalRefForUpdate(name)
	if err != nil {
		return err
	}
	refPath := r.refFilePath(name)

	dir := filepath.Dir(refPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("update ref %q: mkdir: %w", name, err)
	}

	lockPath := refPath + ".lock"
	lockFile, err := acquireRefLock(lockPath)
	if err != nil {
		return fmt.Errorf("update ref %q: lock: %w", name, err)
	}
	cleanupLock := true
	defer func() {
		if lockFile != nil {
			_ = lockFile.Close()
		}
		if cleanupLock {
			_ = os.Remove(lockPath)
		}
	}()

	oldHash, err := readRefHash(refPath)
	if err != nil {
		return fmt.Errorf("update ref %q: read old hash: %w", name, err)
	}
	if hasExpectedOld && oldHash != wantOldHash {
		return fmt.Errorf(
			"update ref %q: %w (expected %s, found %s)",
			name,
			ErrRefCASMismatch,
			wantOldHash,
			oldHash,
		)
	}

	if _, err := lockFile.WriteString(string(h) + "\n"); err != nil {
		return fmt.Errorf("update ref %q: write: %w", name, err)
	}
	if err := lockFile.Sync(); err != nil {
		return fmt.Errorf("update ref %q: sync: %w", name, err)
	}
	if err := lockFile.Close(); err != nil {
		lockFile = nil
		return fmt.Errorf("update ref %q: close: %w", name, err)
	}
	lockFile = nil

	if err := os.Rename(lockPath, refPath); err != nil {
		return fmt.Errorf("update ref %q: rename: %w", name, err)
	}
	cleanupLock = false

	if err := r.appendReflog(name, oldHash, h, "update"); err != nil {
		return &RefUpdateReflogError{
			Ref:     name,
			OldHash: oldHash,
			NewHash: h,
			Err:     err,
		}
	}

	return nil
}

// finalRefForUpdate follows symbolic references from name to the ref file a
// direct update should land on. A missing file terminates the chain (the
// update will create it).
func (r *Repo) finalRefForUpdate(name string) (string, error) {
	current := normalizeRefName(name)
	for hop := 0; hop < maxSymbolicHops; hop++ {
		data, err := os.ReadFile(r.refFilePath(current))
		if err != nil {
			if os.IsNotExist(err) {
				return current, nil
			}
			return "", fmt.Errorf("update ref %q: read: %w", current, err)
		}
		v := parseRefValue(data)
		if !v.Symbolic {
			return current, nil
		}
		current = normalizeRefName(v.Value)
	}
	return "", fmt.Errorf("update ref %q: %w", name, ErrRefCycle)
}

// ListRefs lists references whose full name starts with prefix. Names are
// fully qualified ("refs/heads/main", "refs/tags/v1"); HEAD and MERGE_HEAD
// are included when they exist and match.
func (r *Repo) ListRefs(prefix string) (map[string]RefValue, error) {
	refs := make(map[string]RefValue)

	for _, flat := range []string{"HEAD", "MERGE_HEAD"} {
		if !strings.HasPrefix(flat, prefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.TwigDir, flat))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("list refs: %w", err)
		}
		refs[flat] = parseRefValue(data)
	}

	root := filepath.Join(r.TwigDir, "refs")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".lock") {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		name := "refs/" + filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		refs[name] = parseRefValue(data)
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("list refs: %w", err)
	}
	return refs, nil
}

// ListRefHashes lists matching refs resolved to hashes. Symbolic refs whose
// chains do not resolve are omitted.
func (r *Repo) ListRefHashes(prefix string) (map[string]object.Hash, error) {
	refs, err := r.ListRefs(prefix)
	if err != nil {
		return nil, err
	}

	out := make(map[string]object.Hash, len(refs))
	for name, v := range refs {
		if !v.Symbolic {
			out[name] = v.Hash()
			continue
		}
		h, err := r.ResolveRef(v.Value)
		if err != nil {
			continue
		}
		out[name] = h
	}
	return out, nil
}

func acquireRefLock(lockPath string) (*os.File, error) {
	deadline := time.Now().Add(refLockWaitLimit)
	for {
		f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, nil
		}
		if os.IsExist(err) {
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("timeout waiting for lock %q", lockPath)
			}
			time.Sleep(refLockRetryDelay)
			continue
		}
		return nil, err
	}
}

func readRefHash(refPath string) (object.Hash, error) {
	data, err := os.ReadFile(refPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return object.Hash(strings.TrimSpace(string(data))), nil
}

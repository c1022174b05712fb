package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
)

var (
	// ErrUnknownRevision is returned when revision text matches no ref and
	// no stored object.
	ErrUnknownRevision = errors.New("unknown revision")
	// ErrAmbiguousOid is returned when a hash prefix matches more than one
	// stored object.
	ErrAmbiguousOid = errors.New("ambiguous object id prefix")
)

// minOidPrefixLen is the shortest hash prefix accepted by revision lookup.
const minOidPrefixLen = 4

// ResolveRevision turns user-facing revision text into an object hash.
//
// Candidates are tried in a fixed order: "@" as an alias for HEAD; exact
// names (HEAD, MERGE_HEAD, full refs/ paths); tags; branches;
// remote-tracking refs; full 64-char hashes; unique hex prefixes of at
// least minOidPrefixLen characters.
func (r *Repo) ResolveRevision(rev string) (object.Hash, error) {
	rev = strings.TrimSpace(rev)
	if rev == "" {
		return "", fmt.Errorf("resolve revision: %w: empty revision", ErrUnknownRevision)
	}
	if rev == "@" {
		rev = "HEAD"
	}

	if rev == "HEAD" || rev == "MERGE_HEAD" || strings.HasPrefix(rev, "refs/") {
		h, err := r.ResolveRef(rev)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrRefNotFound) {
			return "", err
		}
	} else {
		for _, name := range []string{
			"refs/tags/" + rev,
			"refs/heads/" + rev,
			"refs/remotes/" + rev,
		} {
			h, err := r.ResolveRef(name)
			if err == nil {
				return h, nil
			}
			if !errors.Is(err, ErrRefNotFound) {
				return "", err
			}
		}
	}

	hexRev := strings.ToLower(rev)
	if isHexRevision(hexRev) {
		if len(hexRev) == 64 {
			if r.Store.Has(object.Hash(hexRev)) {
				return object.Hash(hexRev), nil
			}
			return "", fmt.Errorf("resolve revision %q: %w", rev, ErrUnknownRevision)
		}
		if len(hexRev) >= minOidPrefixLen {
			matches, err := r.Store.FindByPrefix(hexRev)
			if err != nil {
				return "", fmt.Errorf("resolve revision %q: %w", rev, err)
			}
			switch len(matches) {
			case 0:
				return "", fmt.Errorf("resolve revision %q: %w", rev, ErrUnknownRevision)
			case 1:
				return matches[0], nil
			default:
				return "", fmt.Errorf("resolve revision %q: %w (%d matches)", rev, ErrAmbiguousOid, len(matches))
			}
		}
	}

	return "", fmt.Errorf("resolve revision %q: %w", rev, ErrUnknownRevision)
}

func isHexRevision(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

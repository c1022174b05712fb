package remote

import (
	"context"

	"github.com/odvcencio/twig/pkg/object"
)

// Transport is the contract a remote collaborator must satisfy. Ref names are
// relative to refs/ (e.g. heads/main, tags/v1.0.0).
//
// Client speaks the Twig HTTP protocol; FileTransport serves a repository on
// the local filesystem. Sync orchestration treats them interchangeably.
type Transport interface {
	// ListRefs returns every ref the remote exposes.
	ListRefs(ctx context.Context) (map[string]object.Hash, error)

	// BatchObjects returns objects reachable from wants that the caller does
	// not already hold (per haves). The second result reports truncation:
	// true means another round is needed with an extended have set.
	BatchObjects(ctx context.Context, wants, haves []object.Hash, maxObjects int) ([]ObjectRecord, bool, error)

	// GetObject fetches a single object by hash.
	GetObject(ctx context.Context, hash object.Hash) (ObjectRecord, error)

	// PushObjects uploads objects. Records already present on the remote are
	// accepted silently.
	PushObjects(ctx context.Context, objects []ObjectRecord) error

	// UpdateRefs applies ref updates, compare-and-swap when Old is set, and
	// returns the resulting values for the named refs.
	UpdateRefs(ctx context.Context, updates []RefUpdate) (map[string]object.Hash, error)
}

var (
	_ Transport = (*Client)(nil)
	_ Transport = (*FileTransport)(nil)
)

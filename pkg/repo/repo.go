package repo

import (
	"sync"

	"github.com/odvcencio/twig/pkg/object"
)

// Repo represents an opened Twig repository.
type Repo struct {
	RootDir string        // working directory root
	TwigDir string        // .twig/ directory
	Store   *object.Store // content-addressed object store

	statusHashCacheMu sync.Mutex
	statusHashCache   map[string]statusFileHashCacheEntry
	statusBlobHasher  func(data []byte) object.Hash // test seam
}

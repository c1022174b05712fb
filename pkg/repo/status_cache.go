package repo

import (
	"os"

	"github.com/odvcencio/twig/pkg/object"
)

// statusFileFingerprint captures the stat attributes a cached hash is keyed
// on. Any attribute change forces a re-hash.
type statusFileFingerprint struct {
	Mode        string
	ModTimeNano int64
	Size        int64
}

type statusFileHashCacheEntry struct {
	Fingerprint statusFileFingerprint
	BlobHash    object.Hash
}

func (r *Repo) invalidateStatusCache() {
	r.statusHashCacheMu.Lock()
	r.statusHashCache = nil
	r.statusHashCacheMu.Unlock()
}

// worktreeBlobHash returns the blob hash of a working-tree file, reusing a
// cached hash when the file's stat fingerprint is unchanged.
func (r *Repo) worktreeBlobHash(path, absPath string, info os.FileInfo, mode string) (object.Hash, error) {
	fingerprint := statusFingerprintFromFileInfo(info, mode)
	if blobHash, ok := r.statusHashCacheLookup(path, fingerprint); ok {
		return blobHash, nil
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", err
	}

	blobHash := r.statusBlobHash(data)
	r.statusHashCacheStore(path, fingerprint, blobHash)
	return blobHash, nil
}

func (r *Repo) statusHashCacheLookup(path string, fingerprint statusFileFingerprint) (object.Hash, bool) {
	r.statusHashCacheMu.Lock()
	defer r.statusHashCacheMu.Unlock()

	entry, ok := r.statusHashCache[path]
	if !ok {
		return "", false
	}
	if entry.Fingerprint != fingerprint {
		return "", false
	}
	return entry.BlobHash, true
}

func (r *Repo) statusHashCacheStore(path string, fingerprint statusFileFingerprint, blobHash object.Hash) {
	r.statusHashCacheMu.Lock()
	defer r.statusHashCacheMu.Unlock()

	if r.statusHashCache == nil {
		r.statusHashCache = make(map[string]statusFileHashCacheEntry)
	}
	r.statusHashCache[path] = statusFileHashCacheEntry{
		Fingerprint: fingerprint,
		BlobHash:    blobHash,
	}
}

func (r *Repo) statusBlobHash(data []byte) object.Hash {
	if r.statusBlobHasher != nil {
		return r.statusBlobHasher(data)
	}
	return object.HashObject(object.TypeBlob, data)
}

func statusFingerprintFromFileInfo(info os.FileInfo, mode string) statusFileFingerprint {
	return statusFileFingerprint{
		Mode:        normalizeFileMode(mode),
		ModTimeNano: info.ModTime().UnixNano(),
		Size:        info.Size(),
	}
}

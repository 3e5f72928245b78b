package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// Entry is the immutable record describing one cached artifact. Two entries
// with equal key and fingerprint describe the same unchanged content.
type Entry struct {
	CacheKey    string `json:"cache_key"`
	Fingerprint string `json:"fingerprint"`
	FileName    string `json:"file_name"`
}

// EntryFor builds the cache entry for an artifact. It fails with a
// NotFoundError when the artifact's fingerprint cannot be resolved.
func EntryFor(ctx context.Context, a Artifact) (Entry, error) {
	fingerprint, err := a.Fingerprint(ctx)
	if err != nil {
		return Entry{}, err
	}
	key := a.Key()
	return Entry{
		CacheKey:    key,
		Fingerprint: fingerprint,
		FileName:    FileNameFor(key),
	}, nil
}

// Equal reports structural equality; it is the sole signal used to decide
// that an artifact changed.
func (e Entry) Equal(other Entry) bool {
	return e.CacheKey == other.CacheKey && e.Fingerprint == other.Fingerprint
}

// FileNameFor derives the local file name for a cache key. The name is a
// digest prefix plus the key's original extension, so re-deriving it is
// idempotent across runs and distinct keys never collide.
func FileNameFor(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16] + path.Ext(key)
}

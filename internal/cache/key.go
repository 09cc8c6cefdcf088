// Package cache implements the Artifact Cache (C2): a content-addressed,
// size-bounded LRU shared by every session within a process.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Key computes the stable cacheKey token for a (provider, repo, sha, path)
// tuple: the first 16 hex characters of the SHA-256 of the normalized key.
// Two calls with identical arguments always yield the same key.
func Key(provider, repo, sha, path string) string {
	normalized := fmt.Sprintf("%s|%s|%s|%s", provider, repo, sha, path)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:16]
}

// SearchKey computes the cache key for a search result set, which is keyed
// the same way as file content since results are also immutable for a given
// (repo, sha, query).
func SearchKey(provider, repo, sha, query string) string {
	return Key(provider, repo, sha, "search:"+query)
}

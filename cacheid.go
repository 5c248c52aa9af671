package kubeflux

import (
	"crypto/sha256"
	"encoding/hex"
)

// cacheIDFromPathQuery hashes a request path+query with SHA-224 and returns
// the first 10 hex characters, giving a short, stable identity for a
// kind+filter combination independent of which cluster it targets.
func cacheIDFromPathQuery(pathQuery string) string {
	sum := sha256.Sum224([]byte(pathQuery))
	return hex.EncodeToString(sum[:])[:10]
}

package gitexec

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/go-bitbake/modvcs/pkg/vcsurl"
)

// DirForURL returns the stable bare-clone directory for url under root,
// keyed by a hash of vcsurl.CacheKey(url). Both pseudo-version resolution
// and commit verification use this so the same upstream repository
// always maps to the same on-disk clone regardless of which caller
// visits it first.
func DirForURL(root, url string) string {
	sum := sha256.Sum256([]byte(vcsurl.CacheKey(url)))
	return filepath.Join(root, hex.EncodeToString(sum[:16]))
}

package index

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strings"
)

var h1Re = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// extractTitle returns the first markdown H1, or the file name without its
// extension when the document has none.
func extractTitle(content, relPath string) string {
	if m := h1Re.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}

// contentHash is the full sha256 of the document content, hex encoded.
func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// shortID is the compact document handle: the first six hex characters of
// the content hash. Collisions are tolerated and resolved at lookup time.
func shortID(sha string) string {
	if len(sha) < 6 {
		return sha
	}
	return sha[:6]
}

// displayPath joins the collection name and the relative path.
func displayPath(collectionName, relPath string) string {
	return collectionName + "/" + relPath
}

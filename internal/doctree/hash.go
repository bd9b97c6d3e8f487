package doctree

import (
	"crypto/sha256"
	"fmt"
)

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// ChunkID derives the stable identifier of a chunk. Identical inputs always
// produce the same id, so re-running over unchanged files is idempotent.
func ChunkID(sourceID, filePath, heading, content string) string {
	return ContentHashHex([]byte(sourceID + ":" + filePath + ":" + heading + ":" + content))
}

package store

import (
	"crypto/sha256"
	"fmt"
)

// ComputeContentHash hashes file content for change detection. The hash
// covers bytes only; a touch that leaves content identical produces the
// same hash and the file is skipped.
func ComputeContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%x", sum)
}

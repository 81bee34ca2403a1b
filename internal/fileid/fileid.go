// Package fileid derives stable document ids for records read from corpus files.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "file:"

// FileDocID returns a stable id for the file at path. The same cleaned path
// always yields the same id.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(sum[:16])
}

// RecordID returns the id of the n-th record (0-based) of the file at path.
func RecordID(path string, n int) string {
	return FileDocID(path) + "#" + strconv.Itoa(n)
}

// IsFileID reports whether id was produced by FileDocID or RecordID.
func IsFileID(id string) bool {
	return strings.HasPrefix(id, prefix)
}

package cache

import (
	"io/fs"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is the per-file change-detection token: content hash plus the
// cheap stat pair used to short-circuit unchanged files without reading them.
type Fingerprint struct {
	Hash  uint64 // xxhash64 of the file content
	Size  int64
	MTime int64 // mtime, unix nanoseconds
}

// FingerprintTable maps slash-normalized paths (relative to the dump root)
// to their fingerprint from the last successful scan.
type FingerprintTable map[string]Fingerprint

// Compute builds a fingerprint from file content and stat info.
func Compute(content []byte, info fs.FileInfo) Fingerprint {
	return Fingerprint{
		Hash:  xxhash.Sum64(content),
		Size:  info.Size(),
		MTime: info.ModTime().UnixNano(),
	}
}

// StatMatches reports whether the stat pair alone proves the file unchanged.
func (f Fingerprint) StatMatches(info fs.FileInfo) bool {
	return f.Size == info.Size() && f.MTime == info.ModTime().UnixNano()
}

// Clone returns a deep copy of the table.
func (t FingerprintTable) Clone() FingerprintTable {
	out := make(FingerprintTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

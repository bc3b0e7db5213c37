// Package cache persists the reverse index and fingerprint table as a
// versioned, checksummed, atomically-replaced snapshot file.
package cache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/lai/internal/debug"
	laierrors "github.com/standardbeagle/lai/internal/errors"
	"github.com/standardbeagle/lai/internal/index"
)

// Snapshot file layout (little-endian):
//
//	[4]byte magic "LAIX"
//	u32    format version
//	u32    fingerprint count
//	         per entry: string path, u64 hash, i64 size, i64 mtime
//	u32    record count
//	         per record: u64 hash, string gyaml, string source ("" = orphan),
//	                     u32 ref count, string refs...
//	u64    xxhash64 of everything above
//
// strings are u16 length-prefixed UTF-8.
const (
	FormatVersion = 1

	maxStringLen = 1<<16 - 1
)

var magic = [4]byte{'L', 'A', 'I', 'X'}

// DefaultFileName is the snapshot file created under the dump root.
const DefaultFileName = ".lai.cache"

// Store owns the durable snapshot at a fixed path.
type Store struct {
	path string
}

// NewStore creates a store for the given snapshot path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the snapshot location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing, truncated, corrupt, or
// version-mismatched snapshot fails closed to the empty state so that first
// run and invalid cache both trigger full generation. The returned error is
// diagnostic only (nil for a clean load or a simply absent file); callers
// log it and proceed.
func (s *Store) Load() (*index.Index, FingerprintTable, error) {
	idx := index.New()
	fps := make(FingerprintTable)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			debug.LogStore("no snapshot at %s, starting empty\n", s.path)
			return idx, fps, nil
		}
		return idx, fps, laierrors.NewStoreError("read", s.path, err)
	}

	if err := s.parse(data, idx, fps); err != nil {
		// Discard anything partially parsed.
		return index.New(), make(FingerprintTable), err
	}
	debug.LogStore("loaded %d records, %d fingerprints from %s\n", idx.Len(), len(fps), s.path)
	return idx, fps, nil
}

func (s *Store) parse(data []byte, idx *index.Index, fps FingerprintTable) error {
	corrupt := func(reason string) error {
		return laierrors.NewStoreError("load", s.path, fmt.Errorf("%s", reason)).
			WithType(laierrors.ErrorTypeStoreCorrupt)
	}

	if len(data) < 8+8 {
		return corrupt("snapshot too short")
	}
	if !bytes.Equal(data[0:4], magic[:]) {
		return corrupt("bad magic")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return laierrors.NewStoreError("load", s.path,
			fmt.Errorf("snapshot format version %d, expected %d", version, FormatVersion)).
			WithType(laierrors.ErrorTypeVersionMismatch)
	}

	payload := data[:len(data)-8]
	sum := binary.LittleEndian.Uint64(data[len(data)-8:])
	if xxhash.Sum64(payload) != sum {
		return corrupt("checksum mismatch")
	}

	r := &reader{data: payload, pos: 8}

	fpCount, err := r.u32()
	if err != nil {
		return corrupt(err.Error())
	}
	for i := uint32(0); i < fpCount; i++ {
		path, err := r.str()
		if err != nil {
			return corrupt(err.Error())
		}
		hash, err := r.u64()
		if err != nil {
			return corrupt(err.Error())
		}
		size, err := r.u64()
		if err != nil {
			return corrupt(err.Error())
		}
		mtime, err := r.u64()
		if err != nil {
			return corrupt(err.Error())
		}
		fps[path] = Fingerprint{Hash: hash, Size: int64(size), MTime: int64(mtime)}
	}

	recCount, err := r.u32()
	if err != nil {
		return corrupt(err.Error())
	}
	for i := uint32(0); i < recCount; i++ {
		hash, err := r.u64()
		if err != nil {
			return corrupt(err.Error())
		}
		gyaml, err := r.str()
		if err != nil {
			return corrupt(err.Error())
		}
		source, err := r.str()
		if err != nil {
			return corrupt(err.Error())
		}
		refCount, err := r.u32()
		if err != nil {
			return corrupt(err.Error())
		}
		rec := &index.Record{
			Hash:   hash,
			Gyaml:  gyaml,
			Source: source,
			Refs:   make(map[string]struct{}, refCount),
		}
		for j := uint32(0); j < refCount; j++ {
			ref, err := r.str()
			if err != nil {
				return corrupt(err.Error())
			}
			rec.Refs[ref] = struct{}{}
		}
		idx.Restore(rec)
	}

	if r.pos != len(payload) {
		return corrupt("trailing bytes after last record")
	}
	return nil
}

// Save writes the snapshot atomically: a temp file in the same directory is
// fully written and fsynced, then published by rename. Concurrent readers
// never observe a partial snapshot; a failed run leaves the prior one
// untouched.
func (s *Store) Save(idx *index.Index, fps FingerprintTable) error {
	var buf bytes.Buffer
	w := &writer{buf: &buf}

	buf.Write(magic[:])
	w.u32(FormatVersion)

	w.u32(uint32(len(fps)))
	for _, path := range sortedKeys(fps) {
		fp := fps[path]
		if err := w.str(path); err != nil {
			return laierrors.NewStoreError("save", s.path, err)
		}
		w.u64(fp.Hash)
		w.u64(uint64(fp.Size))
		w.u64(uint64(fp.MTime))
	}

	records := idx.Records()
	sort.Slice(records, func(i, j int) bool { return records[i].Hash < records[j].Hash })
	w.u32(uint32(len(records)))
	for _, rec := range records {
		w.u64(rec.Hash)
		if err := w.str(rec.Gyaml); err != nil {
			return laierrors.NewStoreError("save", s.path, err)
		}
		if err := w.str(rec.Source); err != nil {
			return laierrors.NewStoreError("save", s.path, err)
		}
		refs := rec.RefList()
		w.u32(uint32(len(refs)))
		for _, ref := range refs {
			if err := w.str(ref); err != nil {
				return laierrors.NewStoreError("save", s.path, err)
			}
		}
	}

	w.u64(xxhash.Sum64(buf.Bytes()))

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp*")
	if err != nil {
		return laierrors.NewStoreError("save", s.path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		cleanup()
		return laierrors.NewStoreError("save", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return laierrors.NewStoreError("save", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return laierrors.NewStoreError("save", s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return laierrors.NewStoreError("save", s.path, err)
	}

	debug.LogStore("saved %d records, %d fingerprints to %s (%d bytes)\n",
		len(records), len(fps), s.path, buf.Len())
	return nil
}

type writer struct {
	buf *bytes.Buffer
}

func (w *writer) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *writer) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *writer) str(s string) error {
	if len(s) > maxStringLen {
		return fmt.Errorf("string of %d bytes exceeds format limit", len(s))
	}
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], uint16(len(s)))
	w.buf.Write(tmp[:])
	w.buf.WriteString(s)
	return nil
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, fmt.Errorf("truncated u32 at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, fmt.Errorf("truncated u64 at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) str() (string, error) {
	if r.pos+2 > len(r.data) {
		return "", fmt.Errorf("truncated string length at offset %d", r.pos)
	}
	n := int(binary.LittleEndian.Uint16(r.data[r.pos:]))
	r.pos += 2
	if r.pos+n > len(r.data) {
		return "", fmt.Errorf("truncated string at offset %d", r.pos)
	}
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}

func sortedKeys(fps FingerprintTable) []string {
	keys := make([]string, 0, len(fps))
	for k := range fps {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

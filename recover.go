package kvengine

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

// OpenAndRecover creates dir if missing (an empty directory recovers to an
// empty engine), otherwise folds every existing segment into a fresh
// memtable, newest-information-last, then compacts the whole directory down
// to a single segment before returning.
//
// Folding order is oldest segment to newest, and within a segment oldest
// record to newest: later writes for a key overwrite earlier ones, live or
// tombstone, matching last-write-wins. A segment whose final record was
// truncated mid-write (the shape a crash leaves behind) is folded up to its
// last complete record; the partial tail is dropped, never surfaced as an
// error.
//
// Compaction re-emits the folded memtable (values and tombstones alike) into
// one new segment, written to a temporary path and installed at its final
// path with a single rename so a crash mid-compaction can never observe a
// half-written segment at a live path. Only once the new segment is
// installed are the old segment files removed.
func OpenAndRecover(dir string, opts ...Option) (*Engine, error) {
	o := applyOptions(opts)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapErr(CodeIO, "recover: mkdir", err)
	}

	names, err := listSegments(dir)
	if err != nil {
		return nil, err
	}

	mem := newMemtable()
	for _, name := range names {
		if err := foldSegmentInto(mem, filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}

	o.logger.Infow("folded segments for recovery", "dir", dir, "segments", len(names), "keys", len(mem.enumerateAll()))

	active, err := compact(dir, mem, o)
	if err != nil {
		return nil, err
	}

	for _, name := range names {
		path := filepath.Join(dir, name)
		if path == active {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, wrapErr(CodeIO, "recover: remove old segment", err)
		}
	}

	w, err := openSegmentWriter(active, o.fileMode)
	if err != nil {
		return nil, err
	}

	o.logger.Infow("compacted segments", "dir", dir, "segment", active)

	return &Engine{dir: dir, opts: o, mem: mem, writer: w, active: active}, nil
}

// foldSegmentInto reads every complete record out of the segment at path and
// applies it to mem in file order, live values via put and tombstones via
// delete, so later entries always win over earlier ones regardless of which
// segment they came from.
func foldSegmentInto(mem *memtable, path string) error {
	r, err := openSegmentReader(path)
	if err != nil {
		return err
	}
	defer r.close()

	for {
		rec, ok, err := r.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if rec.deleted {
			mem.delete(rec.key, rec.timestamp)
		} else {
			mem.put(rec.key, rec.value, rec.timestamp)
		}
	}
}

// compact writes every entry in mem (values and tombstones alike) to a new
// segment named for the current time and installs it atomically at that
// path via atomic.WriteFile, which writes to a temp file in the same
// directory and renames it into place — a crash partway through compaction
// can never leave a half-written file visible at the live path.
func compact(dir string, mem *memtable, o *options) (string, error) {
	active, err := newSegmentPath(dir, o)
	if err != nil {
		return "", err
	}

	entries := mem.enumerateAll()
	buf := make([]byte, 0, 4096)
	for _, r := range entries {
		buf = encodeRecord(buf, r)
	}

	if err := atomic.WriteFile(active, bytes.NewReader(buf)); err != nil {
		return "", wrapErr(CodeIO, "compact: install segment", err)
	}

	// atomic.WriteFile doesn't set permissions for new files.
	if err := os.Chmod(active, o.fileMode); err != nil {
		return "", wrapErr(CodeIO, "compact: chmod segment", err)
	}

	return active, nil
}

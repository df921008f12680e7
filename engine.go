// Package kvengine is an embedded, persistent key/value store: point
// writes, point reads, point deletes, full snapshotting, and
// crash-recoverable durability through an append-only log.
//
// Engine is not safe for concurrent use. Callers that share an Engine across
// goroutines must serialize access themselves — see Guarded for a thin
// mutex-protected wrapper — or use at most one logical writer thread, as in
// a replicated state machine that already serializes its apply loop.
package kvengine

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Engine ties the record codec, segment writer/reader, and memtable to one
// directory it owns exclusively.
type Engine struct {
	dir    string
	opts   *options
	mem    *memtable
	writer *segmentWriter
	active string
}

// OpenEmpty creates dir if missing and opens a fresh writer on a new segment
// named for the current time. The memtable starts empty; the directory is
// never scanned. Use OpenAndRecover to fold an existing directory's
// segments into the memtable instead.
func OpenEmpty(dir string, opts ...Option) (*Engine, error) {
	o := applyOptions(opts)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, wrapErr(CodeIO, "open empty: mkdir", err)
	}

	path, err := newSegmentPath(dir, o)
	if err != nil {
		return nil, err
	}
	w, err := openSegmentWriter(path, o.fileMode)
	if err != nil {
		return nil, err
	}

	o.logger.Infow("opened empty engine", "dir", dir, "segment", path)

	return &Engine{dir: dir, opts: o, mem: newMemtable(), writer: w, active: path}, nil
}

// Close flushes and closes the active segment. The memtable is discarded
// with the Engine value; there is nothing further to release.
func (e *Engine) Close() error {
	return e.writer.close()
}

// Set writes a live value for key, stamped with the current time, appends
// and flushes it to the active segment, then updates the memtable. A
// failed write never updates the memtable: on-disk state always leads.
func (e *Engine) Set(key, value []byte) error {
	if len(key) == 0 {
		return wrapErr(CodeIO, "set", errEmptyKey)
	}

	ts, err := e.opts.now()
	if err != nil {
		return err
	}
	if err := e.writer.put(key, value, ts); err != nil {
		return err
	}
	if err := e.writer.commit(); err != nil {
		return err
	}
	e.mem.put(key, value, ts)
	return nil
}

// Delete writes a tombstone for key, even if key was never set. Absence of
// a prior value is not an error.
func (e *Engine) Delete(key []byte) error {
	if len(key) == 0 {
		return wrapErr(CodeIO, "delete", errEmptyKey)
	}

	ts, err := e.opts.now()
	if err != nil {
		return err
	}
	if err := e.writer.tombstone(key, ts); err != nil {
		return err
	}
	if err := e.writer.commit(); err != nil {
		return err
	}
	e.mem.delete(key, ts)
	return nil
}

// GetResult is the outcome of a point lookup: a live value, a tombstone, or
// nothing. The zero value is "nothing" (Found == false).
type GetResult struct {
	Value   []byte
	Deleted bool
	Found   bool
}

// Get consults only the memtable; the on-disk log is never read on this
// path. A tombstone is returned as Found with Deleted set, distinct from
// "never seen".
func (e *Engine) Get(key []byte) GetResult {
	r, ok := e.mem.get(key)
	if !ok {
		return GetResult{}
	}
	if r.deleted {
		return GetResult{Deleted: true, Found: true}
	}
	return GetResult{Value: cloneBytes(r.value), Found: true}
}

// Purge resets the active segment (deletes and recreates its file) and
// clears the memtable. It does not touch any other segment file in the
// directory — meaningful only on an engine that has just compacted via
// OpenAndRecover, or one that owns the only segment in its directory.
func (e *Engine) Purge() error {
	if err := e.writer.reset(); err != nil {
		return err
	}
	e.mem = newMemtable()
	e.opts.logger.Infow("purged engine", "dir", e.dir, "segment", e.active)
	return nil
}

var errEmptyKey = errors.New("key must not be empty")

// newSegmentPath returns a path in dir named for the current time in
// decimal microseconds since the Unix epoch, per the directory layout
// contract. Lexicographic sort of these names must equal creation order;
// ties (two segments requested within the same microsecond, a known
// fragility of a pure wall-clock filename scheme) are broken by advancing
// the candidate microsecond count until the path is free, which preserves
// both uniqueness and sort order without introducing a separate counter
// suffix or manifest file.
func newSegmentPath(dir string, o *options) (string, error) {
	ts, err := o.now()
	if err != nil {
		return "", err
	}
	micros := int64(ts.lo)
	for {
		name := strconv.FormatInt(micros, 10)
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		micros++
	}
}

// listSegments returns the segment filenames in dir sorted lexicographically,
// which equals creation order per the filename-is-creation-time scheme.
func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapErr(CodeIO, "list segments", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

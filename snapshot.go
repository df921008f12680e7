package kvengine

import "bytes"

// SnapshotExport encodes every live entry currently in the memtable using
// the same record layout segments are written in. Tombstones are omitted:
// a snapshot describes a point-in-time key space, not a deletion history.
// The returned blob is self-contained and has no dependency on the engine
// that produced it.
func (e *Engine) SnapshotExport() []byte {
	buf := make([]byte, 0, 4096)
	for _, r := range e.mem.enumerateAll() {
		if r.deleted {
			continue
		}
		buf = encodeRecord(buf, r)
	}
	return buf
}

// SnapshotImport appends blob to the active segment as a single write, then
// folds that same blob into the memtable via put — a snapshot blob carries
// no tombstones, so importing one can only add or overwrite keys, never
// delete them. A malformed or truncated blob folds up to its last complete
// record, matching the same truncation tolerance segment recovery gives a
// crash-interrupted write.
func (e *Engine) SnapshotImport(blob []byte) error {
	if err := e.writer.appendBytes(blob); err != nil {
		return err
	}
	return foldBlobInto(e.mem, blob)
}

// foldBlobInto decodes records directly out of an in-memory blob (as
// opposed to foldSegmentInto, which reads from a file) using the same
// decoder a segment reader uses, and applies each as a live put.
func foldBlobInto(mem *memtable, blob []byte) error {
	src := bytes.NewReader(blob)
	for {
		r, ok, err := decodeNextRecord(src)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		mem.put(r.key, r.value, r.timestamp)
	}
}

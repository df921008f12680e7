package kvengine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"os"
)

// segmentWriter is an append-only, buffered writer bound to one segment
// file. It is the only type that mutates a segment's bytes; once its owning
// engine closes it, the file becomes immutable until deletion.
type segmentWriter struct {
	path string
	file *os.File
	buf  *bufio.Writer
	mode os.FileMode
}

func openSegmentWriter(path string, mode os.FileMode) (*segmentWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, mode)
	if err != nil {
		return nil, wrapErr(CodeIO, "open segment writer", err)
	}
	return &segmentWriter{path: path, file: f, buf: bufio.NewWriter(f), mode: mode}, nil
}

// put encodes a live record and appends it to the buffer.
func (w *segmentWriter) put(key, value []byte, ts uint128) error {
	return w.appendRecord(record{key: key, value: value, timestamp: ts})
}

// tombstone encodes a deletion marker and appends it to the buffer.
func (w *segmentWriter) tombstone(key []byte, ts uint128) error {
	return w.appendRecord(record{key: key, deleted: true, timestamp: ts})
}

func (w *segmentWriter) appendRecord(r record) error {
	buf := encodeRecord(make([]byte, 0, recordSize(r)), r)
	if _, err := w.buf.Write(buf); err != nil {
		return wrapErr(CodeIO, "append record", err)
	}
	return nil
}

// appendBytes writes an opaque, already-encoded blob and flushes. The
// caller is responsible for buf being a valid concatenation of records;
// used only by snapshot import.
func (w *segmentWriter) appendBytes(buf []byte) error {
	if _, err := w.buf.Write(buf); err != nil {
		return wrapErr(CodeIO, "append bytes", err)
	}
	return w.commit()
}

// commit flushes the buffer to the OS. No fsync is issued here: the
// contract is durability across process crash, not across OS or power loss.
func (w *segmentWriter) commit() error {
	if err := w.buf.Flush(); err != nil {
		return wrapErr(CodeIO, "commit segment", err)
	}
	return nil
}

// reset deletes the backing file and reopens a new empty file at the same
// path. Used only by Purge.
func (w *segmentWriter) reset() error {
	if err := w.file.Close(); err != nil {
		return wrapErr(CodeIO, "reset segment: close", err)
	}
	if err := os.Remove(w.path); err != nil && !os.IsNotExist(err) {
		return wrapErr(CodeIO, "reset segment: remove", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, w.mode)
	if err != nil {
		return wrapErr(CodeIO, "reset segment: reopen", err)
	}
	w.file = f
	w.buf = bufio.NewWriter(f)
	return nil
}

func (w *segmentWriter) close() error {
	if err := w.commit(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return wrapErr(CodeIO, "close segment writer", err)
	}
	return nil
}

// segmentReader is a lazy, single-pass forward sequence over the records in
// one segment file. It is one-shot: once exhausted it yields no further
// records, even if the underlying file grows afterward.
type segmentReader struct {
	r    *bufio.Reader
	file *os.File
	done bool
}

func openSegmentReader(path string) (*segmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrapErr(CodeIO, "open segment reader", err)
	}
	return &segmentReader{r: bufio.NewReader(f), file: f}, nil
}

func (r *segmentReader) close() error {
	if err := r.file.Close(); err != nil {
		return wrapErr(CodeIO, "close segment reader", err)
	}
	return nil
}

// next returns the next record in the segment. ok is false once the
// sequence is exhausted, either at a clean record boundary or because the
// final record was truncated (a short read mid-header/key/value/timestamp),
// which is the common shape of a partial buffered write surviving a crash.
// A non-EOF I/O error is returned rather than silently dropped: a library
// fails loudly through its error return rather than by panicking across the
// embedding process's call stack.
func (r *segmentReader) next() (record, bool, error) {
	if r.done {
		return record{}, false, nil
	}
	rec, ok, err := decodeNextRecord(r.r)
	if !ok || err != nil {
		r.done = true
	}
	return rec, ok, err
}

// decodeNextRecord reads one record from src using the fixed wire layout.
// ok is false once the stream is exhausted, either at a clean record
// boundary or because the final record was truncated (a short read
// mid-header/key/value/timestamp) — the common shape of a partial buffered
// write surviving a crash. A non-EOF I/O error is returned rather than
// silently dropped: a library fails loudly through its error return rather
// than by panicking across the embedding process's call stack. It backs
// both segmentReader (reading a file) and snapshot import (reading an
// in-memory blob), so the two can never diverge in what they accept.
func decodeNextRecord(src io.Reader) (record, bool, error) {
	var header [recordHeaderSize]byte
	if err := readExact(src, header[:]); err != nil {
		if isShortRead(err) {
			return record{}, false, nil
		}
		return record{}, false, wrapErr(CodeIO, "read record header", err)
	}

	keySize := binary.LittleEndian.Uint64(header[0:8])
	deleted := header[8] != 0
	valueSize := binary.LittleEndian.Uint64(header[9:17])

	key := make([]byte, keySize)
	if err := readExact(src, key); err != nil {
		if isShortRead(err) {
			return record{}, false, nil
		}
		return record{}, false, wrapErr(CodeIO, "read record key", err)
	}

	var value []byte
	if !deleted {
		value = make([]byte, valueSize)
		if err := readExact(src, value); err != nil {
			if isShortRead(err) {
				return record{}, false, nil
			}
			return record{}, false, wrapErr(CodeIO, "read record value", err)
		}
	}

	var tsBuf [timestampSize]byte
	if err := readExact(src, tsBuf[:]); err != nil {
		if isShortRead(err) {
			return record{}, false, nil
		}
		return record{}, false, wrapErr(CodeIO, "read record timestamp", err)
	}

	ts := uint128{lo: binary.LittleEndian.Uint64(tsBuf[0:8]), hi: binary.LittleEndian.Uint64(tsBuf[8:16])}

	return record{key: key, value: value, deleted: deleted, timestamp: ts}, true, nil
}

func readExact(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

func isShortRead(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

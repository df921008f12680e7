package kvengine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSegmentWriter_PutTombstoneCommit_ReaderRoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1000")
	w, err := openSegmentWriter(path, defaultFileMode)
	require.NoError(t, err)

	require.NoError(t, w.put([]byte("a"), []byte("1"), uint128{lo: 1}))
	require.NoError(t, w.tombstone([]byte("b"), uint128{lo: 2}))
	require.NoError(t, w.commit())
	require.NoError(t, w.close())

	r, err := openSegmentReader(path)
	require.NoError(t, err)
	defer r.close()

	rec1, ok, err := r.next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("a"), rec1.key)
	assert.Equal(t, []byte("1"), rec1.value)
	assert.False(t, rec1.deleted)

	rec2, ok, err := r.next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("b"), rec2.key)
	assert.True(t, rec2.deleted)

	_, ok, err = r.next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSegmentReader_TruncatedTailIsDroppedNotErrored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1000")
	w, err := openSegmentWriter(path, defaultFileMode)
	require.NoError(t, err)
	require.NoError(t, w.put([]byte("a"), []byte("1"), uint128{lo: 1}))
	require.NoError(t, w.put([]byte("b"), []byte("22"), uint128{lo: 2}))
	require.NoError(t, w.close())

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	firstLen := recordSize(record{key: []byte("a"), value: []byte("1"), timestamp: uint128{lo: 1}})

	for truncateAt := firstLen + 1; truncateAt < len(full); truncateAt++ {
		truncateAt := truncateAt
		t.Run("", func(t *testing.T) {
			t.Parallel()

			truncPath := filepath.Join(t.TempDir(), "1000")
			require.NoError(t, os.WriteFile(truncPath, full[:truncateAt], defaultFileMode))

			r, err := openSegmentReader(truncPath)
			require.NoError(t, err)
			defer r.close()

			rec, ok, err := r.next()
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, []byte("a"), rec.key)

			_, ok, err = r.next()
			require.NoError(t, err)
			assert.False(t, ok, "truncated second record must not be surfaced as an error")
		})
	}
}

func TestSegmentWriter_Reset(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1000")
	w, err := openSegmentWriter(path, defaultFileMode)
	require.NoError(t, err)
	require.NoError(t, w.put([]byte("a"), []byte("1"), uint128{lo: 1}))
	require.NoError(t, w.commit())

	require.NoError(t, w.reset())
	require.NoError(t, w.close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

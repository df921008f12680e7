package kvengine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRecord_RoundTrips(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		rec  record
	}{
		{
			name: "LiveValue",
			rec:  record{key: []byte("name"), value: []byte("Moist von Lipwig"), timestamp: uint128{lo: 42}},
		},
		{
			name: "EmptyValue",
			rec:  record{key: []byte("k"), value: []byte(""), timestamp: uint128{lo: 1, hi: 2}},
		},
		{
			name: "Tombstone",
			rec:  record{key: []byte("gone"), deleted: true, timestamp: uint128{lo: 7}},
		},
		{
			name: "HighTimestampHalf",
			rec:  record{key: []byte("k"), value: []byte("v"), timestamp: uint128{lo: 0, hi: 1}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			buf := encodeRecord(nil, tc.rec)
			assert.Len(t, buf, recordSize(tc.rec))

			got, ok, err := decodeNextRecord(bytes.NewReader(buf))
			require.NoError(t, err)
			require.True(t, ok)

			assert.Equal(t, tc.rec.key, got.key)
			assert.Equal(t, tc.rec.deleted, got.deleted)
			assert.Equal(t, tc.rec.timestamp, got.timestamp)
			if tc.rec.deleted {
				assert.Empty(t, got.value)
			} else {
				assert.Equal(t, tc.rec.value, got.value)
			}
		})
	}
}

func TestCharge(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		rec  record
		want int
	}{
		{name: "LiveValue", rec: record{key: []byte("ab"), value: []byte("xyz")}, want: 2 + 3 + 17},
		{name: "Tombstone", rec: record{key: []byte("ab"), deleted: true}, want: 2 + 17},
		{name: "TombstoneIgnoresStaleValue", rec: record{key: []byte("ab"), value: []byte("xyz"), deleted: true}, want: 2 + 17},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, charge(tc.rec))
		})
	}
}

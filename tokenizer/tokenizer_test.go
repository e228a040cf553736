// Package tokenizer - Tests fuer Laden, Encode und Decode
package tokenizer

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type vocabEntry struct {
	piece string
	score float32
}

func writeFakeVocab(t *testing.T, entries []vocabEntry) string {
	t.Helper()

	var buf bytes.Buffer
	maxLen := uint32(0)
	for _, e := range entries {
		if l := uint32(len(e.piece)); l > maxLen {
			maxLen = l
		}
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, maxLen))

	for _, e := range entries {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, e.score))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(e.piece))))
		buf.WriteString(e.piece)
	}

	path := filepath.Join(t.TempDir(), "tokenizer.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestEncodeMergesHighestScoringPairFirst(t *testing.T) {
	entries := []vocabEntry{
		{"a", 0}, {"b", 0}, {"c", 0},
		{"ab", 1}, {"bc", 2}, {"abc", 3},
	}
	path := writeFakeVocab(t, entries)

	v, err := Load(path, len(entries))
	require.NoError(t, err)

	tokens, err := v.Encode("abc")
	require.NoError(t, err)
	require.Equal(t, []int32{5}, tokens, "abc should fully merge down to the single best-scoring token")
}

func TestEncodeUnknownByteFails(t *testing.T) {
	entries := []vocabEntry{{"a", 0}}
	path := writeFakeVocab(t, entries)

	v, err := Load(path, len(entries))
	require.NoError(t, err)

	_, err = v.Encode("z")
	require.ErrorIs(t, err, ErrNoVocabEntry)
}

func TestDecodeStripsLeadingSpaceAfterBOS(t *testing.T) {
	entries := []vocabEntry{{"<s>", 0}, {" hello", 0}}
	path := writeFakeVocab(t, entries)

	v, err := Load(path, len(entries))
	require.NoError(t, err)

	require.Equal(t, "hello", v.Decode(BOS, 1))
	require.Equal(t, " hello", v.Decode(2, 1))
}

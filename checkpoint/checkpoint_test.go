// Package checkpoint - Tests fuer Header-Parsing und Gewichts-Layout
package checkpoint

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// writeFakeCheckpoint schreibt eine minimale, gueltige Checkpoint-Datei mit
// deterministischen Float-Werten (payload[i] = float32(i)) und gibt ihren
// Pfad zurueck.
func writeFakeCheckpoint(t *testing.T, cfg Config, sharedWeights bool) string {
	t.Helper()

	dim, hidden, layers, vocab, seqLen := int(cfg.Dim), int(cfg.HiddenDim), int(cfg.NLayers), int(cfg.VocabSize), int(cfg.SeqLen)
	vocabSizeField := int32(vocab)
	if !sharedWeights {
		vocabSizeField = -vocabSizeField
	}

	raw := cfg
	raw.VocabSize = vocabSizeField

	buf := make([]byte, 0, HeaderSize)
	for _, v := range []int32{raw.Dim, raw.HiddenDim, raw.NLayers, raw.NHeads, raw.NKVHeads, raw.VocabSize, raw.SeqLen} {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		buf = append(buf, b...)
	}

	l := newWeightLayout(Config{Dim: cfg.Dim, HiddenDim: cfg.HiddenDim, NLayers: cfg.NLayers, NHeads: cfg.NHeads, NKVHeads: cfg.NKVHeads, VocabSize: int32(vocab), SeqLen: cfg.SeqLen, SharedWeights: sharedWeights})
	_ = dim
	_ = hidden
	_ = layers
	_ = seqLen

	total := l.totalFloats()
	payload := make([]byte, total*4)
	for i := 0; i < total; i++ {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(i)))
		copy(payload[i*4:], b)
	}

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, append(buf, payload...), 0o644))
	return path
}

func TestOpenSharedWeightsAliasWCLS(t *testing.T) {
	cfg := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 10, SeqLen: 4}
	path := writeFakeCheckpoint(t, cfg, true)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	require.True(t, ckpt.Config.SharedWeights)
	require.Equal(t, int32(10), ckpt.Config.VocabSize)
	require.Equal(t, &ckpt.Weights.TokenEmbeddingTable[0], &ckpt.Weights.WCLS[0], "shared checkpoints must alias wcls to the embedding table")
	require.Equal(t, float32(0), ckpt.Weights.TokenEmbeddingTable[0])
	require.Equal(t, float32(1), ckpt.Weights.TokenEmbeddingTable[1])
}

func TestOpenUnsharedWeightsHasSeparateWCLS(t *testing.T) {
	cfg := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 10, SeqLen: 4}
	path := writeFakeCheckpoint(t, cfg, false)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	require.False(t, ckpt.Config.SharedWeights)
	require.Len(t, ckpt.Weights.WCLS, 8*10)
	require.NotEqual(t, &ckpt.Weights.TokenEmbeddingTable[0], &ckpt.Weights.WCLS[0])
}

func TestOpenNormalizesConfigFieldsFromHeader(t *testing.T) {
	cfg := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 10, SeqLen: 4}
	path := writeFakeCheckpoint(t, cfg, false)

	ckpt, err := Open(path)
	require.NoError(t, err)
	defer ckpt.Close()

	want := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 10, SeqLen: 4, SharedWeights: false}
	if diff := cmp.Diff(want, ckpt.Config); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenRejectsGroupedQueryAttention(t *testing.T) {
	cfg := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 4, NKVHeads: 2, VocabSize: 10, SeqLen: 4}
	path := writeFakeCheckpoint(t, cfg, true)

	_, err := Open(path)
	require.Error(t, err)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	cfg := Config{Dim: 8, HiddenDim: 16, NLayers: 2, NHeads: 2, NKVHeads: 2, VocabSize: 10, SeqLen: 4}
	path := writeFakeCheckpoint(t, cfg, true)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-4))

	_, err = Open(path)
	require.Error(t, err)
}

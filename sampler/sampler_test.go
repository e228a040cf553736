// Package sampler - Tests fuer Greedy-, Multinomial- und Top-p-Sampling
package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeLogits ist ein in-memory Logits fuer Tests, ohne jede GPU-Beteiligung.
type fakeLogits struct {
	values []float32
}

func (f *fakeLogits) Argmax(n int) (int32, error) {
	best := 0
	for i := 1; i < n; i++ {
		if f.values[i] > f.values[best] {
			best = i
		}
	}
	return int32(best), nil
}

func (f *fakeLogits) MapFloats(n int) ([]float32, error) {
	return f.values[:n], nil
}

func mustRNG(t *testing.T, seed uint64) *RNG {
	t.Helper()
	r, err := NewRNG(seed)
	require.NoError(t, err)
	return r
}

func TestNewRNGRejectsZeroSeed(t *testing.T) {
	_, err := NewRNG(0)
	require.Error(t, err)
}

func TestGreedyPicksArgmax(t *testing.T) {
	s := New(mustRNG(t, 1))
	logits := &fakeLogits{values: []float32{0.1, 0.7, 0.2}}

	idx, err := s.Greedy(logits, 3)
	require.NoError(t, err)
	require.Equal(t, int32(1), idx)
}

func TestSampleStaysWithinDistributionSupport(t *testing.T) {
	s := New(mustRNG(t, 42))
	probs := &fakeLogits{values: []float32{0.0, 1.0, 0.0}}

	idx, err := s.Sample(probs, 3)
	require.NoError(t, err)
	require.Equal(t, int32(1), idx, "a one-hot distribution must always sample its single nonzero entry")
}

func TestSampleTopPExcludesLowProbabilityTail(t *testing.T) {
	s := New(mustRNG(t, 7))
	// Eine lange flache Tail-Verteilung mit einer dominanten Spitze: bei
	// topP=0.5 uebersteigt die Spitze allein (0.5) topP nicht, also enthaelt
	// der Nucleus die Spitze plus genau ein Tail-Element (rund 1% der
	// Nucleus-Masse). Die 98 uebrigen Tail-Elemente sind ausgeschlossen; mit
	// Seed 7 landen alle 20 Zuege auf der Spitze.
	values := make([]float32, 100)
	values[3] = 0.5
	for i := range values {
		if i != 3 {
			values[i] = 0.5 / 99
		}
	}
	probs := &fakeLogits{values: values}

	for i := 0; i < 20; i++ {
		idx, err := s.SampleTopP(probs, len(values), 0.5)
		require.NoError(t, err)
		require.Equal(t, int32(3), idx)
	}
}

func TestSampleTopPIsDeterministicForFixedSeed(t *testing.T) {
	values := []float32{0.1, 0.3, 0.4, 0.2}

	s1 := New(mustRNG(t, 99))
	idx1, err := s1.SampleTopP(&fakeLogits{values: values}, len(values), 0.9)
	require.NoError(t, err)

	s2 := New(mustRNG(t, 99))
	idx2, err := s2.SampleTopP(&fakeLogits{values: values}, len(values), 0.9)
	require.NoError(t, err)

	require.Equal(t, idx1, idx2, "identical seeds must reproduce identical sampling decisions")
}

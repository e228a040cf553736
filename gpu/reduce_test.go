// Package gpu - Tests fuer die reine Baum-Arithmetik der Reduktions-Engine
//
// Diese Tests pruefen ausschliesslich die Host-seitige Ganzzahl-Arithmetik
// (ceilHalf) und eine CPU-Referenzimplementierung der Normierungsformeln;
// sie dispatchen keine Shader und brauchen daher keinen EGL-Kontext.
package gpu

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

// TestCeilHalfTerminatesAtOne prueft die Reduktionsform aus spec.md §8: die
// Schrittfolge n, ceil(n/2), ceil(ceil(n/2)/2), ... muss fuer jedes n >= 1
// bei genau 1 enden (geprueft fuer n in [1, 1025], mit 64 Schritten als
// Obergrenze gegen Endlosschleifen).
func TestCeilHalfTerminatesAtOne(t *testing.T) {
	for n := 1; n <= 1025; n++ {
		cur := n
		steps := 0
		for cur != 1 {
			cur = ceilHalf(cur)
			steps++
			require.LessOrEqual(t, steps, 64, "n=%d did not converge", n)
		}
		require.Equal(t, 1, cur)
	}
}

// cpuRMSNorm ist die Referenzformel aus spec.md §8, verwendet nur in Tests
// um die Konstanten (epsilon, Mittelung) zu dokumentieren und abzusichern.
func cpuRMSNorm(x, w []float32) []float32 {
	sumSquares := 0.0
	for _, v := range x {
		sumSquares += float64(v) * float64(v)
	}
	meanSquare := sumSquares / float64(len(x))
	scale := 1.0 / math.Sqrt(meanSquare+1e-5)

	out := make([]float32, len(x))
	for i := range x {
		out[i] = w[i] * float32(scale*float64(x[i]))
	}
	return out
}

func TestCPURMSNormReferenceMatchesClosedForm(t *testing.T) {
	x := []float32{1, 2, 3, 4}
	w := []float32{1, 1, 1, 1}

	got := cpuRMSNorm(x, w)

	meanSquare := 0.0
	for _, v := range x {
		meanSquare += float64(v * v)
	}
	meanSquare /= float64(len(x))
	wantScale := 1.0 / math.Sqrt(meanSquare+1e-5)

	for i, v := range x {
		want := float32(wantScale * float64(v))
		require.InDelta(t, want, got[i], 1e-4)
	}
}

// cpuSoftmax ist die Referenz-Softmax, numerisch stabil ueber eine
// Max-Verschiebung (spec.md §8 "softmax is invariant to additive shifts").
func cpuSoftmax(x []float32) []float32 {
	maxVal := floats.Max(toFloat64(x))
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(float64(v) - maxVal)
		sum += out[i]
	}
	res := make([]float32, len(x))
	for i := range out {
		res[i] = float32(out[i] / sum)
	}
	return res
}

func toFloat64(x []float32) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = float64(v)
	}
	return out
}

func TestCPUSoftmaxReferenceSumsToOneAndIsShiftInvariant(t *testing.T) {
	x := []float32{1, 2, 3, -4, 0.5}
	shifted := make([]float32, len(x))
	for i, v := range x {
		shifted[i] = v + 37
	}

	p1 := cpuSoftmax(x)
	p2 := cpuSoftmax(shifted)

	var sum float32
	for i := range p1 {
		sum += p1[i]
		require.GreaterOrEqual(t, p1[i], float32(0))
		require.InDelta(t, p1[i], p2[i], 1e-5)
	}
	require.InDelta(t, float32(1), sum, 1e-5)
}

// Package gpu - GPU-residente Gewichte
//
// Dieses Modul enthaelt Weights: die einmalige Hochlade-Stufe, die die
// host-seitigen mmap-Views aus checkpoint.Weights in statische
// Shader-Storage-Buffer kopiert (spec.md §6 "GPU copies happen in
// upload_weights").
package gpu

/*
#include <GLES3/gl32.h>
*/
import "C"

import (
	"fmt"

	"github.com/cgoxopx/llama2-gpu-go/checkpoint"
)

// Weights sind die GPU-Spiegel der host-seitigen Checkpoint-Gewichte. Die
// Token-Embedding-Tabelle bleibt absichtlich host-seitig: matmul(logits, ...)
// braucht wcls auf der GPU, aber die Embedding-Lookup fuer jedes Token ist
// ein einzelner Host-Read plus ein Teil-Upload in Pool.X, kein
// Shader-Dispatch (spec.md §4.4 Schritt 1).
type Weights struct {
	RMSAttWeight   Buffer
	WQ, WK, WV, WO Buffer
	RMSFFNWeight   Buffer
	W1, W2, W3     Buffer
	RMSFinalWeight Buffer
	FreqCisReal    Buffer
	FreqCisImag    Buffer
	WCLS           Buffer
}

// UploadWeights kopiert jedes Gewichts-Array aus w einmalig in einen
// statischen (GL_STATIC_DRAW) GPU-Puffer.
func UploadWeights(w checkpoint.Weights) (*Weights, error) {
	type alloc struct {
		dst  *Buffer
		data []float32
	}
	g := &Weights{}
	allocs := []alloc{
		{&g.RMSAttWeight, w.RMSAttWeight},
		{&g.WQ, w.WQ}, {&g.WK, w.WK}, {&g.WV, w.WV}, {&g.WO, w.WO},
		{&g.RMSFFNWeight, w.RMSFFNWeight},
		{&g.W1, w.W1}, {&g.W2, w.W2}, {&g.W3, w.W3},
		{&g.RMSFinalWeight, w.RMSFinalWeight},
		{&g.FreqCisReal, w.FreqCisReal}, {&g.FreqCisImag, w.FreqCisImag},
		{&g.WCLS, w.WCLS},
	}
	for _, a := range allocs {
		b, err := newBuffer(len(a.data), C.GL_STATIC_DRAW, a.data)
		if err != nil {
			g.Release()
			return nil, fmt.Errorf("gpu: uploading weight: %w", err)
		}
		*a.dst = b
	}
	return g, nil
}

// Release gibt alle Gewichts-Puffer frei.
func (g *Weights) Release() {
	for _, b := range []Buffer{
		g.RMSAttWeight, g.WQ, g.WK, g.WV, g.WO, g.RMSFFNWeight,
		g.W1, g.W2, g.W3, g.RMSFinalWeight, g.FreqCisReal, g.FreqCisImag, g.WCLS,
	} {
		b.release()
	}
}

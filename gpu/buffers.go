// Package gpu - Pufferabstraktion und Pufferpool
//
// Dieses Modul enthaelt:
// - Buffer: ein Shader-Storage-Buffer-Handle zusammen mit seiner
//   Elementanzahl, statt eines rohen GLuint mit einem separaten `_len`-Feld
// - Pool: Aktivierungs-, KV-Cache- und Scratch-Puffer fuer eine laufende
//   Sequenz, einmal am Start angelegt und fuer jedes Token wiederverwendet
//
// Ersetzt das "rohe Handles mit parallelen _len-Feldern"-Muster (spec.md
// §9) sowie die vier unbenannten Mehrzweckpuffer `mulBuffer_{1..4}` durch
// rollenbenannte Felder (`ReduceA`, `ReduceB`, `ComposeIn`, `ComposeOut`).
package gpu

/*
#include <GLES3/gl32.h>
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// Buffer ist ein GPU-residenter Float32-Puffer fester Laenge.
type Buffer struct {
	handle C.GLuint
	n      int // Anzahl float32-Elemente
}

// Len gibt die Elementanzahl (nicht die Byte-Groesse) zurueck.
func (b Buffer) Len() int { return b.n }

func (b Buffer) valid() bool { return b.handle != 0 }

// newBuffer legt einen Shader-Storage-Buffer mit n float32-Elementen an.
// initial darf nil sein (dann ist der Inhalt undefiniert, wie bei
// Aktivierungs- und Scratch-Puffern ueblich); andernfalls muss len(initial)
// == n gelten.
func newBuffer(n int, usage C.GLenum, initial []float32) (Buffer, error) {
	if initial != nil && len(initial) != n {
		return Buffer{}, fmt.Errorf("gpu: newBuffer: initial data has %d elements, want %d", len(initial), n)
	}

	var handle C.GLuint
	C.glGenBuffers(1, &handle)
	C.glBindBuffer(C.GL_SHADER_STORAGE_BUFFER, handle)

	size := C.GLsizeiptr(n * 4)
	var dataPtr unsafe.Pointer
	if initial != nil {
		dataPtr = unsafe.Pointer(&initial[0])
	}
	C.glBufferData(C.GL_SHADER_STORAGE_BUFFER, size, dataPtr, usage)
	checkError("newBuffer")

	return Buffer{handle: handle, n: n}, nil
}

// release gibt das GPU-Objekt frei. Nach release ist b nicht mehr benutzbar.
func (b Buffer) release() {
	if b.valid() {
		handle := b.handle
		C.glDeleteBuffers(1, &handle)
	}
}

func bindBase(index C.GLuint, b Buffer) {
	C.glBindBufferBase(C.GL_SHADER_STORAGE_BUFFER, index, b.handle)
}

// upload schreibt host-seitige Float32-Daten in einen bestehenden Puffer
// (Teil-Update, z.B. beim Schreiben der Einbettung fuer ein Token). Der
// KV-Cache wird nicht hierueber, sondern per CopyDeviceRange beschrieben.
func upload(b Buffer, offsetElems int, data []float32) {
	if len(data) == 0 {
		return
	}
	C.glBindBuffer(C.GL_SHADER_STORAGE_BUFFER, b.handle)
	C.glBufferSubData(C.GL_SHADER_STORAGE_BUFFER,
		C.GLintptr(offsetElems*4),
		C.GLsizeiptr(len(data)*4),
		unsafe.Pointer(&data[0]))
	checkError("upload")
}

// mapRead mapped die ersten n Elemente von b read-only in Host-Speicher und
// kopiert sie in ein frisches Slice. Das implizite Warten auf alle
// ausstehenden Dispatches, die b betreffen, ist die einzige Blockierstelle
// ausser der Shader-Kompilierung (spec.md §5 Punkt 2).
func mapRead(b Buffer, n int) []float32 {
	C.glBindBuffer(C.GL_SHADER_STORAGE_BUFFER, b.handle)
	ptr := C.glMapBufferRange(C.GL_SHADER_STORAGE_BUFFER, 0, C.GLsizeiptr(n*4), C.GL_MAP_READ_BIT)
	if ptr == nil {
		checkError("mapRead")
		return make([]float32, n)
	}
	view := unsafe.Slice((*float32)(ptr), n)
	out := make([]float32, n)
	copy(out, view)
	C.glUnmapBuffer(C.GL_SHADER_STORAGE_BUFFER)
	return out
}

// Pool buendelt alle Aktivierungs-, KV-Cache- und Scratch-Puffer einer
// laufenden Sequenz. Sie werden einmal bei newPool angelegt und fuer jedes
// Token in Forward wiederverwendet (spec.md §3 Lifecycle).
type Pool struct {
	X, Xb, Xb2   Buffer // (dim,)
	Hb, Hb2      Buffer // (hidden_dim,)
	Q, K, V      Buffer // (dim,)
	Att          Buffer // (n_heads, seq_len)
	Logits       Buffer // (vocab_size,)
	KeyCache     Buffer // (n_layers, seq_len, dim)
	ValueCache   Buffer // (n_layers, seq_len, dim)

	// Die vier generischen Scratch-Puffer des Originals (mulBuffer_{1..4}),
	// rollenbenannt statt nummeriert (spec.md §9): ReduceA/ReduceB sind das
	// Ping-Pong-Paar fuer Baum-Reduktionen, ComposeIn/ComposeOut sind die
	// gather/scatter-Staging-Puffer fuer die gekachelte Attention-Softmax.
	ReduceA, ReduceB, ComposeIn, ComposeOut Buffer
}

// NewPool legt alle Puffer fuer die gegebene Konfiguration an. scratchLen
// ist max(dim*seq_len, vocab_size): die groesste Form, die je in einen der
// vier rollenbenannten Scratch-Puffer passen muss.
func NewPool(dim, hiddenDim, nLayers, nHeads, seqLen, vocabSize int) (*Pool, error) {
	scratchLen := dim * seqLen
	if vocabSize > scratchLen {
		scratchLen = vocabSize
	}

	type alloc struct {
		dst *Buffer
		n   int
	}
	p := &Pool{}
	allocs := []alloc{
		{&p.X, dim}, {&p.Xb, dim}, {&p.Xb2, dim},
		{&p.Hb, hiddenDim}, {&p.Hb2, hiddenDim},
		{&p.Q, dim}, {&p.K, dim}, {&p.V, dim},
		{&p.Att, nHeads * seqLen},
		{&p.Logits, vocabSize},
		{&p.KeyCache, nLayers * seqLen * dim},
		{&p.ValueCache, nLayers * seqLen * dim},
		{&p.ReduceA, scratchLen}, {&p.ReduceB, scratchLen},
		{&p.ComposeIn, scratchLen}, {&p.ComposeOut, scratchLen},
	}
	for _, a := range allocs {
		b, err := newBuffer(a.n, C.GL_DYNAMIC_DRAW, nil)
		if err != nil {
			p.Release()
			return nil, err
		}
		*a.dst = b
	}
	return p, nil
}

// Release gibt alle vier Scratch-Puffer sowie jeden anderen Pool-Puffer
// frei. Das Original leakt mulBuffer_4 (spec.md §9 Bug 6); hier werden alle
// Felder ausnahmslos freigegeben.
func (p *Pool) Release() {
	for _, b := range []Buffer{
		p.X, p.Xb, p.Xb2, p.Hb, p.Hb2, p.Q, p.K, p.V, p.Att, p.Logits,
		p.KeyCache, p.ValueCache,
		p.ReduceA, p.ReduceB, p.ComposeIn, p.ComposeOut,
	} {
		b.release()
	}
}

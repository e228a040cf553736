// Package gpu - Primitive Kernel-Dispatches
//
// Dieses Modul enthaelt die fuenf primitiven Ein-Dispatch-Kernel aus
// spec.md §4.2: matmul, accum, rope, siluAndMul, temperatureScale. Jede
// Funktion bindet ihre Puffer an feste Binding-Indizes, setzt ihre
// Uniformen und schliesst mit einer Shader-Storage-Memory-Barriere ab, die
// den naechsten Dispatch von den hier geschriebenen Daten abhaengig macht
// (spec.md §5 Ordering guarantees).
package gpu

/*
#include <GLES3/gl32.h>
*/
import "C"

func useProgram(p *program) {
	C.glUseProgram(p.handle)
}

func setUniform1i(p *program, name string, v int) {
	C.glUniform1i(p.uniformLoc(name), C.GLint(v))
}

func setUniform1f(p *program, name string, v float32) {
	C.glUniform1f(p.uniformLoc(name), C.GLfloat(v))
}

func dispatch(x, y, z int) {
	C.glDispatchCompute(C.GLuint(x), C.GLuint(y), C.GLuint(z))
	memoryBarrier()
}

// Matmul berechnet xout[i] = sum_j w[i*n+j+wOff] * x[j+xOff] fuer i in [0,d).
// Bindings: B0=x, B1=w, B2=xout. Grid: (d, 1, 1).
func (c *Context) Matmul(xout, x, w Buffer, n, d, xOff, wOff int) {
	p := c.cat.get(KernelMatmul)
	useProgram(p)
	setUniform1i(p, "n", n)
	setUniform1i(p, "x_offset", xOff)
	setUniform1i(p, "w_offset", wOff)
	bindBase(0, x)
	bindBase(1, w)
	bindBase(2, xout)
	dispatch(d, 1, 1)
	checkError("matmul")
}

// Accum berechnet a[i] += b[i] fuer i in [0,size). Grid: (size, 1, 1).
func (c *Context) Accum(a, b Buffer, size int) {
	p := c.cat.get(KernelAccum)
	useProgram(p)
	bindBase(0, a)
	bindBase(1, b)
	dispatch(size, 1, 1)
	checkError("accum")
}

// Rope rotiert jedes komplexe Paar in q und k um die Frequenz bei pos.
// Bindings: B0=freqReal, B1=freqImag, B2=q, B3=k (spec.md §9 Bug 1: das
// Original bindet q und k beide an 2). Grid: (dim/2, 1, 1).
func (c *Context) Rope(freqReal, freqImag, q, k Buffer, pos, dim, headSize int) {
	p := c.cat.get(KernelRope)
	useProgram(p)
	setUniform1i(p, "pos", pos)
	setUniform1i(p, "dim", dim)
	setUniform1i(p, "head_size", headSize)
	setUniform1i(p, "freq_cis_idx_delta", pos*headSize/2)
	bindBase(0, freqReal)
	bindBase(1, freqImag)
	bindBase(2, q)
	bindBase(3, k)
	dispatch(dim/2, 1, 1)
	checkError("rope")
}

// SiluAndMul berechnet hb[i] <- (hb[i] * sigmoid(hb[i])) * hb2[i].
// Grid: (hiddenDim, 1, 1).
func (c *Context) SiluAndMul(hb, hb2 Buffer, hiddenDim int) {
	p := c.cat.get(KernelSiluAndMul)
	useProgram(p)
	bindBase(0, hb)
	bindBase(1, hb2)
	dispatch(hiddenDim, 1, 1)
	checkError("silu_and_mul")
}

// TemperatureScale berechnet logits[i] /= t. Grid: (vocabSize, 1, 1).
func (c *Context) TemperatureScale(logits Buffer, vocabSize int, t float32) {
	p := c.cat.get(KernelTemperatureScale)
	useProgram(p)
	setUniform1f(p, "temperature", t)
	bindBase(0, logits)
	dispatch(vocabSize, 1, 1)
	checkError("temperature_scale")
}

// CopyDeviceRange kopiert length Elemente von src ab srcOff nach dst ab
// dstOff, beides GPU-residente Puffer (KV-Cache-Schreiben, spec.md §4.4
// Schritt 2d: "device-to-device buffer copy").
func (c *Context) CopyDeviceRange(dst, src Buffer, dstOff, srcOff, length int) {
	C.glBindBuffer(C.GL_COPY_WRITE_BUFFER, dst.handle)
	C.glBindBuffer(C.GL_COPY_READ_BUFFER, src.handle)
	C.glCopyBufferSubData(C.GL_COPY_READ_BUFFER, C.GL_COPY_WRITE_BUFFER,
		C.GLintptr(srcOff*4), C.GLintptr(dstOff*4), C.GLsizeiptr(length*4))
	memoryBarrier()
	checkError("copy_device_range")
}

// UploadEmbedding schreibt die Einbettung fuer token (dim Floats ab
// token*dim in table) in dst (spec.md §4.4 Schritt 1: "host-to-device
// sub-buffer update"). table bleibt host-seitig gemappt; dies ist ein
// Host-zu-Device-Upload, kein Dispatch.
func (c *Context) UploadEmbedding(dst Buffer, table []float32, token, dim int) {
	upload(dst, 0, table[token*dim:token*dim+dim])
}

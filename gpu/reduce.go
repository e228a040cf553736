// Package gpu - Reduktions-Engine
//
// Dieses Modul enthaelt die iterierten Baum-Reduktionen (sum/max/argmax)
// und die drei zusammengesetzten Operationen, die darauf aufbauen:
// RMSNorm, Softmax und Attention-Softmax (spec.md §4.3).
//
// Jede Reduktion halbiert die innere Achse aufgerundet (next = ceil(cur/2))
// bis next == 1, und pingpongt zwischen zwei namentlich zugewiesenen
// Scratch-Puffern statt den vier undifferenzierten mulBuffer_{1..4} des
// Originals (spec.md §9). Werte-Baeume verwenden ReduceA/ReduceB; wo ein
// zweiter, paralleler Baum noetig ist (Argmax-Index, Attention-Softmax-
// Kacheln), wird ComposeIn/ComposeOut herangezogen.
package gpu

import "fmt"

func ceilHalf(n int) int { return (n + 1) / 2 }

// reduceBinary fuehrt einen Schritt eines binaeren Baum-Reduktionskernels
// (sum oder max) aus: next Ausgaben aus cur Eingaben, m Zeilen breit. src
// und dst muessen unterschiedliche Puffer sein (spec.md §9 "Enforce at the
// type level that a reduction's input and output aliases are distinct").
func (c *Context) reduceBinary(kernel Kernel, src, dst Buffer, cur, next, m int) {
	if src.handle == dst.handle {
		panic(fmt.Sprintf("gpu: reduceBinary(%s): src and dst alias the same buffer", kernel))
	}
	p := c.cat.get(kernel)
	useProgram(p)
	setUniform1i(p, "insize", cur)
	setUniform1i(p, "shape0", next)
	bindBase(0, src)
	bindBase(1, dst)
	dispatch(next, m, 1)
	checkError(kernel.String())
}

// reduceTree ping-pongt zwischen a und b bis next == 1 und liefert den
// Puffer zurueck, der das Endergebnis haelt (m Werte, einer pro Zeile).
// firstSrc ist die Eingabe fuer den allerersten Schritt und darf
// ausserhalb von {a, b} liegen (z.B. x selbst, oder das Ergebnis eines
// vorgeschalteten Prelude-Dispatches).
func (c *Context) reduceTree(kernel Kernel, firstSrc, a, b Buffer, n, m int) Buffer {
	cur := n
	next := ceilHalf(cur)
	c.reduceBinary(kernel, firstSrc, a, cur, next, m)
	src, dst := a, b
	cur = next
	for cur != 1 {
		next = ceilHalf(cur)
		c.reduceBinary(kernel, src, dst, cur, next, m)
		src, dst = dst, src
		cur = next
	}
	return src
}

// RMSNorm berechnet o = rmsnorm(x, weight) (spec.md §4.3 "Composite:
// rmsnorm"). Wenn out und x denselben Puffer bezeichnen, wird die
// In-Place-Variante des Skalierungskernels verwendet (o == x erlaubt sich
// zu ueberschreiben); andernfalls die Vier-Bindings-Variante.
func (c *Context) RMSNorm(out, x, weight Buffer, pool *Pool, size, weightOffset int) {
	p := c.cat.get(KernelRMSNormSquaresAndSum)
	useProgram(p)
	setUniform1i(p, "insize", size)
	bindBase(0, x)
	bindBase(1, pool.ReduceB)
	dispatch(ceilHalf(size), 1, 1)
	checkError(KernelRMSNormSquaresAndSum.String())

	ss := c.reduceTreeFromExisting(KernelReduceSum, pool.ReduceB, pool.ReduceA, ceilHalf(size))

	if out.handle == x.handle {
		p := c.cat.get(KernelRMSNormNormalizeAndScaleInPlace)
		useProgram(p)
		setUniform1i(p, "size", size)
		setUniform1i(p, "weight_offset", weightOffset)
		bindBase(0, ss)
		bindBase(1, weight)
		bindBase(2, out)
		dispatch(size, 1, 1)
		checkError(KernelRMSNormNormalizeAndScaleInPlace.String())
		return
	}

	p2 := c.cat.get(KernelRMSNormNormalizeAndScale)
	useProgram(p2)
	setUniform1i(p2, "size", size)
	setUniform1i(p2, "weight_offset", weightOffset)
	bindBase(0, ss)
	bindBase(1, weight)
	bindBase(2, x)
	bindBase(3, out)
	dispatch(size, 1, 1)
	checkError(KernelRMSNormNormalizeAndScale.String())
}

// reduceTreeFromExisting reduziert einen bereits mit Daten der Groesse cur
// gefuellten Puffer (first) weiter, wobei first und scratch als
// Ping-Pong-Paar dienen. Anders als reduceTree gibt es hier keinen
// separaten firstSrc-Dispatch: first traegt die Daten bereits.
func (c *Context) reduceTreeFromExisting(kernel Kernel, first, scratch Buffer, n int) Buffer {
	cur := n
	if cur == 1 {
		return first
	}
	src, dst := first, scratch
	for cur != 1 {
		next := ceilHalf(cur)
		c.reduceBinary(kernel, src, dst, cur, next, 1)
		src, dst = dst, src
		cur = next
	}
	return src
}

// Softmax fuehrt Softmax zeilenweise in-place auf x aus: sizeY Zeilen der
// Laenge sizeX (spec.md §4.3 "Composite: softmax"). Der Max-Baum verwendet
// ReduceA/ReduceB; der Summen-Baum pingpongt zwischen ComposeOut und dem
// Reduce-Puffer, der die Maxima nicht haelt. So ueberschreibt keiner der
// Baeume die Maxima oder x selbst (bei AttentionSoftmax liegt x in
// ComposeIn).
//
// Im Original liest der erste Max-Schritt aus einem noch nie beschriebenen
// Scratch-Puffer statt aus x selbst, weil die Ping-Pong-Variablen vor der
// Schleife unpassend initialisiert sind. Hier liest der erste Schritt
// explizit aus x (die "obviously correct" Variante).
func (c *Context) Softmax(x Buffer, sizeX, sizeY int, pool *Pool) {
	maxBuf := c.reduceTree(KernelReduceMax, x, pool.ReduceA, pool.ReduceB, sizeX, sizeY)

	p := c.cat.get(KernelSoftmaxExpAndSum)
	useProgram(p)
	cur := sizeX
	next := ceilHalf(cur)
	setUniform1i(p, "insize", cur)
	setUniform1i(p, "shape0", next)
	bindBase(0, x)
	bindBase(1, maxBuf)
	bindBase(2, pool.ComposeOut)
	dispatch(next, sizeY, 1)
	checkError(KernelSoftmaxExpAndSum.String())

	sumScratch := pool.ReduceA
	if maxBuf.handle == pool.ReduceA.handle {
		sumScratch = pool.ReduceB
	}
	sumBuf, dst := pool.ComposeOut, sumScratch
	for cur = next; cur != 1; cur = next {
		next = ceilHalf(cur)
		c.reduceBinary(KernelReduceSum, sumBuf, dst, cur, next, sizeY)
		sumBuf, dst = dst, sumBuf
	}

	pn := c.cat.get(KernelSoftmaxNormalize)
	useProgram(pn)
	setUniform1i(pn, "shape0", sizeX)
	bindBase(0, sumBuf)
	bindBase(1, maxBuf)
	bindBase(2, x)
	dispatch(sizeX, sizeY, 1)
	checkError(KernelSoftmaxNormalize.String())
}

// AttentionSoftmax wendet Softmax auf die Teilzeile att[h*seqLen .. h*seqLen+pos]
// fuer jeden Kopf h an (spec.md §4.3 "Composite: attention-softmax"): die
// pos+1 Scores jedes Kopfes werden in eine dichte (nHeads x (pos+1))-Kachel
// in ComposeIn gesammelt, dort softmax-normalisiert und zurueckgestreut.
func (c *Context) AttentionSoftmax(att Buffer, pos, seqLen, nHeads int, pool *Pool) {
	g := c.cat.get(KernelSoftmaxGather)
	useProgram(g)
	setUniform1i(g, "seq_len", seqLen)
	setUniform1i(g, "pos", pos)
	bindBase(0, att)
	bindBase(1, pool.ComposeIn)
	dispatch(nHeads, pos+1, 1)
	checkError(KernelSoftmaxGather.String())

	c.Softmax(pool.ComposeIn, pos+1, nHeads, pool)

	s := c.cat.get(KernelSoftmaxScatter)
	useProgram(s)
	setUniform1i(s, "seq_len", seqLen)
	setUniform1i(s, "pos", pos)
	bindBase(0, pool.ComposeIn)
	bindBase(1, att)
	dispatch(nHeads, pos+1, 1)
	checkError(KernelSoftmaxScatter.String())
}

// Argmax fuehrt den Argmax-Reduktionsbaum ueber die ersten n Elemente von
// values aus und liefert den gewinnenden Index, bereits host-seitig
// aufgeloest (ein einzelnes gemapptes Float, spec.md §5 Punkt 2).
//
// Das Original dispatcht an dieser Stelle irrtuemlich
// shader_rmsnorm_squares_and_sum statt shader_argmax, und der Argmax-Shader
// selbst hat Syntaxfehler (spec.md §9 Bug 4); diese Fassung dispatcht den
// korrigierten argmax-Kernel und traegt Wert und Index gemeinsam durch den
// Baum.
func (c *Context) Argmax(values Buffer, n int, pool *Pool) (int32, error) {
	setIdx := c.cat.get(KernelArgmaxSetIndex)
	useProgram(setIdx)
	setUniform1i(setIdx, "insize", n)
	bindBase(0, values)
	bindBase(1, pool.ComposeIn)
	dispatch(n, 1, 1)
	checkError(KernelArgmaxSetIndex.String())

	valBufs := [2]Buffer{pool.ReduceA, pool.ReduceB}
	idxBufs := [2]Buffer{pool.ComposeOut, pool.ComposeIn}

	valSrc, idxSrc := values, pool.ComposeIn
	parity := 0
	cur := n
	for cur != 1 {
		next := ceilHalf(cur)
		valDst, idxDst := valBufs[parity], idxBufs[parity]
		if valSrc.handle == valDst.handle || idxSrc.handle == idxDst.handle {
			return 0, fmt.Errorf("gpu: argmax: ping-pong buffers must not alias")
		}

		p := c.cat.get(KernelArgmax)
		useProgram(p)
		setUniform1i(p, "insize", cur)
		setUniform1i(p, "shape0", next)
		bindBase(0, valSrc)
		bindBase(1, idxSrc)
		bindBase(2, valDst)
		bindBase(3, idxDst)
		dispatch(next, 1, 1)
		checkError(KernelArgmax.String())

		valSrc, idxSrc = valDst, idxDst
		parity = 1 - parity
		cur = next
	}

	result := mapRead(idxSrc, 1)
	return int32(result[0]), nil
}

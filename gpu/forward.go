// Package gpu - Transformer-Treiber
//
// Dieses Modul enthaelt Forward: den vollstaendigen Forward-Pass eines
// einzelnen Tokens durch alle Schichten, inklusive KV-Cache-Schreiben,
// Attention und Feed-Forward (spec.md §4.4).
package gpu

import "github.com/cgoxopx/llama2-gpu-go/checkpoint"

// Model buendelt den erworbenen Compute-Kontext mit den GPU-residenten
// Gewichten, dem Aktivierungs-/Scratch-Pool und der Konfiguration, die
// zusammen einen lauffaehigen Forward-Pass ergeben.
type Model struct {
	Ctx     *Context
	Weights *Weights
	Pool    *Pool
	Cfg     checkpoint.Config

	// embeddingTable bleibt host-seitig (mmap-View); Forward liest daraus
	// direkt und laedt nur die Zeile des aktuellen Tokens hoch (spec.md §4.4
	// Schritt 1).
	embeddingTable []float32
}

// NewModel laedt die Gewichte auf die GPU und legt den Aktivierungs-Pool
// an.
func NewModel(ctx *Context, ck *checkpoint.Checkpoint) (*Model, error) {
	w, err := UploadWeights(ck.Weights)
	if err != nil {
		return nil, err
	}
	pool, err := NewPool(int(ck.Config.Dim), int(ck.Config.HiddenDim), int(ck.Config.NLayers),
		int(ck.Config.NHeads), int(ck.Config.SeqLen), int(ck.Config.VocabSize))
	if err != nil {
		w.Release()
		return nil, err
	}
	return &Model{Ctx: ctx, Weights: w, Pool: pool, Cfg: ck.Config, embeddingTable: ck.Weights.TokenEmbeddingTable}, nil
}

// Release gibt Gewichte und Aktivierungs-Pool frei.
func (m *Model) Release() {
	m.Weights.Release()
	m.Pool.Release()
}

// Forward fuehrt den Forward-Pass fuer (token, pos) aus und hinterlaesst
// die unskalierten Logits in m.Pool.Logits (spec.md §4.4). pos ist die
// nullbasierte Position des Tokens in der Sequenz; die KV-Caches werden an
// Position pos geschrieben.
func (m *Model) Forward(token, pos int) {
	c := m.Ctx
	p := m.Pool
	dim := int(m.Cfg.Dim)
	hiddenDim := int(m.Cfg.HiddenDim)
	nLayers := int(m.Cfg.NLayers)
	nHeads := int(m.Cfg.NHeads)
	seqLen := int(m.Cfg.SeqLen)
	headSize := m.Cfg.HeadSize()

	c.UploadEmbedding(p.X, m.embeddingTable, token, dim)

	for l := 0; l < nLayers; l++ {
		c.RMSNorm(p.Xb, p.X, m.Weights.RMSAttWeight, p, dim, l*dim)

		c.Matmul(p.Q, p.Xb, m.Weights.WQ, dim, dim, 0, l*dim*dim)
		c.Matmul(p.K, p.Xb, m.Weights.WK, dim, dim, 0, l*dim*dim)
		c.Matmul(p.V, p.Xb, m.Weights.WV, dim, dim, 0, l*dim*dim)

		c.Rope(m.Weights.FreqCisReal, m.Weights.FreqCisImag, p.Q, p.K, pos, dim, headSize)

		loff := l * seqLen * dim
		c.CopyDeviceRange(p.KeyCache, p.K, loff+pos*dim, 0, dim)
		c.CopyDeviceRange(p.ValueCache, p.V, loff+pos*dim, 0, dim)

		// get_query_vector: Grid (n_heads, pos+1, 1). Im Original wird
		// (n_heads, head_size, 1) dispatcht, obwohl der Shader
		// gl_GlobalInvocationID.y als Zeitschritt t liest (spec.md §9 Bug 2).
		g := c.cat.get(KernelGetQueryVector)
		useProgram(g)
		setUniform1i(g, "seq_len", seqLen)
		setUniform1i(g, "head_size", headSize)
		setUniform1i(g, "dim", dim)
		setUniform1i(g, "layer_idx", l)
		bindBase(0, p.Q)
		bindBase(1, p.KeyCache)
		bindBase(2, p.Att)
		dispatch(nHeads, pos+1, 1)
		checkError(KernelGetQueryVector.String())

		c.AttentionSoftmax(p.Att, pos, seqLen, nHeads, p)

		b := c.cat.get(KernelBuildAttMat)
		useProgram(b)
		setUniform1i(b, "seq_len", seqLen)
		setUniform1i(b, "pos", pos)
		setUniform1i(b, "head_size", headSize)
		setUniform1i(b, "dim", dim)
		setUniform1i(b, "layer_idx", l)
		bindBase(0, p.ValueCache)
		bindBase(1, p.Att)
		bindBase(2, p.ComposeOut)
		dispatch(nHeads, headSize, pos+1)
		checkError(KernelBuildAttMat.String())

		// Entlang der t-Achse reduzieren: jede (h, i)-Zeile der Kachel ist
		// pos+1 Eintraege lang; das Ergebnis (ein Wert je Zeile) landet in xb.
		sumBuf := c.reduceTree(KernelReduceSum, p.ComposeOut, p.ReduceA, p.ReduceB, pos+1, nHeads*headSize)
		c.CopyDeviceRange(p.Xb, sumBuf, 0, 0, nHeads*headSize)

		c.Matmul(p.Xb2, p.Xb, m.Weights.WO, dim, dim, 0, l*dim*dim)
		c.Accum(p.X, p.Xb2, dim)

		c.RMSNorm(p.Xb, p.X, m.Weights.RMSFFNWeight, p, dim, l*dim)

		c.Matmul(p.Hb, p.Xb, m.Weights.W1, dim, hiddenDim, 0, l*dim*hiddenDim)
		c.Matmul(p.Hb2, p.Xb, m.Weights.W3, dim, hiddenDim, 0, l*dim*hiddenDim)

		c.SiluAndMul(p.Hb, p.Hb2, hiddenDim)

		c.Matmul(p.Xb, p.Hb, m.Weights.W2, hiddenDim, dim, 0, l*hiddenDim*dim)
		c.Accum(p.X, p.Xb, dim)
	}

	// Finales RMSNorm in-place (spec.md §4.4 Schritt 3).
	c.RMSNorm(p.X, p.X, m.Weights.RMSFinalWeight, p, dim, 0)

	// Logits-Projektion: softmax(logits, vocab_size, 1) mit Aussenzaehler 1,
	// falls der Aufrufer Wahrscheinlichkeiten statt roher Logits braucht.
	// Im Original wird die Softmax-Komposite hier faelschlich mit m=0
	// aufgerufen, was jede Arbeit uebersprungen haette (spec.md §9 Bug 3);
	// Forward selbst ruft softmax nicht auf - das bleibt Aufgabe des
	// Samplers nach der Temperatur-Skalierung (spec.md §4.5).
	c.Matmul(p.Logits, p.X, m.Weights.WCLS, dim, int(m.Cfg.VocabSize), 0, 0)
}

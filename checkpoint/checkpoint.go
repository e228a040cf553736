// Package checkpoint - Laden der Checkpoint-Datei
//
// Dieses Modul enthaelt:
// - Open: mmap der Checkpoint-Datei, Header parsen, Gewichts-Views aufbauen
// - Checkpoint.Close: Unmap und Dateihandle schliessen
// - weightLayout: Offsets und Laengen jedes Gewichts-Arrays im Payload
package checkpoint

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/unix"
)

// Weights sind host-seitige Float32-Views in die gemappte Datei, in der
// Reihenfolge aus spec.md §6. Jeder Slice ist ein Fenster in dieselbe
// zugrunde liegende Mappe ohne Kopie; sie bleiben nur bis zum Hochladen
// auf die GPU gueltig (Checkpoint.Close() invalidiert sie).
type Weights struct {
	TokenEmbeddingTable []float32 // (vocab_size, dim)
	RMSAttWeight        []float32 // (n_layers, dim)
	WQ                  []float32 // (n_layers, dim, dim)
	WK                  []float32 // (n_layers, dim, dim)
	WV                  []float32 // (n_layers, dim, dim)
	WO                  []float32 // (n_layers, dim, dim)
	RMSFFNWeight        []float32 // (n_layers, dim)
	W1                  []float32 // (n_layers, dim, hidden_dim)
	W2                  []float32 // (n_layers, hidden_dim, dim)
	W3                  []float32 // (n_layers, dim, hidden_dim)
	RMSFinalWeight      []float32 // (dim)
	FreqCisReal         []float32 // (seq_len, head_size/2)
	FreqCisImag         []float32 // (seq_len, head_size/2)
	WCLS                []float32 // (dim, vocab_size); aliases TokenEmbeddingTable if shared
}

// Checkpoint ist die gemappte Datei zusammen mit ihrem Header und den
// Gewichts-Views.
type Checkpoint struct {
	Config  Config
	Weights Weights

	file        *os.File
	mapped      []byte
	fingerprint uint64
}

// Open mmapt die Checkpoint-Datei read-only, liest den Header, prueft die
// Payload-Groesse und baut die Gewichts-Views auf (spec.md §6).
func Open(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("checkpoint: stat %s: %w", path, err)
	}
	size := info.Size()
	if size < HeaderSize {
		f.Close()
		return nil, fmt.Errorf("checkpoint: %s is smaller than the header (%d bytes)", path, HeaderSize)
	}

	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("checkpoint: mmap %s: %w", path, err)
	}
	if err := unix.Madvise(mapped, unix.MADV_WILLNEED); err != nil {
		slog.Warn("checkpoint: madvise failed, continuing without the hint", "error", err)
	}

	var cfg Config
	cfg.Dim = int32(binary.LittleEndian.Uint32(mapped[0:4]))
	cfg.HiddenDim = int32(binary.LittleEndian.Uint32(mapped[4:8]))
	cfg.NLayers = int32(binary.LittleEndian.Uint32(mapped[8:12]))
	cfg.NHeads = int32(binary.LittleEndian.Uint32(mapped[12:16]))
	cfg.NKVHeads = int32(binary.LittleEndian.Uint32(mapped[16:20]))
	cfg.VocabSize = int32(binary.LittleEndian.Uint32(mapped[20:24]))
	cfg.SeqLen = int32(binary.LittleEndian.Uint32(mapped[24:28]))
	cfg.normalizeVocabSize()

	if err := cfg.validate(); err != nil {
		unix.Munmap(mapped)
		f.Close()
		return nil, err
	}

	layout := newWeightLayout(cfg)
	if need := HeaderSize + layout.totalFloats()*4; int64(need) > size {
		unix.Munmap(mapped)
		f.Close()
		return nil, fmt.Errorf("checkpoint: %s is truncated: need %d bytes, have %d", path, need, size)
	}

	payload := floatsAt(mapped, HeaderSize)
	w := layout.slice(payload, cfg)

	c := &Checkpoint{
		Config:      cfg,
		Weights:     w,
		file:        f,
		mapped:      mapped,
		fingerprint: xxhash.Sum64(mapped[:min(len(mapped), HeaderSize+int(cfg.Dim)*4)]),
	}
	slog.Info("checkpoint loaded", "path", path, "fingerprint", fmt.Sprintf("%016x", c.fingerprint),
		"dim", cfg.Dim, "n_layers", cfg.NLayers, "n_heads", cfg.NHeads, "vocab_size", cfg.VocabSize,
		"seq_len", cfg.SeqLen, "shared_weights", cfg.SharedWeights)

	return c, nil
}

// Close unmapt die Datei und schliesst das Handle. Danach sind alle Slices
// in Weights ungueltig.
func (c *Checkpoint) Close() error {
	if err := unix.Munmap(c.mapped); err != nil {
		c.file.Close()
		return fmt.Errorf("checkpoint: munmap: %w", err)
	}
	return c.file.Close()
}

// floatsAt liefert einen []float32-View ab Byte-Offset off bis zum Ende von
// buf, ohne zu kopieren. buf muss float32-aligned sein; mmap-Regionen sind
// immer seitenaligned, was das in der Praxis garantiert.
func floatsAt(buf []byte, off int) []float32 {
	rest := buf[off:]
	n := len(rest) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(&rest[0])), n)
}

// weightLayout beschreibt die Reihenfolge und Laenge (in Floats) jedes
// Gewichts-Arrays im Payload, wie spec.md §6 sie festlegt.
type weightLayout struct {
	tokenEmbedding int
	rmsAtt         int
	wq, wk, wv, wo int
	rmsFFN         int
	w1, w2, w3     int
	rmsFinal       int
	freqCisReal    int
	freqCisImag    int
	wcls           int // 0 if shared
}

func newWeightLayout(c Config) weightLayout {
	dim, hidden, layers, vocab, seqLen := int(c.Dim), int(c.HiddenDim), int(c.NLayers), int(c.VocabSize), int(c.SeqLen)
	headSize := c.HeadSize()

	l := weightLayout{
		tokenEmbedding: vocab * dim,
		rmsAtt:         layers * dim,
		wq:             layers * dim * dim,
		wk:             layers * dim * dim,
		wv:             layers * dim * dim,
		wo:             layers * dim * dim,
		rmsFFN:         layers * dim,
		w1:             layers * dim * hidden,
		w2:             layers * hidden * dim,
		w3:             layers * dim * hidden,
		rmsFinal:       dim,
		freqCisReal:    seqLen * headSize / 2,
		freqCisImag:    seqLen * headSize / 2,
	}
	if !c.SharedWeights {
		l.wcls = dim * vocab
	}
	return l
}

func (l weightLayout) totalFloats() int {
	return l.tokenEmbedding + l.rmsAtt + l.wq + l.wk + l.wv + l.wo + l.rmsFFN +
		l.w1 + l.w2 + l.w3 + l.rmsFinal + l.freqCisReal + l.freqCisImag + l.wcls
}

func (l weightLayout) slice(payload []float32, c Config) Weights {
	var w Weights
	off := 0
	take := func(n int) []float32 {
		s := payload[off : off+n]
		off += n
		return s
	}

	w.TokenEmbeddingTable = take(l.tokenEmbedding)
	w.RMSAttWeight = take(l.rmsAtt)
	w.WQ = take(l.wq)
	w.WK = take(l.wk)
	w.WV = take(l.wv)
	w.WO = take(l.wo)
	w.RMSFFNWeight = take(l.rmsFFN)
	w.W1 = take(l.w1)
	w.W2 = take(l.w2)
	w.W3 = take(l.w3)
	w.RMSFinalWeight = take(l.rmsFinal)
	w.FreqCisReal = take(l.freqCisReal)
	w.FreqCisImag = take(l.freqCisImag)

	if c.SharedWeights {
		w.WCLS = w.TokenEmbeddingTable
	} else {
		w.WCLS = take(l.wcls)
	}

	return w
}

// Package checkpoint - Header- und Konfigurationsstruktur
//
// Dieses Modul enthaelt:
// - Config: die sieben Ganzzahlen aus dem Checkpoint-Header
// - HeaderSize: Groesse des Headers in Bytes
// - normalizeVocabSize: Vorzeichen-Trick fuer geteilte Klassifikator-Gewichte
package checkpoint

import "fmt"

// Config ist der unveraenderliche Modell-Header, wie er am Anfang der
// Checkpoint-Datei steht: sieben vorzeichenbehaftete 32-Bit-Ganzzahlen,
// little-endian, in dieser Reihenfolge.
type Config struct {
	Dim       int32
	HiddenDim int32
	NLayers   int32
	NHeads    int32
	NKVHeads  int32
	VocabSize int32
	SeqLen    int32

	// SharedWeights ist true, wenn die Klassifikator-Gewichte (wcls) mit der
	// token_embedding_table geteilt werden (positives VocabSize im File).
	SharedWeights bool
}

// HeaderSize ist die Groesse des Config-Headers in Bytes (7 * int32).
const HeaderSize = 7 * 4

// HeadSize ist dim / n_heads, wie in spec.md §3 hergeleitet.
func (c Config) HeadSize() int {
	return int(c.Dim) / int(c.NHeads)
}

// normalizeVocabSize wendet die Vorzeichen-Regel aus spec.md §6 an: ein
// negatives VocabSize im File bedeutet "Gewichte sind nicht geteilt";
// der Betrag ist die wahre Vokabulargroesse.
func (c *Config) normalizeVocabSize() {
	c.SharedWeights = c.VocabSize > 0
	if c.VocabSize < 0 {
		c.VocabSize = -c.VocabSize
	}
}

func (c Config) validate() error {
	if c.Dim <= 0 || c.HiddenDim <= 0 || c.NLayers <= 0 || c.NHeads <= 0 || c.NKVHeads <= 0 || c.VocabSize <= 0 || c.SeqLen <= 0 {
		return fmt.Errorf("checkpoint: non-positive config field: %+v", c)
	}
	if c.NKVHeads != c.NHeads {
		return fmt.Errorf("checkpoint: n_kv_heads (%d) != n_heads (%d), grouped-query attention is out of scope (spec.md §1)", c.NKVHeads, c.NHeads)
	}
	if int(c.Dim)%int(c.NHeads) != 0 {
		return fmt.Errorf("checkpoint: dim (%d) not divisible by n_heads (%d)", c.Dim, c.NHeads)
	}
	return nil
}

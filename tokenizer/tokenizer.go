// Package tokenizer - Byte-Pair-Encoding Vokabular: Laden, Encode, Decode
//
// Dieses Modul enthaelt:
// - Load: liest tokenizer.bin (spec.md §6)
// - Vocab.Encode: BPE-Merge-Schleife (spec.md §6/§9)
// - Vocab.Decode: Token-zu-Text inklusive der BOS-Leerzeichen-Eigenart
//
// Dies ist ein externer Mitarbeiter aus Sicht des GPU-Forward-Pass (spec.md
// §1 "OUT OF SCOPE"): er beruehrt nie einen GPU-Puffer. Er existiert hier,
// weil ein vollstaendiges Repository ihn braucht, nicht weil er Teil des
// Kern-Forward-Pass waere.
package tokenizer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// BOS ist das beginning-of-sequence Sentinel, das Llama-2-SentencePiece
// Vokabulare auf Index 1 reservieren (spec.md GLOSSARY).
const BOS int32 = 1

// ErrNoVocabEntry wird zurueckgegeben, wenn ein einzelnes Byte der
// Eingabe kein Ein-Byte-Vokabeintrag hat (spec.md §8 Szenario 5).
var ErrNoVocabEntry = fmt.Errorf("not good")

// Vocab ist das geladene BPE-Vokabular.
type Vocab struct {
	pieces       []string
	scores       []float32
	maxTokenLen  uint32
	indexByPiece map[string]int32
}

// Load liest tokenizer.bin: ein uint32 max_token_length gefolgt von
// vocab_size Eintraegen aus (score float32, byte_len int32, byte_len Bytes).
func Load(path string, vocabSize int) (*Vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: open %s: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var maxTokenLen uint32
	if err := binary.Read(r, binary.LittleEndian, &maxTokenLen); err != nil {
		return nil, fmt.Errorf("tokenizer: read max_token_length: %w", err)
	}

	v := &Vocab{
		pieces:       make([]string, vocabSize),
		scores:       make([]float32, vocabSize),
		maxTokenLen:  maxTokenLen,
		indexByPiece: make(map[string]int32, vocabSize),
	}

	for i := 0; i < vocabSize; i++ {
		var score float32
		if err := binary.Read(r, binary.LittleEndian, &score); err != nil {
			return nil, fmt.Errorf("tokenizer: read score[%d]: %w", i, err)
		}

		var length int32
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, fmt.Errorf("tokenizer: read byte_len[%d]: %w", i, err)
		}

		raw := make([]byte, length)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("tokenizer: read piece[%d]: %w", i, err)
		}

		piece := string(raw)
		v.pieces[i] = piece
		v.scores[i] = score
		v.indexByPiece[piece] = int32(i)
	}

	return v, nil
}

// lookup ist die map-basierte Ersetzung des linearen str_lookup-Scans aus
// dem Original: gleiches Ergebnis, O(1) statt O(vocab_size).
func (v *Vocab) lookup(piece string) (int32, bool) {
	id, ok := v.indexByPiece[piece]
	return id, ok
}

// Encode fuehrt die BPE-Merge-Schleife aus spec.md §6 aus: zuerst wird jedes
// Byte der Eingabe einzeln nachgeschlagen, dann wird wiederholt das Paar mit
// dem hoechsten Score verschmolzen, bis kein Merge mehr existiert.
func (v *Vocab) Encode(text string) ([]int32, error) {
	tokens := make([]int32, 0, len(text))
	for i := 0; i < len(text); i++ {
		id, ok := v.lookup(string(text[i]))
		if !ok {
			return nil, ErrNoVocabEntry
		}
		tokens = append(tokens, id)
	}

	buf := make([]byte, 0, v.maxTokenLen*2)
	for {
		bestScore := float32(-1e10)
		bestID := int32(-1)
		bestIdx := -1

		for i := 0; i < len(tokens)-1; i++ {
			buf = buf[:0]
			buf = append(buf, v.pieces[tokens[i]]...)
			buf = append(buf, v.pieces[tokens[i+1]]...)

			id, ok := v.lookup(string(buf))
			if ok && v.scores[id] > bestScore {
				bestScore = v.scores[id]
				bestID = id
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}

		tokens[bestIdx] = bestID
		tokens = append(tokens[:bestIdx+1], tokens[bestIdx+2:]...)
	}

	return tokens, nil
}

// Piece gibt die rohe Vokabel-Zeichenkette fuer id zurueck.
func (v *Vocab) Piece(id int32) string {
	return v.pieces[id]
}

// Decode gibt den anzuzeigenden Text fuer id zurueck, gegeben das
// vorangegangene Token prev. Folgt auf BOS ein Stueck, das mit einem
// Leerzeichen beginnt, wird dieses Leerzeichen entfernt (SentencePiece-
// Konvention, spec.md §6 "Token stream quirk").
func (v *Vocab) Decode(prev, id int32) string {
	piece := v.pieces[id]
	if prev == BOS && len(piece) > 0 && piece[0] == ' ' {
		return piece[1:]
	}
	return piece
}

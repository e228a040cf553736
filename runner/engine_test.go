// Package runner - Tests fuer die Token-fuer-Token-Sequenzierung in Generate
//
// Diese Tests ersetzen das GPU-Modell durch einen fakeGenerator, der nur
// die (token, pos)-Paare aufzeichnet, mit denen Forward aufgerufen wird,
// und eine vorgegebene Folge von "gesampelten" Tokens zurueckgibt. So laesst
// sich die Prompt-Continuation-Eigenschaft aus spec.md §8 Szenario 2 ohne
// einen echten EGL-Kontext pruefen.
package runner

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/cgoxopx/llama2-gpu-go/tokenizer"
)

type call struct {
	token, pos int
}

type fakeGenerator struct {
	calls   []call
	sampled []int32
	next    int
}

func (f *fakeGenerator) Forward(token, pos int) {
	f.calls = append(f.calls, call{token: token, pos: pos})
}

func (f *fakeGenerator) SampleNext(temperature, topP float32) (int32, error) {
	v := f.sampled[f.next]
	f.next++
	return v, nil
}

// writeFakeVocab schreibt ein minimales tokenizer.bin mit den gegebenen
// Stuecken, deren Index dem Vokabular-Eintrag entspricht (Index 0 bleibt
// ungenutzt, Index 1 ist tokenizer.BOS).
func writeFakeVocab(t *testing.T, pieces []string) *tokenizer.Vocab {
	t.Helper()

	var buf bytes.Buffer
	maxLen := uint32(0)
	for _, p := range pieces {
		if l := uint32(len(p)); l > maxLen {
			maxLen = l
		}
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, maxLen))
	for _, p := range pieces {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(0)))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(len(p))))
		buf.WriteString(p)
	}

	path := filepath.Join(t.TempDir(), "tokenizer.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	v, err := tokenizer.Load(path, len(pieces))
	require.NoError(t, err)
	return v
}

// TestGenerateFeedsPromptOneStepBehindBOS pins down spec.md §8 scenario 2's
// prompt-continuation property: Forward must see BOS at pos 0, prompt
// token[i] at pos i+1, and the first yielded token must be prompt[0] itself
// (original_source/run_gpu.c's main loop: "int token = 1;" then
// "transformer(token, pos, ...)" runs before "next = prompt_tokens[pos]" is
// applied for the *next* call).
func TestGenerateFeedsPromptOneStepBehindBOS(t *testing.T) {
	// index 0 unused, 1 = BOS, 2/3 = prompt pieces, 4/5 = sampled continuation.
	vocab := writeFakeVocab(t, []string{"<unused>", "<s>", "Once", " upon", " a", " time"})

	gen := &fakeGenerator{sampled: []int32{4, 5}}
	e := &Engine{vocab: vocab, gen: gen, genSem: semaphore.NewWeighted(1)}

	cfg := GenerateConfig{
		Prompt:      []int32{2, 3},
		Steps:       4,
		Temperature: 0,
	}

	var got []Token
	for tok, err := range e.Generate(context.Background(), cfg) {
		require.NoError(t, err)
		got = append(got, tok)
	}

	require.Equal(t, []call{
		{token: int(tokenizer.BOS), pos: 0},
		{token: 2, pos: 1},
		{token: 3, pos: 2},
		{token: 4, pos: 3},
	}, gen.calls, "Forward must see BOS at pos 0 and each prompt token one position later")

	require.Equal(t, []int32{2, 3, 4, 5}, tokenIDs(got), "prompt[0] must be the first yielded token, not swallowed as the initial state")
}

// TestGenerateStopsBeforeYieldingBOS mirrors the reference loop's
// break-before-print ordering: a sampled BOS ends generation without being
// yielded.
func TestGenerateStopsBeforeYieldingBOS(t *testing.T) {
	vocab := writeFakeVocab(t, []string{"<unused>", "<s>", "hi"})

	gen := &fakeGenerator{sampled: []int32{2, int32(tokenizer.BOS)}}
	e := &Engine{vocab: vocab, gen: gen, genSem: semaphore.NewWeighted(1)}

	cfg := GenerateConfig{Steps: 5}

	var got []Token
	for tok, err := range e.Generate(context.Background(), cfg) {
		require.NoError(t, err)
		got = append(got, tok)
	}

	require.Equal(t, []int32{2}, tokenIDs(got), "a sampled BOS must end the run without itself being yielded")
}

func tokenIDs(toks []Token) []int32 {
	ids := make([]int32, len(toks))
	for i, tok := range toks {
		ids[i] = tok.ID
	}
	return ids
}

// Package runner - Top-Level-Engine: Checkpoint + Tokenizer + GPU + Sampler
//
// Dieses Modul enthaelt:
// - Engine: haelt das geladene Modell, den Tokenizer und den Sampler-
//   Zustand ueber die Lebensdauer eines Laufs
// - Engine.Generate: die Token-fuer-Token-Schleife aus spec.md §4.4/§4.5,
//   mit Semaphore-basiertem Re-Entrancy-Schutz um die einzelne GPU-Queue
//   (gleiches Muster wie runner/ollamarunner's seqsSem)
package runner

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cgoxopx/llama2-gpu-go/checkpoint"
	"github.com/cgoxopx/llama2-gpu-go/gpu"
	"github.com/cgoxopx/llama2-gpu-go/sampler"
	"github.com/cgoxopx/llama2-gpu-go/tokenizer"
)

// Token ist ein einzelnes erzeugtes Token: seine Kennung und sein
// dekodierter Text (mit bereits angewandter BOS-Leerzeichen-Eigenart).
type Token struct {
	ID   int32
	Text string
}

// generator is the narrow GPU-plus-sampler contract Engine.Generate drives.
// Defined consumer-side (mirroring gpu.LogitsView/sampler.Logits) so the
// token/position sequencing in Generate can be tested without a real EGL
// context: a fake generator records the (token, pos) pairs Forward is
// called with and the tokens SampleNext returns.
type generator interface {
	Forward(token, pos int)
	SampleNext(temperature, topP float32) (int32, error)
}

// modelGenerator is the production generator: a GPU-resident model driven
// through the sampler package.
type modelGenerator struct {
	model *gpu.Model
	smp   *sampler.Sampler
}

func (g *modelGenerator) Forward(token, pos int) { g.model.Forward(token, pos) }

// SampleNext waehlt die Sampling-Strategie nach Temperatur (spec.md §4.5
// "Temperature path"): T==0 ist direkt greedy auf den rohen Logits;
// andernfalls werden die Logits zuerst durch T geteilt und in-place
// softmax-normalisiert, dann per sample oder sample_topp gezogen.
func (g *modelGenerator) SampleNext(temperature, topP float32) (int32, error) {
	vocabSize := int(g.model.Cfg.VocabSize)
	logits := g.model.Logits()

	if temperature == 0 {
		return g.smp.Greedy(logits, vocabSize)
	}

	g.model.TemperatureScaleAndSoftmax(temperature)

	if topP <= 0 || topP >= 1 {
		return g.smp.Sample(logits, vocabSize)
	}
	return g.smp.SampleTopP(logits, vocabSize, topP)
}

// Engine komponiert einen erworbenen GPU-Kontext, das hochgeladene Modell,
// den Tokenizer und den Sampler zu einem lauffaehigen Generator. Pro
// Prozess existiert genau eine Engine (spec.md §5 "all GPU buffers are
// process-wide singletons").
type Engine struct {
	ctx   *gpu.Context
	model *gpu.Model
	vocab *tokenizer.Vocab
	gen   generator

	// genSem erzwingt, dass hoechstens ein Generate-Aufruf gleichzeitig die
	// einzelne GPU-Queue benutzt (spec.md §5 "single-threaded host
	// orchestration against a single GPU compute queue").
	genSem *semaphore.Weighted
}

// Open erwirbt den Compute-Kontext, laedt den Checkpoint auf die GPU und
// uebernimmt das bereits geladene Vokabular. Ein Fehlschlag in irgendeinem Schritt gibt bereits
// erworbene Ressourcen wieder frei.
func Open(ck *checkpoint.Checkpoint, vocab *tokenizer.Vocab, rng *sampler.RNG) (*Engine, error) {
	ctx, err := gpu.Acquire()
	if err != nil {
		return nil, fmt.Errorf("runner: %w", err)
	}

	model, err := gpu.NewModel(ctx, ck)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("runner: %w", err)
	}

	return &Engine{
		ctx:    ctx,
		model:  model,
		vocab:  vocab,
		gen:    &modelGenerator{model: model, smp: sampler.New(rng)},
		genSem: semaphore.NewWeighted(1),
	}, nil
}

// Close gibt das Modell und den Compute-Kontext frei.
func (e *Engine) Close() {
	e.model.Release()
	e.ctx.Release()
}

// GenerateConfig steuert einen Generate-Lauf.
type GenerateConfig struct {
	Prompt      []int32
	Steps       int
	Temperature float32
	TopP        float32
}

// Generate fuehrt den Forward-Pass Schritt fuer Schritt fuer jede Position
// im Prompt, dann fuer jede neu gesampelte Position aus, bis Steps Tokens
// erzeugt wurden oder BOS gesampelt wird (spec.md §6 "Termination"). Die
// Semaphore verhindert, dass ein zweiter gleichzeitiger Aufruf dieselbe
// GPU-Queue aus zwei Goroutinen heraus benutzt.
func (e *Engine) Generate(ctx context.Context, cfg GenerateConfig) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		if err := e.genSem.Acquire(ctx, 1); err != nil {
			yield(Token{}, fmt.Errorf("runner: acquiring generation slot: %w", err))
			return
		}
		defer e.genSem.Release(1)

		var warmupDone bool
		var start time.Time
		emitted := 0

		// token always starts at BOS, never at cfg.Prompt[0]: the reference
		// loop primes position 0 with BOS and only forces prompt_tokens[pos]
		// as the *next* token once forward() has already run on BOS at pos 0
		// (original_source/run_gpu.c's main loop). So prompt_tokens[0] is fed
		// into Forward at pos 1, not pos 0, and is itself the first token
		// this loop yields.
		token := int32(tokenizer.BOS)

		for pos := 0; pos < cfg.Steps; pos++ {
			select {
			case <-ctx.Done():
				yield(Token{}, ctx.Err())
				return
			default:
			}

			e.gen.Forward(int(token), pos)

			var next int32
			if pos < len(cfg.Prompt) {
				next = cfg.Prompt[pos]
			} else {
				var err error
				next, err = e.gen.SampleNext(cfg.Temperature, cfg.TopP)
				if err != nil {
					yield(Token{}, err)
					return
				}
			}

			// The reference loop breaks on a BOS draw before ever printing
			// it (original_source/run_gpu.c: "if (next == 1) break;" comes
			// before the printf), so BOS itself is never yielded here.
			if next == tokenizer.BOS {
				break
			}

			text := e.vocab.Decode(token, next)
			if !warmupDone {
				start = time.Now()
				warmupDone = true
			} else {
				emitted++
			}

			if !yield(Token{ID: next, Text: text}, nil) {
				return
			}

			token = next
		}

		if warmupDone && emitted > 0 {
			elapsed := time.Since(start).Seconds()
			slog.Info("runner: generation complete", "tokens", emitted, "tok_s", float64(emitted)/elapsed)
		}
	}
}

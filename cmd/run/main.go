// Command run ist der einzige Einstiegspunkt dieses Repositories: eine
// Single-Sequence-Inferenz eines Llama-2-Checkpoints auf der GPU, vom
// ersten bis zum letzten Token.
//
// Dieses Modul enthaelt:
// - newRootCmd: baut den Cobra-Root-Command mit den Flags aus spec.md §6
// - run: laedt Checkpoint/Tokenizer, erwirbt den GPU-Kontext, treibt
//   runner.Engine.Generate bis zum Ende und schreibt Token-Text/Durchsatz
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cgoxopx/llama2-gpu-go/checkpoint"
	"github.com/cgoxopx/llama2-gpu-go/envconfig"
	"github.com/cgoxopx/llama2-gpu-go/logutil"
	"github.com/cgoxopx/llama2-gpu-go/runner"
	"github.com/cgoxopx/llama2-gpu-go/sampler"
	"github.com/cgoxopx/llama2-gpu-go/tokenizer"
)

func main() {
	slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runFlags struct {
	temperature float32
	topP        float32
	seed        int64
	steps       int
	prompt      string
}

// newRootCmd baut den einzigen Command "run", mit den Flagnamen und
// Defaults aus spec.md §6: -t/--temperature=1.0, -p/--topp=0.9,
// -s/--seed=time(NULL), -n/--steps=256, -i/--prompt=NULL.
func newRootCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:           "run <checkpoint>",
		Short:         "Run single-sequence GPU inference against a Llama-2 checkpoint",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().Float32VarP(&flags.temperature, "temperature", "t", 1.0, "sampling temperature (0 = greedy)")
	cmd.Flags().Float32VarP(&flags.topP, "topp", "p", 0.9, "nucleus sampling mass")
	cmd.Flags().Int64VarP(&flags.seed, "seed", "s", time.Now().UnixNano(), "RNG seed (must be nonzero)")
	cmd.Flags().IntVarP(&flags.steps, "steps", "n", 256, "number of tokens to generate, clamped to seq_len")
	cmd.Flags().StringVarP(&flags.prompt, "prompt", "i", "", "prompt text")

	return cmd
}

// run fuehrt genau einen Generate-Lauf aus und schreibt Token-Text nach
// stdout, Durchsatz und Fehler nach stderr (spec.md §6 "Standard output").
// Jede Fehlerart folgt der Policy aus spec.md §7: Argument-/IO-/Mapping-/
// Tokenizer-/RNG-Fehler enden in exit 1 ueber den zurueckgegebenen error;
// ein Context/Config-Fehler (GPU-Erwerb) kehrt ebenfalls nur mit einem
// error zurueck, ohne vorher irgendein Token auszugeben.
func run(parent context.Context, checkpointPath string, flags runFlags) error {
	if flags.seed == 0 {
		return errors.New("run: seed must be nonzero")
	}

	ck, err := checkpoint.Open(checkpointPath)
	if err != nil {
		return err
	}
	defer ck.Close()

	if flags.steps < 1 {
		flags.steps = 1
	}
	if flags.steps > int(ck.Config.SeqLen) {
		flags.steps = int(ck.Config.SeqLen)
	}

	tokenizerPath := envconfig.TokenizerPath()
	if tokenizerPath == "" {
		tokenizerPath = filepath.Join(filepath.Dir(checkpointPath), "tokenizer.bin")
	}
	vocab, err := tokenizer.Load(tokenizerPath, int(ck.Config.VocabSize))
	if err != nil {
		return err
	}

	rng, err := sampler.NewRNG(uint64(flags.seed))
	if err != nil {
		return err
	}

	engine, err := runner.Open(ck, vocab, rng)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	prompt, err := vocab.Encode(flags.prompt)
	if err != nil {
		return err
	}

	cfg := runner.GenerateConfig{
		Prompt:      prompt,
		Steps:       flags.steps,
		Temperature: flags.temperature,
		TopP:        flags.topP,
	}

	for tok, err := range engine.Generate(ctx, cfg) {
		if err != nil {
			return err
		}
		fmt.Print(tok.Text)
	}
	fmt.Println()

	return nil
}

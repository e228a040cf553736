// Package sampler - Greedy-, Multinomial- und Top-p-Sampling
//
// Dieses Modul enthaelt:
// - Logits: die schmale Schnittstelle, ueber die der Sampler auf
//   GPU-Puffer zugreift (Argmax-Dispatch und Read-Mapping)
// - Sampler: Zustand (RNG, Scratch-Puffer) ueber aufeinanderfolgende
//   Sampling-Aufrufe hinweg
// - Sampler.Greedy/Sample/SampleTopP: die drei Sampling-Strategien aus
//   spec.md §6
//
// Dies ist ein "externer Mitarbeiter" im gleichen Sinn wie tokenizer: er
// entscheidet, WELCHE Strategie angewendet wird, und rechnet den finalen
// CDF-Scan auf dem Host, beruehrt aber nie die Reduktions-Shader selbst
// (die liegen im gpu-Paket).
package sampler

import (
	"fmt"
	"sort"
)

// Logits ist die minimale Schnittstelle, die der Sampler von einem
// GPU-Logit-Puffer braucht. Implementierungen leben im gpu-Paket; der
// Sampler selbst kennt keine OpenGL-Details (spec.md §1 Grenze zwischen
// Kern und externen Mitarbeitern).
type Logits interface {
	// Argmax fuehrt den Argmax-Reduktionsbaum ueber die ersten n Eintraege
	// aus und liefert den gewinnenden Index bereits auf dem Host aufgeloest.
	Argmax(n int) (int32, error)
	// MapFloats mapped die ersten n Eintraege read-only in Host-Speicher.
	// Der zurueckgegebene Slice ist nur bis zum naechsten GPU-Dispatch
	// gueltig.
	MapFloats(n int) ([]float32, error)
}

// probIndex koppelt eine Wahrscheinlichkeit mit ihrem urspruenglichen
// Vokabular-Index, damit nach dem Sortieren die Token-Identitaet erhalten
// bleibt (spec.md §6 sample_topp).
type probIndex struct {
	prob float32
	idx  int32
}

// Sampler haelt den RNG-Zustand und wiederverwendbare Scratch-Slices ueber
// aufeinanderfolgende Aufrufe hinweg, statt pro Token neu zu allozieren.
type Sampler struct {
	rng     *RNG
	scratch []probIndex
}

// New erstellt einen Sampler mit dem gegebenen, bereits validierten RNG.
func New(rng *RNG) *Sampler {
	return &Sampler{rng: rng}
}

// Greedy waehlt den Index mit der hoechsten Logit ueber den On-Device
// Reduktionsbaum (temperature == 0 Pfad aus spec.md §6).
func (s *Sampler) Greedy(logits Logits, n int) (int32, error) {
	idx, err := logits.Argmax(n)
	if err != nil {
		return 0, fmt.Errorf("sampler: greedy: %w", err)
	}
	return idx, nil
}

// Sample zieht einen Index gemaess der (bereits softmax-normalisierten)
// Wahrscheinlichkeitsverteilung mittels inverser CDF (spec.md §6
// "multinomial sampling").
func (s *Sampler) Sample(logits Logits, n int) (int32, error) {
	probs, err := logits.MapFloats(n)
	if err != nil {
		return 0, fmt.Errorf("sampler: sample: %w", err)
	}

	r := s.rng.Float32()
	var cdf float32
	for i, p := range probs {
		cdf += p
		if r < cdf {
			return int32(i), nil
		}
	}
	// Rundungsfehler koennen die CDF knapp unter 1 lassen; der letzte Index
	// ist in diesem Fall die korrekte Wahl statt eines Panics.
	return int32(n - 1), nil
}

// SampleTopP beschraenkt die Verteilung auf den kleinsten Praefix sortiert
// nach Wahrscheinlichkeit, dessen kumulative Masse topP uebersteigt (Top-p /
// Nucleus-Sampling, spec.md §6), und zieht dann daraus per inverser CDF.
//
// Original-Bug (spec.md §9 "sample_topp stale overwrite"): der C-Code
// ueberschreibt das gezogene Ergebnis am Ende bedingungslos mit dem Index
// des letzten Kandidaten. Hier entscheidet der inverse-CDF-Zug; der letzte
// Kandidat wird nur zurueckgegeben, wenn Rundungsfehler den Zug ueber die
// aufsummierte Masse hinaus laufen lassen.
func (s *Sampler) SampleTopP(logits Logits, n int, topP float32) (int32, error) {
	probs, err := logits.MapFloats(n)
	if err != nil {
		return 0, fmt.Errorf("sampler: sample_topp: %w", err)
	}

	if cap(s.scratch) < n {
		s.scratch = make([]probIndex, n)
	}
	cand := s.scratch[:0]

	// Nur Kandidaten oberhalb eines Cutoffs betrachten: jedes Element mit
	// Wahrscheinlichkeit unter (1-topP)/(n-1) kann unmoeglich zum
	// Top-p-Praefix gehoeren, was die zu sortierende Menge deutlich
	// verkleinert (gleiche Heuristik wie im Original).
	cutoff := (1.0 - topP) / float32(n-1)
	for i, p := range probs {
		if p >= cutoff {
			cand = append(cand, probIndex{prob: p, idx: int32(i)})
		}
	}

	sort.Slice(cand, func(i, j int) bool { return cand[i].prob > cand[j].prob })

	var cumulative float32
	lastIdx := len(cand) - 1
	for i, c := range cand {
		cumulative += c.prob
		if cumulative > topP {
			lastIdx = i
			break
		}
	}
	cand = cand[:lastIdx+1]

	r := s.rng.Float32() * cumulative
	var cdf float32
	for _, c := range cand {
		cdf += c.prob
		if r < cdf {
			return c.idx, nil
		}
	}
	return cand[len(cand)-1].idx, nil
}

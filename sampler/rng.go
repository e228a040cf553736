// Package sampler - xorshift* Zufallszahlengenerator
//
// Dieses Modul enthaelt RNG: den deterministischen PRNG, der fuer
// multinomiales und Top-p-Sampling verwendet wird (spec.md §6/§9).
package sampler

import "fmt"

// RNG ist ein xorshift*-Generator mit explizitem Zustand statt eines
// globalen Seeds (spec.md §9 "Global RNG seed: wrap in a sampler state
// object").
type RNG struct {
	state uint64
}

// NewRNG erstellt einen RNG mit dem gegebenen Seed. seed == 0 fuehrt zur
// Entartung des xorshift-Algorithmus (der Zustand bliebe bei 0) und wird
// abgelehnt, wie spec.md §6/§7 es fuer die CLI verlangt.
func NewRNG(seed uint64) (*RNG, error) {
	if seed == 0 {
		return nil, fmt.Errorf("sampler: seed must be nonzero (xorshift degeneracy)")
	}
	return &RNG{state: seed}, nil
}

// Uint32 liefert die naechste 32-Bit-Zufallszahl.
func (r *RNG) Uint32() uint32 {
	r.state ^= r.state >> 12
	r.state ^= r.state << 25
	r.state ^= r.state >> 27
	return uint32((r.state * 0x2545F4914F6CDD1D) >> 32)
}

// Float32 liefert eine Zufallszahl in [0, 1).
func (r *RNG) Float32() float32 {
	return float32(r.Uint32()>>8) / 16777216.0
}

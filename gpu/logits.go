// Package gpu - Sampler-Schnittstelle ueber die Logits
//
// Dieses Modul enthaelt LogitsView: die duenne Bruecke zwischen dem
// gpu-Paket und sampler.Logits, damit der Sampler keine OpenGL-Details
// kennen muss (spec.md §1 Grenze zwischen Kern und externen Mitarbeitern).
package gpu

// LogitsView implementiert sampler.Logits gegen den Logits-Puffer eines
// Modells.
type LogitsView struct {
	model *Model
}

// Logits gibt die sampler.Logits-Ansicht dieses Modells zurueck.
func (m *Model) Logits() LogitsView {
	return LogitsView{model: m}
}

// Argmax fuehrt den Argmax-Reduktionsbaum ueber die ersten n Logits aus.
func (v LogitsView) Argmax(n int) (int32, error) {
	return v.model.Ctx.Argmax(v.model.Pool.Logits, n, v.model.Pool)
}

// MapFloats mapped die ersten n Logits read-only in Host-Speicher.
func (v LogitsView) MapFloats(n int) ([]float32, error) {
	return mapRead(v.model.Pool.Logits, n), nil
}

// TemperatureScaleAndSoftmax bereitet die Logits fuer (multinomial-)
// Sampling vor: Division durch T, dann in-place Softmax ueber die gesamte
// Vokabulargroesse (spec.md §4.5 "Temperature path"). Aussenzaehler ist 1
// Zeile - nicht 0 wie im fehlerhaften Original (spec.md §9 Bug 3).
func (m *Model) TemperatureScaleAndSoftmax(temperature float32) {
	vocabSize := int(m.Cfg.VocabSize)
	m.Ctx.TemperatureScale(m.Pool.Logits, vocabSize, temperature)
	m.Ctx.Softmax(m.Pool.Logits, vocabSize, 1, m.Pool)
}

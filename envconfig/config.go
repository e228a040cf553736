// Package envconfig - Prozessweite Konfiguration aus Environment-Variablen
//
// Dieses Modul enthaelt:
// - LogLevel: Log-Level des Prozesses (OLLAMA_DEBUG)
// - TokenizerPath: Override-Pfad fuer eine externe Vokabular-Datei
//   (OLLAMA_TOKENIZER_PATH) anstelle von tokenizer.bin neben dem Checkpoint
// - DispatchTrace: schaltet logutil.LevelTrace-Diagnostik pro Kernel-
//   Dispatch frei (OLLAMA_DISPATCH_TRACE), getrennt von OLLAMA_DEBUG weil
//   sie bei jedem Forward-Schritt anfaellt statt nur pro Request
// - Var: liest eine Environment-Variable, getrimmt von Anfuehrungszeichen
//   und Leerraum
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt die Log-Stufe des Prozesses zurueck.
// Konfigurierbar via OLLAMA_DEBUG: "1"/"true" waehlt Debug, jede andere
// Ganzzahl n != 0 waehlt die Stufe n*-4 (n=2 ergibt logutil.LevelTrace).
// Default: slog.LevelInfo.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("OLLAMA_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// TokenizerPath gibt einen Override-Pfad fuer die Vokabular-Datei zurueck,
// oder "" wenn keiner gesetzt ist (dann verwendet cmd/run die Datei
// tokenizer.bin im Verzeichnis des Checkpoints).
// Konfigurierbar via OLLAMA_TOKENIZER_PATH.
func TokenizerPath() string {
	return Var("OLLAMA_TOKENIZER_PATH")
}

// DispatchTrace meldet, ob bei jedem Kernel-Dispatch ein
// logutil.LevelTrace-Eintrag erzeugt werden soll.
// Konfigurierbar via OLLAMA_DISPATCH_TRACE.
func DispatchTrace() bool {
	b, _ := strconv.ParseBool(Var("OLLAMA_DISPATCH_TRACE"))
	return b
}

// Var gibt eine Environment-Variable zurueck, getrimmt von fuehrenden und
// abschliessenden Anfuehrungszeichen und Leerraum.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

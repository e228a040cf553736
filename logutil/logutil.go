// Package logutil - Logger-Konstruktion und Trace-Level
//
// Dieses Modul enthaelt:
// - LevelTrace: eine Stufe unterhalb von slog.LevelDebug fuer sehr
//   hochfrequente Dispatch-Diagnostik
// - NewLogger: baut den Default-Logger des Prozesses (Text-Handler nach
//   stderr) mit der per envconfig.LogLevel() gewaehlten Stufe
// - Trace: Kurzform fuer slog.Log(context.TODO(), LevelTrace, ...)
package logutil

import (
	"context"
	"io"
	"log/slog"
)

// LevelTrace liegt unterhalb von slog.LevelDebug (-4) und wird fuer
// Ereignisse verwendet, die bei jedem Dispatch anfallen koennten (z.B. pro
// Kernel-Aufruf), statt bei jedem Request.
const LevelTrace = slog.Level(-8)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
}

// NewLogger baut einen slog.Logger mit Textausgabe nach w und der
// gegebenen Mindeststufe. TRACE-Eintraege werden mit ihrem eigenen Label
// statt "DEBUG-4" angezeigt.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok {
					if name, ok := levelNames[lvl]; ok {
						a.Value = slog.StringValue(name)
					}
				}
			}
			return a
		},
	}))
}

// Trace loggt gegen den Default-Logger auf LevelTrace.
func Trace(msg string, args ...any) {
	slog.Log(context.TODO(), LevelTrace, msg, args...)
}

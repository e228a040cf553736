// Package gpu - Offscreen-Compute-Kontext
//
// Dieses Modul enthaelt:
// - Context: EGL-Display/-Kontext-Paar plus kompilierter Kernel-Katalog
// - Acquire/Release: Erzeugung und Freigabe des headless GLES3-Kontexts
//
// Gebunden direkt an die System-EGL/GLESv3-Header, im selben cgo-Stil wie
// llama_core.go an llama.cpp bindet: ein natives C-API wird direkt
// eingebunden statt ueber eine fehlende Go-native Abstraktion simuliert.
package gpu

/*
#cgo linux LDFLAGS: -lEGL -lGLESv2
#include <EGL/egl.h>
#include <GLES3/gl32.h>
*/
import "C"

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/cgoxopx/llama2-gpu-go/envconfig"
	"github.com/cgoxopx/llama2-gpu-go/logutil"
)

// Context ist der erworbene headless-Compute-Kontext. Alle Kernel-
// Kompilierung, Pufferanlage und Dispatches muessen zwischen Acquire und
// Release auf demselben Thread stattfinden (spec.md §4.1).
type Context struct {
	display C.EGLDisplay
	egl     C.EGLContext
	cat     *catalog
}

// Acquire erzeugt ein Offscreen-Display, waehlt eine compute-faehige
// Konfiguration, erstellt und aktiviert einen GLES3-Kontext und kompiliert
// anschliessend den gesamten Kernel-Katalog. Ein Fehlschlag hier ist ein
// Kontext/Konfigurationsfehler: es wird gemeldet, aber nicht weiter
// ausgefuehrt (spec.md §7 "Context/config error").
func Acquire() (*Context, error) {
	display := C.eglGetDisplay(C.EGLNativeDisplayType(C.EGL_DEFAULT_DISPLAY))
	if display == C.EGL_NO_DISPLAY {
		return nil, fmt.Errorf("gpu: eglGetDisplay returned EGL_NO_DISPLAY")
	}

	var major, minor C.EGLint
	if C.eglInitialize(display, &major, &minor) != C.EGL_TRUE {
		return nil, fmt.Errorf("gpu: eglInitialize failed")
	}

	configAttribs := [...]C.EGLint{
		C.EGL_RENDERABLE_TYPE, C.EGL_OPENGL_ES3_BIT,
		C.EGL_NONE,
	}
	var cfg C.EGLConfig
	var numConfigs C.EGLint
	if C.eglChooseConfig(display, &configAttribs[0], &cfg, 1, &numConfigs) == C.EGL_FALSE || numConfigs == 0 {
		C.eglTerminate(display)
		return nil, fmt.Errorf("gpu: eglChooseConfig found no compute-capable configuration")
	}

	contextAttribs := [...]C.EGLint{
		C.EGL_CONTEXT_CLIENT_VERSION, 3,
		C.EGL_NONE,
	}
	egl := C.eglCreateContext(display, cfg, C.EGLContext(C.EGL_NO_CONTEXT), &contextAttribs[0])
	if egl == C.EGLContext(C.EGL_NO_CONTEXT) {
		C.eglTerminate(display)
		return nil, fmt.Errorf("gpu: eglCreateContext failed")
	}

	if C.eglMakeCurrent(display, C.EGL_NO_SURFACE, C.EGL_NO_SURFACE, egl) != C.EGL_TRUE {
		C.eglDestroyContext(display, egl)
		C.eglTerminate(display)
		return nil, fmt.Errorf("gpu: eglMakeCurrent failed")
	}

	cat, err := newCatalog()
	if err != nil {
		C.eglDestroyContext(display, egl)
		C.eglTerminate(display)
		return nil, err
	}

	slog.Info("gpu: context acquired", "egl_major", int(major), "egl_minor", int(minor))
	return &Context{display: display, egl: egl, cat: cat}, nil
}

// Release gibt den Kernel-Katalog und den EGL-Kontext frei. Nach Release
// ist der Context nicht mehr benutzbar.
func (c *Context) Release() {
	c.cat.release()
	C.eglDestroyContext(c.display, c.egl)
	C.eglTerminate(c.display)
	slog.Info("gpu: context released")
}

// checkError liest den OpenGL-Fehlerstatus nach einem Dispatch. Gemaess
// spec.md §7 ("Dispatch-time API error") ist dies nicht fatal: der Fehler
// wird geloggt, der Forward-Pass laeuft weiter. Mit OLLAMA_DISPATCH_TRACE
// gesetzt wird zusaetzlich jeder erfolgreiche Dispatch auf
// logutil.LevelTrace vermerkt, statt nur die fehlerhaften.
func checkError(op string) {
	errCode := C.glGetError()
	if errCode != C.GL_NO_ERROR {
		_, file, line, _ := runtime.Caller(1)
		slog.Warn("gpu: dispatch API error", "op", op, "gl_error", int(errCode), "file", file, "line", line)
		return
	}
	if envconfig.DispatchTrace() {
		logutil.Trace("gpu: dispatch ok", "op", op)
	}
}

func memoryBarrier() {
	C.glMemoryBarrier(C.GL_SHADER_STORAGE_BARRIER_BIT)
}

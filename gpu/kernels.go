// Package gpu - Kernel-Katalog
//
// Dieses Modul enthaelt:
// - Kernel: die Aufzaehlung aller kompilierten Compute-Programme
// - catalog: kompiliert jeden Kernel genau einmal beim Start und cached
//   seine Uniform-Locations, statt sie bei jedem Dispatch neu nachzuschlagen
//
// Ersetzt das textuell eingebettete String-Concat-Muster des Originals
// durch einen typisierten, aufzaehlungsindizierten Katalog (spec.md §9
// "Textually embedded kernel source with string concatenation").
package gpu

/*
#cgo linux LDFLAGS: -lEGL -lGLESv2
#include <GLES3/gl32.h>
#include <stdlib.h>

static GLuint compileComputeProgram(const char *src, char **errOut) {
	GLuint shader = glCreateShader(GL_COMPUTE_SHADER);
	glShaderSource(shader, 1, &src, NULL);
	glCompileShader(shader);

	GLint compiled = 0;
	glGetShaderiv(shader, GL_COMPILE_STATUS, &compiled);
	if (!compiled) {
		GLint logLen = 0;
		glGetShaderiv(shader, GL_INFO_LOG_LENGTH, &logLen);
		char *buf = (char *)malloc(logLen > 0 ? logLen : 1);
		if (logLen > 0) {
			glGetShaderInfoLog(shader, logLen, NULL, buf);
		} else {
			buf[0] = 0;
		}
		glDeleteShader(shader);
		*errOut = buf;
		return 0;
	}

	GLuint program = glCreateProgram();
	glAttachShader(program, shader);
	glLinkProgram(program);
	glDeleteShader(shader);

	GLint linked = 0;
	glGetProgramiv(program, GL_LINK_STATUS, &linked);
	if (!linked) {
		GLint logLen = 0;
		glGetProgramiv(program, GL_INFO_LOG_LENGTH, &logLen);
		char *buf = (char *)malloc(logLen > 0 ? logLen : 1);
		if (logLen > 0) {
			glGetProgramInfoLog(program, logLen, NULL, buf);
		} else {
			buf[0] = 0;
		}
		glDeleteProgram(program);
		*errOut = buf;
		return 0;
	}

	return program;
}

static GLint getUniformLoc(GLuint program, const char *name) {
	return glGetUniformLocation(program, name);
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"unsafe"
)

// Kernel benennt eines der kompilierten Compute-Programme.
type Kernel int

const (
	KernelMatmul Kernel = iota
	KernelAccum
	KernelRope
	KernelSiluAndMul
	KernelTemperatureScale
	KernelReduceSum
	KernelReduceMax
	KernelArgmaxSetIndex
	KernelArgmax
	KernelRMSNormSquaresAndSum
	KernelRMSNormNormalizeAndScale
	KernelRMSNormNormalizeAndScaleInPlace
	KernelSoftmaxExpAndSum
	KernelSoftmaxNormalize
	KernelGetQueryVector
	KernelBuildAttMat
	KernelSoftmaxGather
	KernelSoftmaxScatter
	kernelCount
)

func (k Kernel) String() string {
	names := [...]string{
		"matmul", "accum", "rope", "silu_and_mul", "temperature_scale",
		"reduce_sum", "reduce_max", "argmax_set_index", "argmax",
		"rmsnorm_squares_and_sum", "rmsnorm_normalize_and_scale",
		"rmsnorm_normalize_and_scale_in_place", "softmax_exp_and_sum",
		"softmax_normalize", "get_query_vector", "build_att_mat",
		"softmax_gather", "softmax_scatter",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "unknown_kernel"
	}
	return names[k]
}

var kernelSources = [kernelCount]string{
	KernelMatmul:                          matmulSrc,
	KernelAccum:                           accumSrc,
	KernelRope:                            ropeSrc,
	KernelSiluAndMul:                      siluAndMulSrc,
	KernelTemperatureScale:                temperatureScaleSrc,
	KernelReduceSum:                       reduceSumSrc,
	KernelReduceMax:                       reduceMaxSrc,
	KernelArgmaxSetIndex:                  argmaxSetIndexSrc,
	KernelArgmax:                          argmaxSrc,
	KernelRMSNormSquaresAndSum:            rmsnormSquaresAndSumSrc,
	KernelRMSNormNormalizeAndScale:        rmsnormNormalizeAndScaleSrc,
	KernelRMSNormNormalizeAndScaleInPlace: rmsnormNormalizeAndScaleInPlaceSrc,
	KernelSoftmaxExpAndSum:                softmaxExpAndSumSrc,
	KernelSoftmaxNormalize:                softmaxNormalizeSrc,
	KernelGetQueryVector:                  getQueryVectorSrc,
	KernelBuildAttMat:                     buildAttMatSrc,
	KernelSoftmaxGather:                   softmaxGatherSrc,
	KernelSoftmaxScatter:                  softmaxScatterSrc,
}

// program ist ein kompiliertes Kernel-Programm mit gecachten
// Uniform-Locations: glGetUniformLocation wird je Uniform-Name nur beim
// ersten Dispatch aufgerufen, danach kommt die Location aus dem Cache.
type program struct {
	handle   C.GLuint
	uniforms map[string]C.GLint
}

func (p *program) uniformLoc(name string) C.GLint {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := C.getUniformLoc(p.handle, C.CString(name))
	p.uniforms[name] = loc
	return loc
}

// catalog haelt alle kompilierten Programme. Kompilierung erfolgt genau
// einmal bei newCatalog; ein Fehlschlag dort ist fatal (spec.md §4.1).
type catalog struct {
	programs [kernelCount]*program
}

func newCatalog() (*catalog, error) {
	cat := &catalog{}
	for k := Kernel(0); k < kernelCount; k++ {
		src := C.CString(kernelSources[k])
		defer C.free(unsafe.Pointer(src))

		var cErr *C.char
		handle := C.compileComputeProgram(src, &cErr)
		if handle == 0 {
			msg := C.GoString(cErr)
			C.free(unsafe.Pointer(cErr))
			return nil, fmt.Errorf("gpu: compiling kernel %s: %s", k, msg)
		}
		cat.programs[k] = &program{handle: handle, uniforms: make(map[string]C.GLint)}
		slog.Debug("gpu: kernel compiled", "kernel", k.String())
	}
	return cat, nil
}

func (c *catalog) get(k Kernel) *program {
	return c.programs[k]
}

func (c *catalog) release() {
	for _, p := range c.programs {
		if p != nil {
			C.glDeleteProgram(p.handle)
		}
	}
}

// Package gpu - GLSL ES 3.20 Compute-Shader-Quellen
//
// Dieses Modul enthaelt die rohen Shader-Quelltexte fuer jeden Kernel im
// Katalog (kernels.go). Jede Konstante ist ein vollstaendiger, eigenstaendig
// kompilierbarer Compute-Shader; alle verwenden lokale Arbeitsgruppengroesse
// 1x1x1, damit der Motor ohne Tuning auf jedem GLES3-faehigen Ziel laeuft
// (Design-Kompromiss: Parallelitaet entsteht ausschliesslich ueber die
// Grid-Groesse, nicht ueber Subgroups oder shared memory).
package gpu

const matmulSrc = `#version 320 es
uniform int n;
uniform int x_offset;
uniform int w_offset;
layout(local_size_x = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } x;
layout(binding = 1) readonly buffer Input1 { float data[]; } w;
layout(binding = 2) writeonly buffer Output0 { float data[]; } xout;

void main() {
    int i = int(gl_GlobalInvocationID.x);
    float val = 0.0;
    for (int j = 0; j < n; j++) {
        val += w.data[i * n + j + w_offset] * x.data[j + x_offset];
    }
    xout.data[i] = val;
}
`

const accumSrc = `#version 320 es
layout(local_size_x = 1) in;

layout(binding = 0) buffer Input0 { float data[]; } a;
layout(binding = 1) readonly buffer Input1 { float data[]; } b;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    a.data[idx] = a.data[idx] + b.data[idx];
}
`

// ropeSrc bindet q an 2 und k an 3 getrennt. Im Original teilen sich beide
// Puffer Bindung 2, wodurch k die q-Bindung ueberschreibt und rope
// tatsaechlich zweimal auf denselben Speicher wirkt (spec.md §9 Bug 1).
const ropeSrc = `#version 320 es
uniform int pos;
uniform int dim;
uniform int head_size;
uniform int freq_cis_idx_delta;
layout(local_size_x = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } freq_cis_real;
layout(binding = 1) readonly buffer Input1 { float data[]; } freq_cis_imag;
layout(binding = 2) buffer Input2 { float data[]; } q;
layout(binding = 3) buffer Input3 { float data[]; } k;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int i = idx * 2;
    float q0 = q.data[i];
    float q1 = q.data[i + 1];
    float k0 = k.data[i];
    float k1 = k.data[i + 1];
    float fcr = freq_cis_real.data[freq_cis_idx_delta + (i % head_size) / 2];
    float fci = freq_cis_imag.data[freq_cis_idx_delta + (i % head_size) / 2];
    q.data[i]     = q0 * fcr - q1 * fci;
    q.data[i + 1] = q0 * fci + q1 * fcr;
    k.data[i]     = k0 * fcr - k1 * fci;
    k.data[i + 1] = k0 * fci + k1 * fcr;
}
`

// siluAndMulSrc bindet hb und hb2 an getrennte Indizes. Im Original teilen
// sich beide dieselbe Bindung 0, sodass hb2 nie wirklich gelesen wird.
const siluAndMulSrc = `#version 320 es
layout(local_size_x = 1) in;

layout(binding = 0) buffer Input0 { float data[]; } hb;
layout(binding = 1) readonly buffer Input1 { float data[]; } hb2;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    float v = hb.data[idx];
    v = v * (1.0 / (1.0 + exp(-v)));
    v = v * hb2.data[idx];
    hb.data[idx] = v;
}
`

const temperatureScaleSrc = `#version 320 es
uniform float temperature;
layout(local_size_x = 1) in;

layout(binding = 0) buffer Input0 { float data[]; } logit;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    logit.data[idx] /= temperature;
}
`

const reduceSumSrc = `#version 320 es
uniform int insize;
uniform int shape0;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) writeonly buffer Output0 { float data[]; } b;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    int i0 = insize * idy + idx * 2;
    float v = a.data[i0];
    if (idx * 2 + 1 < insize) {
        v += a.data[i0 + 1];
    }
    b.data[idx + shape0 * idy] = v;
}
`

const reduceMaxSrc = `#version 320 es
uniform int insize;
uniform int shape0;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) writeonly buffer Output0 { float data[]; } b;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    int i0 = insize * idy + idx * 2;
    float v = a.data[i0];
    if (idx * 2 + 1 < insize) {
        v = max(v, a.data[i0 + 1]);
    }
    b.data[idx + shape0 * idy] = v;
}
`

const argmaxSetIndexSrc = `#version 320 es
uniform int insize;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) writeonly buffer Output0 { float data[]; } a_index;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    a_index.data[idx + insize * idy] = float(idx);
}
`

// argmaxSrc traegt Wert und Index gemeinsam durch den Reduktionsbaum. Das
// Original hat hier fehlende Semikolons und vergleicht Floats nach einem
// fehlerhaften int()-Cast; ausserdem dispatcht die Orchestrierung an dieser
// Stelle faelschlich shader_rmsnorm_squares_and_sum statt shader_argmax
// (spec.md §9 Bug 4). Dieser Shader ist die korrigierte Fassung.
const argmaxSrc = `#version 320 es
uniform int insize;
uniform int shape0;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) readonly buffer Input1 { float data[]; } a_index;
layout(binding = 2) writeonly buffer Output0 { float data[]; } b;
layout(binding = 3) writeonly buffer Output1 { float data[]; } b_index;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    int i0 = insize * idy + idx * 2;
    float v0 = a.data[i0];
    float idx0 = a_index.data[i0];
    if (idx * 2 + 1 < insize) {
        float v1 = a.data[i0 + 1];
        float idx1 = a_index.data[i0 + 1];
        if (v0 >= v1) {
            b.data[idx + shape0 * idy] = v0;
            b_index.data[idx + shape0 * idy] = idx0;
        } else {
            b.data[idx + shape0 * idy] = v1;
            b_index.data[idx + shape0 * idy] = idx1;
        }
    } else {
        b.data[idx + shape0 * idy] = v0;
        b_index.data[idx + shape0 * idy] = idx0;
    }
}
`

const rmsnormSquaresAndSumSrc = `#version 320 es
uniform int insize;
layout(local_size_x = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) writeonly buffer Output0 { float data[]; } b;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int i0 = idx * 2;
    float v = a.data[i0] * a.data[i0];
    if (i0 + 1 < insize) {
        v += a.data[i0 + 1] * a.data[i0 + 1];
    }
    b.data[idx] = v;
}
`

const rmsnormNormalizeAndScaleSrc = `#version 320 es
uniform int size;
uniform int weight_offset;
layout(local_size_x = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } ss_arr;
layout(binding = 1) readonly buffer Input1 { float data[]; } weight;
layout(binding = 2) readonly buffer Input2 { float data[]; } x;
layout(binding = 3) writeonly buffer Output0 { float data[]; } o;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    float ss = ss_arr.data[0];
    ss /= float(size);
    ss += 0.00001;
    ss = 1.0 / sqrt(ss);
    o.data[idx] = weight.data[idx + weight_offset] * (ss * x.data[idx]);
}
`

const rmsnormNormalizeAndScaleInPlaceSrc = `#version 320 es
uniform int size;
uniform int weight_offset;
layout(local_size_x = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } ss_arr;
layout(binding = 1) readonly buffer Input1 { float data[]; } weight;
layout(binding = 2) buffer Output0 { float data[]; } o;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    float ss = ss_arr.data[0];
    ss /= float(size);
    ss += 0.00001;
    ss = 1.0 / sqrt(ss);
    o.data[idx] = weight.data[idx + weight_offset] * (ss * o.data[idx]);
}
`

const softmaxExpAndSumSrc = `#version 320 es
uniform int insize;
uniform int shape0;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } a;
layout(binding = 1) readonly buffer Input1 { float data[]; } maxVal_arr;
layout(binding = 2) writeonly buffer Output0 { float data[]; } b;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    int i0 = idx * 2 + insize * idy;
    float max_val = maxVal_arr.data[idy];
    float v = exp(a.data[i0] - max_val);
    if (idx * 2 + 1 < insize) {
        v += exp(a.data[i0 + 1] - max_val);
    }
    b.data[idx + shape0 * idy] = v;
}
`

const softmaxNormalizeSrc = `#version 320 es
uniform int shape0;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } sum_arr;
layout(binding = 1) readonly buffer Input1 { float data[]; } maxVal_arr;
layout(binding = 2) buffer Input2 { float data[]; } x;

void main() {
    int idx = int(gl_GlobalInvocationID.x);
    int idy = int(gl_GlobalInvocationID.y);
    x.data[idx + shape0 * idy] = exp(x.data[idx + shape0 * idy] - maxVal_arr.data[idy]) / sum_arr.data[idy];
}
`

// getQueryVectorSrc erwartet das Grid (n_heads, pos+1, 1). Im Original wird
// (n_heads, head_size, 1) dispatcht, obwohl der Shader gl_GlobalInvocationID.y
// als Zeitschritt t liest - bei head_size != pos+1 werden entweder
// Positionen ausgelassen oder ausserhalb des gueltigen Bereichs gelesen
// (spec.md §9 Bug 2, hier am Aufrufer in forward.go behoben, nicht im Shader).
const getQueryVectorSrc = `#version 320 es
uniform int seq_len;
uniform int head_size;
uniform int dim;
uniform int layer_idx;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } q;
layout(binding = 1) readonly buffer Input1 { float data[]; } k;
layout(binding = 2) writeonly buffer Output0 { float data[]; } att;

void main() {
    int h = int(gl_GlobalInvocationID.x);
    int t = int(gl_GlobalInvocationID.y);
    int loff = layer_idx * seq_len * dim;
    int q_offset = h * head_size;
    int att_offset = h * seq_len;
    int k_offset = loff + t * dim + h * head_size;
    float score = 0.0;
    for (int i = 0; i < head_size; i++) {
        score += q.data[i + q_offset] * k.data[i + k_offset];
    }
    score /= sqrt(float(head_size));
    att.data[t + att_offset] = score;
}
`

const buildAttMatSrc = `#version 320 es
uniform int seq_len;
uniform int pos;
uniform int head_size;
uniform int dim;
uniform int layer_idx;
layout(local_size_x = 1, local_size_y = 1, local_size_z = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } value_cache;
layout(binding = 1) readonly buffer Input1 { float data[]; } att;
layout(binding = 2) writeonly buffer Output0 { float data[]; } attMat;

void main() {
    int h = int(gl_GlobalInvocationID.x);
    int i = int(gl_GlobalInvocationID.y);
    int t = int(gl_GlobalInvocationID.z);
    int loff = layer_idx * seq_len * dim;
    int att_offset = h * seq_len;
    int v_offset = loff + t * dim + h * head_size;
    float a = att.data[t + att_offset];
    attMat.data[h * (pos + 1) * head_size + i * (pos + 1) + t] = a * value_cache.data[i + v_offset];
}
`

const softmaxGatherSrc = `#version 320 es
uniform int seq_len;
uniform int pos;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } src;
layout(binding = 1) writeonly buffer Output0 { float data[]; } dst;

void main() {
    int h = int(gl_GlobalInvocationID.x);
    int t = int(gl_GlobalInvocationID.y);
    int srcIdx = h * seq_len + t;
    int dstIdx = h * (pos + 1) + t;
    dst.data[dstIdx] = src.data[srcIdx];
}
`

const softmaxScatterSrc = `#version 320 es
uniform int seq_len;
uniform int pos;
layout(local_size_x = 1, local_size_y = 1) in;

layout(binding = 0) readonly buffer Input0 { float data[]; } src;
layout(binding = 1) writeonly buffer Output0 { float data[]; } dst;

void main() {
    int h = int(gl_GlobalInvocationID.x);
    int t = int(gl_GlobalInvocationID.y);
    int dstIdx = h * seq_len + t;
    int srcIdx = h * (pos + 1) + t;
    dst.data[dstIdx] = src.data[srcIdx];
}
`

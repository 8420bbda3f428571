// Copyright 2026 The VisLang Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a small dense float32 tensor used as the
// currency for model logits: a shape plus a flat row-major data slice.
//
// It is deliberately minimal -- model internals (forward/backward passes,
// device placement) live behind the train.Model interface and may use
// whatever representation they want, as long as logits handed to the
// evaluation driver arrive as *Tensor values.
package tensors

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// Tensor is a dense row-major float32 tensor.
//
// Construction functions panic on invalid shapes -- they are programmer
// errors, not runtime conditions. Callers that consume untrusted shapes
// should recover with exceptions.TryCatch (see the decode package).
type Tensor struct {
	dims []int
	flat []float32
}

// FromFlatDataAndDimensions creates a tensor with the given flat
// (row-major) data and dimensions. The data slice is used directly, not
// copied.
func FromFlatDataAndDimensions(data []float32, dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		if d <= 0 {
			exceptions.Panicf("tensors.FromFlatDataAndDimensions: invalid dimension %d in %v", d, dims)
		}
		size *= d
	}
	if len(data) != size {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data has %d elements, dimensions %v require %d",
			len(data), dims, size)
	}
	return &Tensor{dims: append([]int{}, dims...), flat: data}
}

// Zeros creates a zero-initialized tensor with the given dimensions.
func Zeros(dims ...int) *Tensor {
	size := 1
	for _, d := range dims {
		if d <= 0 {
			exceptions.Panicf("tensors.Zeros: invalid dimension %d in %v", d, dims)
		}
		size *= d
	}
	return &Tensor{dims: append([]int{}, dims...), flat: make([]float32, size)}
}

// FromScalar creates a rank-0 tensor holding one value.
func FromScalar(value float32) *Tensor {
	return &Tensor{flat: []float32{value}}
}

// Rank returns the number of dimensions. Scalars have rank 0.
func (t *Tensor) Rank() int { return len(t.dims) }

// Dimensions returns a copy of the tensor dimensions.
func (t *Tensor) Dimensions() []int { return append([]int{}, t.dims...) }

// Dim returns the size of the given axis.
func (t *Tensor) Dim(axis int) int {
	if axis < 0 || axis >= len(t.dims) {
		exceptions.Panicf("tensors.Dim: axis %d out of range for rank %d tensor", axis, len(t.dims))
	}
	return t.dims[axis]
}

// Size returns the total number of elements.
func (t *Tensor) Size() int { return len(t.flat) }

// Flat returns the underlying row-major data slice. Mutating it mutates
// the tensor.
func (t *Tensor) Flat() []float32 { return t.flat }

func (t *Tensor) offset(indices ...int) int {
	if len(indices) != len(t.dims) {
		exceptions.Panicf("tensors: got %d indices for rank %d tensor", len(indices), len(t.dims))
	}
	pos := 0
	for axis, idx := range indices {
		if idx < 0 || idx >= t.dims[axis] {
			exceptions.Panicf("tensors: index %d out of range for axis %d (size %d)", idx, axis, t.dims[axis])
		}
		pos = pos*t.dims[axis] + idx
	}
	return pos
}

// At returns the element at the given indices.
func (t *Tensor) At(indices ...int) float32 {
	return t.flat[t.offset(indices...)]
}

// Set assigns the element at the given indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.flat[t.offset(indices...)] = value
}

// Vector returns the innermost vector at the given leading indices: for
// a [batch, frames, vocab] tensor, Vector(b, f) is the vocab-sized logit
// row of frame f. The returned slice aliases the tensor data.
func (t *Tensor) Vector(prefix ...int) []float32 {
	if len(prefix) != len(t.dims)-1 {
		exceptions.Panicf("tensors.Vector: got %d leading indices for rank %d tensor", len(prefix), len(t.dims))
	}
	inner := t.dims[len(t.dims)-1]
	pos := 0
	for axis, idx := range prefix {
		if idx < 0 || idx >= t.dims[axis] {
			exceptions.Panicf("tensors.Vector: index %d out of range for axis %d (size %d)", idx, axis, t.dims[axis])
		}
		pos = pos*t.dims[axis] + idx
	}
	start := pos * inner
	return t.flat[start : start+inner]
}

// Equal reports whether two tensors have the same shape and contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.Rank() != other.Rank() {
		return false
	}
	for axis, d := range t.dims {
		if other.dims[axis] != d {
			return false
		}
	}
	for i, v := range t.flat {
		if other.flat[i] != v {
			return false
		}
	}
	return true
}

// String returns a compact description, e.g. "[2 7 11]: float32".
func (t *Tensor) String() string {
	if t.Rank() == 0 {
		return fmt.Sprintf("scalar(%g)", t.flat[0])
	}
	parts := make([]string, len(t.dims))
	for i, d := range t.dims {
		parts[i] = fmt.Sprintf("%d", d)
	}
	return fmt.Sprintf("[%s]: float32", strings.Join(parts, " "))
}

// Package ml provides the tensor substrate for the sliding-context sampling
// engine: a dense float32 tensor with the indexing, gather/scatter and
// arithmetic operations the sampler needs. The leading dimension is always
// the batch/frame axis.
package ml

import (
	"fmt"
)

type Tensor struct {
	shape []int
	data  []float32
}

// New returns a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	return &Tensor{
		shape: append([]int(nil), shape...),
		data:  make([]float32, mul(shape...)),
	}
}

// FromFloatSlice wraps s as a tensor with the given shape. The slice is not
// copied; the caller gives up ownership.
func FromFloatSlice(s []float32, shape ...int) (*Tensor, error) {
	if len(s) != mul(shape...) {
		return nil, fmt.Errorf("ml: slice length %d does not match shape %v", len(s), shape)
	}

	return &Tensor{shape: append([]int(nil), shape...), data: s}, nil
}

// Full returns a tensor with every element set to v.
func Full(v float32, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}

	return t
}

// ZerosLike returns a zero tensor with the same shape as t.
func ZerosLike(t *Tensor) *Tensor {
	return New(t.shape...)
}

func (t *Tensor) Dim(n int) int {
	return t.shape[n]
}

func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

func (t *Tensor) Numel() int {
	return len(t.data)
}

// Data returns the backing slice in row-major order. Mutations are visible
// to every view of the tensor.
func (t *Tensor) Data() []float32 {
	return t.data
}

func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape: append([]int(nil), t.shape...),
		data:  append([]float32(nil), t.data...),
	}
}

// Reshape returns a tensor sharing t's data with a new shape. The element
// count must match.
func (t *Tensor) Reshape(shape ...int) *Tensor {
	if mul(shape...) != len(t.data) {
		panic(fmt.Sprintf("ml: cannot reshape %v to %v", t.shape, shape))
	}

	return &Tensor{shape: append([]int(nil), shape...), data: t.data}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}

	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}

	return true
}

// rowSize is the number of elements per index of the leading dimension.
func (t *Tensor) rowSize() int {
	if len(t.shape) == 0 {
		return 0
	}

	return mul(t.shape[1:]...)
}

func mul(s ...int) int {
	p := 1
	for _, v := range s {
		p *= v
	}

	return p
}

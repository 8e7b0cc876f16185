package ml

import (
	"fmt"

	"github.com/pdevine/tensor"
	"github.com/pdevine/tensor/native"
)

// Add returns t + o elementwise.
func (t *Tensor) Add(o *Tensor) *Tensor {
	return t.zipWith(o, func(a, b float32) float32 { return a + b })
}

// Sub returns t - o elementwise.
func (t *Tensor) Sub(o *Tensor) *Tensor {
	return t.zipWith(o, func(a, b float32) float32 { return a - b })
}

// Mul returns t * o elementwise.
func (t *Tensor) Mul(o *Tensor) *Tensor {
	return t.zipWith(o, func(a, b float32) float32 { return a * b })
}

// Div returns t / o elementwise.
func (t *Tensor) Div(o *Tensor) *Tensor {
	return t.zipWith(o, func(a, b float32) float32 { return a / b })
}

// Scale returns t * s.
func (t *Tensor) Scale(s float32) *Tensor {
	out := t.Clone()
	for i := range out.data {
		out.data[i] *= s
	}

	return out
}

func (t *Tensor) zipWith(o *Tensor, f func(a, b float32) float32) *Tensor {
	if !t.SameShape(o) {
		panic(fmt.Sprintf("ml: shape mismatch %v vs %v", t.shape, o.shape))
	}

	out := t.Clone()
	for i := range out.data {
		out.data[i] = f(out.data[i], o.data[i])
	}

	return out
}

// Rows gathers rows of the leading dimension in the order given by indices.
// Indices may repeat; the output leading dimension is len(indices).
func (t *Tensor) Rows(indices []int) *Tensor {
	rows := t.shape[0]
	cols := t.rowSize()

	n := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(t.data))
	view, err := native.SelectF32(n, 1)
	if err != nil {
		panic(fmt.Sprintf("ml: row view: %v", err))
	}

	outShape := t.Shape()
	outShape[0] = len(indices)
	out := New(outShape...)
	for i, idx := range indices {
		if idx < 0 || idx >= rows {
			panic(fmt.Sprintf("ml: row index %d out of range [0, %d)", idx, rows))
		}

		copy(out.data[i*cols:(i+1)*cols], view[idx])
	}

	return out
}

// ScatterAddRows adds the rows of src into t at the given leading-dimension
// indices. Repeated indices accumulate.
func (t *Tensor) ScatterAddRows(indices []int, src *Tensor) {
	cols := t.rowSize()
	if src.rowSize() != cols || src.shape[0] != len(indices) {
		panic(fmt.Sprintf("ml: scatter shape mismatch %v into %v with %d indices", src.shape, t.shape, len(indices)))
	}

	for i, idx := range indices {
		dst := t.data[idx*cols : (idx+1)*cols]
		row := src.data[i*cols : (i+1)*cols]
		for j := range dst {
			dst[j] += row[j]
		}
	}
}

// AddRows adds v to every element of the rows at the given indices.
func (t *Tensor) AddRows(indices []int, v float32) {
	cols := t.rowSize()
	for _, idx := range indices {
		dst := t.data[idx*cols : (idx+1)*cols]
		for j := range dst {
			dst[j] += v
		}
	}
}

// DivRowwise divides each row of t by the matching row of counts, which must
// have one element per row (shape [n] or [n, 1, ...]).
func (t *Tensor) DivRowwise(counts *Tensor) *Tensor {
	if counts.shape[0] != t.shape[0] || counts.rowSize() != 1 {
		panic(fmt.Sprintf("ml: rowwise divisor shape %v for tensor %v", counts.shape, t.shape))
	}

	out := t.Clone()
	cols := t.rowSize()
	for i := 0; i < t.shape[0]; i++ {
		c := counts.data[i]
		row := out.data[i*cols : (i+1)*cols]
		for j := range row {
			row[j] /= c
		}
	}

	return out
}

// Concat concatenates the tensors along the leading dimension. All inputs
// must agree on the trailing dimensions.
func Concat(ts []*Tensor) *Tensor {
	if len(ts) == 0 {
		panic("ml: concat of no tensors")
	}

	rows, cols := 0, ts[0].rowSize()
	for _, t := range ts {
		if t.rowSize() != cols {
			panic(fmt.Sprintf("ml: concat shape mismatch %v vs %v", t.shape, ts[0].shape))
		}

		rows += t.shape[0]
	}

	outShape := ts[0].Shape()
	outShape[0] = rows
	out := New(outShape...)

	off := 0
	for _, t := range ts {
		copy(out.data[off:], t.data)
		off += len(t.data)
	}

	return out
}

// Tile repeats t n times along the leading dimension.
func (t *Tensor) Tile(n int) *Tensor {
	ts := make([]*Tensor, n)
	for i := range ts {
		ts[i] = t
	}

	return Concat(ts)
}

// Chunk splits t into n equal parts along the leading dimension.
func (t *Tensor) Chunk(n int) []*Tensor {
	if t.shape[0]%n != 0 {
		panic(fmt.Sprintf("ml: cannot chunk leading dimension %d into %d parts", t.shape[0], n))
	}

	per := t.shape[0] / n
	cols := t.rowSize()
	outShape := t.Shape()
	outShape[0] = per

	out := make([]*Tensor, n)
	for i := range out {
		part := New(outShape...)
		copy(part.data, t.data[i*per*cols:(i+1)*per*cols])
		out[i] = part
	}

	return out
}

package ml

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Randn returns a tensor of the given shape filled with standard normal
// samples. The same seed always produces the same tensor, which is how
// samplers keep runs reproducible.
func Randn(seed uint64, shape ...int) *Tensor {
	dist := distuv.Normal{
		Mu:    0,
		Sigma: 1,
		Src:   rand.NewSource(seed),
	}

	t := New(shape...)
	for i := range t.data {
		t.data[i] = float32(dist.Rand())
	}

	return t
}

package ml

import (
	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// Conditioning tensors frequently arrive in half precision. These helpers
// widen them to the engine's float32 layout at ingestion time.

// FromFloat16Slice converts IEEE 754 half-precision bits to a float32 tensor.
func FromFloat16Slice(s []uint16, shape ...int) (*Tensor, error) {
	f32s := make([]float32, len(s))
	for i, v := range s {
		f32s[i] = float16.Frombits(v).Float32()
	}

	return FromFloatSlice(f32s, shape...)
}

// FromBFloat16Slice converts bfloat16 bytes (two per element, little endian)
// to a float32 tensor.
func FromBFloat16Slice(s []byte, shape ...int) (*Tensor, error) {
	return FromFloatSlice(bfloat16.DecodeFloat32(s), shape...)
}

package sampler

import (
	"context"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// DenoiseInput is one batched model call: the concatenated input tiles, their
// timesteps, the merged conditioning, and a window-scoped control chain when
// present. Branches records which guidance branch each chunk of the batch
// belongs to, in order.
type DenoiseInput struct {
	X        *ml.Tensor
	Timestep *ml.Tensor
	Conds    map[string]Concatable
	Control  ControlHandle
	Patches  *PatchSet
	Branches []Branch
}

// DenoiseFunc runs the underlying model on one batch and returns a tensor
// shaped like the input.
type DenoiseFunc func(ctx context.Context, in *DenoiseInput) (*ml.Tensor, error)

// DenoiseWrapper intercepts model calls, e.g. for instrumentation or memory
// management hooks.
type DenoiseWrapper func(ctx context.Context, denoise DenoiseFunc, in *DenoiseInput) (*ml.Tensor, error)

// CFGFunc overrides the classifier-free guidance combination. uncond is nil
// when guidance is disabled for the step.
type CFGFunc func(cond, uncond *ml.Tensor, scale float64, timestep *ml.Tensor) *ml.Tensor

// Options adjusts a sampling call. The zero value is valid.
type Options struct {
	Wrapper DenoiseWrapper
	CFG     CFGFunc

	// BasePatches are merged with every request's own patch set before the
	// model call.
	BasePatches *PatchSet
}

// Strategy is the pluggable denoise-step signature a sampling host accepts
// in place of its built-in conditioning step.
type Strategy func(ctx context.Context, denoise DenoiseFunc, x, timestep *ml.Tensor, uncond, cond []*Conditioning, condScale float64, maxArea int, opts *Options) (*ml.Tensor, error)

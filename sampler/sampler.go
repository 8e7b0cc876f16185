package sampler

import (
	"context"
	"math"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// CalcCondUncond evaluates both guidance branches over x, window by window
// when the run has sliding context enabled and in a single pass otherwise.
func CalcCondUncond(ctx context.Context, state *RunState, denoise DenoiseFunc, cond, uncond []*Conditioning, x, timestep *ml.Tensor, maxArea int, opts *Options) (*ml.Tensor, *ml.Tensor, error) {
	if opts == nil {
		opts = &Options{}
	}

	bc := newBatchCalc(denoise, maxArea, opts, x)

	if state.SlidingEnabled() {
		return slidingCalc(ctx, bc, state, cond, uncond, x, timestep)
	}

	return bc.run(ctx, cond, uncond, x, timestep)
}

// NewStrategy binds a run state into a Strategy the sampling host can call
// each step. The returned function applies classifier-free guidance, or the
// host's override when opts.CFG is set.
func NewStrategy(state *RunState) Strategy {
	return func(ctx context.Context, denoise DenoiseFunc, x, timestep *ml.Tensor, uncond, cond []*Conditioning, condScale float64, maxArea int, opts *Options) (*ml.Tensor, error) {
		if math.Abs(condScale-1) < 1e-9 {
			uncond = nil
		}

		outCond, outUncond, err := CalcCondUncond(ctx, state, denoise, cond, uncond, x, timestep, maxArea, opts)
		if err != nil {
			return nil, err
		}

		if opts != nil && opts.CFG != nil {
			if uncond == nil {
				// The hook must be able to tell disabled guidance from a
				// genuinely zero unconditioned result.
				outUncond = nil
			}
			return opts.CFG(outCond, outUncond, condScale, timestep), nil
		}

		if uncond == nil {
			return outCond, nil
		}

		return outUncond.Add(outCond.Sub(outUncond).Scale(float32(condScale))), nil
	}
}

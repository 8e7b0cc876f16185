package motion

import (
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/sampler"
)

// NormFunc applies a group normalization with the given parameters.
type NormFunc func(t *ml.Tensor, groups int, weight, bias []float32, eps float32) *ml.Tensor

// GroupNormStrategy returns a group norm that folds the frame axis into the
// normalization statistics, so all frames of a video share one set of stats
// instead of being normalized independently. The frame count tracks the
// active context window while sliding is enabled and the whole video
// otherwise.
func GroupNormStrategy(state *sampler.RunState, videoLength int) NormFunc {
	return func(t *ml.Tensor, groups int, weight, bias []float32, eps float32) *ml.Tensor {
		frames := videoLength
		if state.SlidingEnabled() {
			frames = state.Window.WindowLength
		}

		if frames <= 1 || t.Dim(0)%frames != 0 {
			return ml.GroupNorm(t, groups, weight, bias, eps)
		}

		return ml.GroupNormFrames(t, frames, groups, weight, bias, eps)
	}
}

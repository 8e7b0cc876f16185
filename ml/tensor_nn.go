package ml

import (
	"fmt"
	"math"
)

// GroupNormFrames applies group normalization over a [batch*frames, channel,
// height, width] tensor where the leading dimension interleaves frames, i.e.
// row b*frames+f holds frame f of batch b. Statistics for each (batch, group)
// pair are computed jointly across the frame axis, which is what removes
// per-frame brightness drift in video sequences: normalizing each frame in
// isolation lets the mean wander from frame to frame.
//
// weight and bias are per-channel and may be nil.
func GroupNormFrames(t *Tensor, frames, groups int, weight, bias []float32, eps float32) *Tensor {
	tb, tc, th, tw := t.check4D()
	if frames < 1 || tb%frames != 0 {
		panic(fmt.Sprintf("ml: groupnorm frames %d does not divide batch %d", frames, tb))
	}
	if tc%groups != 0 {
		panic(fmt.Sprintf("ml: groupnorm groups %d does not divide channels %d", groups, tc))
	}
	if weight != nil && len(weight) != tc {
		panic(fmt.Sprintf("ml: groupnorm weight length %d for %d channels", len(weight), tc))
	}
	if bias != nil && len(bias) != tc {
		panic(fmt.Sprintf("ml: groupnorm bias length %d for %d channels", len(bias), tc))
	}

	axes := tb / frames
	perGroup := tc / groups
	spatial := th * tw

	out := t.Clone()
	for a := 0; a < axes; a++ {
		for g := 0; g < groups; g++ {
			var sum, sumSq float64
			n := frames * perGroup * spatial

			for f := 0; f < frames; f++ {
				b := a*frames + f
				for c := g * perGroup; c < (g+1)*perGroup; c++ {
					off := (b*tc + c) * spatial
					for i := 0; i < spatial; i++ {
						v := float64(t.data[off+i])
						sum += v
						sumSq += v * v
					}
				}
			}

			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			inv := 1 / math.Sqrt(variance+float64(eps))

			for f := 0; f < frames; f++ {
				b := a*frames + f
				for c := g * perGroup; c < (g+1)*perGroup; c++ {
					scale, shift := float32(1), float32(0)
					if weight != nil {
						scale = weight[c]
					}
					if bias != nil {
						shift = bias[c]
					}

					off := (b*tc + c) * spatial
					for i := 0; i < spatial; i++ {
						norm := (float64(t.data[off+i]) - mean) * inv
						out.data[off+i] = float32(norm)*scale + shift
					}
				}
			}
		}
	}

	return out
}

// GroupNorm is GroupNormFrames with a frame axis of one, i.e. conventional
// per-sample group normalization.
func GroupNorm(t *Tensor, groups int, weight, bias []float32, eps float32) *Tensor {
	return GroupNormFrames(t, 1, groups, weight, bias, eps)
}

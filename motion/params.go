package motion

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/sampler"
)

// InjectionParams configures how a motion module is injected into a sampling
// run. The map keys mirror the option names hosts already pass around.
type InjectionParams struct {
	VideoLength int `mapstructure:"video_length"`

	ContextLength   int    `mapstructure:"context_length"` // 0 disables windowing
	ContextStride   int    `mapstructure:"context_stride"` // 0 means window minus overlap
	ContextOverlap  int    `mapstructure:"context_overlap"`
	ContextSchedule string `mapstructure:"context_schedule"`
	ClosedLoop      bool   `mapstructure:"closed_loop"`

	SyncContextToPE   bool    `mapstructure:"sync_context_to_pe"`
	UnlimitedAreaHack bool    `mapstructure:"unlimited_area_hack"`
	AttnScale         float32 `mapstructure:"attn_scale"`
}

// ParamsFromMap decodes host-provided options. Unknown keys are ignored;
// mistyped values are an error.
func ParamsFromMap(m map[string]any) (InjectionParams, error) {
	params := InjectionParams{AttnScale: 1}
	if err := mapstructure.Decode(m, &params); err != nil {
		return InjectionParams{}, fmt.Errorf("decoding injection params: %w", err)
	}

	return params, nil
}

// WindowSpec translates the params into the scheduling spec for a sequence
// of n frames. A zero stride defaults to advancing by a full window minus
// the overlap.
func (p InjectionParams) WindowSpec(n int) sampler.WindowSpec {
	stride := p.ContextStride
	if stride == 0 && p.ContextLength > 0 {
		stride = p.ContextLength - p.ContextOverlap
	}

	return sampler.WindowSpec{
		SequenceLength: n,
		WindowLength:   p.ContextLength,
		Stride:         stride,
		Overlap:        p.ContextOverlap,
		Schedule:       p.ContextSchedule,
		ClosedLoop:     p.ClosedLoop,
	}
}

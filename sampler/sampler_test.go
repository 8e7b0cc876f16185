package sampler

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// denoiseRecorder captures every model call and delegates to fn, defaulting
// to the identity.
type denoiseRecorder struct {
	calls []*DenoiseInput
	fn    DenoiseFunc
}

func (d *denoiseRecorder) denoise(ctx context.Context, in *DenoiseInput) (*ml.Tensor, error) {
	d.calls = append(d.calls, in)
	if d.fn != nil {
		return d.fn(ctx, in)
	}

	return in.X.Clone(), nil
}

// branchDenoise fills each chunk of the batch with 1 for the conditioned
// branch and 0 for the unconditioned one.
func branchDenoise(ctx context.Context, in *DenoiseInput) (*ml.Tensor, error) {
	out := ml.ZerosLike(in.X)
	chunk := in.X.Numel() / len(in.Branches)
	for i, b := range in.Branches {
		if b == BranchCond {
			data := out.Data()[i*chunk : (i+1)*chunk]
			for j := range data {
				data[j] = 1
			}
		}
	}

	return out, nil
}

func fullCond(tb testing.TB, batch int) *Conditioning {
	tb.Helper()

	entry := NewConditioning()
	entry.ModelConds["c_crossattn"] = &CrossAttnCond{Cond: rowTensor(tb, batch, 8).Reshape(batch, 2, 4)}
	return entry
}

func TestStrategyDisablesGuidanceAtScaleOne(t *testing.T) {
	rec := &denoiseRecorder{}
	state := NewRunState()
	strategy := NewStrategy(state)

	x := rowTensor(t, 2, 16).Reshape(2, 1, 4, 4)
	ts := ml.Full(5, 2)

	out, err := strategy(context.Background(), rec.denoise, x, ts,
		[]*Conditioning{fullCond(t, 1)}, []*Conditioning{fullCond(t, 1)}, 1.0, 1<<20, nil)
	require.NoError(t, err)

	// Only the conditioned branch ran.
	require.Len(t, rec.calls, 1)
	require.Equal(t, []Branch{BranchCond}, rec.calls[0].Branches)

	// Identity denoise with a full-canvas, full-strength entry returns the
	// input up to the renormalization epsilon.
	for i, v := range out.Data() {
		require.InDelta(t, x.Data()[i], v, 1e-4)
	}
}

func TestStrategyAppliesGuidance(t *testing.T) {
	rec := &denoiseRecorder{fn: branchDenoise}
	state := NewRunState()
	strategy := NewStrategy(state)

	x := ml.Full(3, 2, 1, 4, 4)
	ts := ml.Full(5, 2)

	out, err := strategy(context.Background(), rec.denoise, x, ts,
		[]*Conditioning{fullCond(t, 1)}, []*Conditioning{fullCond(t, 1)}, 7.5, 1<<20, nil)
	require.NoError(t, err)

	// uncond + (cond - uncond) * scale with cond=1, uncond=0.
	for _, v := range out.Data() {
		require.InDelta(t, 7.5, v, 1e-3)
	}
}

func TestStrategyCustomCFG(t *testing.T) {
	rec := &denoiseRecorder{}
	state := NewRunState()
	strategy := NewStrategy(state)

	want := ml.Full(42, 2, 1, 4, 4)
	opts := &Options{
		CFG: func(cond, uncond *ml.Tensor, scale float64, timestep *ml.Tensor) *ml.Tensor {
			require.Equal(t, 7.5, scale)
			return want
		},
	}

	x := ml.Full(3, 2, 1, 4, 4)
	out, err := strategy(context.Background(), rec.denoise, x, ml.Full(5, 2),
		[]*Conditioning{fullCond(t, 1)}, []*Conditioning{fullCond(t, 1)}, 7.5, 1<<20, opts)
	require.NoError(t, err)
	require.Same(t, want, out)
}

func TestStrategyCustomCFGNilUncondAtScaleOne(t *testing.T) {
	rec := &denoiseRecorder{}
	state := NewRunState()
	strategy := NewStrategy(state)

	var gotUncond *ml.Tensor = ml.Full(1, 1)
	opts := &Options{
		CFG: func(cond, uncond *ml.Tensor, scale float64, timestep *ml.Tensor) *ml.Tensor {
			gotUncond = uncond
			return cond
		},
	}

	x := ml.Full(3, 2, 1, 4, 4)
	_, err := strategy(context.Background(), rec.denoise, x, ml.Full(5, 2),
		[]*Conditioning{fullCond(t, 1)}, []*Conditioning{fullCond(t, 1)}, 1.0, 1<<20, opts)
	require.NoError(t, err)
	require.Nil(t, gotUncond)
}

func TestCalcCondUncondSlidingMatchesFullPass(t *testing.T) {
	x := rowTensor(t, 16, 8).Reshape(16, 2, 2, 2)
	ts := ml.Full(5, 16)
	cond := []*Conditioning{fullCond(t, 1)}

	baseline := NewRunState()
	full, _, err := CalcCondUncond(context.Background(), baseline, (&denoiseRecorder{}).denoise, cond, nil, x, ts, 1<<20, nil)
	require.NoError(t, err)

	sliding := NewRunState()
	sliding.Window = WindowSpec{SequenceLength: 16, WindowLength: 16, Stride: 1, Overlap: 0}
	require.True(t, sliding.SlidingEnabled())

	windowed, _, err := CalcCondUncond(context.Background(), sliding, (&denoiseRecorder{}).denoise, cond, nil, x, ts, 1<<20, nil)
	require.NoError(t, err)

	// A window covering the whole sequence must reproduce the single-pass
	// result exactly.
	if diff := cmp.Diff(full.Data(), windowed.Data()); diff != "" {
		t.Errorf("sliding full-window result differs (-full +windowed):\n%s", diff)
	}
}

package sampler

import (
	"context"
	"log/slog"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// slidingCalc denoises the full latent sequence one context window at a
// time and renormalizes every frame by the number of windows that covered
// it. The leading axis of x is repeats*SequenceLength: the window's frame
// indices are replicated into every repeat block before gathering rows.
func slidingCalc(ctx context.Context, bc *batchCalc, state *RunState, cond, uncond []*Conditioning, x, timestep *ml.Tensor) (*ml.Tensor, *ml.Tensor, error) {
	spec := state.Window

	sched, err := GetScheduler(spec.Schedule)
	if err != nil {
		return nil, nil, err
	}

	windows, err := sched(state.CurrentStep, state.TotalSteps, spec)
	if err != nil {
		return nil, nil, err
	}

	seqLen := spec.SequenceLength
	repeats := x.Dim(0) / seqLen

	slog.Debug("sliding context step", "run", state.RunID, "step", state.CurrentStep,
		"windows", len(windows), "frames", seqLen, "repeats", repeats)

	outCond := ml.ZerosLike(x)
	outUncond := ml.ZerosLike(x)
	counts := ml.New(x.Dim(0), 1, 1, 1)

	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		if state.SyncWindowToPE {
			state.ActiveWindow = window
			if state.Sync != nil {
				state.Sync.SetSubIndexes(window)
			}
		}

		rows := make([]int, 0, repeats*len(window))
		for n := 0; n < repeats; n++ {
			for _, i := range window {
				rows = append(rows, n*seqLen+i)
			}
		}

		subX := x.Rows(rows)
		subTs := timestep.Rows(rows)

		windowCond, err := projectConditioning(cond, rows, window, x.Dim(0), seqLen, spec.WindowLength)
		if err != nil {
			return nil, nil, err
		}

		windowUncond, err := projectConditioning(uncond, rows, window, x.Dim(0), seqLen, spec.WindowLength)
		if err != nil {
			return nil, nil, err
		}

		subCond, subUncond, err := bc.run(ctx, windowCond, windowUncond, subX, subTs)
		if err != nil {
			return nil, nil, err
		}

		outCond.ScatterAddRows(rows, subCond)
		outUncond.ScatterAddRows(rows, subUncond)
		counts.AddRows(rows, 1)
	}

	state.ActiveWindow = nil

	return outCond.DivRowwise(counts), outUncond.DivRowwise(counts), nil
}

package sampler

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// StepCallback is the per-step hook the sampling host invokes after each
// denoising step, with the current estimate of the clean latents and the
// noisy latents for the next step.
type StepCallback func(step int, denoised, latents *ml.Tensor, totalSteps int)

// WindowSync receives the raw window indices when scheduling is synchronized
// to the motion module's positional encoding.
type WindowSync interface {
	SetSubIndexes(indexes []int)
}

// RunState tracks one sampling run. Exactly one run may be in flight at a
// time: the state and the accumulation buffers it governs are owned by that
// run and are not safe for concurrent use.
type RunState struct {
	RunID uuid.UUID

	StartStep   int
	LastStep    int
	CurrentStep int
	TotalSteps  int

	Window         WindowSpec
	SyncWindowToPE bool

	// ActiveWindow holds the raw (non-expanded) indices of the window being
	// processed while SyncWindowToPE is set, nil otherwise.
	ActiveWindow []int

	// Sync is the positional-encoding side channel, typically the motion
	// module. May be nil.
	Sync WindowSync
}

// NewRunState returns a reset state with a fresh run identifier.
func NewRunState() *RunState {
	s := &RunState{}
	s.Reset()
	return s
}

// Reset returns the state to defaults and assigns a new run identifier.
// Called before a run begins and again on completion or failure.
func (s *RunState) Reset() {
	*s = RunState{RunID: uuid.New()}
}

// SlidingEnabled reports whether the current run uses sliding context
// windows.
func (s *RunState) SlidingEnabled() bool {
	return s.Window.Enabled()
}

// WrapCallback chains cb with the bookkeeping that advances the run to the
// next step. The advanced value is StartStep + step + 1: schedulers observe
// the number of the step about to run, offset by where the run started.
func (s *RunState) WrapCallback(cb StepCallback) StepCallback {
	return func(step int, denoised, latents *ml.Tensor, totalSteps int) {
		if cb != nil {
			cb(step, denoised, latents, totalSteps)
		}

		s.CurrentStep = s.StartStep + step + 1
		s.TotalSteps = totalSteps
		slog.Debug("step complete", "run", s.RunID, "step", step, "current_step", s.CurrentStep, "total_steps", totalSteps)
	}
}

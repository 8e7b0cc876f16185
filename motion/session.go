package motion

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/envconfig"
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/format"
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/sampler"
)

// Host is the set of extension points a sampling host exposes so the motion
// engine can take over parts of its pipeline for the duration of a run. Every
// setter returns a restore function that puts the previous value back.
type Host interface {
	ScheduleHost

	SetSamplingStrategy(sampler.Strategy) (restore func())
	SetNormStrategy(NormFunc) (restore func())
	SetMaxBatchArea(func() int) (restore func())

	StepCallback() sampler.StepCallback
	SetStepCallback(sampler.StepCallback) (restore func())

	// AttachMotionModule injects the module's temporal layers into the
	// host model.
	AttachMotionModule(Module) (restore func(), err error)
}

// Session holds everything Begin installed on a host. Closing it restores
// the host in reverse order; Close always runs safely, including on error
// paths, and is idempotent.
type Session struct {
	host   Host
	module Module
	state  *sampler.RunState

	cache    ScheduleCache
	restores []func()
	closed   bool
}

// Begin injects a motion module into the host for one sampling run over
// latents, whose leading dimension is the video length. On any error the
// host is left exactly as it was.
func Begin(host Host, module Module, params InjectionParams, latents *ml.Tensor, startStep, lastStep int) (s *Session, err error) {
	videoLength := latents.Dim(0)
	spec := params.WindowSpec(videoLength)
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	state := sampler.NewRunState()
	state.StartStep = startStep
	state.CurrentStep = startStep
	state.LastStep = lastStep
	state.Window = spec
	state.SyncWindowToPE = params.SyncContextToPE
	state.Sync = moduleSync{module}

	s = &Session{host: host, module: module, state: state}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	s.cache.Swap(host, LinearBetaSchedule())
	s.restores = append(s.restores, func() { s.cache.Restore(host) })

	restore, err := host.AttachMotionModule(module)
	if err != nil {
		return nil, fmt.Errorf("attaching motion module: %w", err)
	}
	s.restores = append(s.restores, restore)

	if params.AttnScale != 1 {
		module.SetScaleMultiplier(params.AttnScale)
	}

	s.restores = append(s.restores, host.SetSamplingStrategy(sampler.NewStrategy(state)))
	s.restores = append(s.restores, host.SetNormStrategy(GroupNormStrategy(state, videoLength)))

	if area := batchAreaOverride(params); area > 0 {
		s.restores = append(s.restores, host.SetMaxBatchArea(func() int { return area }))
	}

	s.restores = append(s.restores, host.SetStepCallback(state.WrapCallback(host.StepCallback())))

	slog.Debug("motion session started", "run", state.RunID, "frames", videoLength,
		"window", spec.WindowLength, "stride", spec.Stride, "overlap", spec.Overlap,
		"schedule", spec.Schedule, "start_step", startStep, "last_step", lastStep,
		"latents", format.HumanBytes(int64(latents.Numel())*4))

	return s, nil
}

// moduleSync adapts a Module to the sampler's window side channel.
type moduleSync struct{ m Module }

func (s moduleSync) SetSubIndexes(indexes []int) { s.m.SetSubIndexes(indexes) }

func batchAreaOverride(params InjectionParams) int {
	if params.UnlimitedAreaHack {
		return math.MaxInt
	}

	return envconfig.MaxBatchArea
}

// State exposes the run state the installed strategies share.
func (s *Session) State() *sampler.RunState {
	return s.state
}

// Sample runs fn with the session installed and tears the session down
// afterwards regardless of outcome.
func (s *Session) Sample(ctx context.Context, fn func(ctx context.Context) error) error {
	defer s.Close()
	return fn(ctx)
}

// Close restores the host's hooks in reverse install order, resets the
// module and releases it. Safe to call more than once.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	for i := len(s.restores) - 1; i >= 0; i-- {
		if s.restores[i] != nil {
			s.restores[i]()
		}
	}
	s.restores = nil

	s.module.SetSubIndexes(nil)
	s.module.ResetScaleMultiplier()
	if s.module.HasLoras() {
		// LoRA weights are fused into the module, it cannot be reused warm.
		s.module.Unload()
	}

	slog.Debug("motion session closed", "run", s.state.RunID)
	s.state.Reset()
}

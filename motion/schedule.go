package motion

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Motion modules are trained against a fixed linear beta schedule; the host
// model must sample on the same one for the temporal layers to line up.
const (
	linearBetaStart = 0.00085
	linearBetaEnd   = 0.012
	scheduleSteps   = 1000
)

// Schedule is a diffusion noise schedule: per-timestep betas and the derived
// cumulative alpha products.
type Schedule struct {
	Betas         []float64
	AlphasCumprod []float64
}

// LinearBetaSchedule builds the sqrt-linear schedule motion modules were
// trained with: betas are the square of a linear ramp between the square
// roots of the endpoints.
func LinearBetaSchedule() Schedule {
	betas := make([]float64, scheduleSteps)
	floats.Span(betas, math.Sqrt(linearBetaStart), math.Sqrt(linearBetaEnd))
	for i, b := range betas {
		betas[i] = b * b
	}

	alphas := make([]float64, scheduleSteps)
	for i, b := range betas {
		alphas[i] = 1 - b
	}

	cumprod := make([]float64, scheduleSteps)
	floats.CumProd(cumprod, alphas)

	return Schedule{Betas: betas, AlphasCumprod: cumprod}
}

// ScheduleHost is the part of the sampling host that owns the active noise
// schedule.
type ScheduleHost interface {
	Schedule() Schedule
	SetSchedule(Schedule)
}

// ScheduleCache swaps a schedule onto a host and restores the original
// afterwards.
type ScheduleCache struct {
	saved Schedule
	held  bool
}

// Swap installs s on the host, remembering the host's current schedule the
// first time it is called.
func (c *ScheduleCache) Swap(host ScheduleHost, s Schedule) {
	if !c.held {
		c.saved = host.Schedule()
		c.held = true
	}

	host.SetSchedule(s)
}

// Restore puts the saved schedule back. Calling it without a prior Swap is a
// no-op.
func (c *ScheduleCache) Restore(host ScheduleHost) {
	if !c.held {
		return
	}

	host.SetSchedule(c.saved)
	c.held = false
}

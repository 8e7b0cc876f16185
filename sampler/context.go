// Package sampler implements the sliding-context conditioning and batching
// engine: long frame sequences are denoised as overlapping context windows,
// with per-frame conditioning re-projected onto each window and the
// overlapping results renormalized by usage counts.
package sampler

import (
	"fmt"
)

// WindowSpec describes how a frame sequence is split into context windows.
type WindowSpec struct {
	SequenceLength int    `json:"sequence_length"`
	WindowLength   int    `json:"window_length"` // 0 disables windowing
	Stride         int    `json:"stride"`        // frames advanced per window
	Overlap        int    `json:"overlap"`
	Schedule       string `json:"schedule"`
	ClosedLoop     bool   `json:"closed_loop"`
}

// Enabled reports whether sliding-context windowing is active.
func (s WindowSpec) Enabled() bool {
	return s.WindowLength > 0
}

// Validate rejects parameter combinations that would leave frames uncovered
// or never terminate.
func (s WindowSpec) Validate() error {
	if !s.Enabled() {
		return nil
	}

	if s.Stride < 1 {
		return fmt.Errorf("%w: stride %d < 1", ErrInvalidSchedule, s.Stride)
	}

	if s.Overlap >= s.WindowLength {
		return fmt.Errorf("%w: overlap %d >= window length %d", ErrInvalidSchedule, s.Overlap, s.WindowLength)
	}

	if s.Stride > s.WindowLength-s.Overlap {
		return fmt.Errorf("%w: stride %d > window length %d - overlap %d, windows would skip frames", ErrInvalidSchedule, s.Stride, s.WindowLength, s.Overlap)
	}

	return nil
}

// Scheduler produces the context windows for one denoising step. Schedulers
// must be pure: the same arguments always yield the same windows, and every
// frame index in [0, SequenceLength) appears in at least one window.
type Scheduler func(step, totalSteps int, spec WindowSpec) ([][]int, error)

var schedulers = map[string]Scheduler{
	"uniform":        uniformSchedule,
	"uniform_looped": uniformLoopedSchedule,
}

// RegisterScheduler adds a named scheduling policy.
func RegisterScheduler(name string, s Scheduler) {
	if _, ok := schedulers[name]; ok {
		panic("sampler: scheduler already registered: " + name)
	}

	schedulers[name] = s
}

// GetScheduler looks up a scheduling policy by name. An empty name selects
// the uniform policy.
func GetScheduler(name string) (Scheduler, error) {
	if name == "" {
		name = "uniform"
	}

	s, ok := schedulers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown schedule %q", ErrInvalidSchedule, name)
	}

	return s, nil
}

// uniformSchedule advances a fixed-size window by Stride frames. The final
// window is clamped to the sequence end, or wraps modulo the sequence length
// under ClosedLoop so the seam between last and first frame is denoised
// together.
func uniformSchedule(_, _ int, spec WindowSpec) ([][]int, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	n := spec.SequenceLength
	if !spec.Enabled() || spec.WindowLength >= n {
		return [][]int{fullWindow(n)}, nil
	}

	var windows [][]int
	for start := 0; start < n-spec.Overlap; start += spec.Stride {
		window := make([]int, 0, spec.WindowLength)
		for i := start; i < start+spec.WindowLength; i++ {
			switch {
			case spec.ClosedLoop:
				window = append(window, i%n)
			case i < n:
				window = append(window, i)
			}
		}

		windows = append(windows, window)
	}

	return windows, nil
}

// uniformLoopedSchedule always wraps window indices modulo the sequence
// length. Unlike the clamping uniform policy it cannot represent a window
// longer than an open sequence.
func uniformLoopedSchedule(_, _ int, spec WindowSpec) ([][]int, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	n := spec.SequenceLength
	if !spec.Enabled() || spec.WindowLength == n {
		return [][]int{fullWindow(n)}, nil
	}

	if spec.WindowLength > n {
		if !spec.ClosedLoop {
			return nil, fmt.Errorf("%w: window length %d > sequence length %d on an open sequence", ErrInvalidSchedule, spec.WindowLength, n)
		}

		window := make([]int, spec.WindowLength)
		for i := range window {
			window[i] = i % n
		}

		return [][]int{window}, nil
	}

	var windows [][]int
	for start := 0; start < n-spec.Overlap; start += spec.Stride {
		window := make([]int, spec.WindowLength)
		for i := range window {
			window[i] = (start + i) % n
		}

		windows = append(windows, window)
	}

	return windows, nil
}

func fullWindow(n int) []int {
	window := make([]int, n)
	for i := range window {
		window[i] = i
	}

	return window
}

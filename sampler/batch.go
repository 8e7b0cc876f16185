package sampler

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	pq "github.com/emirpasic/gods/v2/queues/priorityqueue"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/format"
	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// featherBorder is the width in latent units of the linear blend ramp
// synthesized at tile edges that sit strictly inside the canvas.
const featherBorder = 8

// countEpsilon keeps the renormalization divide defined for canvas regions no
// request touched.
const countEpsilon = 1e-5

// request is one conditioning entry resolved against the current input: its
// cropped tile, blend multiplier and merged-call identity fields.
type request struct {
	x       *ml.Tensor
	mult    *ml.Tensor
	conds   map[string]Concatable
	area    Area
	control ControlHandle
	patches *PatchSet
	branch  Branch
}

type featherKey struct {
	area  Area
	batch int
}

// batchCalc executes all conditioning requests of one denoising step,
// grouping mergeable requests into batches under the area budget. One value
// serves every window of the step so synthesized feather masks are reused.
type batchCalc struct {
	denoise DenoiseFunc
	maxArea int
	opts    *Options

	canvasH, canvasW int

	feathers map[featherKey]*ml.Tensor
}

func newBatchCalc(denoise DenoiseFunc, maxArea int, opts *Options, x *ml.Tensor) *batchCalc {
	return &batchCalc{
		denoise:  denoise,
		maxArea:  maxArea,
		opts:     opts,
		canvasH:  x.Dim(2),
		canvasW:  x.Dim(3),
		feathers: make(map[featherKey]*ml.Tensor),
	}
}

// run processes both guidance branches over x and returns the accumulated,
// blend-renormalized conditioned and unconditioned outputs. uncond may be
// nil when guidance is disabled.
func (bc *batchCalc) run(ctx context.Context, cond, uncond []*Conditioning, x, timestep *ml.Tensor) (*ml.Tensor, *ml.Tensor, error) {
	outCond := ml.ZerosLike(x)
	countCond := ml.Full(countEpsilon, x.Shape()...)
	outUncond := ml.ZerosLike(x)
	countUncond := ml.Full(countEpsilon, x.Shape()...)

	var toRun []*request
	for _, entry := range cond {
		r, err := bc.prepareRequest(entry, x, timestep, BranchCond)
		if err != nil {
			return nil, nil, err
		}
		if r != nil {
			toRun = append(toRun, r)
		}
	}
	for _, entry := range uncond {
		r, err := bc.prepareRequest(entry, x, timestep, BranchUncond)
		if err != nil {
			return nil, nil, err
		}
		if r != nil {
			toRun = append(toRun, r)
		}
	}

	for len(toRun) > 0 {
		first := toRun[0]

		// Mergeable candidates, highest index first. The later requests are
		// consumed before the earlier ones, matching the reversed scan the
		// greedy grouping has always used.
		q := pq.NewWith(func(a, b int) int { return cmp.Compare(b, a) })
		for i, r := range toRun {
			if canMerge(r, first) {
				q.Enqueue(i)
			}
		}

		var candidates []int
		for {
			i, ok := q.Dequeue()
			if !ok {
				break
			}
			candidates = append(candidates, i)
		}

		// Largest power-of-two batch strictly under the area budget; a
		// single request always runs even when it alone exceeds it.
		n := 1
		for n*2 <= len(candidates) {
			n *= 2
		}
		per := first.x.Dim(0) * first.x.Dim(2) * first.x.Dim(3)
		for n > 1 && n*per >= bc.maxArea {
			n /= 2
		}

		batch := make([]*request, 0, n)
		for _, i := range candidates[:n] {
			r := toRun[i]
			if !r.x.SameShape(first.x) {
				return nil, nil, fmt.Errorf("%w: request tile %v in group of %v", ErrShapeMismatch, r.x.Shape(), first.x.Shape())
			}

			batch = append(batch, r)
			toRun = append(toRun[:i], toRun[i+1:]...) // indices descend, safe splice
		}

		out, err := bc.execute(ctx, batch, timestep)
		if err != nil {
			return nil, nil, err
		}

		for i, chunk := range out.Chunk(len(batch)) {
			r := batch[i]
			weighted := chunk.Mul(r.mult)
			switch r.branch {
			case BranchCond:
				outCond.AccumulateArea(weighted, r.area.Y, r.area.X)
				countCond.AccumulateArea(r.mult, r.area.Y, r.area.X)
			case BranchUncond:
				outUncond.AccumulateArea(weighted, r.area.Y, r.area.X)
				countUncond.AccumulateArea(r.mult, r.area.Y, r.area.X)
			}
		}
	}

	return outCond.Div(countCond), outUncond.Div(countUncond), nil
}

// execute runs one merged batch through the denoise function and checks the
// output contract.
func (bc *batchCalc) execute(ctx context.Context, batch []*request, timestep *ml.Tensor) (*ml.Tensor, error) {
	inputs := make([]*ml.Tensor, len(batch))
	branches := make([]Branch, len(batch))
	condsList := make([]map[string]Concatable, len(batch))
	for i, r := range batch {
		inputs[i] = r.x
		branches[i] = r.branch
		condsList[i] = r.conds
	}

	in := &DenoiseInput{
		X:        ml.Concat(inputs),
		Timestep: timestep.Tile(len(batch)),
		Conds:    concatConds(condsList),
		Control:  batch[0].control,
		Patches:  batch[0].patches.Merge(bc.opts.BasePatches),
		Branches: branches,
	}

	slog.Debug("batched conditioning requests", "requests", len(batch),
		"area", format.HumanNumber(uint64(len(batch)*batch[0].x.Dim(0)*batch[0].x.Dim(2)*batch[0].x.Dim(3))))

	var out *ml.Tensor
	var err error
	if bc.opts.Wrapper != nil {
		out, err = bc.opts.Wrapper(ctx, bc.denoise, in)
	} else {
		out, err = bc.denoise(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	if !out.SameShape(in.X) {
		return nil, fmt.Errorf("%w: denoise returned %v for input %v", ErrShapeMismatch, out.Shape(), in.X.Shape())
	}

	return out, nil
}

// prepareRequest resolves one conditioning entry against the input tile.
// It returns nil when the entry is gated off for the current timestep.
func (bc *batchCalc) prepareRequest(entry *Conditioning, x, timestep *ml.Tensor, branch Branch) (*request, error) {
	sigma := float64(timestep.Data()[0])
	if sigma > entry.SigmaStart || sigma < entry.SigmaEnd {
		return nil, nil
	}

	area := entry.Area
	if area.Height <= 0 || area.Width <= 0 {
		area = Area{Height: bc.canvasH, Width: bc.canvasW}
	}

	inputX := x.Area(area.Y, area.X, area.Height, area.Width)

	var mult *ml.Tensor
	if entry.Mask != nil {
		m, err := bc.maskMultiplier(entry, area, inputX)
		if err != nil {
			return nil, err
		}
		mult = m
	} else {
		mult = bc.feather(area, x.Dim(0), x.Dim(1)).Scale(entry.Strength)
	}

	conds := make(map[string]Concatable, len(entry.ModelConds))
	for k, v := range entry.ModelConds {
		conds[k] = v.Expand(inputX.Dim(0))
	}

	return &request{
		x:       inputX,
		mult:    mult,
		conds:   conds,
		area:    area,
		control: entry.Control,
		patches: entry.Patches,
		branch:  branch,
	}, nil
}

// maskMultiplier crops the entry's explicit mask to the area and broadcasts
// it over the batch and channel axes.
func (bc *batchCalc) maskMultiplier(entry *Conditioning, area Area, inputX *ml.Tensor) (*ml.Tensor, error) {
	mask := entry.Mask
	if mask.Dim(1) != bc.canvasH || mask.Dim(2) != bc.canvasW {
		return nil, fmt.Errorf("%w: mask %v does not cover canvas %dx%d", ErrShapeMismatch, mask.Shape(), bc.canvasH, bc.canvasW)
	}

	batch, channels := inputX.Dim(0), inputX.Dim(1)
	mb := mask.Dim(0)
	if batch%mb != 0 {
		return nil, fmt.Errorf("%w: mask batch %d does not divide input batch %d", ErrShapeMismatch, mb, batch)
	}

	strength := entry.MaskStrength * entry.Strength
	out := ml.New(batch, channels, area.Height, area.Width)
	src, dst := mask.Data(), out.Data()
	for b := 0; b < batch; b++ {
		for c := 0; c < channels; c++ {
			for row := 0; row < area.Height; row++ {
				srcOff := ((b%mb)*bc.canvasH+(area.Y+row))*bc.canvasW + area.X
				dstOff := ((b*channels+c)*area.Height + row) * area.Width
				for col := 0; col < area.Width; col++ {
					dst[dstOff+col] = src[srcOff+col] * strength
				}
			}
		}
	}

	return out, nil
}

// feather synthesizes the blend multiplier for an unmasked tile: 1.0 in the
// interior, ramping linearly to near zero over featherBorder units on every
// edge that does not coincide with the canvas boundary. Masks are cached per
// geometry for the lifetime of the step.
func (bc *batchCalc) feather(area Area, batch, channels int) *ml.Tensor {
	key := featherKey{area: area, batch: batch}
	if m, ok := bc.feathers[key]; ok {
		return m
	}

	m := ml.Full(1, batch, channels, area.Height, area.Width)
	ramp := func(t int) float32 { return float32(t+1) / featherBorder }

	if area.Y != 0 {
		for t := 0; t < min(featherBorder, area.Height); t++ {
			bc.scaleRow(m, t, ramp(t))
		}
	}
	if area.Y+area.Height < bc.canvasH {
		for t := 0; t < min(featherBorder, area.Height); t++ {
			bc.scaleRow(m, area.Height-1-t, ramp(t))
		}
	}
	if area.X != 0 {
		for t := 0; t < min(featherBorder, area.Width); t++ {
			bc.scaleCol(m, t, ramp(t))
		}
	}
	if area.X+area.Width < bc.canvasW {
		for t := 0; t < min(featherBorder, area.Width); t++ {
			bc.scaleCol(m, area.Width-1-t, ramp(t))
		}
	}

	bc.feathers[key] = m
	return m
}

func (bc *batchCalc) scaleRow(m *ml.Tensor, row int, s float32) {
	b, c, h, w := m.Dim(0), m.Dim(1), m.Dim(2), m.Dim(3)
	data := m.Data()
	for i := 0; i < b*c; i++ {
		off := (i*h + row) * w
		for col := 0; col < w; col++ {
			data[off+col] *= s
		}
	}
}

func (bc *batchCalc) scaleCol(m *ml.Tensor, col int, s float32) {
	b, c, h, w := m.Dim(0), m.Dim(1), m.Dim(2), m.Dim(3)
	data := m.Data()
	for i := 0; i < b*c; i++ {
		for row := 0; row < h; row++ {
			data[(i*h+row)*w+col] *= s
		}
	}
}

// canMerge reports whether two requests may share one model call: matching
// tile shapes, identical control chain (or none), identical patch set (or
// none), and pairwise concatenation-compatible conditioning.
func canMerge(a, b *request) bool {
	if !a.x.SameShape(b.x) {
		return false
	}

	if (a.control == nil) != (b.control == nil) || a.control != b.control {
		return false
	}

	if (a.patches == nil) != (b.patches == nil) || a.patches != b.patches {
		return false
	}

	return condsCompatible(a.conds, b.conds)
}

func condsCompatible(a, b map[string]Concatable) bool {
	if len(a) != len(b) {
		return false
	}

	for k, va := range a {
		vb, ok := b[k]
		if !ok || !va.CanConcat(vb) {
			return false
		}
	}

	return true
}

func concatConds(conds []map[string]Concatable) map[string]Concatable {
	out := make(map[string]Concatable, len(conds[0]))
	for k := range conds[0] {
		rest := make([]Concatable, 0, len(conds)-1)
		for _, c := range conds[1:] {
			rest = append(rest, c[k])
		}

		out[k] = conds[0][k].Concat(rest)
	}

	return out
}

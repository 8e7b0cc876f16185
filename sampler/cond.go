package sampler

import (
	"math"

	"github.com/chaojie/ComfyUI-AnimateDiff-Evolved/ml"
)

// Area is the spatial region of the canvas a conditioning entry applies to.
// A zero Height or Width means the full canvas.
type Area struct {
	Height, Width int
	Y, X          int
}

// Branch distinguishes the two guidance branches of a denoising step.
type Branch int

const (
	BranchCond Branch = iota
	BranchUncond
)

// Concatable is a conditioning value that knows how to merge with its peers
// along the batch axis so multiple regions can share one model call. It also
// carries the wrapped-tensor protocol: projection replaces the inner tensor
// through CopyWith rather than mutating in place, so implementations can keep
// derived values consistent.
type Concatable interface {
	Inner() *ml.Tensor
	CopyWith(*ml.Tensor) Concatable
	Expand(batch int) Concatable
	CanConcat(Concatable) bool
	Concat(others []Concatable) Concatable
}

// RegularCond wraps a plain conditioning tensor. Two RegularConds merge only
// when their shapes match exactly.
type RegularCond struct {
	Cond *ml.Tensor
}

func (c *RegularCond) Inner() *ml.Tensor { return c.Cond }

func (c *RegularCond) CopyWith(t *ml.Tensor) Concatable { return &RegularCond{Cond: t} }

func (c *RegularCond) Expand(batch int) Concatable {
	if c.Cond.Dim(0) == 1 && batch > 1 {
		return &RegularCond{Cond: c.Cond.Tile(batch)}
	}

	return c
}

func (c *RegularCond) CanConcat(o Concatable) bool {
	r, ok := o.(*RegularCond)
	return ok && c.Cond.SameShape(r.Cond)
}

func (c *RegularCond) Concat(others []Concatable) Concatable {
	ts := make([]*ml.Tensor, 0, len(others)+1)
	ts = append(ts, c.Cond)
	for _, o := range others {
		ts = append(ts, o.(*RegularCond).Cond)
	}

	return &RegularCond{Cond: ml.Concat(ts)}
}

// CrossAttnCond wraps a [batch, tokens, dim] cross-attention embedding.
// Entries with different token counts still merge when one count divides the
// other; the shorter sequence is tiled up to the longer before concatenation.
type CrossAttnCond struct {
	Cond *ml.Tensor
}

func (c *CrossAttnCond) Inner() *ml.Tensor { return c.Cond }

func (c *CrossAttnCond) CopyWith(t *ml.Tensor) Concatable { return &CrossAttnCond{Cond: t} }

func (c *CrossAttnCond) Expand(batch int) Concatable {
	if c.Cond.Dim(0) == 1 && batch > 1 {
		return &CrossAttnCond{Cond: c.Cond.Tile(batch)}
	}

	return c
}

func (c *CrossAttnCond) CanConcat(o Concatable) bool {
	r, ok := o.(*CrossAttnCond)
	if !ok || c.Cond.Dim(0) != r.Cond.Dim(0) || c.Cond.Dim(2) != r.Cond.Dim(2) {
		return false
	}

	a, b := c.Cond.Dim(1), r.Cond.Dim(1)
	return a%b == 0 || b%a == 0
}

func (c *CrossAttnCond) Concat(others []Concatable) Concatable {
	maxTokens := c.Cond.Dim(1)
	for _, o := range others {
		maxTokens = max(maxTokens, o.(*CrossAttnCond).Cond.Dim(1))
	}

	ts := make([]*ml.Tensor, 0, len(others)+1)
	ts = append(ts, tileTokens(c.Cond, maxTokens))
	for _, o := range others {
		ts = append(ts, tileTokens(o.(*CrossAttnCond).Cond, maxTokens))
	}

	return &CrossAttnCond{Cond: ml.Concat(ts)}
}

// tileTokens repeats the token axis of a [batch, tokens, dim] tensor until it
// reaches want tokens. It assumes tokens divides want: merge groups are
// anchored on their first request, so only divisibility against the anchor is
// ever established, and a non-divisible pair within a group would wrap the
// shorter sequence mid-repeat.
func tileTokens(t *ml.Tensor, want int) *ml.Tensor {
	tokens := t.Dim(1)
	if tokens == want {
		return t
	}

	b, d := t.Dim(0), t.Dim(2)
	out := ml.New(b, want, d)
	src, dst := t.Data(), out.Data()
	for i := 0; i < b; i++ {
		for j := 0; j < want; j++ {
			copy(dst[(i*want+j)*d:(i*want+j+1)*d], src[(i*tokens+j%tokens)*d:(i*tokens+j%tokens+1)*d])
		}
	}

	return out
}

// ControlHandle is one link of a control-signal chain (pose, depth and
// similar spatial guidance). Links are shared between all conditioning
// entries referencing the same chain within a step.
type ControlHandle interface {
	// Prev returns the previous link in the chain, or nil.
	Prev() ControlHandle
}

// WindowedControl is implemented by control handles that can re-scope their
// signal to a context window. The engine mutates only these window-scoped
// fields, never the handle's structural identity, and the values are only
// meaningful until the next window is processed.
type WindowedControl interface {
	ControlHandle
	SetWindow(subIndexes []int, fullLength, windowLength int)
}

// PatchSet is an opaque group of auxiliary model patches attached to a
// conditioning entry. Requests merge only when they reference the same set.
type PatchSet struct {
	Patches map[string][]any
}

// Merge combines two patch sets key-wise. Either argument may be nil.
func (p *PatchSet) Merge(o *PatchSet) *PatchSet {
	if p == nil {
		return o
	}
	if o == nil {
		return p
	}

	merged := &PatchSet{Patches: make(map[string][]any, len(p.Patches))}
	for k, v := range p.Patches {
		merged.Patches[k] = append(append([]any(nil), v...), o.Patches[k]...)
	}
	for k, v := range o.Patches {
		if _, ok := p.Patches[k]; !ok {
			merged.Patches[k] = append([]any(nil), v...)
		}
	}

	return merged
}

// CondValue is an auxiliary conditioning field value. The variants are
// closed so the projector's dispatch is exhaustive.
type CondValue interface {
	isCondValue()
}

// TensorValue is a raw tensor field. It is per-frame when its leading
// dimension equals the full batch size; anything else is batch-invariant and
// passes through projection untouched.
type TensorValue struct {
	Tensor *ml.Tensor
}

// WrappedValue holds a wrapped tensor that must be re-indexed through its
// own CopyWith operation.
type WrappedValue struct {
	Wrapped Concatable
}

// MapValue nests conditioning values one level deep.
type MapValue struct {
	Values map[string]CondValue
}

// ScalarValue is an opaque field passed through by reference.
type ScalarValue struct {
	Value any
}

func (TensorValue) isCondValue()  {}
func (WrappedValue) isCondValue() {}
func (MapValue) isCondValue()     {}
func (ScalarValue) isCondValue()  {}

// Conditioning is one entry of a guidance branch: the model inputs plus the
// spatial and temporal scope they apply to.
type Conditioning struct {
	// ModelConds are the values handed to the denoise call, merged across a
	// batch (cross-attention embeddings, channel concats, ...).
	ModelConds map[string]Concatable

	// Values carries auxiliary per-entry data (pooled embeddings, nested
	// maps, opaque scalars).
	Values map[string]CondValue

	Area         Area
	Strength     float32
	Mask         *ml.Tensor // [maskBatch, canvasHeight, canvasWidth]
	MaskStrength float32

	// The entry is active while SigmaEnd <= sigma <= SigmaStart.
	SigmaStart float64
	SigmaEnd   float64

	Control ControlHandle
	Patches *PatchSet
}

// NewConditioning returns an entry that applies to the full canvas at full
// strength for the whole sigma range.
func NewConditioning() *Conditioning {
	return &Conditioning{
		ModelConds:   make(map[string]Concatable),
		Strength:     1,
		MaskStrength: 1,
		SigmaStart:   math.Inf(1),
		SigmaEnd:     math.Inf(-1),
	}
}

// clone returns a shallow copy whose maps may be replaced without touching
// the original.
func (c *Conditioning) clone() *Conditioning {
	out := *c
	return &out
}

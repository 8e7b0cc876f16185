// Package motion holds the host-facing side of the animation engine: the
// motion module contract, its injection parameters, the noise schedule it
// imposes on the host model, and the session that installs and removes all
// of it around a sampling run.
package motion

// Module is a loaded motion model. The sampling engine drives it through
// this interface only; loading and weight management belong to the host.
type Module interface {
	// SetSubIndexes points the module's positional encodings at the frames
	// of the context window being denoised.
	SetSubIndexes(indexes []int)

	// SetScaleMultiplier scales the module's attention influence.
	SetScaleMultiplier(scale float32)
	ResetScaleMultiplier()

	// HasLoras reports whether LoRA weights are baked into the module, in
	// which case it must be unloaded after the run rather than kept warm.
	HasLoras() bool
	Unload()
}

package ml

import "fmt"

// Spatial region operations over 4-D [batch, channel, height, width] tensors.
// These back the tile crop and scatter steps of the batching engine.

func (t *Tensor) check4D() (b, c, h, w int) {
	if len(t.shape) != 4 {
		panic(fmt.Sprintf("ml: expected 4-D tensor, got shape %v", t.shape))
	}

	return t.shape[0], t.shape[1], t.shape[2], t.shape[3]
}

// Area copies the spatial region t[:, :, y:y+h, x:x+w].
func (t *Tensor) Area(y, x, h, w int) *Tensor {
	tb, tc, th, tw := t.check4D()
	if y < 0 || x < 0 || y+h > th || x+w > tw {
		panic(fmt.Sprintf("ml: area (%d,%d)+(%dx%d) outside %dx%d", y, x, h, w, th, tw))
	}

	out := New(tb, tc, h, w)
	for b := 0; b < tb; b++ {
		for c := 0; c < tc; c++ {
			for row := 0; row < h; row++ {
				src := ((b*tc+c)*th+(y+row))*tw + x
				dst := ((b*tc+c)*h+row)*w
				copy(out.data[dst:dst+w], t.data[src:src+w])
			}
		}
	}

	return out
}

// AccumulateArea adds src into the spatial region of t starting at (y, x).
// src must match t in batch and channel dimensions.
func (t *Tensor) AccumulateArea(src *Tensor, y, x int) {
	tb, tc, th, tw := t.check4D()
	sb, sc, sh, sw := src.check4D()
	if sb != tb || sc != tc || y+sh > th || x+sw > tw {
		panic(fmt.Sprintf("ml: accumulate %v at (%d,%d) outside %v", src.shape, y, x, t.shape))
	}

	for b := 0; b < tb; b++ {
		for c := 0; c < tc; c++ {
			for row := 0; row < sh; row++ {
				dst := ((b*tc+c)*th+(y+row))*tw + x
				s := ((b*tc+c)*sh+row)*sw
				for col := 0; col < sw; col++ {
					t.data[dst+col] += src.data[s+col]
				}
			}
		}
	}
}

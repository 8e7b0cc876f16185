package ml

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFromFloatSlice(t *testing.T) {
	_, err := FromFloatSlice([]float32{1, 2, 3}, 2, 2)
	require.Error(t, err)

	tn, err := FromFloatSlice([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	require.Equal(t, []int{2, 2}, tn.Shape())
	require.Equal(t, 4, tn.Numel())
}

func TestRows(t *testing.T) {
	tn, err := FromFloatSlice([]float32{
		0, 0,
		1, 10,
		2, 20,
		3, 30,
	}, 4, 2)
	require.NoError(t, err)

	cases := []struct {
		name    string
		indices []int
		want    []float32
	}{
		{"ordered subset", []int{0, 2}, []float32{0, 0, 2, 20}},
		{"reordered", []int{3, 1}, []float32{3, 30, 1, 10}},
		{"duplicates", []int{1, 1, 2}, []float32{1, 10, 1, 10, 2, 20}},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := tn.Rows(tt.indices)
			if diff := cmp.Diff(tt.want, got.Data()); diff != "" {
				t.Errorf("rows mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, len(tt.indices), got.Dim(0))
		})
	}
}

func TestScatterAddRowsAccumulatesDuplicates(t *testing.T) {
	dst := New(3, 2)
	src, err := FromFloatSlice([]float32{1, 1, 2, 2, 4, 4}, 3, 2)
	require.NoError(t, err)

	dst.ScatterAddRows([]int{0, 2, 2}, src)
	require.Equal(t, []float32{1, 1, 0, 0, 6, 6}, dst.Data())
}

func TestAddRowsDivRowwise(t *testing.T) {
	tn, err := FromFloatSlice([]float32{2, 4, 6, 8}, 2, 2)
	require.NoError(t, err)

	counts := New(2, 1)
	counts.AddRows([]int{0, 1, 1}, 1)
	require.Equal(t, []float32{1, 2}, counts.Data())

	got := tn.DivRowwise(counts)
	require.Equal(t, []float32{2, 4, 3, 4}, got.Data())
}

func TestConcatChunkTile(t *testing.T) {
	a, _ := FromFloatSlice([]float32{1, 2}, 1, 2)
	b, _ := FromFloatSlice([]float32{3, 4}, 1, 2)

	cat := Concat([]*Tensor{a, b})
	require.Equal(t, []int{2, 2}, cat.Shape())
	require.Equal(t, []float32{1, 2, 3, 4}, cat.Data())

	chunks := cat.Chunk(2)
	require.Len(t, chunks, 2)
	require.Equal(t, []float32{1, 2}, chunks[0].Data())
	require.Equal(t, []float32{3, 4}, chunks[1].Data())

	tiled := a.Tile(3)
	require.Equal(t, []int{3, 2}, tiled.Shape())
	require.Equal(t, []float32{1, 2, 1, 2, 1, 2}, tiled.Data())
}

func TestElementwise(t *testing.T) {
	a, _ := FromFloatSlice([]float32{1, 2, 3, 4}, 2, 2)
	b, _ := FromFloatSlice([]float32{2, 2, 2, 2}, 2, 2)

	require.Equal(t, []float32{3, 4, 5, 6}, a.Add(b).Data())
	require.Equal(t, []float32{-1, 0, 1, 2}, a.Sub(b).Data())
	require.Equal(t, []float32{2, 4, 6, 8}, a.Mul(b).Data())
	require.Equal(t, []float32{0.5, 1, 1.5, 2}, a.Div(b).Data())
	require.Equal(t, []float32{3, 6, 9, 12}, a.Scale(3).Data())

	// inputs are untouched
	require.Equal(t, []float32{1, 2, 3, 4}, a.Data())
}

func TestAreaRoundTrip(t *testing.T) {
	tn := New(1, 1, 4, 4)
	for i := range tn.Data() {
		tn.Data()[i] = float32(i)
	}

	area := tn.Area(1, 2, 2, 2)
	require.Equal(t, []int{1, 1, 2, 2}, area.Shape())
	require.Equal(t, []float32{6, 7, 10, 11}, area.Data())

	dst := New(1, 1, 4, 4)
	dst.AccumulateArea(area, 1, 2)
	dst.AccumulateArea(area, 1, 2)
	require.Equal(t, float32(12), dst.Data()[6])
	require.Equal(t, float32(22), dst.Data()[11])
	require.Equal(t, float32(0), dst.Data()[0])
}

func TestGroupNorm(t *testing.T) {
	tn, err := FromFloatSlice([]float32{1, 3, 10, 30}, 2, 2, 1, 1)
	require.NoError(t, err)

	got := GroupNorm(tn, 1, nil, nil, 1e-9)
	require.InDelta(t, -1, got.Data()[0], 1e-4)
	require.InDelta(t, 1, got.Data()[1], 1e-4)
	require.InDelta(t, -1, got.Data()[2], 1e-4)
	require.InDelta(t, 1, got.Data()[3], 1e-4)
}

func TestGroupNormFramesSharesStatistics(t *testing.T) {
	// Two frames of one sequence with different means. Normalizing them
	// jointly must not center each frame at zero individually.
	tn, err := FromFloatSlice([]float32{0, 0, 10, 10}, 2, 1, 2, 1)
	require.NoError(t, err)

	joint := GroupNormFrames(tn, 2, 1, nil, nil, 1e-9)
	require.InDelta(t, -1, joint.Data()[0], 1e-4)
	require.InDelta(t, 1, joint.Data()[2], 1e-4)

	perFrame := GroupNormFrames(tn, 1, 1, nil, nil, 1e-5)
	require.InDelta(t, 0, perFrame.Data()[0], 1e-2)
	require.InDelta(t, 0, perFrame.Data()[2], 1e-2)
}

func TestGroupNormAffine(t *testing.T) {
	tn, err := FromFloatSlice([]float32{1, 3}, 1, 1, 2, 1)
	require.NoError(t, err)

	got := GroupNorm(tn, 1, []float32{2}, []float32{5}, 1e-9)
	require.InDelta(t, 3, got.Data()[0], 1e-4)
	require.InDelta(t, 7, got.Data()[1], 1e-4)
}

func TestFromFloat16Slice(t *testing.T) {
	// 0x3C00 is 1.0, 0xC000 is -2.0 in IEEE half precision.
	tn, err := FromFloat16Slice([]uint16{0x3C00, 0xC000}, 2)
	require.NoError(t, err)
	require.Equal(t, []float32{1, -2}, tn.Data())
}

func TestRandnDeterministic(t *testing.T) {
	a := Randn(42, 2, 3)
	b := Randn(42, 2, 3)
	c := Randn(7, 2, 3)

	require.Equal(t, a.Data(), b.Data())
	require.NotEqual(t, a.Data(), c.Data())
	require.Equal(t, []int{2, 3}, a.Shape())
}

func TestDump(t *testing.T) {
	tn, _ := FromFloatSlice([]float32{1, 2, 3, 4}, 2, 2)
	got := Dump(tn, DumpOptions{Items: 3, Precision: 1})
	require.Equal(t, "[[1.0, 2.0],\n [3.0, 4.0]]", got)
}

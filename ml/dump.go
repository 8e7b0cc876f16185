package ml

import (
	"fmt"
	"strconv"
	"strings"
)

type DumpOptions struct {
	// Items is the number of elements to print at the beginning and end of each dimension.
	Items int

	// Precision is the number of decimal places to print.
	Precision int
}

// Dump renders a tensor for debugging, eliding interior elements of large
// dimensions.
func Dump(t *Tensor, opts ...DumpOptions) string {
	if len(opts) < 1 {
		opts = append(opts, DumpOptions{
			Items:     3,
			Precision: 4,
		})
	}

	var sb strings.Builder
	var f func(dims []int, offset int)
	f = func(dims []int, offset int) {
		prefix := strings.Repeat(" ", len(t.shape)-len(dims)+1)
		stride := mul(dims[1:]...)

		fmt.Fprint(&sb, "[")
		defer func() { fmt.Fprint(&sb, "]") }()

		for i := 0; i < dims[0]; i++ {
			if i >= opts[0].Items && i < dims[0]-opts[0].Items {
				fmt.Fprint(&sb, "..., ")
				skip := dims[0] - 2*opts[0].Items
				if len(dims) > 1 {
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], offset+i*stride)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				fmt.Fprint(&sb, strconv.FormatFloat(float64(t.data[offset+i]), 'f', opts[0].Precision, 32))
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ", ")
				}
			}
		}
	}
	f(t.shape, 0)

	return sb.String()
}

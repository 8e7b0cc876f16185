package sampler

import (
	"fmt"
)

// projectConditioning re-indexes a branch's conditioning entries onto the
// frame rows named by rows. rows are full-batch row numbers (already
// expanded across axis repeats) and may contain duplicates; window holds the
// raw frame indices the control chain is scoped to.
func projectConditioning(entries []*Conditioning, rows, window []int, fullBatch, fullLength, windowLength int) ([]*Conditioning, error) {
	if entries == nil {
		return nil, nil
	}

	out := make([]*Conditioning, 0, len(entries))
	for _, entry := range entries {
		projected, err := projectEntry(entry, rows, window, fullBatch, fullLength, windowLength)
		if err != nil {
			return nil, err
		}

		out = append(out, projected)
	}

	return out, nil
}

func projectEntry(entry *Conditioning, rows, window []int, fullBatch, fullLength, windowLength int) (*Conditioning, error) {
	out := entry.clone()

	if entry.Mask != nil && entry.Mask.Dim(0) == fullBatch {
		out.Mask = entry.Mask.Rows(rows)
	}

	if entry.ModelConds != nil {
		out.ModelConds = make(map[string]Concatable, len(entry.ModelConds))
		for k, v := range entry.ModelConds {
			out.ModelConds[k] = projectConcatable(v, rows, fullBatch)
		}
	}

	if entry.Values != nil {
		values := make(map[string]CondValue, len(entry.Values))
		for k, v := range entry.Values {
			values[k] = projectValue(v, rows, fullBatch)
		}

		out.Values = values
	}

	if entry.Control != nil {
		if err := scopeControlChain(entry.Control, window, fullLength, windowLength); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func projectConcatable(v Concatable, indices []int, fullBatch int) Concatable {
	if inner := v.Inner(); inner != nil && inner.Dim(0) == fullBatch {
		return v.CopyWith(inner.Rows(indices))
	}

	return v
}

// projectValue applies the per-frame rule to auxiliary values, recursing one
// level into nested maps. Scalars pass through by reference.
func projectValue(v CondValue, indices []int, fullBatch int) CondValue {
	switch v := v.(type) {
	case TensorValue:
		if v.Tensor != nil && v.Tensor.Dim(0) == fullBatch {
			return TensorValue{Tensor: v.Tensor.Rows(indices)}
		}
		return v
	case WrappedValue:
		return WrappedValue{Wrapped: projectConcatable(v.Wrapped, indices, fullBatch)}
	case MapValue:
		values := make(map[string]CondValue, len(v.Values))
		for k, nested := range v.Values {
			switch nested := nested.(type) {
			case TensorValue:
				values[k] = projectValue(nested, indices, fullBatch)
			case WrappedValue:
				values[k] = projectValue(nested, indices, fullBatch)
			default:
				values[k] = nested
			}
		}
		return MapValue{Values: values}
	default:
		return v
	}
}

// scopeControlChain walks the chain through its previous links and rescopes
// each to the current window. Every link is shared state mutated in place;
// the values hold only until the next window is projected.
func scopeControlChain(c ControlHandle, window []int, fullLength, windowLength int) error {
	for link := c; link != nil; link = link.Prev() {
		windowed, ok := link.(WindowedControl)
		if !ok {
			return fmt.Errorf("%w: %T has no window scope", ErrUnsupportedControl, link)
		}

		windowed.SetWindow(window, fullLength, windowLength)
	}

	return nil
}

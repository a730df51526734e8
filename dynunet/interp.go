package dynunet

import (
	"log"
	"reflect"

	ts "github.com/sugarme/gotch/tensor"
)

// interpolation using `nearest` algorithm
// x should be in shape [Batch C *spatial]; size holds the target spatial dims.
func upsample(x *ts.Tensor, size []int64) *ts.Tensor {
	xSize := x.MustSize()
	if reflect.DeepEqual(xSize[2:], size) {
		return x.MustShallowClone()
	}

	switch len(size) {
	case 2:
		return x.MustUpsampleNearest2d(size, nil, nil, false)
	case 3:
		return x.MustUpsampleNearest3d(size, nil, nil, nil, false)
	}

	log.Fatalf("Unsupported interpolation to size %v\n", size)
	return nil
}

// stackHeads resizes every head output to the spatial size of segOut and
// stacks them behind it on a new axis 1:
// [batch, 1+len(heads), channels, *spatial].
// segOut and heads are consumed.
func stackHeads(segOut *ts.Tensor, heads []*ts.Tensor) *ts.Tensor {
	segSize := segOut.MustSize()

	outAll := []ts.Tensor{*segOut}
	var resized []*ts.Tensor
	for i, h := range heads {
		if h == nil {
			log.Fatalf("Deep supervision head %v was not written during this pass\n", i)
		}
		r := upsample(h, segSize[2:])
		h.MustDrop()
		if rSize := r.MustSize(); !reflect.DeepEqual(rSize, segSize) {
			log.Fatalf("Deep supervision head %v has shape %v, expected %v\n", i, rSize, segSize)
		}
		outAll = append(outAll, *r)
		resized = append(resized, r)
	}

	stacked := ts.MustStack(outAll, 1)
	segOut.MustDrop()
	for _, r := range resized {
		r.MustDrop()
	}

	return stacked
}

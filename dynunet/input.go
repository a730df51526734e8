package dynunet

import (
	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/base"
)

// sizeUnit is the per-axis divisor of a valid input: 2 * product of strides.
func (n *DynUNet) sizeUnit() []int64 {
	unit := base.Product(n.plan.strides, n.plan.spatialDims)
	for i := range unit {
		unit[i] *= 2
	}
	return unit
}

// MinInputSize returns the smallest spatial input size the network accepts.
func (n *DynUNet) MinInputSize() []int64 {
	return n.sizeUnit()
}

// ValidInputSize rounds each spatial dim of size up to the nearest size the
// network accepts.
func (n *DynUNet) ValidInputSize(size []int64) []int64 {
	unit := n.sizeUnit()
	out := make([]int64, len(unit))
	for i, u := range unit {
		v := size[i]
		if v < u {
			v = u
		}
		out[i] = (v + u - 1) / u * u
	}
	return out
}

// OutputSize returns the spatial size of the segmentation output for a
// valid spatial input size: the input divided by the first stride.
func (n *DynUNet) OutputSize(size []int64) []int64 {
	first := n.plan.strides[0].Expand(n.plan.spatialDims)
	out := make([]int64, len(first))
	for i, s := range first {
		out[i] = size[i] / s
	}
	return out
}

// CheckInput reports whether x has the rank, channels and spatial size the
// network accepts.
func (n *DynUNet) CheckInput(x *ts.Tensor) error {
	size := x.MustSize()
	rank := int(n.plan.spatialDims) + 2
	if len(size) != rank {
		return errors.Wrapf(ErrShape, "expected input of %d dimensions [batch, channels, *spatial]. Got %v", rank, size)
	}
	if size[1] != n.config.InChannels {
		return errors.Wrapf(ErrShape, "expected %d input channels. Got %d", n.config.InChannels, size[1])
	}
	for i, u := range n.sizeUnit() {
		if size[i+2]%u != 0 {
			return errors.Wrapf(ErrShape, "spatial dim %d (%d) should be divisible by %d", i, size[i+2], u)
		}
	}

	return nil
}

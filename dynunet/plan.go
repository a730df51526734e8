package dynunet

import (
	"github.com/pkg/errors"

	"github.com/sugarme/dynunet/base"
)

// plan is a validated Config with every per-stage sequence resolved.
type plan struct {
	spatialDims int64
	filters     []int64
	kernels     []base.Size
	strides     []base.Size
	// upPaddings holds the output padding of each upsample block in build
	// order, from the bottleneck up to the input resolution.
	upPaddings []base.Size
}

// stages is the number of stages, input block and bottleneck included.
func (p *plan) stages() int {
	return len(p.strides)
}

// DeriveFilters returns the default channels of n stages:
// min(2^(5+i), cap) with cap 320 for 3-d and 512 otherwise.
func DeriveFilters(spatialDims int64, n int) []int64 {
	var limit int64 = 512
	if spatialDims == 3 {
		limit = 320
	}

	filters := make([]int64, n)
	for i := range filters {
		f := int64(1) << uint(5+i)
		if f > limit {
			f = limit
		}
		filters[i] = f
	}

	return filters
}

// newPlan validates c. It runs before any variable is created so a failed
// construction leaves nothing behind.
func newPlan(c *Config) (*plan, error) {
	if err := checkScalars(c); err != nil {
		return nil, err
	}
	if err := checkKernelStride(c); err != nil {
		return nil, err
	}
	upPaddings, err := checkOutputPaddings(c)
	if err != nil {
		return nil, err
	}
	filters, err := checkFilters(c)
	if err != nil {
		return nil, err
	}

	upsamples := len(c.Strides) - 1
	if c.DeepSuprNum <= 0 || c.DeepSuprNum >= upsamples {
		return nil, errors.Wrapf(ErrDeepSupervisionRange,
			"deep_supr_num should be larger than 0 and less than the number of up sample layers (%d). Got %d", upsamples, c.DeepSuprNum)
	}

	return &plan{
		spatialDims: c.SpatialDims,
		filters:     filters,
		kernels:     c.KernelSize,
		strides:     c.Strides,
		upPaddings:  upPaddings,
	}, nil
}

func checkScalars(c *Config) error {
	if c.SpatialDims != 2 && c.SpatialDims != 3 {
		return errors.Wrapf(ErrInvalidConfig, "spatial_dims should be 2 or 3. Got %d", c.SpatialDims)
	}
	if c.InChannels <= 0 || c.ClsOutChannels <= 0 || c.SegOutChannels <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "channel counts should be positive. Got in=%d cls=%d seg=%d",
			c.InChannels, c.ClsOutChannels, c.SegOutChannels)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Wrapf(ErrInvalidConfig, "dropout should be in [0, 1). Got %v", c.Dropout)
	}
	if c.PoolFmap <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "pool_fmap should be positive. Got %d", c.PoolFmap)
	}
	if err := c.PoolType.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := c.Norm.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if err := c.Act.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	return nil
}

func positive(s base.Size) bool {
	for _, v := range s {
		if v <= 0 {
			return false
		}
	}
	return len(s) > 0
}

func checkKernelStride(c *Config) error {
	kernels, strides := c.KernelSize, c.Strides
	if len(kernels) != len(strides) || len(kernels) < 3 {
		return errors.Wrapf(ErrLengthMismatch,
			"length of kernel_size (%d) and strides (%d) should be the same, and no less than 3", len(kernels), len(strides))
	}

	for idx := range kernels {
		kernel, stride := kernels[idx], strides[idx]
		if !kernel.Fits(c.SpatialDims) {
			return errors.Wrapf(ErrShape, "length of kernel_size in block %d should be the same as spatial_dims (%d). Got %v",
				idx, c.SpatialDims, kernel)
		}
		if !stride.Fits(c.SpatialDims) {
			return errors.Wrapf(ErrShape, "length of stride in block %d should be the same as spatial_dims (%d). Got %v",
				idx, c.SpatialDims, stride)
		}
		if !positive(kernel) || !positive(stride) {
			return errors.Wrapf(ErrShape, "kernel_size and stride in block %d should be positive. Got %v, %v", idx, kernel, stride)
		}
		if _, err := base.Padding(kernel, stride, c.SpatialDims); err != nil {
			return errors.Wrapf(ErrShape, "block %d: %v", idx, err)
		}
		// a stride 1 conv keeps the size only when kernel - 1 is even
		k, st := kernel.Expand(c.SpatialDims), stride.Expand(c.SpatialDims)
		for axis := range k {
			if st[axis] == 1 && k[axis]%2 == 0 {
				return errors.Wrapf(ErrShape, "block %d: stride 1 needs an odd kernel_size. Got %v", idx, kernel)
			}
		}
	}

	return nil
}

// checkOutputPaddings returns the output paddings in upsample build order.
// The list is read backwards and only its last len(strides)-1 entries are
// used: the last entry pairs with the bottleneck stride, the one before it
// with the stride above, and so on. An empty list derives every padding.
// Each used entry must bring the upsampled tensor back to the resolution of
// its skip tensor.
func checkOutputPaddings(c *Config) ([]base.Size, error) {
	n := len(c.Strides) - 1
	paddings := c.OutputPaddings
	if len(paddings) > 0 && len(paddings) < n {
		return nil, errors.Wrapf(ErrLengthMismatch,
			"length of output_paddings should be no less than %d. Got %d", n, len(paddings))
	}

	up := make([]base.Size, n)
	for j := 0; j < n; j++ {
		stage := len(c.Strides) - 1 - j
		want, err := base.OutputPadding(c.KernelSize[stage], c.Strides[stage], c.SpatialDims)
		if err != nil {
			return nil, errors.Wrapf(ErrShape, "upsample of block %d: %v", stage, err)
		}
		if len(paddings) == 0 {
			up[j] = base.Size(want)
			continue
		}

		idx := len(paddings) - 1 - j
		op := paddings[idx]
		if !op.Fits(c.SpatialDims) {
			return nil, errors.Wrapf(ErrShape, "length of output_padding %d should be the same as spatial_dims (%d). Got %v",
				idx, c.SpatialDims, op)
		}
		for axis, v := range op.Expand(c.SpatialDims) {
			if v != want[axis] {
				return nil, errors.Wrapf(ErrShape,
					"output_padding %d (%v) does not restore the skip resolution for kernel %v and stride %v. Expected %v",
					idx, op, c.KernelSize[stage], c.Strides[stage], base.Size(want))
			}
		}
		up[j] = op
	}

	return up, nil
}

func checkFilters(c *Config) ([]int64, error) {
	n := len(c.Strides)
	filters := c.Filters
	if filters == nil {
		filters = DeriveFilters(c.SpatialDims, n)
	}
	if len(filters) < n {
		return nil, errors.Wrapf(ErrInsufficientFilters,
			"length of filters (%d) should be no less than the length of strides (%d)", len(filters), n)
	}

	out := make([]int64, n)
	copy(out, filters[:n])
	for i, f := range out {
		if f <= 0 {
			return nil, errors.Wrapf(ErrInvalidConfig, "filters[%d] should be positive. Got %d", i, f)
		}
	}

	return out, nil
}

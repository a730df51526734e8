package base

import (
	"log"
	"strings"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// OutBlock projects features to output channels with a 1x1 conv.
// It is used for the segmentation output and the deep supervision heads.
type OutBlock struct {
	Conv *Conv
	Drop ts.ModuleT
}

// NewOutBlock creates an OutBlock.
func NewOutBlock(p *nn.Path, spatialDims, cIn, cOut int64, dropout float64) *OutBlock {
	config := DefaultConvConfig(spatialDims)
	config.Bias = true

	return &OutBlock{
		Conv: NewConv(p.Sub("conv"), spatialDims, cIn, cOut, fill(spatialDims, 1), config),
		Drop: NewDropout(dropout),
	}
}

// ForwardT implements ts.ModuleT for OutBlock.
func (o *OutBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c := o.Conv.ForwardT(x, train)
	out := o.Drop.ForwardT(c, train)
	c.MustDrop()

	return out
}

// Convs implements ConvHolder.
func (o *OutBlock) Convs() []*Conv {
	return []*Conv{o.Conv}
}

// PoolType names the adaptive pooling of a ClsOutBlock.
type PoolType string

const (
	PoolMax PoolType = "max"
	PoolAvg PoolType = "avg"
)

// ParsePool parses "max" or "avg".
func ParsePool(name string) (PoolType, error) {
	t := PoolType(strings.ToLower(strings.TrimSpace(name)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate rejects unknown pool types.
func (t PoolType) Validate() error {
	switch t {
	case PoolMax, PoolAvg:
		return nil
	}
	return errors.Errorf("unsupported pool type %q", t)
}

// ClsOutBlock pools a feature map to PoolFmap cells per spatial axis,
// flattens it and projects to class logits.
type ClsOutBlock struct {
	SpatialDims int64
	PoolType    PoolType
	PoolFmap    int64
	Linear      *nn.Linear
}

// NewClsOutBlock creates a ClsOutBlock. The output has shape [batch, cOut].
func NewClsOutBlock(p *nn.Path, spatialDims, cIn, cOut int64, poolType PoolType, poolFmap int64) *ClsOutBlock {
	features := cIn
	for i := int64(0); i < spatialDims; i++ {
		features *= poolFmap
	}

	return &ClsOutBlock{
		SpatialDims: spatialDims,
		PoolType:    poolType,
		PoolFmap:    poolFmap,
		Linear:      nn.NewLinear(p.Sub("fc"), features, cOut, nn.DefaultLinearConfig()),
	}
}

func (c *ClsOutBlock) pool(x *ts.Tensor) *ts.Tensor {
	size := fill(c.SpatialDims, c.PoolFmap)
	switch {
	case c.PoolType == PoolAvg && c.SpatialDims == 2:
		return x.MustAdaptiveAvgPool2d(size, false)
	case c.PoolType == PoolAvg && c.SpatialDims == 3:
		return x.MustAdaptiveAvgPool3d(size, false)
	case c.PoolType == PoolMax && (c.SpatialDims == 2 || c.SpatialDims == 3):
		return AdaptiveMaxPool(x, size)
	}

	log.Fatalf("Unsupported pooling %q for %v spatial dimensions\n", c.PoolType, c.SpatialDims)
	return nil
}

// poolBounds returns the [start, end) of cell i when in elements are pooled
// into out cells: floor(i*in/out) to ceil((i+1)*in/out).
func poolBounds(i, in, out int64) (start, end int64) {
	start = i * in / out
	end = ((i+1)*in + out - 1) / out
	return start, end
}

// AdaptiveMaxPool max pools x [batch, channels, *spatial] to size cells per
// spatial axis, with the cell bounds of adaptive pooling.
func AdaptiveMaxPool(x *ts.Tensor, size []int64) *ts.Tensor {
	xSize := x.MustSize()
	spatial := xSize[2:]
	if len(spatial) != len(size) {
		log.Fatalf("Expected %v spatial dimensions. Got input of shape %v\n", len(size), xSize)
	}
	dims := make([]int64, len(size))
	for i := range dims {
		dims[i] = int64(i + 2)
	}

	// cells in row-major order
	var cells []ts.Tensor
	var visit func(axis int, region *ts.Tensor)
	visit = func(axis int, region *ts.Tensor) {
		if axis == len(size) {
			cells = append(cells, *region.MustAmax(dims, false, false))
			return
		}
		for i := int64(0); i < size[axis]; i++ {
			start, end := poolBounds(i, spatial[axis], size[axis])
			narrowed := region.MustNarrow(int64(axis+2), start, end-start, false)
			visit(axis+1, narrowed)
			narrowed.MustDrop()
		}
	}
	visit(0, x)

	stacked := ts.MustStack(cells, 2)
	for i := range cells {
		cells[i].MustDrop()
	}

	return stacked.MustView(append(xSize[:2:2], size...), true)
}

// ForwardT implements ts.ModuleT for ClsOutBlock.
func (c *ClsOutBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	pooled := c.pool(x)
	batch := pooled.MustSize()[0]
	flat := pooled.MustView([]int64{batch, -1}, true)
	out := c.Linear.Forward(flat)
	flat.MustDrop()

	return out
}

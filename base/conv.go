package base

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// ConvConfig holds the per-axis settings of a Conv.
type ConvConfig struct {
	Stride        []int64
	Padding       []int64
	OutputPadding []int64 // transposed only
	Dilation      []int64
	Bias          bool
	Transposed    bool
}

// DefaultConvConfig returns a stride 1, unpadded, bias-free config.
func DefaultConvConfig(spatialDims int64) *ConvConfig {
	return &ConvConfig{
		Stride:        fill(spatialDims, 1),
		Padding:       fill(spatialDims, 0),
		OutputPadding: fill(spatialDims, 0),
		Dilation:      fill(spatialDims, 1),
		Bias:          false,
	}
}

func fill(n, v int64) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Conv is a 2-d or 3-d convolution, optionally transposed.
//
// Weights are laid out [cOut, cIn, k...] for convolutions and
// [cIn, cOut, k...] for transposed convolutions, as in libtorch.
type Conv struct {
	Ws          *ts.Tensor
	Bs          *ts.Tensor
	SpatialDims int64
	Config      *ConvConfig
}

// NewConv creates a Conv with variables `weight` and, if configured, `bias`
// under p.
func NewConv(p *nn.Path, spatialDims, cIn, cOut int64, kernel []int64, config *ConvConfig) *Conv {
	if int64(len(kernel)) != spatialDims {
		log.Fatalf("Expected kernel of %v dimensions. Got %v\n", spatialDims, kernel)
	}

	dims := append([]int64{cOut, cIn}, kernel...)
	if config.Transposed {
		dims = append([]int64{cIn, cOut}, kernel...)
	}
	ws := p.NewVar("weight", dims, nn.NewKaimingUniformInit())

	bs := ts.NewTensor()
	if config.Bias {
		bs = p.Zeros("bias", []int64{cOut})
	}

	return &Conv{
		Ws:          ws,
		Bs:          bs,
		SpatialDims: spatialDims,
		Config:      config,
	}
}

// HasBias reports whether the conv was built with a bias variable.
func (c *Conv) HasBias() bool {
	return c.Config.Bias
}

// Forward implements ts.Module for Conv.
func (c *Conv) Forward(x *ts.Tensor) *ts.Tensor {
	cfg := c.Config
	switch {
	case c.SpatialDims == 2 && !cfg.Transposed:
		return ts.MustConv2d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, cfg.Dilation, 1)
	case c.SpatialDims == 3 && !cfg.Transposed:
		return ts.MustConv3d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, cfg.Dilation, 1)
	case c.SpatialDims == 2:
		return ts.MustConvTranspose2d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, cfg.OutputPadding, 1, cfg.Dilation)
	case c.SpatialDims == 3:
		return ts.MustConvTranspose3d(x, c.Ws, c.Bs, cfg.Stride, cfg.Padding, cfg.OutputPadding, 1, cfg.Dilation)
	}

	log.Fatalf("Unsupported spatial dimensions: %v\n", c.SpatialDims)
	return nil
}

// ForwardT implements ts.ModuleT for Conv.
func (c *Conv) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return c.Forward(x)
}

// ConvHolder is implemented by blocks owning convolutions. It lets the
// weight initialisation pass reach every conv of a network.
type ConvHolder interface {
	Convs() []*Conv
}

package dynunet

import (
	"fmt"

	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/dynunet/base"
)

// stages holds every block of a network before they are composed.
type stages struct {
	input       base.ConvBlock
	downsamples []base.ConvBlock
	bottleneck  base.ConvBlock
	// upsamples are in build order: bottleneck first, input resolution last.
	upsamples  []*base.UpBlock
	superHeads []*base.OutBlock
	clsOutput  *base.ClsOutBlock
	segOutput  *base.OutBlock
}

// convs lists every convolution of the network.
func (s *stages) convs() []*base.Conv {
	var convs []*base.Conv
	convs = append(convs, s.input.Convs()...)
	for _, d := range s.downsamples {
		convs = append(convs, d.Convs()...)
	}
	convs = append(convs, s.bottleneck.Convs()...)
	for _, u := range s.upsamples {
		convs = append(convs, u.Convs()...)
	}
	for _, h := range s.superHeads {
		convs = append(convs, h.Convs()...)
	}
	convs = append(convs, s.segOutput.Convs()...)

	return convs
}

// buildStages instantiates every block of a validated plan under p.
func buildStages(p *nn.Path, c *Config, pl *plan) *stages {
	convBlock := base.ConvBlockFn(base.NewBasicBlock)
	if c.ResBlock {
		convBlock = base.NewResBlock
	}
	opts := c.Options()
	dims := pl.spatialDims
	filters := pl.filters
	n := pl.stages()

	s := &stages{}

	s.input = convBlock(p.Sub("input_block"), dims, c.InChannels, filters[0], pl.kernels[0], pl.strides[0], opts)

	// filters[:-2] -> filters[1:-1] with the middle kernels and strides.
	down := p.Sub("downsamples")
	for i := 0; i < n-2; i++ {
		s.downsamples = append(s.downsamples,
			convBlock(down.Sub(fmt.Sprint(i)), dims, filters[i], filters[i+1], pl.kernels[i+1], pl.strides[i+1], opts))
	}

	s.bottleneck = convBlock(p.Sub("bottleneck"), dims, filters[n-2], filters[n-1], pl.kernels[n-1], pl.strides[n-1], opts)

	// Reversed: block j maps filters[n-1-j] -> filters[n-2-j].
	up := p.Sub("upsamples")
	for j := 0; j < n-1; j++ {
		k := n - 1 - j
		s.upsamples = append(s.upsamples,
			base.NewUpBlock(up.Sub(fmt.Sprint(j)), dims, filters[k], filters[k-1], pl.kernels[k], pl.strides[k], pl.upPaddings[j], opts, c.TransBias))
	}

	s.clsOutput = base.NewClsOutBlock(p.Sub("cls_output_block"), dims, filters[n-1], c.ClsOutChannels, c.PoolType, c.PoolFmap)
	s.segOutput = base.NewOutBlock(p.Sub("seg_output_block"), dims, filters[0], c.SegOutChannels, c.Dropout)

	// Head i reads the upsample output one level below the surface.
	heads := p.Sub("deep_supervision_heads")
	for i := 0; i < c.DeepSuprNum; i++ {
		s.superHeads = append(s.superHeads,
			base.NewOutBlock(heads.Sub(fmt.Sprint(i)), dims, filters[i+1], c.SegOutChannels, c.Dropout))
	}

	return s
}

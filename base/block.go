package base

import (
	"log"

	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"
)

// Options are the normalization, activation and dropout shared by every
// block of a network.
type Options struct {
	Norm    Norm
	Act     Act
	Dropout float64
}

// DefaultOptions returns instance norm, leaky relu and no dropout.
func DefaultOptions() Options {
	return Options{Norm: DefaultNorm(), Act: DefaultAct()}
}

// ConvBlock is a conv block usable as an input, downsample or bottleneck
// stage.
type ConvBlock interface {
	ts.ModuleT
	ConvHolder
}

// ConvBlockFn builds a ConvBlock. NewBasicBlock and NewResBlock share it.
type ConvBlockFn func(p *nn.Path, spatialDims, cIn, cOut int64, kernel, stride Size, opts Options) ConvBlock

func stageConv(p *nn.Path, spatialDims, cIn, cOut int64, kernel, stride Size, bias bool) *Conv {
	k := kernel.Expand(spatialDims)
	s := stride.Expand(spatialDims)
	pad, err := samePadding(k, s)
	if err != nil {
		log.Fatal(err)
	}

	config := DefaultConvConfig(spatialDims)
	config.Stride = s
	config.Padding = pad
	config.Bias = bias

	return NewConv(p, spatialDims, cIn, cOut, k, config)
}

// BasicBlock is conv -> norm -> dropout -> act applied twice, the first conv
// carrying the stage stride.
type BasicBlock struct {
	Conv1 *Conv
	Norm1 ts.ModuleT
	Conv2 *Conv
	Norm2 ts.ModuleT
	Drop  ts.ModuleT
	Act   ts.ModuleT
}

// NewBasicBlock creates a BasicBlock.
func NewBasicBlock(p *nn.Path, spatialDims, cIn, cOut int64, kernel, stride Size, opts Options) ConvBlock {
	return &BasicBlock{
		Conv1: stageConv(p.Sub("conv1"), spatialDims, cIn, cOut, kernel, stride, false),
		Norm1: NewNorm(p.Sub("norm1"), spatialDims, cOut, opts.Norm),
		Conv2: stageConv(p.Sub("conv2"), spatialDims, cOut, cOut, kernel, Scalar(1), false),
		Norm2: NewNorm(p.Sub("norm2"), spatialDims, cOut, opts.Norm),
		Drop:  NewDropout(opts.Dropout),
		Act:   NewAct(opts.Act),
	}
}

func normDropAct(x *ts.Tensor, norm, drop, act ts.ModuleT, train bool) *ts.Tensor {
	n := norm.ForwardT(x, train)
	d := drop.ForwardT(n, train)
	n.MustDrop()
	a := act.ForwardT(d, train)
	d.MustDrop()

	return a
}

// ForwardT implements ts.ModuleT for BasicBlock.
func (b *BasicBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.Conv1.ForwardT(x, train)
	a1 := normDropAct(c1, b.Norm1, b.Drop, b.Act, train)
	c1.MustDrop()
	c2 := b.Conv2.ForwardT(a1, train)
	a1.MustDrop()
	out := normDropAct(c2, b.Norm2, b.Drop, b.Act, train)
	c2.MustDrop()

	return out
}

// Convs implements ConvHolder.
func (b *BasicBlock) Convs() []*Conv {
	return []*Conv{b.Conv1, b.Conv2}
}

// ResBlock is a BasicBlock with a residual connection. The residual path
// gets a 1x1 conv and norm when channels or resolution change.
type ResBlock struct {
	Conv1 *Conv
	Norm1 ts.ModuleT
	Conv2 *Conv
	Norm2 ts.ModuleT
	Conv3 *Conv      // nil when the residual is the input itself
	Norm3 ts.ModuleT // nil when Conv3 is nil
	Drop  ts.ModuleT
	Act   ts.ModuleT
}

// NewResBlock creates a ResBlock.
func NewResBlock(p *nn.Path, spatialDims, cIn, cOut int64, kernel, stride Size, opts Options) ConvBlock {
	b := &ResBlock{
		Conv1: stageConv(p.Sub("conv1"), spatialDims, cIn, cOut, kernel, stride, false),
		Norm1: NewNorm(p.Sub("norm1"), spatialDims, cOut, opts.Norm),
		Conv2: stageConv(p.Sub("conv2"), spatialDims, cOut, cOut, kernel, Scalar(1), false),
		Norm2: NewNorm(p.Sub("norm2"), spatialDims, cOut, opts.Norm),
		Drop:  NewDropout(opts.Dropout),
		Act:   NewAct(opts.Act),
	}

	downsample := cIn != cOut
	for _, s := range stride.Expand(spatialDims) {
		if s != 1 {
			downsample = true
		}
	}
	if downsample {
		b.Conv3 = stageConv(p.Sub("conv3"), spatialDims, cIn, cOut, Scalar(1), stride, false)
		b.Norm3 = NewNorm(p.Sub("norm3"), spatialDims, cOut, opts.Norm)
	}

	return b
}

// ForwardT implements ts.ModuleT for ResBlock.
func (b *ResBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := b.Conv1.ForwardT(x, train)
	a1 := normDropAct(c1, b.Norm1, b.Drop, b.Act, train)
	c1.MustDrop()
	c2 := b.Conv2.ForwardT(a1, train)
	a1.MustDrop()
	n2 := b.Norm2.ForwardT(c2, train)
	c2.MustDrop()

	var residual *ts.Tensor
	if b.Conv3 != nil {
		c3 := b.Conv3.ForwardT(x, train)
		residual = b.Norm3.ForwardT(c3, train)
		c3.MustDrop()
	} else {
		residual = x.MustShallowClone()
	}

	sum := n2.MustAdd(residual, true)
	residual.MustDrop()
	d := b.Drop.ForwardT(sum, train)
	sum.MustDrop()
	out := b.Act.ForwardT(d, train)
	d.MustDrop()

	return out
}

// Convs implements ConvHolder.
func (b *ResBlock) Convs() []*Conv {
	if b.Conv3 == nil {
		return []*Conv{b.Conv1, b.Conv2}
	}
	return []*Conv{b.Conv1, b.Conv2, b.Conv3}
}

// UpBlock upsamples with a transposed conv, concatenates the skip tensor
// on the channel axis and refines with a BasicBlock.
type UpBlock struct {
	Transp *Conv
	Block  ConvBlock
}

// NewUpBlock creates an UpBlock taking cIn channels at the coarse
// resolution and a cOut channel skip tensor, producing cOut channels.
func NewUpBlock(p *nn.Path, spatialDims, cIn, cOut int64, kernel, stride, outputPadding Size, opts Options, transBias bool) *UpBlock {
	k := kernel.Expand(spatialDims)
	s := stride.Expand(spatialDims)
	pad, err := samePadding(k, s)
	if err != nil {
		log.Fatal(err)
	}

	config := DefaultConvConfig(spatialDims)
	config.Transposed = true
	config.Stride = s
	config.Padding = pad
	config.OutputPadding = outputPadding.Expand(spatialDims)
	config.Bias = transBias

	return &UpBlock{
		Transp: NewConv(p.Sub("transp_conv"), spatialDims, cIn, cOut, k, config),
		Block:  NewBasicBlock(p.Sub("conv_block"), spatialDims, cOut+cOut, cOut, kernel, Scalar(1), opts),
	}
}

// ForwardSkip upsamples x and merges it with skip.
// skip must have the spatial size of the upsampled x.
func (u *UpBlock) ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor {
	up := u.Transp.ForwardT(x, train)
	cat := ts.MustCat([]ts.Tensor{*up, *skip}, 1)
	up.MustDrop()
	out := u.Block.ForwardT(cat, train)
	cat.MustDrop()

	return out
}

// Convs implements ConvHolder.
func (u *UpBlock) Convs() []*Conv {
	return append([]*Conv{u.Transp}, u.Block.Convs()...)
}

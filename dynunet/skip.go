package dynunet

import (
	"log"

	"github.com/pkg/errors"
	ts "github.com/sugarme/gotch/tensor"
)

// Upsampler merges a coarse tensor with the skip tensor of its level.
// *base.UpBlock implements it.
type Upsampler interface {
	ForwardSkip(x, skip *ts.Tensor, train bool) *ts.Tensor
}

// Layer is a link of the skip chain. It is either a *SkipLayer or, at the
// bottom of the chain, the *Bottleneck.
type Layer interface {
	link()
}

// Bottleneck terminates the skip chain.
type Bottleneck struct {
	Block ts.ModuleT
}

func (b *Bottleneck) link() {}

// ForwardT implements ts.ModuleT for Bottleneck.
func (b *Bottleneck) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	return b.Block.ForwardT(x, train)
}

// SkipLayer is one level of the UNet: its downsample block, the next deeper
// link, and the upsample block that merges the deeper output with this
// level's downsample output. Level 0 is the outermost.
type SkipLayer struct {
	Index      int
	Downsample ts.ModuleT
	Upsample   Upsampler
	Next       Layer
	// SuperHead is the deep supervision head of this level, nil if none.
	// Level 0 never has one.
	SuperHead ts.ModuleT
}

func (l *SkipLayer) link() {}

// ForwardSkip descends through Downsample and Next, then ascends through
// Upsample. It returns the bottleneck output, unchanged from the bottom of
// the chain, and this level's upsample output.
//
// When heads is non-nil the supervision head output of this level is
// written to heads[Index-1]: slot 0 belongs to level 1.
func (l *SkipLayer) ForwardSkip(x *ts.Tensor, heads []*ts.Tensor, train bool) (bottleneckOut, upOut *ts.Tensor) {
	downOut := l.Downsample.ForwardT(x, train)

	var nextOut *ts.Tensor
	switch next := l.Next.(type) {
	case *SkipLayer:
		bottleneckOut, nextOut = next.ForwardSkip(downOut, heads, train)
	case *Bottleneck:
		bottleneckOut = next.ForwardT(downOut, train)
		nextOut = bottleneckOut
	default:
		log.Fatalf("Unexpected skip chain link: %T\n", l.Next)
	}

	upOut = l.Upsample.ForwardSkip(nextOut, downOut, train)
	downOut.MustDrop()
	if nextOut != bottleneckOut {
		nextOut.MustDrop()
	}

	if heads != nil && l.SuperHead != nil && l.Index > 0 {
		if l.Index-1 >= len(heads) {
			log.Fatalf("Head buffer of %v slots has no slot for level %v\n", len(heads), l.Index)
		}
		heads[l.Index-1] = l.SuperHead.ForwardT(upOut, train)
	}

	return bottleneckOut, upOut
}

// ForwardAll implements encoder.Encoder for SkipLayer. It runs the descent
// only and returns every level's downsample output followed by the
// bottleneck output.
func (l *SkipLayer) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	downOut := l.Downsample.ForwardT(x, train)

	var rest []*ts.Tensor
	switch next := l.Next.(type) {
	case *SkipLayer:
		rest = next.ForwardAll(downOut, train)
	case *Bottleneck:
		rest = []*ts.Tensor{next.ForwardT(downOut, train)}
	default:
		log.Fatalf("Unexpected skip chain link: %T\n", l.Next)
	}

	return append([]*ts.Tensor{downOut}, rest...)
}

// Compose builds the skip chain from the top down. downsamples starts with
// the input block; upsamples are ordered from the input resolution down to
// the bottleneck, so both slices pair level by level. superHeads are handed
// out to levels 1, 2, ... in order.
func Compose(downsamples []ts.ModuleT, upsamples []Upsampler, bottleneck ts.ModuleT, superHeads []ts.ModuleT) (Layer, error) {
	return createSkips(0, downsamples, upsamples, bottleneck, superHeads)
}

func createSkips(index int, downsamples []ts.ModuleT, upsamples []Upsampler, bottleneck ts.ModuleT, superHeads []ts.ModuleT) (Layer, error) {
	if len(downsamples) != len(upsamples) {
		return nil, errors.Wrapf(ErrStructureMismatch, "%d downsamples != %d upsamples at level %d",
			len(downsamples), len(upsamples), index)
	}

	// bottom of the network
	if len(downsamples) == 0 {
		return &Bottleneck{Block: bottleneck}, nil
	}

	var head ts.ModuleT
	if index > 0 && len(superHeads) > 0 {
		head, superHeads = superHeads[0], superHeads[1:]
	}

	next, err := createSkips(index+1, downsamples[1:], upsamples[1:], bottleneck, superHeads)
	if err != nil {
		return nil, err
	}

	return &SkipLayer{
		Index:      index,
		Downsample: downsamples[0],
		Upsample:   upsamples[0],
		Next:       next,
		SuperHead:  head,
	}, nil
}

// Chain lists the SkipLayers from root down, excluding the bottleneck.
func Chain(root Layer) []*SkipLayer {
	var layers []*SkipLayer
	for {
		l, ok := root.(*SkipLayer)
		if !ok {
			return layers
		}
		layers = append(layers, l)
		root = l.Next
	}
}

package dynunet

import (
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/base"
	"github.com/sugarme/dynunet/encoder"
)

// DynUNet is a UNet whose depth, kernels and strides come from its Config,
// with a classification head on the bottleneck, a segmentation head on the
// full resolution output and optional deep supervision heads.
//
// Ref:
// - https://arxiv.org/abs/1904.08128
// - https://arxiv.org/abs/1809.10486
type DynUNet struct {
	config Config
	plan   *plan
	stages *stages
	root   *SkipLayer
}

// New validates config and builds a DynUNet with its variables under p.
// Nothing is created under p when validation fails.
func New(p *nn.Path, config *Config) (*DynUNet, error) {
	pl, err := newPlan(config)
	if err != nil {
		return nil, err
	}

	s := buildStages(p, config, pl)

	downsamples := []ts.ModuleT{s.input}
	for _, d := range s.downsamples {
		downsamples = append(downsamples, d)
	}
	// ascending order: input resolution first
	upsamples := make([]Upsampler, len(s.upsamples))
	for i, u := range s.upsamples {
		upsamples[len(upsamples)-1-i] = u
	}
	heads := make([]ts.ModuleT, len(s.superHeads))
	for i, h := range s.superHeads {
		heads[i] = h
	}

	root, err := Compose(downsamples, upsamples, s.bottleneck, heads)
	if err != nil {
		return nil, err
	}

	base.InitWeights(s.convs())

	net := &DynUNet{
		config: *config,
		plan:   pl,
		stages: s,
		root:   root.(*SkipLayer),
	}
	net.config.Filters = pl.filters

	return net, nil
}

// ForwardOutputs returns the classification logits [batch, cls_out_channels]
// and the segmentation output.
//
// In evaluation mode the segmentation output is [batch, seg_out_channels,
// *spatial]. In training mode the deep supervision head outputs are resized
// to the same spatial size and stacked behind it:
// [batch, 1+deep_supr_num, seg_out_channels, *spatial].
func (n *DynUNet) ForwardOutputs(x *ts.Tensor, train bool) (clsOut, segOut *ts.Tensor) {
	var heads []*ts.Tensor
	if train {
		heads = make([]*ts.Tensor, n.config.DeepSuprNum)
	}

	bottleneckOut, upOut := n.root.ForwardSkip(x, heads, train)
	clsOut = n.stages.clsOutput.ForwardT(bottleneckOut, train)
	segOut = n.stages.segOutput.ForwardT(upOut, train)
	bottleneckOut.MustDrop()
	upOut.MustDrop()

	if train {
		segOut = stackHeads(segOut, heads)
	}

	return clsOut, segOut
}

// ForwardT implements ts.ModuleT for DynUNet. It returns the segmentation
// output only.
func (n *DynUNet) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	clsOut, segOut := n.ForwardOutputs(x, train)
	clsOut.MustDrop()

	return segOut
}

// ForwardAll implements encoder.Encoder for DynUNet.
func (n *DynUNet) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	return n.root.ForwardAll(x, train)
}

// Encode runs the encoder path only. ClsFeature is the bottleneck output.
func (n *DynUNet) Encode(x *ts.Tensor, train bool) *encoder.Output {
	return encoder.Encode(n, x, train)
}

// Config returns the configuration with filters resolved.
func (n *DynUNet) Config() Config {
	return n.config
}

// Filters returns the channels of each stage.
func (n *DynUNet) Filters() []int64 {
	return append([]int64(nil), n.plan.filters...)
}

// Root returns the outermost skip layer.
func (n *DynUNet) Root() *SkipLayer {
	return n.root
}

// Layers returns the skip chain from the outermost level down.
func (n *DynUNet) Layers() []*SkipLayer {
	return Chain(n.root)
}

// Depth is the number of skip layers above the bottleneck.
func (n *DynUNet) Depth() int {
	return len(n.Layers())
}

// HeadLevels returns the levels owning a deep supervision head, in order.
func (n *DynUNet) HeadLevels() []int {
	var levels []int
	for _, l := range n.Layers() {
		if l.SuperHead != nil {
			levels = append(levels, l.Index)
		}
	}
	return levels
}

// NumDownsamples is the number of downsample blocks between the input block
// and the bottleneck.
func (n *DynUNet) NumDownsamples() int {
	return len(n.stages.downsamples)
}

// NumUpsamples is the number of upsample blocks.
func (n *DynUNet) NumUpsamples() int {
	return len(n.stages.upsamples)
}

// Convs returns every convolution of the network.
func (n *DynUNet) Convs() []*base.Conv {
	return n.stages.convs()
}

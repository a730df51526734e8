package dynunet

import (
	"github.com/sugarme/dynunet/base"
)

// Config holds the construction parameters of a DynUNet.
//
// KernelSize and Strides have one entry per stage: the first is used by the
// input block, the last by the bottleneck, the rest by the downsample
// blocks. Upsample blocks reuse them in reverse order. OutputPaddings holds
// the transposed conv output padding of each upsample block. Only its last
// len(Strides)-1 entries are used, the last one pairing with the last
// stride; with exactly len(Strides)-1 entries, entry i pairs with
// Strides[i+1]. When empty, each padding is derived as
// 2*padding + stride - kernel per axis.
type Config struct {
	SpatialDims    int64
	InChannels     int64
	ClsOutChannels int64
	SegOutChannels int64

	KernelSize     []base.Size
	Strides        []base.Size
	OutputPaddings []base.Size
	// Filters are the channels of each stage. When nil they are derived as
	// min(2^(5+i), 320) for 3-d and min(2^(5+i), 512) for 2-d networks.
	Filters []int64

	Dropout float64
	Norm    base.Norm
	Act     base.Act

	// DeepSuprNum is the number of deep supervision heads, in
	// (0, len(Strides)-1).
	DeepSuprNum int
	ResBlock    bool
	TransBias   bool

	PoolType base.PoolType
	PoolFmap int64
}

// DefaultConfig returns a Config with the default norm, activation, deep
// supervision and pooling settings. Dimensions, channels, kernels and
// strides still have to be filled in.
func DefaultConfig() *Config {
	return &Config{
		Norm:        base.DefaultNorm(),
		Act:         base.DefaultAct(),
		DeepSuprNum: 1,
		ResBlock:    false,
		TransBias:   false,
		PoolType:    base.PoolMax,
		PoolFmap:    2,
	}
}

// Options returns the block options shared by every stage.
func (c *Config) Options() base.Options {
	return base.Options{
		Norm:    c.Norm,
		Act:     c.Act,
		Dropout: c.Dropout,
	}
}

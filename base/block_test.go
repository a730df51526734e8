package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/base"
)

func TestBasicBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := base.NewBasicBlock(vs.Root(), 2, 3, 8, base.Scalar(3), base.Scalar(2), base.DefaultOptions())

	x := ts.MustRandn([]int64{2, 3, 16, 16}, gotch.Float, gotch.CPU)
	out := block.ForwardT(x, true)
	assert.Equal(t, []int64{2, 8, 8, 8}, out.MustSize())
	assert.Len(t, block.Convs(), 2)
}

func TestResBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	opts := base.DefaultOptions()

	same := base.NewResBlock(vs.Root().Sub("same"), 2, 8, 8, base.Scalar(3), base.Scalar(1), opts)
	assert.Len(t, same.Convs(), 2)

	down := base.NewResBlock(vs.Root().Sub("down"), 3, 4, 8, base.Scalar(3), base.Dims(1, 2, 2), opts)
	assert.Len(t, down.Convs(), 3)

	x := ts.MustRandn([]int64{1, 4, 4, 8, 8}, gotch.Float, gotch.CPU)
	out := down.ForwardT(x, false)
	assert.Equal(t, []int64{1, 8, 4, 4, 4}, out.MustSize())
}

func TestUpBlock(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up := base.NewUpBlock(vs.Root(), 2, 16, 8, base.Scalar(3), base.Scalar(2), base.Scalar(1), base.DefaultOptions(), false)

	x := ts.MustRandn([]int64{1, 16, 4, 4}, gotch.Float, gotch.CPU)
	skip := ts.MustRandn([]int64{1, 8, 8, 8}, gotch.Float, gotch.CPU)
	out := up.ForwardSkip(x, skip, true)
	assert.Equal(t, []int64{1, 8, 8, 8}, out.MustSize())
	// transposed weights are [cIn, cOut, k...]
	assert.Equal(t, []int64{16, 8, 3, 3}, up.Transp.Ws.MustSize())
	assert.False(t, up.Transp.HasBias())
}

func TestOutBlocks(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	x := ts.MustRandn([]int64{2, 16, 6, 6}, gotch.Float, gotch.CPU)

	seg := base.NewOutBlock(vs.Root().Sub("seg"), 2, 16, 3, 0.2)
	assert.Equal(t, []int64{2, 3, 6, 6}, seg.ForwardT(x, true).MustSize())

	for _, pool := range []base.PoolType{base.PoolMax, base.PoolAvg} {
		cls := base.NewClsOutBlock(vs.Root().Sub(string(pool)), 2, 16, 5, pool, 2)
		assert.Equal(t, []int64{2, 5}, cls.ForwardT(x, false).MustSize())
	}
}

func TestNorms(t *testing.T) {
	x := ts.MustRandn([]int64{2, 4, 6, 6}, gotch.Float, gotch.CPU)
	for _, kind := range []base.NormKind{base.NormInstance, base.NormBatch, base.NormGroup} {
		vs := nn.NewVarStore(gotch.CPU)
		norm := base.DefaultNorm()
		norm.Kind = kind
		norm.Groups = 2
		out := base.NewNorm(vs.Root(), 2, 4, norm).ForwardT(x, true)
		assert.Equal(t, x.MustSize(), out.MustSize(), "norm %v", kind)
	}
}

func TestLeakyReLU(t *testing.T) {
	x := ts.MustOfSlice([]float64{-2, 0, 3})
	act := base.NewAct(base.DefaultAct())
	out := act.ForwardT(x, false)
	assert.InDeltaSlice(t, []float64{-0.02, 0, 3}, out.Float64Values(), 1e-9)

	id := base.NewAct(base.Act{Kind: base.ActIdentity})
	assert.Equal(t, []float64{-2, 0, 3}, id.ForwardT(x, false).Float64Values())
}

func TestInitWeights(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	seg := base.NewOutBlock(vs.Root(), 2, 4, 2, 0)
	ts.NoGrad(func() {
		ones := ts.MustOnes([]int64{2}, gotch.Float, gotch.CPU)
		seg.Conv.Bs.Copy_(ones)
	})

	base.InitWeights(seg.Convs())
	for _, v := range seg.Conv.Bs.Float64Values() {
		assert.Zero(t, v)
	}
	assert.Equal(t, []int64{2, 4, 1, 1}, seg.Conv.Ws.MustSize())
}

func TestAdaptiveMaxPool(t *testing.T) {
	vals := make([]float64, 16)
	for i := range vals {
		vals[i] = float64(i)
	}
	x := ts.MustOfSlice(vals).MustView([]int64{1, 1, 4, 4}, true)

	out := base.AdaptiveMaxPool(x, []int64{2, 2})
	assert.Equal(t, []int64{1, 1, 2, 2}, out.MustSize())
	assert.Equal(t, []float64{5, 7, 13, 15}, out.Float64Values())

	// uneven cells overlap: rows [0, 2) and [1, 3) of a 3x3 input
	x3 := ts.MustOfSlice(vals[:9]).MustView([]int64{1, 1, 3, 3}, true)
	out3 := base.AdaptiveMaxPool(x3, []int64{2, 2})
	assert.Equal(t, []float64{4, 5, 7, 8}, out3.Float64Values())

	x5 := ts.MustRandn([]int64{2, 3, 4, 6, 6}, gotch.Float, gotch.CPU)
	assert.Equal(t, []int64{2, 3, 2, 2, 2}, base.AdaptiveMaxPool(x5, []int64{2, 2, 2}).MustSize())
}

func TestDropout(t *testing.T) {
	x := ts.MustOnes([]int64{1000}, gotch.Float, gotch.CPU)

	_, isIdentity := base.NewDropout(0).(*base.Identity)
	assert.True(t, isIdentity)

	drop := base.NewDropout(0.5)
	assert.Equal(t, x.Float64Values(), drop.ForwardT(x, false).Float64Values())

	var zeros int
	for _, v := range drop.ForwardT(x, true).Float64Values() {
		if v == 0 {
			zeros++
		}
	}
	assert.Greater(t, zeros, 0)
	assert.Less(t, zeros, 1000)
}

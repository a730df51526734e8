package dynunet_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	ts "github.com/sugarme/gotch/tensor"

	"github.com/sugarme/dynunet/base"
	"github.com/sugarme/dynunet/dynunet"
)

func TestDeriveFilters(t *testing.T) {
	assert.Equal(t, []int64{32, 64, 128, 256}, dynunet.DeriveFilters(2, 4))
	assert.Equal(t, []int64{32, 64, 128, 256, 512, 512}, dynunet.DeriveFilters(2, 6))
	assert.Equal(t, []int64{32, 64, 128, 256, 320, 320}, dynunet.DeriveFilters(3, 6))
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *dynunet.Config)
		want   error
	}{
		{"kernel stride length", func(c *dynunet.Config) {
			c.KernelSize = c.KernelSize[:3]
		}, dynunet.ErrLengthMismatch},
		{"too few stages", func(c *dynunet.Config) {
			c.KernelSize = c.KernelSize[:2]
			c.Strides = c.Strides[:2]
		}, dynunet.ErrLengthMismatch},
		{"kernel axes", func(c *dynunet.Config) {
			c.KernelSize[1] = base.Dims(3, 3, 3)
		}, dynunet.ErrShape},
		{"stride axes", func(c *dynunet.Config) {
			c.Strides[2] = base.Dims(2, 2, 2)
		}, dynunet.ErrShape},
		{"stride larger than kernel", func(c *dynunet.Config) {
			c.KernelSize[1] = base.Scalar(1)
			c.Strides[1] = base.Scalar(3)
		}, dynunet.ErrShape},
		{"output paddings short", func(c *dynunet.Config) {
			c.OutputPaddings = c.OutputPaddings[:2]
		}, dynunet.ErrLengthMismatch},
		{"output padding too large", func(c *dynunet.Config) {
			c.OutputPaddings[0] = base.Scalar(2)
		}, dynunet.ErrShape},
		{"output padding shrinks the upsample", func(c *dynunet.Config) {
			c.OutputPaddings[2] = base.Scalar(0)
		}, dynunet.ErrShape},
		{"output padding axes", func(c *dynunet.Config) {
			c.OutputPaddings[1] = base.Dims(1, 1, 1)
		}, dynunet.ErrShape},
		{"even kernel with stride 1", func(c *dynunet.Config) {
			c.KernelSize[0] = base.Scalar(2)
		}, dynunet.ErrShape},
		{"insufficient filters", func(c *dynunet.Config) {
			c.Filters = []int64{16, 32, 64}
		}, dynunet.ErrInsufficientFilters},
		{"deep supervision zero", func(c *dynunet.Config) {
			c.DeepSuprNum = 0
		}, dynunet.ErrDeepSupervisionRange},
		{"deep supervision too large", func(c *dynunet.Config) {
			c.DeepSuprNum = 3
		}, dynunet.ErrDeepSupervisionRange},
		{"spatial dims", func(c *dynunet.Config) {
			c.SpatialDims = 1
		}, dynunet.ErrInvalidConfig},
		{"dropout", func(c *dynunet.Config) {
			c.Dropout = 1
		}, dynunet.ErrInvalidConfig},
		{"pool type", func(c *dynunet.Config) {
			c.PoolType = "median"
		}, dynunet.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.modify(c)

			vs := nn.NewVarStore(gotch.CPU)
			net, err := dynunet.New(vs.Root(), c)
			require.Error(t, err)
			assert.Nil(t, net)
			assert.Equal(t, tt.want, errors.Cause(err))
			// a failed construction leaves nothing behind
			assert.Equal(t, 0, vs.Len())
		})
	}
}

func TestFiltersTruncated(t *testing.T) {
	c := testConfig()
	c.Filters = []int64{8, 16, 32, 64, 128, 256}

	vs := nn.NewVarStore(gotch.CPU)
	net, err := dynunet.New(vs.Root(), c)
	require.NoError(t, err)
	assert.Equal(t, []int64{8, 16, 32, 64}, net.Filters())
	assert.Equal(t, []int64{8, 16, 32, 64}, net.Config().Filters)
	// the caller's slice is untouched
	assert.Len(t, c.Filters, 6)
}

func TestOutputPaddingsDerived(t *testing.T) {
	c := testConfig()
	c.OutputPaddings = nil
	c.Filters = []int64{8, 16, 32, 64}
	net := newNet(t, c)

	x := ts.MustRandn([]int64{1, 1, 32, 32}, gotch.Float, gotch.CPU)
	segOut := net.ForwardT(x, false)
	assert.Equal(t, []int64{1, 3, 32, 32}, segOut.MustSize())
}

func TestOutputPaddingsLongerList(t *testing.T) {
	c := testConfig()
	// only the last three entries are read
	c.OutputPaddings = append([]base.Size{base.Scalar(7), base.Scalar(5)}, c.OutputPaddings...)
	c.Filters = []int64{8, 16, 32, 64}
	net := newNet(t, c)

	x := ts.MustRandn([]int64{1, 1, 16, 16}, gotch.Float, gotch.CPU)
	segOut := net.ForwardT(x, false)
	assert.Equal(t, []int64{1, 3, 16, 16}, segOut.MustSize())
}

func TestOutputPaddingsAnisotropicDerived(t *testing.T) {
	c := testConfig()
	c.KernelSize[1] = base.Dims(1, 3)
	c.Strides[1] = base.Dims(1, 2)
	c.OutputPaddings = nil
	c.Filters = []int64{8, 16, 32, 64}
	net := newNet(t, c)

	x := ts.MustRandn([]int64{1, 1, 16, 32}, gotch.Float, gotch.CPU)
	segOut := net.ForwardT(x, false)
	assert.Equal(t, []int64{1, 3, 16, 32}, segOut.MustSize())
}

package base_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sugarme/dynunet/base"
)

func TestParseSizes(t *testing.T) {
	sizes, err := base.ParseSizes("3, 1x3x3,2")
	require.NoError(t, err)
	assert.Equal(t, []base.Size{{3}, {1, 3, 3}, {2}}, sizes)
	assert.Equal(t, "1x3x3", sizes[1].String())

	sizes, err = base.ParseSizes("")
	require.NoError(t, err)
	assert.Nil(t, sizes)

	_, err = base.ParseSizes("3,ax3")
	assert.Error(t, err)
	_, err = base.ParseSizes("3,,3")
	assert.Error(t, err)
}

func TestSizeExpand(t *testing.T) {
	assert.Equal(t, []int64{2, 2, 2}, base.Scalar(2).Expand(3))
	assert.Equal(t, []int64{1, 2}, base.Dims(1, 2).Expand(2))

	assert.True(t, base.Scalar(2).Fits(3))
	assert.True(t, base.Dims(1, 2).Fits(2))
	assert.False(t, base.Dims(1, 2).Fits(3))
}

func TestProduct(t *testing.T) {
	sizes := []base.Size{base.Scalar(1), base.Dims(1, 2), base.Scalar(2)}
	assert.Equal(t, []int64{2, 4}, base.Product(sizes, 2))
}

func TestPadding(t *testing.T) {
	tests := []struct {
		kernel, stride base.Size
		want           []int64
	}{
		{base.Scalar(3), base.Scalar(1), []int64{1, 1}},
		{base.Scalar(3), base.Scalar(2), []int64{1, 1}},
		{base.Dims(1, 3), base.Dims(1, 2), []int64{0, 1}},
		{base.Scalar(2), base.Scalar(2), []int64{0, 0}},
	}
	for _, tt := range tests {
		got, err := base.Padding(tt.kernel, tt.stride, 2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "kernel %v stride %v", tt.kernel, tt.stride)
	}

	_, err := base.Padding(base.Scalar(1), base.Scalar(3), 2)
	assert.Error(t, err)
}

func TestOutputPadding(t *testing.T) {
	tests := []struct {
		kernel, stride base.Size
		want           []int64
	}{
		{base.Scalar(3), base.Scalar(2), []int64{1, 1}},
		{base.Scalar(3), base.Scalar(1), []int64{0, 0}},
		{base.Scalar(2), base.Scalar(2), []int64{0, 0}},
		{base.Dims(1, 3), base.Dims(1, 2), []int64{0, 1}},
	}
	for _, tt := range tests {
		got, err := base.OutputPadding(tt.kernel, tt.stride, 2)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "kernel %v stride %v", tt.kernel, tt.stride)
	}
}

func TestParseKinds(t *testing.T) {
	norm, err := base.ParseNorm("batch")
	require.NoError(t, err)
	assert.Equal(t, base.NormBatch, norm.Kind)
	_, err = base.ParseNorm("layer")
	assert.Error(t, err)

	act, err := base.ParseAct("ReLU")
	require.NoError(t, err)
	assert.Equal(t, base.ActReLU, act.Kind)
	_, err = base.ParseAct("gelu")
	assert.Error(t, err)

	pool, err := base.ParsePool(" AVG ")
	require.NoError(t, err)
	assert.Equal(t, base.PoolAvg, pool)
	_, err = base.ParsePool("median")
	assert.Error(t, err)

	group := base.DefaultNorm()
	group.Kind = base.NormGroup
	group.Groups = 0
	assert.Error(t, group.Validate())
}

func TestKaimingStd(t *testing.T) {
	// fan_in = 4 * 3 * 3 = 36, gain = sqrt(2 / (1 + 0.01^2))
	std := base.KaimingStd([]int64{8, 4, 3, 3}, base.KaimingSlope)
	assert.InDelta(t, 0.235690, std, 1e-5)
}

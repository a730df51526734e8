package base

import (
	"math"

	"github.com/sugarme/gotch"
	ts "github.com/sugarme/gotch/tensor"
)

// KaimingSlope is the leaky relu slope the weight initialisation assumes.
const KaimingSlope = 0.01

// KaimingStd returns the kaiming normal standard deviation for a weight of
// the given dims: gain / sqrt(fan_in), with fan_in = dims[1] * prod(dims[2:])
// and gain = sqrt(2 / (1 + slope^2)).
func KaimingStd(dims []int64, slope float64) float64 {
	fanIn := int64(1)
	if len(dims) > 1 {
		fanIn = dims[1]
	}
	for _, k := range dims[2:] {
		fanIn *= k
	}
	gain := math.Sqrt(2.0 / (1 + slope*slope))

	return gain / math.Sqrt(float64(fanIn))
}

// InitWeights re-initialises every conv in place: weights from
// N(0, KaimingStd) and biases to zero.
func InitWeights(convs []*Conv) {
	ts.NoGrad(func() {
		for _, c := range convs {
			dims := c.Ws.MustSize()
			std := KaimingStd(dims, KaimingSlope)
			w := ts.MustRandn(dims, gotch.Float, c.Ws.MustDevice()).MustMul1(ts.FloatScalar(std), true)
			c.Ws.Copy_(w)
			w.MustDrop()

			if c.HasBias() {
				z := c.Bs.MustZerosLike(false)
				c.Bs.Copy_(z)
				z.MustDrop()
			}
		}
	})
}
